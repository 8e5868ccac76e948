package store

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sorteomx/sorteo/pkg/models"
)

// Collection names, matching the persisted layout.
const (
	colProducts  = "products"
	colPurchases = "purchases"
	colTickets   = "tickets"
	colUsers     = "users"
	colMail      = "mail"
)

// Firestore is the production Ledger backed by Cloud Firestore. Its
// transactions give snapshot reads with conditional commit, and the
// sold-ticket counter uses firestore.Increment so concurrent
// reconciliations compose instead of overwriting each other.
type Firestore struct {
	client *firestore.Client

	hookMu sync.Mutex
	hooks  []ProductUpdateHook
}

// NewFirestore wraps an existing Firestore client.
func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

// Close releases the underlying client.
func (f *Firestore) Close() error {
	return f.client.Close()
}

// SubscribeProductUpdates registers a hook for committed product writes.
func (f *Firestore) SubscribeProductUpdates(hook ProductUpdateHook) {
	f.hookMu.Lock()
	defer f.hookMu.Unlock()
	f.hooks = append(f.hooks, hook)
}

func (f *Firestore) dispatch(ctx context.Context, events []productEvent) {
	f.hookMu.Lock()
	hooks := make([]ProductUpdateHook, len(f.hooks))
	copy(hooks, f.hooks)
	f.hookMu.Unlock()

	for _, ev := range events {
		for _, hook := range hooks {
			hook(ctx, ev.before, ev.after)
		}
	}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func snapToProduct(snap *firestore.DocumentSnapshot) (*models.Product, error) {
	var p models.Product
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
	}
	p.ID = snap.Ref.ID
	return &p, nil
}

func snapToPurchase(snap *firestore.DocumentSnapshot) (*models.Purchase, error) {
	var p models.Purchase
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("decode purchase %s: %w", snap.Ref.ID, err)
	}
	p.ID = snap.Ref.ID
	return &p, nil
}

// --- Product operations ---

// CreateProduct adds a product document with a generated ID.
func (f *Firestore) CreateProduct(ctx context.Context, p *models.Product) (string, error) {
	ref := f.client.Collection(colProducts).NewDoc()
	if _, err := ref.Create(ctx, p); err != nil {
		return "", fmt.Errorf("create product: %w", err)
	}
	return ref.ID, nil
}

// GetProduct returns a product by ID, or (nil, nil) if absent.
func (f *Firestore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	snap, err := f.client.Collection(colProducts).Doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return snapToProduct(snap)
}

// ListProducts returns all products, newest first.
func (f *Firestore) ListProducts(ctx context.Context) ([]models.Product, error) {
	iter := f.client.Collection(colProducts).OrderBy("createdAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var out []models.Product
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list products: %w", err)
		}
		p, err := snapToProduct(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

// UpdateProductStatus sets a product's status and notifies subscribers with
// the exact pre-update state.
func (f *Firestore) UpdateProductStatus(ctx context.Context, id string, st models.ProductStatus) error {
	ref := f.client.Collection(colProducts).Doc(id)

	var before *models.Product
	err := f.client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		snap, err := t.Get(ref)
		if err != nil {
			return err
		}
		before, err = snapToProduct(snap)
		if err != nil {
			return err
		}
		return t.Update(ref, []firestore.Update{{Path: "status", Value: string(st)}})
	})
	if err != nil {
		return fmt.Errorf("update product %s status: %w", id, err)
	}

	after, err := f.GetProduct(ctx, id)
	if err != nil || after == nil {
		// The write committed; deliver the hook with the state we know.
		after = &models.Product{}
		*after = *before
		after.Status = st
	}
	f.dispatch(ctx, []productEvent{{before: before, after: after}})
	return nil
}

// --- Purchase operations ---

// CreatePurchase adds a purchase document with a generated ID.
func (f *Firestore) CreatePurchase(ctx context.Context, p *models.Purchase) (string, error) {
	ref := f.client.Collection(colPurchases).NewDoc()
	if _, err := ref.Create(ctx, p); err != nil {
		return "", fmt.Errorf("create purchase: %w", err)
	}
	return ref.ID, nil
}

// GetPurchase returns a purchase by ID, or (nil, nil) if absent.
func (f *Firestore) GetPurchase(ctx context.Context, id string) (*models.Purchase, error) {
	snap, err := f.client.Collection(colPurchases).Doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get purchase %s: %w", id, err)
	}
	return snapToPurchase(snap)
}

// CompletedPurchasesSince returns completed purchases created at or after
// the given time, oldest first.
func (f *Firestore) CompletedPurchasesSince(ctx context.Context, since time.Time) ([]models.Purchase, error) {
	iter := f.client.Collection(colPurchases).
		Where("paymentStatus", "==", string(models.PaymentCompleted)).
		Where("createdAt", ">=", since).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var out []models.Purchase
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query completed purchases: %w", err)
		}
		p, err := snapToPurchase(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

// --- Ticket operations ---

// TicketsByProduct returns all tickets for a product.
func (f *Firestore) TicketsByProduct(ctx context.Context, productID string) ([]models.Ticket, error) {
	iter := f.client.Collection(colTickets).Where("productId", "==", productID).Documents(ctx)
	defer iter.Stop()

	var out []models.Ticket
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query tickets for %s: %w", productID, err)
		}
		var t models.Ticket
		if err := snap.DataTo(&t); err != nil {
			return nil, fmt.Errorf("decode ticket %s: %w", snap.Ref.ID, err)
		}
		t.ID = snap.Ref.ID
		out = append(out, t)
	}
	return out, nil
}

// --- User operations ---

// GetUser returns a user by ID, or (nil, nil) if absent.
func (f *Firestore) GetUser(ctx context.Context, id string) (*models.User, error) {
	snap, err := f.client.Collection(colUsers).Doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	var u models.User
	if err := snap.DataTo(&u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}
	u.ID = snap.Ref.ID
	return &u, nil
}

// --- Batch lookups ---

// ProductsByID batch-loads products, chunking "in" queries to the store's
// 30-value limit.
func (f *Firestore) ProductsByID(ctx context.Context, ids []string) (map[string]models.Product, error) {
	out := make(map[string]models.Product, len(ids))
	col := f.client.Collection(colProducts)

	for _, chunk := range chunkIDs(ids) {
		refs := make([]*firestore.DocumentRef, len(chunk))
		for i, id := range chunk {
			refs[i] = col.Doc(id)
		}

		iter := col.Where(firestore.DocumentID, "in", refs).Documents(ctx)
		for {
			snap, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				iter.Stop()
				return nil, fmt.Errorf("batch get products: %w", err)
			}
			p, err := snapToProduct(snap)
			if err != nil {
				iter.Stop()
				return nil, err
			}
			out[p.ID] = *p
		}
		iter.Stop()
	}
	return out, nil
}

// --- Mail outbox ---

// EnqueueMail adds a pending outbox document.
func (f *Firestore) EnqueueMail(ctx context.Context, m *models.Mail) (string, error) {
	cm := *m
	if cm.Status == "" {
		cm.Status = models.MailPending
	}
	ref := f.client.Collection(colMail).NewDoc()
	if _, err := ref.Create(ctx, &cm); err != nil {
		return "", fmt.Errorf("enqueue mail: %w", err)
	}
	return ref.ID, nil
}

// PendingMail returns up to limit pending outbox records, oldest first.
func (f *Firestore) PendingMail(ctx context.Context, limit int) ([]models.Mail, error) {
	q := f.client.Collection(colMail).
		Where("status", "==", string(models.MailPending)).
		OrderBy("createdAt", firestore.Asc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []models.Mail
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query pending mail: %w", err)
		}
		var m models.Mail
		if err := snap.DataTo(&m); err != nil {
			return nil, fmt.Errorf("decode mail %s: %w", snap.Ref.ID, err)
		}
		m.ID = snap.Ref.ID
		out = append(out, m)
	}
	return out, nil
}

// MarkMailSent transitions an outbox record to sent.
func (f *Firestore) MarkMailSent(ctx context.Context, id string) error {
	_, err := f.client.Collection(colMail).Doc(id).Update(ctx, []firestore.Update{
		{Path: "status", Value: string(models.MailSent)},
	})
	if err != nil {
		return fmt.Errorf("mark mail %s sent: %w", id, err)
	}
	return nil
}

// --- Transactions ---

// fsTx adapts a *firestore.Transaction to the Tx interface. Reads pass
// straight through; writes are buffered and flushed after the transaction
// function returns, so every read precedes every write as Firestore
// requires, and the before-states of touched products can still be read.
type fsTx struct {
	f  *Firestore
	t  *firestore.Transaction
	tx *txState
}

type txState struct {
	writes  []func(t *firestore.Transaction) error
	touched []string // product IDs mutated by buffered writes
	befores map[string]*models.Product
	deltas  map[string]*productDelta
}

// productDelta accumulates the product mutations a transaction buffers, so
// the post-commit state can be derived even when the re-read fails.
type productDelta struct {
	soldDelta int
	status    *models.ProductStatus
	winnerID  *string
}

func (st *txState) delta(id string) *productDelta {
	d, ok := st.deltas[id]
	if !ok {
		d = &productDelta{}
		st.deltas[id] = d
	}
	return d
}

// applyProductDelta derives a post-commit product state from its pre-commit
// state plus the transaction's buffered mutations. Returns nil when no
// before-state is known.
func applyProductDelta(before *models.Product, d *productDelta) *models.Product {
	if before == nil || d == nil {
		return nil
	}
	after := *before
	after.TicketsSold += d.soldDelta
	if d.status != nil {
		after.Status = *d.status
	}
	if d.winnerID != nil {
		after.WinnerID = *d.winnerID
	}
	return &after
}

// RunTransaction executes fn atomically against Firestore. The transaction
// function may run more than once under contention; buffered state is reset
// per attempt. Product-update hooks fire once, after the final commit.
func (f *Firestore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	var final *txState

	err := f.client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		st := &txState{
			befores: make(map[string]*models.Product),
			deltas:  make(map[string]*productDelta),
		}
		final = st
		wrapped := &fsTx{f: f, t: t, tx: st}

		if err := fn(wrapped); err != nil {
			return err
		}

		// Read before-states of every product a buffered write touches,
		// then flush the writes.
		for _, id := range st.touched {
			if _, ok := st.befores[id]; ok {
				continue
			}
			snap, err := t.Get(f.client.Collection(colProducts).Doc(id))
			if isNotFound(err) {
				st.befores[id] = nil
				continue
			}
			if err != nil {
				return err
			}
			p, err := snapToProduct(snap)
			if err != nil {
				return err
			}
			st.befores[id] = p
		}
		for _, w := range st.writes {
			if err := w(t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Commit succeeded: deliver product updates with post-commit snapshots.
	var events []productEvent
	seen := make(map[string]bool)
	for _, id := range final.touched {
		if seen[id] {
			continue
		}
		seen[id] = true
		after, err := f.GetProduct(ctx, id)
		if err != nil || after == nil {
			// The commit already happened; dropping the event here would
			// leave subscribers (the completion monitor) blind to it, with
			// no redelivery. Derive the post-commit state instead.
			log.Printf("store: re-read of product %s after commit failed (%v), deriving state from buffered writes", id, err)
			after = applyProductDelta(final.befores[id], final.deltas[id])
			if after == nil {
				continue
			}
		}
		events = append(events, productEvent{before: final.befores[id], after: after})
	}
	f.dispatch(ctx, events)
	return nil
}

func (x *fsTx) GetPurchase(id string) (*models.Purchase, error) {
	snap, err := x.t.Get(x.f.client.Collection(colPurchases).Doc(id))
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tx get purchase %s: %w", id, err)
	}
	return snapToPurchase(snap)
}

func (x *fsTx) GetProduct(id string) (*models.Product, error) {
	snap, err := x.t.Get(x.f.client.Collection(colProducts).Doc(id))
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tx get product %s: %w", id, err)
	}
	p, err := snapToProduct(snap)
	if err != nil {
		return nil, err
	}
	// A transactional product read doubles as its before-state.
	if _, ok := x.tx.befores[id]; !ok {
		x.tx.befores[id] = p
	}
	return p, nil
}

func (x *fsTx) CompletePurchase(id string) error {
	ref := x.f.client.Collection(colPurchases).Doc(id)
	x.tx.writes = append(x.tx.writes, func(t *firestore.Transaction) error {
		return t.Update(ref, []firestore.Update{
			{Path: "paymentStatus", Value: string(models.PaymentCompleted)},
		})
	})
	return nil
}

func (x *fsTx) AddTicketsSold(productID string, n int) error {
	ref := x.f.client.Collection(colProducts).Doc(productID)
	x.tx.touched = append(x.tx.touched, productID)
	x.tx.delta(productID).soldDelta += n
	x.tx.writes = append(x.tx.writes, func(t *firestore.Transaction) error {
		return t.Update(ref, []firestore.Update{
			{Path: "ticketsSold", Value: firestore.Increment(n)},
		})
	})
	return nil
}

func (x *fsTx) SetProductStatus(productID string, s models.ProductStatus) error {
	ref := x.f.client.Collection(colProducts).Doc(productID)
	x.tx.touched = append(x.tx.touched, productID)
	st := s
	x.tx.delta(productID).status = &st
	x.tx.writes = append(x.tx.writes, func(t *firestore.Transaction) error {
		return t.Update(ref, []firestore.Update{{Path: "status", Value: string(s)}})
	})
	return nil
}

func (x *fsTx) CreateTicket(tk *models.Ticket) error {
	ct := *tk
	var ref *firestore.DocumentRef
	if ct.ID == "" {
		ref = x.f.client.Collection(colTickets).NewDoc()
	} else {
		ref = x.f.client.Collection(colTickets).Doc(ct.ID)
	}
	x.tx.writes = append(x.tx.writes, func(t *firestore.Transaction) error {
		return t.Create(ref, &ct)
	})
	return nil
}

func (x *fsTx) SetWinner(productID, winnerID string) error {
	ref := x.f.client.Collection(colProducts).Doc(productID)
	x.tx.touched = append(x.tx.touched, productID)
	d := x.tx.delta(productID)
	w := winnerID
	st := models.ProductDrawn
	d.winnerID = &w
	d.status = &st
	x.tx.writes = append(x.tx.writes, func(t *firestore.Transaction) error {
		return t.Update(ref, []firestore.Update{
			{Path: "winnerId", Value: winnerID},
			{Path: "status", Value: string(models.ProductDrawn)},
		})
	})
	return nil
}
