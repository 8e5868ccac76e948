package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sorteomx/sorteo/pkg/models"
)

// Memory is an in-process Ledger used by tests and local development.
// Transactions run serialized under a single mutex, which is strictly
// stronger than the production store's snapshot isolation, and writes are
// buffered until commit so a failed transaction leaves no trace.
type Memory struct {
	mu        sync.Mutex
	products  map[string]*models.Product
	purchases map[string]*models.Purchase
	tickets   map[string]*models.Ticket
	users     map[string]*models.User
	mail      map[string]*models.Mail

	hookMu sync.Mutex
	hooks  []ProductUpdateHook
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		products:  make(map[string]*models.Product),
		purchases: make(map[string]*models.Purchase),
		tickets:   make(map[string]*models.Ticket),
		users:     make(map[string]*models.User),
		mail:      make(map[string]*models.Mail),
	}
}

// SubscribeProductUpdates registers a hook for committed product writes.
func (m *Memory) SubscribeProductUpdates(hook ProductUpdateHook) {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// productEvent is one committed product mutation awaiting hook dispatch.
type productEvent struct {
	before *models.Product
	after  *models.Product
}

// dispatch runs outside the store lock: hooks call back into the ledger.
func (m *Memory) dispatch(ctx context.Context, events []productEvent) {
	m.hookMu.Lock()
	hooks := make([]ProductUpdateHook, len(m.hooks))
	copy(hooks, m.hooks)
	m.hookMu.Unlock()

	for _, ev := range events {
		for _, hook := range hooks {
			hook(ctx, cloneProduct(ev.before), cloneProduct(ev.after))
		}
	}
}

func cloneProduct(p *models.Product) *models.Product {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// --- Product operations ---

// CreateProduct inserts a new product and returns its generated ID.
func (m *Memory) CreateProduct(ctx context.Context, p *models.Product) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	m.products[cp.ID] = &cp
	return cp.ID, nil
}

// GetProduct returns a product by ID, or (nil, nil) if absent.
func (m *Memory) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneProduct(m.products[id]), nil
}

// ListProducts returns all products, newest first.
func (m *Memory) ListProducts(ctx context.Context) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// UpdateProductStatus sets a product's status and notifies subscribers.
func (m *Memory) UpdateProductStatus(ctx context.Context, id string, status models.ProductStatus) error {
	m.mu.Lock()
	p, ok := m.products[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("product %s not found", id)
	}
	before := cloneProduct(p)
	p.Status = status
	after := cloneProduct(p)
	m.mu.Unlock()

	m.dispatch(ctx, []productEvent{{before: before, after: after}})
	return nil
}

// --- Purchase operations ---

// CreatePurchase inserts a new purchase and returns its generated ID.
func (m *Memory) CreatePurchase(ctx context.Context, p *models.Purchase) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	m.purchases[cp.ID] = &cp
	return cp.ID, nil
}

// GetPurchase returns a purchase by ID, or (nil, nil) if absent.
func (m *Memory) GetPurchase(ctx context.Context, id string) (*models.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.purchases[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// CompletedPurchasesSince returns completed purchases created at or after
// the given time.
func (m *Memory) CompletedPurchasesSince(ctx context.Context, since time.Time) ([]models.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Purchase
	for _, p := range m.purchases {
		if p.PaymentStatus == models.PaymentCompleted && !p.CreatedAt.Before(since) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- Ticket operations ---

// TicketsByProduct returns all tickets belonging to a product.
func (m *Memory) TicketsByProduct(ctx context.Context, productID string) ([]models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Ticket
	for _, t := range m.tickets {
		if t.ProductID == productID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- User operations ---

// GetUser returns a user by ID, or (nil, nil) if absent.
func (m *Memory) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cu := *u
	return &cu, nil
}

// PutUser seeds a user record. The raffle core treats users as read-only;
// this exists for tests and local setup.
func (m *Memory) PutUser(u *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cu := *u
	m.users[cu.ID] = &cu
}

// --- Batch lookups ---

// ProductsByID batch-loads products by ID.
func (m *Memory) ProductsByID(ctx context.Context, ids []string) (map[string]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]models.Product, len(ids))
	for _, chunk := range chunkIDs(ids) {
		for _, id := range chunk {
			if p, ok := m.products[id]; ok {
				out[id] = *p
			}
		}
	}
	return out, nil
}

// --- Mail outbox ---

// EnqueueMail inserts a pending outbox record and returns its ID.
func (m *Memory) EnqueueMail(ctx context.Context, mail *models.Mail) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cm := *mail
	if cm.ID == "" {
		cm.ID = uuid.New().String()
	}
	if cm.Status == "" {
		cm.Status = models.MailPending
	}
	m.mail[cm.ID] = &cm
	return cm.ID, nil
}

// PendingMail returns up to limit pending outbox records, oldest first.
func (m *Memory) PendingMail(ctx context.Context, limit int) ([]models.Mail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Mail
	for _, mm := range m.mail {
		if mm.Status == models.MailPending {
			out = append(out, *mm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkMailSent transitions an outbox record to sent.
func (m *Memory) MarkMailSent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mm, ok := m.mail[id]
	if !ok {
		return fmt.Errorf("mail %s not found", id)
	}
	mm.Status = models.MailSent
	return nil
}

// --- Transactions ---

// memOp is one buffered write.
type memOp struct {
	apply func() error
	// productID is set when the op mutates a product record.
	productID string
}

type memTx struct {
	m   *Memory
	ops []memOp
}

// RunTransaction executes fn with buffered writes. The whole transaction
// holds the store lock, so reads always observe committed state and never
// the transaction's own pending writes, matching the production store's
// read-before-write discipline.
func (m *Memory) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()

	tx := &memTx{m: m}
	if err := fn(tx); err != nil {
		m.mu.Unlock()
		return err
	}

	// Capture before-states of touched products, then commit.
	touched := make(map[string]bool)
	var events []productEvent
	befores := make(map[string]*models.Product)
	for _, op := range tx.ops {
		if op.productID != "" && !touched[op.productID] {
			touched[op.productID] = true
			befores[op.productID] = cloneProduct(m.products[op.productID])
		}
	}
	// Ops mutate the live maps, so a failing op mid-commit must restore
	// the pre-commit state or the all-or-nothing contract breaks.
	undo := m.snapshotLocked()
	for _, op := range tx.ops {
		if err := op.apply(); err != nil {
			m.restoreLocked(undo)
			m.mu.Unlock()
			return err
		}
	}
	for id := range touched {
		events = append(events, productEvent{before: befores[id], after: cloneProduct(m.products[id])})
	}
	m.mu.Unlock()

	m.dispatch(ctx, events)
	return nil
}

// memSnapshot captures the collections transactional ops may mutate.
type memSnapshot struct {
	products  map[string]*models.Product
	purchases map[string]*models.Purchase
	tickets   map[string]*models.Ticket
}

// snapshotLocked deep-copies the mutable collections. Caller holds m.mu.
func (m *Memory) snapshotLocked() memSnapshot {
	s := memSnapshot{
		products:  make(map[string]*models.Product, len(m.products)),
		purchases: make(map[string]*models.Purchase, len(m.purchases)),
		tickets:   make(map[string]*models.Ticket, len(m.tickets)),
	}
	for id, p := range m.products {
		cp := *p
		s.products[id] = &cp
	}
	for id, p := range m.purchases {
		cp := *p
		s.purchases[id] = &cp
	}
	for id, tk := range m.tickets {
		ct := *tk
		s.tickets[id] = &ct
	}
	return s
}

// restoreLocked reinstates a snapshot. Caller holds m.mu.
func (m *Memory) restoreLocked(s memSnapshot) {
	m.products = s.products
	m.purchases = s.purchases
	m.tickets = s.tickets
}

func (tx *memTx) GetPurchase(id string) (*models.Purchase, error) {
	p, ok := tx.m.purchases[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (tx *memTx) GetProduct(id string) (*models.Product, error) {
	return cloneProduct(tx.m.products[id]), nil
}

func (tx *memTx) CompletePurchase(id string) error {
	tx.ops = append(tx.ops, memOp{apply: func() error {
		p, ok := tx.m.purchases[id]
		if !ok {
			return fmt.Errorf("purchase %s not found", id)
		}
		p.PaymentStatus = models.PaymentCompleted
		return nil
	}})
	return nil
}

func (tx *memTx) AddTicketsSold(productID string, n int) error {
	tx.ops = append(tx.ops, memOp{productID: productID, apply: func() error {
		p, ok := tx.m.products[productID]
		if !ok {
			return fmt.Errorf("product %s not found", productID)
		}
		p.TicketsSold += n
		return nil
	}})
	return nil
}

func (tx *memTx) SetProductStatus(productID string, s models.ProductStatus) error {
	tx.ops = append(tx.ops, memOp{productID: productID, apply: func() error {
		p, ok := tx.m.products[productID]
		if !ok {
			return fmt.Errorf("product %s not found", productID)
		}
		p.Status = s
		return nil
	}})
	return nil
}

func (tx *memTx) CreateTicket(t *models.Ticket) error {
	ct := *t
	tx.ops = append(tx.ops, memOp{apply: func() error {
		tx.m.tickets[ct.ID] = &ct
		return nil
	}})
	return nil
}

func (tx *memTx) SetWinner(productID, winnerID string) error {
	tx.ops = append(tx.ops, memOp{productID: productID, apply: func() error {
		p, ok := tx.m.products[productID]
		if !ok {
			return fmt.Errorf("product %s not found", productID)
		}
		p.WinnerID = winnerID
		p.Status = models.ProductDrawn
		return nil
	}})
	return nil
}
