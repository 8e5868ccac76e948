// Package store provides the ledger the raffle core runs against: four
// record collections (products, purchases, tickets, users) plus the mail
// outbox, with transactional read-modify-write support.
//
// Two implementations exist: Firestore for production and an in-memory
// ledger for tests and local development. Both provide the same contract:
// a transaction sees a consistent snapshot, buffers its writes, and commits
// them all-or-nothing; ticket-counter updates are commutative increments so
// concurrent transactions never lose an update.
package store

import (
	"context"
	"time"

	"github.com/sorteomx/sorteo/pkg/models"
)

// inQueryLimit is the maximum number of values a single "in" query accepts.
// Batched lookups are chunked to this size.
const inQueryLimit = 30

// ProductUpdateHook observes committed product mutations. Hooks run after
// the commit and may be invoked redundantly; subscribers must be idempotent.
type ProductUpdateHook func(ctx context.Context, before, after *models.Product)

// Tx is the set of operations available inside one atomic transaction.
// All reads must happen before any write; writes are buffered and take
// effect only if the transaction function returns nil.
type Tx interface {
	// GetPurchase returns the purchase, or (nil, nil) if it does not exist.
	GetPurchase(id string) (*models.Purchase, error)
	// GetProduct returns the product, or (nil, nil) if it does not exist.
	GetProduct(id string) (*models.Product, error)
	// CompletePurchase marks the purchase's payment as completed.
	CompletePurchase(id string) error
	// AddTicketsSold atomically increments a product's sold-ticket counter.
	AddTicketsSold(productID string, n int) error
	// SetProductStatus writes a product's status.
	SetProductStatus(productID string, s models.ProductStatus) error
	// CreateTicket writes a new ticket record.
	CreateTicket(t *models.Ticket) error
	// SetWinner records the winner and moves the product to drawn in a
	// single write.
	SetWinner(productID, winnerID string) error
}

// Ledger is the persistence contract the raffle core depends on. Lookup
// methods return (nil, nil) when the record does not exist.
type Ledger interface {
	CreateProduct(ctx context.Context, p *models.Product) (string, error)
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	UpdateProductStatus(ctx context.Context, id string, status models.ProductStatus) error

	CreatePurchase(ctx context.Context, p *models.Purchase) (string, error)
	GetPurchase(ctx context.Context, id string) (*models.Purchase, error)
	CompletedPurchasesSince(ctx context.Context, since time.Time) ([]models.Purchase, error)

	TicketsByProduct(ctx context.Context, productID string) ([]models.Ticket, error)

	GetUser(ctx context.Context, id string) (*models.User, error)

	// ProductsByID batch-loads products, chunking the underlying "in"
	// queries to the store's limit. Missing IDs are absent from the map.
	ProductsByID(ctx context.Context, ids []string) (map[string]models.Product, error)

	EnqueueMail(ctx context.Context, m *models.Mail) (string, error)
	PendingMail(ctx context.Context, limit int) ([]models.Mail, error)
	MarkMailSent(ctx context.Context, id string) error

	// RunTransaction executes fn atomically. If fn returns an error the
	// buffered writes are discarded and the error is returned unchanged.
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error

	// SubscribeProductUpdates registers a hook invoked after every
	// committed write that touches a product record.
	SubscribeProductUpdates(hook ProductUpdateHook)
}

// chunkIDs splits ids into slices of at most inQueryLimit entries.
func chunkIDs(ids []string) [][]string {
	var chunks [][]string
	for len(ids) > inQueryLimit {
		chunks = append(chunks, ids[:inQueryLimit])
		ids = ids[inQueryLimit:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}
