package raffle

import (
	"context"

	"github.com/google/uuid"

	"github.com/sorteomx/sorteo/internal/store"
	"github.com/sorteomx/sorteo/pkg/models"
)

// Reconciler turns an external payment confirmation into durable state:
// the purchase is marked completed, the product's sold-ticket counter is
// incremented, and one ticket record per bought ticket is materialized.
// The whole step runs in a single ledger transaction and is idempotent, so
// a redelivered confirmation can never double-credit a purchase.
type Reconciler struct {
	ledger store.Ledger
	newID  func() string
}

// NewReconciler creates a Reconciler over the given ledger.
func NewReconciler(ledger store.Ledger) *Reconciler {
	return &Reconciler{
		ledger: ledger,
		newID:  func() string { return uuid.New().String() },
	}
}

// Reconcile processes the confirmation for one purchase.
//
// If the purchase is already completed the call is a successful no-op: the
// counter is not re-incremented and no tickets are re-created. If the
// purchase does not exist the transaction aborts with NotFound and nothing
// is written. Ticket IDs are generated fresh rather than derived from an
// index, so a retried transaction can never collide with itself.
func (r *Reconciler) Reconcile(ctx context.Context, purchaseID string) error {
	if purchaseID == "" {
		return Errorf(KindInvalidArgument, "missing purchase id")
	}

	return r.ledger.RunTransaction(ctx, func(tx store.Tx) error {
		purchase, err := tx.GetPurchase(purchaseID)
		if err != nil {
			return err
		}
		if purchase == nil {
			return Errorf(KindNotFound, "purchase %s not found", purchaseID)
		}
		if purchase.PaymentStatus == models.PaymentCompleted {
			// Duplicate delivery; the first reconciliation already won.
			return nil
		}

		if err := tx.CompletePurchase(purchaseID); err != nil {
			return err
		}
		// Commutative increment: concurrent reconciliations for the same
		// product from different purchases must all count. The product is
		// deliberately not read and remaining capacity is not checked, so
		// near-goal concurrent purchases can oversell; the goal is a soft
		// threshold, not a hard cap.
		if err := tx.AddTicketsSold(purchase.ProductID, purchase.TicketsBought); err != nil {
			return err
		}
		for i := 0; i < purchase.TicketsBought; i++ {
			t := &models.Ticket{
				ID:         r.newID(),
				ProductID:  purchase.ProductID,
				UserID:     purchase.UserID,
				PurchaseID: purchaseID,
			}
			if err := tx.CreateTicket(t); err != nil {
				return err
			}
		}
		return nil
	})
}
