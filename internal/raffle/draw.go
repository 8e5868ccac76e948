package raffle

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/sorteomx/sorteo/internal/store"
	"github.com/sorteomx/sorteo/pkg/models"
)

// Drawer performs the admin-invoked, exactly-once selection of a raffle
// winner among all sold tickets.
type Drawer struct {
	ledger store.Ledger
	guard  *Guard
	now    func() time.Time
	// intn returns a uniformly distributed index in [0, n). Injected so
	// tests can seed it.
	intn func(n int) int
}

// NewDrawer creates a Drawer over the given ledger and guard.
func NewDrawer(ledger store.Ledger, guard *Guard) *Drawer {
	return &Drawer{
		ledger: ledger,
		guard:  guard,
		now:    time.Now,
		intn:   rand.Intn,
	}
}

// DrawResult is the confirmation returned to the invoking admin.
type DrawResult struct {
	WinnerID    string
	WinnerEmail string
	TicketID    string
}

// Draw selects one ticket uniformly at random for a completed raffle and
// finalizes it.
//
// Preconditions, each a distinct failure: the caller must pass the admin
// guard; the product must exist; its status must be completed; no winner
// may be set yet; and the caller must be the product's owning admin. The
// final commit re-checks "completed and no winner" inside one transaction
// keyed on the winner write, so two concurrent draws cannot both finalize.
func (d *Drawer) Draw(ctx context.Context, callerUID, productID string) (*DrawResult, error) {
	if err := d.guard.EnsureAdmin(ctx, callerUID); err != nil {
		return nil, err
	}
	if productID == "" {
		return nil, Errorf(KindInvalidArgument, "missing product id")
	}

	product, err := d.ledger.GetProduct(ctx, productID)
	if err != nil {
		return nil, Errorf(KindInternal, "could not load the raffle")
	}
	if product == nil {
		return nil, Errorf(KindNotFound, "the raffle does not exist")
	}
	if product.Status != models.ProductCompleted {
		return nil, Errorf(KindFailedPrecondition, "the raffle is not finished yet")
	}
	if product.WinnerID != "" {
		return nil, Errorf(KindFailedPrecondition, "the winner for this raffle was already drawn")
	}
	if product.AdminID != callerUID {
		return nil, Errorf(KindPermissionDenied, "you are not the administrator of this raffle")
	}

	tickets, err := d.ledger.TicketsByProduct(ctx, productID)
	if err != nil {
		return nil, Errorf(KindInternal, "could not load the tickets")
	}
	if len(tickets) == 0 {
		// Unreachable if reconciliation and the completion threshold are
		// consistent, but checked anyway.
		return nil, Errorf(KindInternal, "no sold tickets found for this raffle")
	}

	winning := tickets[d.intn(len(tickets))]

	winner, err := d.ledger.GetUser(ctx, winning.UserID)
	if err != nil || winner == nil || winner.Email == "" {
		return nil, Errorf(KindInternal, "could not resolve the winner's email")
	}

	err = d.ledger.RunTransaction(ctx, func(tx store.Tx) error {
		current, err := tx.GetProduct(productID)
		if err != nil {
			return err
		}
		if current == nil {
			return Errorf(KindNotFound, "the raffle does not exist")
		}
		if current.Status != models.ProductCompleted || current.WinnerID != "" {
			return Errorf(KindFailedPrecondition, "the winner for this raffle was already drawn")
		}
		return tx.SetWinner(productID, winning.UserID)
	})
	if err != nil {
		return nil, err
	}

	d.notifyWinner(ctx, product, winner)

	return &DrawResult{
		WinnerID:    winning.UserID,
		WinnerEmail: winner.Email,
		TicketID:    winning.ID,
	}, nil
}

// notifyWinner enqueues the congratulation mail. Best-effort: the draw is
// already committed.
func (d *Drawer) notifyWinner(ctx context.Context, p *models.Product, winner *models.User) {
	mail := &models.Mail{
		To:      winner.Email,
		Subject: fmt.Sprintf("Congratulations, you won the raffle %q!", p.Name),
		Body: fmt.Sprintf(
			"<h1>You won!</h1>"+
				"<p>Your ticket was selected as the winner of the raffle for: <strong>%s</strong>.</p>"+
				"<p>We will contact you soon to arrange delivery of the prize.</p>"+
				"<p>Thank you for participating!</p>",
			p.Name,
		),
		Status:    models.MailPending,
		CreatedAt: d.now(),
	}
	if _, err := d.ledger.EnqueueMail(ctx, mail); err != nil {
		log.Printf("draw: enqueueing winner notification for raffle %s: %v", p.ID, err)
	}
}
