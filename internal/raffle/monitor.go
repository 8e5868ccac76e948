package raffle

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sorteomx/sorteo/internal/store"
	"github.com/sorteomx/sorteo/pkg/models"
)

// Monitor reacts to committed product updates and closes the raffle when
// the sold-ticket count reaches the goal. It is a fire-and-forget
// subscriber: there is no caller to report to, so every failure is logged
// and swallowed, and redundant delivery of the same update is harmless.
type Monitor struct {
	ledger store.Ledger
	now    func() time.Time
}

// NewMonitor creates a Monitor over the given ledger.
func NewMonitor(ledger store.Ledger) *Monitor {
	return &Monitor{ledger: ledger, now: time.Now}
}

// OnProductUpdated is the product-change hook. It fires when the update
// carries the product to (or past) its ticket goal while the pre-update
// status was still active. The status write is conditional on the product
// still being active, so however many times the update is redelivered the
// transition to completed, and the owner notification, happen once.
func (m *Monitor) OnProductUpdated(ctx context.Context, before, after *models.Product) {
	if before == nil || after == nil {
		return
	}
	if after.TicketsSold < after.TotalTickets || before.Status != models.ProductActive {
		return
	}

	var completed bool
	err := m.ledger.RunTransaction(ctx, func(tx store.Tx) error {
		current, err := tx.GetProduct(after.ID)
		if err != nil {
			return err
		}
		if current == nil || current.Status != models.ProductActive {
			// Another delivery of this update got here first.
			completed = false
			return nil
		}
		completed = true
		return tx.SetProductStatus(after.ID, models.ProductCompleted)
	})
	if err != nil {
		// No retry here: the underlying change notifier redelivers, and
		// the conditional write above keeps that safe.
		log.Printf("monitor: completing raffle %s: %v", after.ID, err)
		return
	}
	if !completed {
		return
	}

	m.notifyOwner(ctx, after)
}

// notifyOwner enqueues the goal-reached mail for the product's admin.
// Best-effort: the status update above is already committed and must not
// be affected by notification failures.
func (m *Monitor) notifyOwner(ctx context.Context, p *models.Product) {
	admin, err := m.ledger.GetUser(ctx, p.AdminID)
	if err != nil {
		log.Printf("monitor: looking up admin %s for raffle %s: %v", p.AdminID, p.ID, err)
		return
	}
	if admin == nil || admin.Email == "" {
		log.Printf("monitor: no email for admin %s of raffle %s, skipping notification", p.AdminID, p.ID)
		return
	}

	mail := &models.Mail{
		To:      admin.Email,
		Subject: fmt.Sprintf("The raffle %q has finished!", p.Name),
		Body: fmt.Sprintf(
			"<h1>Raffle completed!</h1>"+
				"<p>The raffle for <strong>%s</strong> has reached its goal of %d tickets.</p>"+
				"<p>It is time to draw a winner.</p>",
			p.Name, p.TotalTickets,
		),
		Status:    models.MailPending,
		CreatedAt: m.now(),
	}
	if _, err := m.ledger.EnqueueMail(ctx, mail); err != nil {
		log.Printf("monitor: enqueueing owner notification for raffle %s: %v", p.ID, err)
	}
}
