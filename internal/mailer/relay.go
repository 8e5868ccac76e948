package mailer

import (
	"context"
	"log"
	"time"

	"github.com/sorteomx/sorteo/internal/store"
)

// relayBatchSize caps how many pending records one poll picks up.
const relayBatchSize = 50

// Relay drains the mail outbox: it polls the ledger for pending records,
// publishes each to the mail-outbox topic, and marks it sent. Publishing
// before marking gives at-least-once delivery; the consumer side tolerates
// duplicates.
type Relay struct {
	ledger    store.Ledger
	publisher Publisher
	interval  time.Duration
}

// NewRelay creates a Relay polling at the given interval.
func NewRelay(ledger store.Ledger, publisher Publisher, interval time.Duration) *Relay {
	return &Relay{ledger: ledger, publisher: publisher, interval: interval}
}

// Run blocks, draining the outbox on every tick until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	log.Printf("mail-relay: polling every %s", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.DrainOnce(ctx); err != nil {
			log.Printf("mail-relay: drain failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// DrainOnce publishes one batch of pending outbox records. A record that
// fails to publish stays pending and is retried on the next tick; a record
// that publishes but fails to mark will be published again (duplicate, not
// loss).
func (r *Relay) DrainOnce(ctx context.Context) error {
	pending, err := r.ledger.PendingMail(ctx, relayBatchSize)
	if err != nil {
		return err
	}

	for _, m := range pending {
		msg := Message{
			ID:      m.ID,
			To:      m.To,
			Subject: m.Subject,
			Body:    m.Body,
		}
		if err := r.publisher.Publish(ctx, msg); err != nil {
			log.Printf("mail-relay: publish failed for id=%s: %v", m.ID, err)
			continue
		}
		if err := r.ledger.MarkMailSent(ctx, m.ID); err != nil {
			log.Printf("mail-relay: mark sent failed for id=%s (will be republished): %v", m.ID, err)
		}
	}
	return nil
}
