package mailer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sorteomx/sorteo/internal/store"
	"github.com/sorteomx/sorteo/pkg/models"
)

type capturePublisher struct {
	published []Message
	err       error
}

func (p *capturePublisher) Publish(ctx context.Context, msg Message) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, msg)
	return nil
}

func enqueue(t *testing.T, ledger *store.Memory, to, subject string) string {
	t.Helper()
	id, err := ledger.EnqueueMail(context.Background(), &models.Mail{
		To:        to,
		Subject:   subject,
		Body:      "body",
		Status:    models.MailPending,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("EnqueueMail: %v", err)
	}
	return id
}

func TestRelay_DrainOnce(t *testing.T) {
	ledger := store.NewMemory()
	id1 := enqueue(t, ledger, "a@example.com", "first")
	id2 := enqueue(t, ledger, "b@example.com", "second")

	pub := &capturePublisher{}
	relay := NewRelay(ledger, pub, time.Second)

	if err := relay.DrainOnce(context.Background()); err != nil {
		t.Fatalf("DrainOnce: %v", err)
	}

	if len(pub.published) != 2 {
		t.Fatalf("published %d messages, want 2", len(pub.published))
	}
	got := map[string]bool{pub.published[0].ID: true, pub.published[1].ID: true}
	if !got[id1] || !got[id2] {
		t.Errorf("published IDs = %v, want %s and %s", got, id1, id2)
	}

	pending, err := ledger.PendingMail(context.Background(), 10)
	if err != nil {
		t.Fatalf("PendingMail: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("len(pending) = %d, want 0 after drain", len(pending))
	}

	// A second drain publishes nothing new.
	if err := relay.DrainOnce(context.Background()); err != nil {
		t.Fatalf("second DrainOnce: %v", err)
	}
	if len(pub.published) != 2 {
		t.Errorf("published %d messages after re-drain, want 2", len(pub.published))
	}
}

func TestRelay_PublishFailureKeepsPending(t *testing.T) {
	ledger := store.NewMemory()
	enqueue(t, ledger, "a@example.com", "first")

	pub := &capturePublisher{err: errors.New("broker down")}
	relay := NewRelay(ledger, pub, time.Second)

	if err := relay.DrainOnce(context.Background()); err != nil {
		t.Fatalf("DrainOnce: %v", err)
	}

	pending, err := ledger.PendingMail(context.Background(), 10)
	if err != nil {
		t.Fatalf("PendingMail: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("len(pending) = %d, want 1 (failed publish must stay pending)", len(pending))
	}
}
