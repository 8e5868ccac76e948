package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sorteomx/sorteo/pkg/models"
)

func TestMemory_TransactionRollback(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	productID, err := m.CreateProduct(ctx, &models.Product{
		Name:        "Playstation 5",
		TicketsSold: 5,
		Status:      models.ProductActive,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	boom := errors.New("boom")
	err = m.RunTransaction(ctx, func(tx Tx) error {
		if err := tx.AddTicketsSold(productID, 3); err != nil {
			return err
		}
		if err := tx.CreateTicket(&models.Ticket{ID: "t-1", ProductID: productID}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunTransaction error = %v, want boom", err)
	}

	p, err := m.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if p.TicketsSold != 5 {
		t.Errorf("TicketsSold = %d, want 5 (failed transaction must leave no trace)", p.TicketsSold)
	}
	tickets, err := m.TicketsByProduct(ctx, productID)
	if err != nil {
		t.Fatalf("TicketsByProduct: %v", err)
	}
	if len(tickets) != 0 {
		t.Errorf("len(tickets) = %d, want 0", len(tickets))
	}
}

func TestMemory_FailedOpMidCommitRollsBack(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	purchaseID, err := m.CreatePurchase(ctx, &models.Purchase{
		ProductID:     "product-1",
		UserID:        "buyer-1",
		TicketsBought: 3,
		PaymentStatus: models.PaymentPending,
	})
	if err != nil {
		t.Fatalf("CreatePurchase: %v", err)
	}

	// The first op applies cleanly; the second fails against a missing
	// product. The commit must roll back both.
	err = m.RunTransaction(ctx, func(tx Tx) error {
		if err := tx.CompletePurchase(purchaseID); err != nil {
			return err
		}
		return tx.AddTicketsSold("no-such-product", 3)
	})
	if err == nil {
		t.Fatal("RunTransaction: expected error for missing product")
	}

	p, err := m.GetPurchase(ctx, purchaseID)
	if err != nil {
		t.Fatalf("GetPurchase: %v", err)
	}
	if p.PaymentStatus != models.PaymentPending {
		t.Errorf("PaymentStatus = %q, want %q (partial commit must roll back)", p.PaymentStatus, models.PaymentPending)
	}
}

func TestMemory_TransactionReadsSeeCommittedStateOnly(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	productID, err := m.CreateProduct(ctx, &models.Product{
		Name:        "Playstation 5",
		TicketsSold: 5,
		Status:      models.ProductActive,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	err = m.RunTransaction(ctx, func(tx Tx) error {
		if err := tx.AddTicketsSold(productID, 3); err != nil {
			return err
		}
		// Writes are buffered until commit, so the production store's
		// reads-before-writes discipline also holds here.
		p, err := tx.GetProduct(productID)
		if err != nil {
			return err
		}
		if p.TicketsSold != 5 {
			t.Errorf("in-tx TicketsSold = %d, want 5 (own writes must not be visible)", p.TicketsSold)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunTransaction: %v", err)
	}

	p, err := m.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if p.TicketsSold != 8 {
		t.Errorf("TicketsSold = %d, want 8", p.TicketsSold)
	}
}

func TestMemory_HookReceivesBeforeAndAfter(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	productID, err := m.CreateProduct(ctx, &models.Product{
		Name:        "Playstation 5",
		TicketsSold: 15,
		Status:      models.ProductActive,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	type event struct{ before, after *models.Product }
	var events []event
	m.SubscribeProductUpdates(func(ctx context.Context, before, after *models.Product) {
		events = append(events, event{before, after})
	})

	err = m.RunTransaction(ctx, func(tx Tx) error {
		return tx.AddTicketsSold(productID, 3)
	})
	if err != nil {
		t.Fatalf("RunTransaction: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].before.TicketsSold != 15 {
		t.Errorf("before.TicketsSold = %d, want 15", events[0].before.TicketsSold)
	}
	if events[0].after.TicketsSold != 18 {
		t.Errorf("after.TicketsSold = %d, want 18", events[0].after.TicketsSold)
	}
}

func TestMemory_HookMayUseLedger(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	productID, err := m.CreateProduct(ctx, &models.Product{
		Name:   "Playstation 5",
		Status: models.ProductActive,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	// Hooks run after the lock is released, so a subscriber can start its
	// own transaction (the completion monitor does exactly that).
	done := make(chan struct{})
	var once sync.Once
	m.SubscribeProductUpdates(func(ctx context.Context, before, after *models.Product) {
		once.Do(func() {
			defer close(done)
			err := m.RunTransaction(ctx, func(tx Tx) error {
				return tx.SetProductStatus(after.ID, models.ProductCompleted)
			})
			if err != nil {
				t.Errorf("nested RunTransaction: %v", err)
			}
		})
	})

	err = m.RunTransaction(ctx, func(tx Tx) error {
		return tx.AddTicketsSold(productID, 1)
	})
	if err != nil {
		t.Fatalf("RunTransaction: %v", err)
	}
	<-done

	p, err := m.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if p.Status != models.ProductCompleted {
		t.Errorf("Status = %q, want %q", p.Status, models.ProductCompleted)
	}
}

func TestMemory_ConcurrentIncrements(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	productID, err := m.CreateProduct(ctx, &models.Product{
		Name:   "Playstation 5",
		Status: models.ProductActive,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.RunTransaction(ctx, func(tx Tx) error {
				return tx.AddTicketsSold(productID, 1)
			})
			if err != nil {
				t.Errorf("RunTransaction: %v", err)
			}
		}()
	}
	wg.Wait()

	p, err := m.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if p.TicketsSold != workers {
		t.Errorf("TicketsSold = %d, want %d", p.TicketsSold, workers)
	}
}

func TestMemory_SetWinner(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	productID, err := m.CreateProduct(ctx, &models.Product{
		Name:   "Playstation 5",
		Status: models.ProductCompleted,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	err = m.RunTransaction(ctx, func(tx Tx) error {
		return tx.SetWinner(productID, "buyer-7")
	})
	if err != nil {
		t.Fatalf("RunTransaction: %v", err)
	}

	p, err := m.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if p.WinnerID != "buyer-7" {
		t.Errorf("WinnerID = %q, want %q", p.WinnerID, "buyer-7")
	}
	if p.Status != models.ProductDrawn {
		t.Errorf("Status = %q, want %q (winner and status move in one write)", p.Status, models.ProductDrawn)
	}
}

func TestChunkIDs(t *testing.T) {
	ids := make([]string, 65)
	for i := range ids {
		ids[i] = "id"
	}

	chunks := chunkIDs(ids)
	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3", len(chunks))
	}
	if len(chunks[0]) != inQueryLimit || len(chunks[1]) != inQueryLimit || len(chunks[2]) != 5 {
		t.Errorf("chunk sizes = %d/%d/%d, want %d/%d/5", len(chunks[0]), len(chunks[1]), len(chunks[2]), inQueryLimit, inQueryLimit)
	}

	if got := chunkIDs(nil); len(got) != 0 {
		t.Errorf("chunkIDs(nil) = %v, want empty", got)
	}
}
