package raffle

import (
	"context"
	"sync"
	"testing"

	"github.com/sorteomx/sorteo/internal/store"
	"github.com/sorteomx/sorteo/pkg/models"
)

func TestReconcile_CompletesPurchase(t *testing.T) {
	ledger := store.NewMemory()
	seedBuyer(ledger, "buyer-1")
	productID := seedProduct(t, ledger, &models.Product{
		Name:         "Playstation 5",
		TotalTickets: 18,
		TicketsSold:  15,
		Status:       models.ProductActive,
		AdminID:      "admin-1",
	})
	purchaseID := seedPurchase(t, ledger, &models.Purchase{
		ProductID:     productID,
		UserID:        "buyer-1",
		TicketsBought: 3,
		PaymentStatus: models.PaymentPending,
	})

	r := NewReconciler(ledger)
	if err := r.Reconcile(context.Background(), purchaseID); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	purchase, err := ledger.GetPurchase(context.Background(), purchaseID)
	if err != nil {
		t.Fatalf("GetPurchase: %v", err)
	}
	if purchase.PaymentStatus != models.PaymentCompleted {
		t.Errorf("PaymentStatus = %q, want %q", purchase.PaymentStatus, models.PaymentCompleted)
	}

	product := getProduct(t, ledger, productID)
	if product.TicketsSold != 18 {
		t.Errorf("TicketsSold = %d, want 18", product.TicketsSold)
	}

	tickets, err := ledger.TicketsByProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("TicketsByProduct: %v", err)
	}
	if len(tickets) != 3 {
		t.Fatalf("len(tickets) = %d, want 3", len(tickets))
	}
	for _, tk := range tickets {
		if tk.UserID != "buyer-1" {
			t.Errorf("ticket UserID = %q, want %q", tk.UserID, "buyer-1")
		}
		if tk.PurchaseID != purchaseID {
			t.Errorf("ticket PurchaseID = %q, want %q", tk.PurchaseID, purchaseID)
		}
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	ledger := store.NewMemory()
	productID := seedProduct(t, ledger, &models.Product{
		Name:         "Playstation 5",
		TotalTickets: 18,
		TicketsSold:  0,
		Status:       models.ProductActive,
	})
	purchaseID := seedPurchase(t, ledger, &models.Purchase{
		ProductID:     productID,
		UserID:        "buyer-1",
		TicketsBought: 2,
		PaymentStatus: models.PaymentPending,
	})

	r := NewReconciler(ledger)
	for i := 0; i < 3; i++ {
		if err := r.Reconcile(context.Background(), purchaseID); err != nil {
			t.Fatalf("Reconcile #%d: %v", i+1, err)
		}
	}

	product := getProduct(t, ledger, productID)
	if product.TicketsSold != 2 {
		t.Errorf("TicketsSold = %d, want 2 (duplicate delivery must not re-increment)", product.TicketsSold)
	}
	tickets, err := ledger.TicketsByProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("TicketsByProduct: %v", err)
	}
	if len(tickets) != 2 {
		t.Errorf("len(tickets) = %d, want 2", len(tickets))
	}
}

func TestReconcile_UnknownPurchase(t *testing.T) {
	ledger := store.NewMemory()
	r := NewReconciler(ledger)

	err := r.Reconcile(context.Background(), "no-such-purchase")
	if err == nil {
		t.Fatal("Reconcile: expected error")
	}
	if kind := KindOf(err); kind != KindNotFound {
		t.Errorf("kind = %v, want %v", kind, KindNotFound)
	}

	// Nothing may have been written.
	tickets, err := ledger.TicketsByProduct(context.Background(), "any")
	if err != nil {
		t.Fatalf("TicketsByProduct: %v", err)
	}
	if len(tickets) != 0 {
		t.Errorf("len(tickets) = %d, want 0", len(tickets))
	}
}

func TestReconcile_MissingID(t *testing.T) {
	r := NewReconciler(store.NewMemory())
	err := r.Reconcile(context.Background(), "")
	if kind := KindOf(err); kind != KindInvalidArgument {
		t.Errorf("kind = %v, want %v", kind, KindInvalidArgument)
	}
}

func TestReconcile_ConcurrentPurchases(t *testing.T) {
	ledger := store.NewMemory()
	productID := seedProduct(t, ledger, &models.Product{
		Name:         "Playstation 5",
		TotalTickets: 100,
		Status:       models.ProductActive,
	})

	const buyers = 20
	ids := make([]string, buyers)
	for i := range ids {
		ids[i] = seedPurchase(t, ledger, &models.Purchase{
			ProductID:     productID,
			UserID:        "buyer",
			TicketsBought: 1,
			PaymentStatus: models.PaymentPending,
		})
	}

	r := NewReconciler(ledger)
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := r.Reconcile(context.Background(), id); err != nil {
				t.Errorf("Reconcile(%s): %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	product := getProduct(t, ledger, productID)
	if product.TicketsSold != buyers {
		t.Errorf("TicketsSold = %d, want %d (all concurrent increments must count)", product.TicketsSold, buyers)
	}
}
