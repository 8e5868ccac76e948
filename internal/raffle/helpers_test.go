package raffle

import (
	"context"
	"testing"
	"time"

	"github.com/sorteomx/sorteo/internal/store"
	"github.com/sorteomx/sorteo/pkg/models"
)

func seedAdmin(ledger *store.Memory, uid string) {
	ledger.PutUser(&models.User{
		ID:    uid,
		Email: uid + "@example.com",
		Role:  models.RoleAdmin,
	})
}

func seedBuyer(ledger *store.Memory, uid string) {
	ledger.PutUser(&models.User{
		ID:    uid,
		Email: uid + "@example.com",
		Role:  models.RoleUser,
	})
}

func seedProduct(t *testing.T, ledger *store.Memory, p *models.Product) string {
	t.Helper()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	id, err := ledger.CreateProduct(context.Background(), p)
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	return id
}

func seedPurchase(t *testing.T, ledger *store.Memory, p *models.Purchase) string {
	t.Helper()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	id, err := ledger.CreatePurchase(context.Background(), p)
	if err != nil {
		t.Fatalf("CreatePurchase: %v", err)
	}
	return id
}

func getProduct(t *testing.T, ledger *store.Memory, id string) *models.Product {
	t.Helper()
	p, err := ledger.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if p == nil {
		t.Fatalf("GetProduct(%s) returned nil", id)
	}
	return p
}
