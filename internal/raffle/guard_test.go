package raffle

import (
	"context"
	"testing"

	"github.com/sorteomx/sorteo/internal/store"
)

func TestEnsureAdmin(t *testing.T) {
	ledger := store.NewMemory()
	seedAdmin(ledger, "admin-1")
	seedBuyer(ledger, "buyer-1")
	guard := NewGuard(ledger)

	tests := []struct {
		name string
		uid  string
		want Kind
	}{
		{"admin passes", "admin-1", ""},
		{"empty uid", "", KindUnauthenticated},
		{"unknown user", "nobody", KindPermissionDenied},
		{"non-admin user", "buyer-1", KindPermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.EnsureAdmin(context.Background(), tt.uid)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("EnsureAdmin: %v", err)
				}
				return
			}
			if kind := KindOf(err); kind != tt.want {
				t.Errorf("kind = %v, want %v", kind, tt.want)
			}
		})
	}
}
