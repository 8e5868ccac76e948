package raffle

import (
	"context"

	"github.com/sorteomx/sorteo/internal/store"
)

// Guard is the reusable admin-role precondition shared by every
// administrative operation. It reads the user record and never mutates it.
type Guard struct {
	ledger store.Ledger
}

// NewGuard creates a Guard over the given ledger.
func NewGuard(ledger store.Ledger) *Guard {
	return &Guard{ledger: ledger}
}

// EnsureAdmin fails with Unauthenticated when no caller identity is
// present, and with PermissionDenied unless the caller's user record holds
// the admin role.
func (g *Guard) EnsureAdmin(ctx context.Context, callerUID string) error {
	if callerUID == "" {
		return Errorf(KindUnauthenticated, "you must be signed in to perform this action")
	}

	user, err := g.ledger.GetUser(ctx, callerUID)
	if err != nil {
		return Errorf(KindInternal, "could not verify permissions")
	}
	if user == nil || !user.IsAdmin() {
		return Errorf(KindPermissionDenied, "you do not have administrator permissions")
	}
	return nil
}
