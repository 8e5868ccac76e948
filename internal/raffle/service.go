// Package raffle implements the ticket-sale consistency and
// raffle-lifecycle protocol: product and purchase intake, payment
// reconciliation, the completion monitor, and the winner draw. All shared
// state lives in the ledger; every component here is a stateless handler
// over it.
package raffle

import (
	"context"
	"strings"
	"time"

	"github.com/sorteomx/sorteo/internal/store"
	"github.com/sorteomx/sorteo/pkg/models"
)

// Service carries the intake operations: product creation and
// deactivation, and pending-purchase creation.
type Service struct {
	ledger store.Ledger
	guard  *Guard
	now    func() time.Time
}

// NewService creates a Service over the given ledger and guard.
func NewService(ledger store.Ledger, guard *Guard) *Service {
	return &Service{ledger: ledger, guard: guard, now: time.Now}
}

// CreateProductInput is the admin-supplied part of a new raffle product.
type CreateProductInput struct {
	Name        string
	Description string
	ImageURL    string
	BaseCost    float64
}

// CreateProduct validates the input, derives the sale parameters from the
// base cost, and stores a new active product owned by the caller.
func (s *Service) CreateProduct(ctx context.Context, callerUID string, in CreateProductInput) (string, error) {
	if err := s.guard.EnsureAdmin(ctx, callerUID); err != nil {
		return "", err
	}

	if len(strings.TrimSpace(in.Name)) < 5 {
		return "", Errorf(KindInvalidArgument, "the product name is invalid")
	}
	pricing, err := ComputePricing(in.BaseCost)
	if err != nil {
		return "", err
	}

	product := &models.Product{
		Name:         in.Name,
		Description:  in.Description,
		ImageURL:     in.ImageURL,
		BaseCost:     in.BaseCost,
		TotalGoal:    pricing.TotalGoal,
		TicketPrice:  pricing.TicketPrice,
		TotalTickets: pricing.TotalTickets,
		TicketsSold:  0,
		Status:       models.ProductActive,
		AdminID:      callerUID,
		CreatedAt:    s.now(),
	}

	id, err := s.ledger.CreateProduct(ctx, product)
	if err != nil {
		return "", Errorf(KindInternal, "an error occurred while saving the product")
	}
	return id, nil
}

// DeactivateProduct moves a raffle owned by the caller to inactive.
func (s *Service) DeactivateProduct(ctx context.Context, callerUID, productID string) error {
	if err := s.guard.EnsureAdmin(ctx, callerUID); err != nil {
		return err
	}
	if productID == "" {
		return Errorf(KindInvalidArgument, "missing product id")
	}

	product, err := s.ledger.GetProduct(ctx, productID)
	if err != nil {
		return Errorf(KindInternal, "could not load the product")
	}
	if product == nil {
		return Errorf(KindNotFound, "the product does not exist")
	}
	if product.AdminID != callerUID {
		return Errorf(KindPermissionDenied, "you do not have permission to modify this raffle")
	}

	if err := s.ledger.UpdateProductStatus(ctx, productID, models.ProductInactive); err != nil {
		return Errorf(KindInternal, "an error occurred while deactivating the raffle")
	}
	return nil
}

// CreatePurchase records a pending reservation of n tickets for the
// caller. No inventory is decremented until the payment is reconciled.
func (s *Service) CreatePurchase(ctx context.Context, callerUID, productID string, n int) (string, error) {
	if callerUID == "" {
		return "", Errorf(KindUnauthenticated, "you must be signed in to buy tickets")
	}
	if productID == "" {
		return "", Errorf(KindInvalidArgument, "missing product id")
	}
	if n < 1 {
		return "", Errorf(KindInvalidArgument, "ticket quantity must be at least 1")
	}

	product, err := s.ledger.GetProduct(ctx, productID)
	if err != nil {
		return "", Errorf(KindInternal, "could not load the product")
	}
	if product == nil {
		return "", Errorf(KindNotFound, "the product does not exist")
	}

	purchase := &models.Purchase{
		ProductID:     productID,
		UserID:        callerUID,
		TicketsBought: n,
		PaymentStatus: models.PaymentPending,
		CreatedAt:     s.now(),
	}
	id, err := s.ledger.CreatePurchase(ctx, purchase)
	if err != nil {
		return "", Errorf(KindInternal, "an error occurred while creating the purchase")
	}
	return id, nil
}
