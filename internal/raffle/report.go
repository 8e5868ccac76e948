package raffle

import (
	"context"
	"sort"
	"time"

	"github.com/sorteomx/sorteo/internal/store"
)

// Report aggregates completed sales over a window: the grand total plus a
// per-day series for charting.
type Report struct {
	TotalEarnings float64   `json:"totalEarnings"`
	Labels        []string  `json:"labels"`
	Data          []float64 `json:"data"`
}

// Reporter computes sales reports for administrators. Reads only; not
// concurrency-sensitive.
type Reporter struct {
	ledger store.Ledger
	guard  *Guard
	now    func() time.Time
}

// NewReporter creates a Reporter over the given ledger.
func NewReporter(ledger store.Ledger, guard *Guard) *Reporter {
	return &Reporter{ledger: ledger, guard: guard, now: time.Now}
}

// windowStart resolves a named period to its start time.
func (r *Reporter) windowStart(period string) time.Time {
	now := r.now()
	switch period {
	case "week":
		return now.AddDate(0, 0, -7)
	case "month":
		return now.AddDate(0, -1, 0)
	default: // day
		return now.AddDate(0, 0, -1)
	}
}

// ForPeriod reports sales for a named period: "day" (default), "week", or
// "month". The caller must be an admin.
func (r *Reporter) ForPeriod(ctx context.Context, callerUID, period string) (*Report, error) {
	return r.ForRange(ctx, callerUID, r.windowStart(period), time.Time{})
}

// ForRange reports sales for completed purchases created at or after from
// and, when to is non-zero, before to. Each purchase is joined to its
// product's ticket price via batched lookups.
func (r *Reporter) ForRange(ctx context.Context, callerUID string, from, to time.Time) (*Report, error) {
	if err := r.guard.EnsureAdmin(ctx, callerUID); err != nil {
		return nil, err
	}

	purchases, err := r.ledger.CompletedPurchasesSince(ctx, from)
	if err != nil {
		return nil, Errorf(KindInternal, "could not load sales data")
	}

	var productIDs []string
	seen := make(map[string]bool)
	for _, p := range purchases {
		if !to.IsZero() && !p.CreatedAt.Before(to) {
			continue
		}
		if !seen[p.ProductID] {
			seen[p.ProductID] = true
			productIDs = append(productIDs, p.ProductID)
		}
	}

	products, err := r.ledger.ProductsByID(ctx, productIDs)
	if err != nil {
		return nil, Errorf(KindInternal, "could not load sales data")
	}

	byDay := make(map[string]float64)
	report := &Report{Labels: []string{}, Data: []float64{}}
	for _, p := range purchases {
		if !to.IsZero() && !p.CreatedAt.Before(to) {
			continue
		}
		product, ok := products[p.ProductID]
		if !ok {
			continue
		}
		amount := product.TicketPrice * float64(p.TicketsBought)
		report.TotalEarnings += amount
		byDay[p.CreatedAt.UTC().Format("2006-01-02")] += amount
	}

	for day := range byDay {
		report.Labels = append(report.Labels, day)
	}
	sort.Strings(report.Labels)
	for _, day := range report.Labels {
		report.Data = append(report.Data, byDay[day])
	}
	return report, nil
}
