package raffle

import "math"

// maxBaseCost caps the base cost so the derived ticket count stays far
// inside int range; beyond it the float-to-int conversion would wrap.
// One billion MXN is well past any product this system sells.
const maxBaseCost = 1_000_000_000

// Pricing holds the derived sale parameters of a raffle product.
type Pricing struct {
	TotalGoal    float64
	TotalTickets int
	TicketPrice  float64
}

// ComputePricing derives the sales goal, ticket count, and ticket price
// from a product's base cost:
//
//	totalGoal    = baseCost * 3
//	totalTickets = ceil(totalGoal * 0.02)
//	ticketPrice  = ceil(totalGoal / totalTickets)
//
// Ceiling on a positive goal guarantees totalTickets >= 1 and
// ticketPrice * totalTickets >= totalGoal. For very small base costs the
// ticket price can exceed the base cost; that is accepted, not special-cased.
func ComputePricing(baseCost float64) (Pricing, error) {
	if math.IsNaN(baseCost) || math.IsInf(baseCost, 0) || baseCost <= 0 {
		return Pricing{}, Errorf(KindInvalidArgument, "base cost must be a positive number")
	}
	if baseCost > maxBaseCost {
		return Pricing{}, Errorf(KindInvalidArgument, "base cost must not exceed %v", float64(maxBaseCost))
	}

	totalGoal := baseCost * 3
	totalTickets := int(math.Ceil(totalGoal * 0.02))
	ticketPrice := math.Ceil(totalGoal / float64(totalTickets))

	return Pricing{
		TotalGoal:    totalGoal,
		TotalTickets: totalTickets,
		TicketPrice:  ticketPrice,
	}, nil
}
