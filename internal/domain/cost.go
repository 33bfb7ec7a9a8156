package domain

import "time"

// CostPriceEntry is the seller-declared acquisition cost for one listing.
// A missing entry means the cost is unknown, never zero.
type CostPriceEntry struct {
	Key       ProductKey
	CostPrice float64
	UpdatedAt time.Time
}
