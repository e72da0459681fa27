// internal/inventory/availability.go
package inventory

import (
	"lendnexus/internal/domain"
	"lendnexus/internal/ledger"
)

// Availability is the derived copy count of one item.
type Availability struct {
	Copies      int `json:"copies"`
	Outstanding int `json:"outstanding"`
	Free        int `json:"free"`
}

// Derive counts the copies of item still out on the given rentals. Closed
// rentals and rentals not holding the item contribute nothing.
func Derive(item *domain.Item, rentals []*domain.Rental) Availability {
	a := Availability{Copies: item.Copies}
	for _, r := range rentals {
		if r.Closed() || !r.Holds(item.ID) {
			continue
		}
		a.Outstanding += ledger.Remaining(r, item.ID)
	}
	a.Free = a.Copies - a.Outstanding
	if a.Free < 0 {
		a.Free = 0
	}
	return a
}

// Check returns the shortfall of claiming requested copies of item, or nil
// when the claim can be satisfied.
func Check(item *domain.Item, avail Availability, requested int) *domain.Shortfall {
	if Rentable(item.Status) && requested <= avail.Free && requested <= item.Copies {
		return nil
	}
	return &domain.Shortfall{
		ItemID:    item.ID,
		DisplayID: item.DisplayID,
		Name:      item.Name,
		Status:    item.Status,
		Requested: requested,
		Available: avail.Free,
	}
}
