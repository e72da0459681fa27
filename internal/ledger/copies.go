// internal/ledger/copies.go

// Package ledger tracks per-rental copy returns and deposit reconciliation.
// Both invariants are independent: a rental may be closed with its deposit
// still unsettled.
package ledger

import (
	"github.com/google/uuid"

	"lendnexus/internal/domain"
)

// Remaining is the number of copies of item still out on the rental.
func Remaining(r *domain.Rental, item uuid.UUID) int {
	return r.RequestedCopies[item] - r.ReturnedItems[item]
}

// ItemFullyReturned reports whether every requested copy of item is back.
func ItemFullyReturned(r *domain.Rental, item uuid.UUID) bool {
	return Remaining(r, item) == 0
}

// Outstanding sums the copies still out across all items of the rental.
func Outstanding(r *domain.Rental) int {
	n := 0
	for _, item := range r.Items {
		n += Remaining(r, item)
	}
	return n
}

// Returned sums the copies already back across all items of the rental.
func Returned(r *domain.Rental) int {
	n := 0
	for _, item := range r.Items {
		n += r.ReturnedItems[item]
	}
	return n
}

// FullyReturned reports whether every item of the rental is fully returned.
func FullyReturned(r *domain.Rental) bool {
	return Outstanding(r) == 0
}

// PartiallyReturned reports whether some, but not all, copies are back.
func PartiallyReturned(r *domain.Rental) bool {
	return Returned(r) > 0 && Outstanding(r) > 0
}

// HasUnreturnedItems reports whether any copy is still out.
func HasUnreturnedItems(r *domain.Rental) bool {
	return Outstanding(r) > 0
}

// Open initialises the ledger of a new rental: every item is requested with
// its copy count and nothing is returned yet.
func Open(r *domain.Rental, order []uuid.UUID, copies map[uuid.UUID]int) {
	r.Items = append([]uuid.UUID(nil), order...)
	r.RequestedCopies = make(map[uuid.UUID]int, len(order))
	r.ReturnedItems = make(map[uuid.UUID]int, len(order))
	for _, item := range order {
		r.RequestedCopies[item] = copies[item]
		r.ReturnedItems[item] = 0
	}
}

// RecordReturn books count returned copies of item. It fails without
// mutating anything when count is not positive or exceeds what is still out.
func RecordReturn(r *domain.Rental, item uuid.UUID, count int) error {
	remaining := Remaining(r, item)
	if !r.Holds(item) || count <= 0 || count > remaining {
		return &domain.InvalidReturnCountError{ItemID: item, Count: count, Outstanding: remaining}
	}
	if r.ReturnedItems == nil {
		r.ReturnedItems = make(map[uuid.UUID]int, len(r.Items))
	}
	r.ReturnedItems[item] += count
	return nil
}
