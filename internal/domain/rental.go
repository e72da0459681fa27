// internal/domain/rental.go
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RentalStatus is the derived status other layers (badges, dashboards,
// filters) depend on. The values are a stable contract.
type RentalStatus string

const (
	RentalActive            RentalStatus = "active"
	RentalReturned          RentalStatus = "returned"
	RentalOverdue           RentalStatus = "overdue"
	RentalDueToday          RentalStatus = "due_today"
	RentalReturnedToday     RentalStatus = "returned_today"
	RentalPartiallyReturned RentalStatus = "partially_returned"
)

// Rental is one checkout of one or more items, each with a copy count.
// RequestedCopies and ReturnedItems are keyed by the references in Items.
type Rental struct {
	Header
	CustomerID       uuid.UUID         `json:"customer_id"`
	Items            []uuid.UUID       `json:"items"`
	RequestedCopies  map[uuid.UUID]int `json:"requested_copies"`
	ReturnedItems    map[uuid.UUID]int `json:"returned_items"`
	Deposit          decimal.Decimal   `json:"deposit"`
	DepositBack      decimal.Decimal   `json:"deposit_back"`
	RentedOn         time.Time         `json:"rented_on"`
	ExpectedOn       time.Time         `json:"expected_on"`
	ExtendedOn       *time.Time        `json:"extended_on,omitempty"`
	ReturnedOn       *time.Time        `json:"returned_on,omitempty"`
	CheckoutEmployee string            `json:"employee,omitempty"`
	CheckinEmployee  string            `json:"employee_back,omitempty"`
	ExtendedBy       string            `json:"extended_by,omitempty"`
	Remark           string            `json:"remark,omitempty"`
	ReservationID    *uuid.UUID        `json:"reservation_id,omitempty"`
}

func (*Rental) Kind() Kind { return KindRental }

// Closed reports whether the rental as a whole has been returned.
func (r *Rental) Closed() bool { return r.ReturnedOn != nil }

// Holds reports whether the rental references the item.
func (r *Rental) Holds(itemID uuid.UUID) bool {
	_, ok := r.RequestedCopies[itemID]
	return ok
}
