// internal/domain/errors.go
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrItemUnavailable       = errors.New("item unavailable")
	ErrItemNoLongerAvailable = errors.New("item no longer available")
	ErrInvalidReturnCount    = errors.New("invalid return count")
	ErrDepositOverpay        = errors.New("deposit overpay")
	ErrInvalidExtension      = errors.New("invalid extension")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrInvalidPickupCode     = errors.New("invalid pickup code")
)

// Invalidf wraps ErrInvalidArgument with a formatted detail.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Shortfall describes why one item cannot be lent out.
type Shortfall struct {
	ItemID    uuid.UUID  `json:"item_id"`
	DisplayID int64      `json:"display_id"`
	Name      string     `json:"name"`
	Status    ItemStatus `json:"status"`
	Requested int        `json:"requested"`
	Available int        `json:"available"`
}

func (s Shortfall) String() string {
	if s.Status != StatusInStock && s.Status != StatusReserved && s.Status != StatusOutOfStock {
		return fmt.Sprintf("#%d %s is %s", s.DisplayID, s.Name, s.Status)
	}
	return fmt.Sprintf("#%d %s: requested %d, available %d", s.DisplayID, s.Name, s.Requested, s.Available)
}

func joinShortfalls(items []Shortfall) string {
	parts := make([]string, len(items))
	for i, s := range items {
		parts[i] = s.String()
	}
	return strings.Join(parts, "; ")
}

// ItemUnavailableError names every item a new rental could not claim.
type ItemUnavailableError struct {
	Items []Shortfall
}

func (e *ItemUnavailableError) Error() string {
	return "item unavailable: " + joinShortfalls(e.Items)
}

func (e *ItemUnavailableError) Is(target error) bool { return target == ErrItemUnavailable }

// ItemNoLongerAvailableError is returned when a reservation is converted
// after some of its items stopped being lendable.
type ItemNoLongerAvailableError struct {
	ReservationID uuid.UUID
	Items         []Shortfall
}

func (e *ItemNoLongerAvailableError) Error() string {
	return fmt.Sprintf("reservation %s: item no longer available: %s", e.ReservationID, joinShortfalls(e.Items))
}

func (e *ItemNoLongerAvailableError) Is(target error) bool {
	return target == ErrItemNoLongerAvailable
}

// InvalidReturnCountError reports a return that is not positive or exceeds
// the copies still outstanding for the item.
type InvalidReturnCountError struct {
	ItemID      uuid.UUID
	Count       int
	Outstanding int
}

func (e *InvalidReturnCountError) Error() string {
	return fmt.Sprintf("invalid return count %d for item %s: %d outstanding", e.Count, e.ItemID, e.Outstanding)
}

func (e *InvalidReturnCountError) Is(target error) bool { return target == ErrInvalidReturnCount }

// DepositOverpayError reports an attempt to hand back more deposit than was taken.
type DepositOverpayError struct {
	Deposit     decimal.Decimal
	DepositBack decimal.Decimal
	Amount      decimal.Decimal
}

func (e *DepositOverpayError) Error() string {
	return fmt.Sprintf("deposit overpay: returning %s with %s of %s already returned",
		e.Amount.StringFixed(2), e.DepositBack.StringFixed(2), e.Deposit.StringFixed(2))
}

func (e *DepositOverpayError) Is(target error) bool { return target == ErrDepositOverpay }

// InvalidExtensionError reports an extension that does not move the due date
// forward, or one against a closed rental.
type InvalidExtensionError struct {
	RentalID   uuid.UUID
	Requested  time.Time
	CurrentDue time.Time
	Closed     bool
}

func (e *InvalidExtensionError) Error() string {
	if e.Closed {
		return fmt.Sprintf("invalid extension: rental %s is already returned", e.RentalID)
	}
	return fmt.Sprintf("invalid extension: %s is not after current due date %s",
		e.Requested.Format(time.DateOnly), e.CurrentDue.Format(time.DateOnly))
}

func (e *InvalidExtensionError) Is(target error) bool { return target == ErrInvalidExtension }
