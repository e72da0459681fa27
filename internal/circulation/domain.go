// internal/circulation/domain.go
package circulation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lendnexus/internal/domain"
	"lendnexus/internal/highlight"
	"lendnexus/internal/ledger"
	"lendnexus/internal/temporal"
)

// Clock supplies "now". Today is the calendar date of Now in the clock's
// location.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in Location (time.Local when nil).
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// Line asks for copies of one item.
type Line struct {
	ItemID uuid.UUID `json:"item_id"`
	Copies int       `json:"copies"`
}

// CreateRentalRequest opens a rental. A zero RentedOn means today.
type CreateRentalRequest struct {
	CustomerID uuid.UUID
	Items      []Line
	Deposit    decimal.Decimal
	RentedOn   time.Time
	ExpectedOn time.Time
	Employee   string
	Remark     string
}

// ReturnRequest books returned copies of one item and, optionally, deposit
// handed back at the same time.
type ReturnRequest struct {
	ItemID      uuid.UUID       `json:"item_id"`
	Count       int             `json:"count"`
	DepositBack decimal.Decimal `json:"deposit_back"`
	Employee    string          `json:"employee"`
}

// ConvertRequest turns a reservation into a rental. A zero RentedOn means today.
type ConvertRequest struct {
	ReservationID uuid.UUID
	Deposit       decimal.Decimal
	RentedOn      time.Time
	ExpectedOn    time.Time
	Employee      string
}

// RentalView is a rental with everything derived from it on one day.
type RentalView struct {
	*domain.Rental
	Status             domain.RentalStatus `json:"status"`
	DueOn              time.Time           `json:"due_on"`
	DaysOverdue        int                 `json:"days_overdue"`
	DaysUntilDue       int                 `json:"days_until_due"`
	Severity           temporal.Severity   `json:"severity,omitempty"`
	DueSoon            bool                `json:"due_soon"`
	Outstanding        int                 `json:"outstanding"`
	FullyReturned      bool                `json:"fully_returned"`
	PartiallyReturned  bool                `json:"partially_returned"`
	DepositOutstanding decimal.Decimal     `json:"deposit_outstanding"`
	DepositReconciled  bool                `json:"deposit_reconciled"`
	Highlight          highlight.Resolved  `json:"highlight"`
}

// DerivedStatus refines the temporal status with the copy ledger: an open
// rental with some copies back reports partially_returned while it is not
// yet due.
func DerivedStatus(r *domain.Rental, c temporal.Classification) domain.RentalStatus {
	if c.Status == domain.RentalActive && !r.Closed() && ledger.Returned(r) > 0 {
		return domain.RentalPartiallyReturned
	}
	return c.Status
}

// Describe derives the view of r on today. items are the rental's items in
// order; missing entries are skipped by the highlight.
func Describe(today time.Time, dueSoonDays int, r *domain.Rental, items []*domain.Item) *RentalView {
	c := temporal.Classify(today, temporal.DatesOf(r))
	return &RentalView{
		Rental:             r,
		Status:             DerivedStatus(r, c),
		DueOn:              c.DueOn,
		DaysOverdue:        c.DaysOverdue,
		DaysUntilDue:       c.DaysUntilDue,
		Severity:           c.Severity,
		DueSoon:            temporal.DueSoon(c, dueSoonDays),
		Outstanding:        ledger.Outstanding(r),
		FullyReturned:      ledger.FullyReturned(r),
		PartiallyReturned:  ledger.PartiallyReturned(r),
		DepositOutstanding: ledger.DepositOutstanding(r),
		DepositReconciled:  ledger.DepositFullyReconciled(r),
		Highlight:          highlight.RentalRow(items, c),
	}
}

// RentalStatuses lists the derived statuses a list may be filtered by.
var RentalStatuses = []domain.RentalStatus{
	domain.RentalActive,
	domain.RentalReturned,
	domain.RentalOverdue,
	domain.RentalDueToday,
	domain.RentalReturnedToday,
	domain.RentalPartiallyReturned,
}

func validRentalStatus(s domain.RentalStatus) bool {
	for _, v := range RentalStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Dashboard summarises open rentals on one day.
type Dashboard struct {
	Today    time.Time                 `json:"today"`
	Open     int                       `json:"open"`
	DueToday int                       `json:"due_today"`
	DueSoon  int                       `json:"due_soon"`
	Overdue  int                       `json:"overdue"`
	Buckets  map[temporal.Severity]int `json:"buckets"`
	// Rentals lists overdue rentals, most overdue first, then those due today.
	Rentals []*RentalView `json:"rentals"`
}
