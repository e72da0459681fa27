// internal/temporal/temporal.go

// Package temporal classifies rentals by their dates. Every function is pure:
// "today" is always supplied by the caller.
package temporal

import (
	"time"

	"lendnexus/internal/domain"
)

// Severity buckets partition overdue rentals for dashboards.
type Severity string

const (
	SeverityNone   Severity = ""
	SeverityLow    Severity = "1-3"
	SeverityMedium Severity = "4-7"
	SeverityHigh   Severity = "8+"
)

// Severities lists the non-empty buckets from least to most severe.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh}

// Dates are the inputs of a classification.
type Dates struct {
	RentedOn   time.Time
	ExpectedOn time.Time
	ExtendedOn *time.Time
	ReturnedOn *time.Time
}

// Classification is the outcome for one rental on one day.
type Classification struct {
	Status       domain.RentalStatus `json:"status"`
	DueOn        time.Time           `json:"due_on"`
	DaysOverdue  int                 `json:"days_overdue"`
	DaysUntilDue int                 `json:"days_until_due"`
	Severity     Severity            `json:"severity,omitempty"`
}

// DatesOf extracts the classifier inputs from a rental.
func DatesOf(r *domain.Rental) Dates {
	return Dates{
		RentedOn:   r.RentedOn,
		ExpectedOn: r.ExpectedOn,
		ExtendedOn: r.ExtendedOn,
		ReturnedOn: r.ReturnedOn,
	}
}

// Day truncates t to its calendar date. The year, month and day are taken in
// t's own location so a date stored at local midnight stays the same day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole calendar days from a to b. Both days are
// UTC midnights, so the difference in seconds divides evenly.
func DaysBetween(a, b time.Time) int {
	return int((Day(b).Unix() - Day(a).Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

// EffectiveDue returns extendedOn when it is set and later than expectedOn.
func EffectiveDue(expectedOn time.Time, extendedOn *time.Time) time.Time {
	if extendedOn != nil && Day(*extendedOn).After(Day(expectedOn)) {
		return Day(*extendedOn)
	}
	return Day(expectedOn)
}

// BucketFor maps days overdue to its severity bucket. Values below one have
// no bucket.
func BucketFor(daysOverdue int) Severity {
	switch {
	case daysOverdue >= 8:
		return SeverityHigh
	case daysOverdue >= 4:
		return SeverityMedium
	case daysOverdue >= 1:
		return SeverityLow
	}
	return SeverityNone
}

// Classify evaluates d against today. The first matching rule wins:
// returned today, returned, due today, overdue, active.
func Classify(today time.Time, d Dates) Classification {
	today = Day(today)
	due := EffectiveDue(d.ExpectedOn, d.ExtendedOn)
	c := Classification{DueOn: due}

	if d.ReturnedOn != nil {
		// A return stamped before the rental started is a data error; it
		// still classifies as returned and never as overdue.
		switch returned := Day(*d.ReturnedOn); {
		case returned.Equal(today):
			c.Status = domain.RentalReturnedToday
		case returned.Before(today):
			c.Status = domain.RentalReturned
		default:
			// Stamped in the future relative to today: none of the
			// returned or due rules apply.
			c.Status = domain.RentalActive
		}
		return c
	}

	switch days := DaysBetween(due, today); {
	case days == 0:
		c.Status = domain.RentalDueToday
	case days > 0:
		c.Status = domain.RentalOverdue
		c.DaysOverdue = days
		c.Severity = BucketFor(days)
	default:
		c.Status = domain.RentalActive
		c.DaysUntilDue = -days
	}
	return c
}

// DueSoon reports whether an active rental falls due within window days.
func DueSoon(c Classification, window int) bool {
	return c.Status == domain.RentalActive && c.DaysUntilDue > 0 && c.DaysUntilDue <= window
}

// ReturnedOutOfOrder reports a return stamped before the rental began.
func ReturnedOutOfOrder(d Dates) bool {
	return d.ReturnedOn != nil && Day(*d.ReturnedOn).Before(Day(d.RentedOn))
}
