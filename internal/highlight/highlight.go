// internal/highlight/highlight.go

// Package highlight resolves competing display colors by declared priority.
package highlight

import (
	"strings"

	"lendnexus/internal/domain"
	"lendnexus/internal/temporal"
)

// Origin names where a color came from.
type Origin string

const (
	FromItem     Origin = "item"
	FromCustomer Origin = "customer"
	FromRental   Origin = "rental"
)

// Source is one candidate color.
type Source struct {
	Origin Origin
	Color  string
}

// Resolved is the winning color and its origin. An empty Color means none.
type Resolved struct {
	Color  string `json:"color,omitempty"`
	Origin Origin `json:"origin,omitempty"`
}

// Resolve returns the first non-blank color in the given order. Order is the
// only tie-break.
func Resolve(sources ...Source) Resolved {
	for _, s := range sources {
		if c := strings.TrimSpace(s.Color); c != "" {
			return Resolved{Color: c, Origin: s.Origin}
		}
	}
	return Resolved{}
}

// Colors derived from a rental's classification.
const (
	ColorOverdueHigh   = "red"
	ColorOverdueMedium = "orange"
	ColorOverdueLow    = "yellow"
	ColorDueToday      = "blue"
	ColorReturnedToday = "green"
)

// RentalColor computes the color a rental contributes on its own.
func RentalColor(c temporal.Classification) string {
	switch c.Status {
	case domain.RentalOverdue:
		switch c.Severity {
		case temporal.SeverityHigh:
			return ColorOverdueHigh
		case temporal.SeverityMedium:
			return ColorOverdueMedium
		}
		return ColorOverdueLow
	case domain.RentalDueToday:
		return ColorDueToday
	case domain.RentalReturnedToday:
		return ColorReturnedToday
	}
	return ""
}

func itemColor(item *domain.Item) string {
	if item == nil {
		return ""
	}
	return item.HighlightColor
}

func customerColor(c *domain.Customer) string {
	if c == nil {
		return ""
	}
	return c.HighlightColor
}

// ItemRow resolves the color of an item list row.
func ItemRow(item *domain.Item) Resolved {
	return Resolve(Source{FromItem, itemColor(item)})
}

// CustomerRow resolves the color of a customer list row.
func CustomerRow(c *domain.Customer) Resolved {
	return Resolve(Source{FromCustomer, customerColor(c)})
}

// RentalRow resolves the color of a rental row: the first item color wins,
// then the rental-computed color.
func RentalRow(items []*domain.Item, c temporal.Classification) Resolved {
	sources := make([]Source, 0, len(items)+1)
	for _, item := range items {
		sources = append(sources, Source{FromItem, itemColor(item)})
	}
	sources = append(sources, Source{FromRental, RentalColor(c)})
	return Resolve(sources...)
}

// ReservationRow resolves the color of a reservation row: customer first,
// then its items.
func ReservationRow(customer *domain.Customer, items []*domain.Item) Resolved {
	sources := []Source{{FromCustomer, customerColor(customer)}}
	for _, item := range items {
		sources = append(sources, Source{FromItem, itemColor(item)})
	}
	return Resolve(sources...)
}
