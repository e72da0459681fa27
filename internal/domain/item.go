// internal/domain/item.go
package domain

import "github.com/shopspring/decimal"

// ItemStatus is the coarse, item-level status. It is not tracked per copy.
type ItemStatus string

const (
	StatusInStock     ItemStatus = "in_stock"
	StatusOutOfStock  ItemStatus = "out_of_stock"
	StatusReserved    ItemStatus = "reserved"
	StatusOnBackorder ItemStatus = "on_backorder"
	StatusLost        ItemStatus = "lost"
	StatusRepairing   ItemStatus = "repairing"
	StatusForSale     ItemStatus = "for_sale"
	StatusDeleted     ItemStatus = "deleted"
)

// ItemStatuses lists every status in display order.
var ItemStatuses = []ItemStatus{
	StatusInStock,
	StatusOutOfStock,
	StatusReserved,
	StatusOnBackorder,
	StatusLost,
	StatusRepairing,
	StatusForSale,
	StatusDeleted,
}

// Valid reports whether s is a known status.
func (s ItemStatus) Valid() bool {
	for _, known := range ItemStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Item is a lendable thing. Copies is the number of physical units owned;
// how many of them are out is derived from open rentals, never stored here.
type Item struct {
	Header
	Name           string          `json:"name"`
	Brand          string          `json:"brand,omitempty"`
	Model          string          `json:"model,omitempty"`
	Category       string          `json:"category,omitempty"`
	Description    string          `json:"description,omitempty"`
	Deposit        decimal.Decimal `json:"deposit"`
	Copies         int             `json:"copies"`
	Status         ItemStatus      `json:"status"`
	HighlightColor string          `json:"highlight_color,omitempty"`
	InternalNote   string          `json:"internal_note,omitempty"`
}

func (*Item) Kind() Kind { return KindItem }
