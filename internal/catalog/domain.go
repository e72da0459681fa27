// internal/catalog/domain.go
package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lendnexus/internal/domain"
	"lendnexus/internal/highlight"
	"lendnexus/internal/inventory"
)

// AvailabilitySource derives how many copies of an item are out on open
// rentals. The circulation service implements it.
type AvailabilitySource interface {
	Availability(ctx context.Context, itemID uuid.UUID) (inventory.Availability, error)
}

// AddItemRequest describes a new item. Copies defaults to 1.
type AddItemRequest struct {
	Name           string          `json:"name"`
	Brand          string          `json:"brand"`
	Model          string          `json:"model"`
	Category       string          `json:"category"`
	Description    string          `json:"description"`
	Deposit        decimal.Decimal `json:"deposit"`
	Copies         int             `json:"copies"`
	HighlightColor string          `json:"highlight_color"`
	InternalNote   string          `json:"internal_note"`
}

// EditItemRequest changes the fields that are set. Status is not editable
// here; staff actions go through ApplyAction.
type EditItemRequest struct {
	Name           *string          `json:"name"`
	Brand          *string          `json:"brand"`
	Model          *string          `json:"model"`
	Category       *string          `json:"category"`
	Description    *string          `json:"description"`
	Deposit        *decimal.Decimal `json:"deposit"`
	Copies         *int             `json:"copies"`
	HighlightColor *string          `json:"highlight_color"`
	InternalNote   *string          `json:"internal_note"`
}

// ItemView is an item with its derived availability and row color.
type ItemView struct {
	*domain.Item
	Availability inventory.Availability `json:"availability"`
	Highlight    highlight.Resolved     `json:"highlight"`
}
