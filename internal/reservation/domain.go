// internal/reservation/domain.go
package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"lendnexus/internal/domain"
	"lendnexus/internal/highlight"
	"lendnexus/internal/inventory"
)

// AvailabilitySource derives how many copies of an item are out on open
// rentals. The circulation service implements it.
type AvailabilitySource interface {
	Availability(ctx context.Context, itemID uuid.UUID) (inventory.Availability, error)
}

// CreateRequest describes a new reservation. Either CustomerID names a
// registered customer or CustomerName a person not registered yet. An item
// listed twice reserves two copies.
type CreateRequest struct {
	CustomerID   *uuid.UUID  `json:"customer_id"`
	CustomerName string      `json:"customer_name"`
	CustomerInfo string      `json:"customer_info"`
	Items        []uuid.UUID `json:"items"`
	Pickup       time.Time   `json:"pickup"`
	OnPremises   bool        `json:"on_premises"`
	Comments     string      `json:"comments"`
}

// View is a reservation as shown to callers. The pickup code hash never
// leaves the service.
type View struct {
	*domain.Reservation
	Highlight highlight.Resolved `json:"highlight"`
}

// Created is the answer to a new reservation. Code is only ever returned here.
type Created struct {
	*View
	Code string `json:"code"`
}
