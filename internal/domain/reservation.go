// internal/domain/reservation.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Reservation holds items for a pickup. The customer is either a registered
// one (CustomerID) or a free-text name of someone not registered yet.
type Reservation struct {
	Header
	CustomerID   *uuid.UUID  `json:"customer_id,omitempty"`
	CustomerName string      `json:"customer_name,omitempty"`
	CustomerInfo string      `json:"customer_info,omitempty"`
	Items        []uuid.UUID `json:"items"`
	Pickup       time.Time   `json:"pickup"`
	OnPremises   bool        `json:"on_premises"`
	Done         bool        `json:"done"`
	RentalID     *uuid.UUID  `json:"rental_id,omitempty"`
	Comments     string      `json:"comments,omitempty"`
	CodeHash     string      `json:"code_hash,omitempty"`
	CodeSalt     string      `json:"code_salt,omitempty"`
}

func (*Reservation) Kind() Kind { return KindReservation }

// CopiesByItem folds repeated item references into per-item copy counts,
// keeping the order of first appearance.
func (r *Reservation) CopiesByItem() ([]uuid.UUID, map[uuid.UUID]int) {
	order := make([]uuid.UUID, 0, len(r.Items))
	counts := make(map[uuid.UUID]int, len(r.Items))
	for _, id := range r.Items {
		if counts[id] == 0 {
			order = append(order, id)
		}
		counts[id]++
	}
	return order, counts
}
