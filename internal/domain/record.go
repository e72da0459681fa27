// internal/domain/record.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Kind names one of the four record collections.
type Kind string

const (
	KindCustomer    Kind = "customer"
	KindItem        Kind = "item"
	KindRental      Kind = "rental"
	KindReservation Kind = "reservation"
)

// Header is the identity and bookkeeping shared by every stored record.
// The store owns DisplayID, Version, CreatedAt and UpdatedAt.
type Header struct {
	ID        uuid.UUID `json:"id"`
	DisplayID int64     `json:"display_id"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Head gives the store access to the header of any record.
func (h *Header) Head() *Header { return h }

// Record is implemented by Customer, Item, Rental and Reservation.
type Record interface {
	Kind() Kind
	Head() *Header
}

// NewHeader returns a header with a fresh identity and no version yet.
func NewHeader() Header {
	return Header{ID: uuid.New()}
}
