// internal/store/store.go

// Package store defines the contract of the external record store: typed
// reads, filtered queries, atomic batches with per-record compare-and-write,
// change streams and per-record history.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"lendnexus/internal/domain"
)

var (
	// ErrConflict is returned when a record changed since it was read.
	ErrConflict = errors.New("store conflict: version mismatch")
	// ErrNotFound is returned for unknown record ids.
	ErrNotFound = errors.New("record not found")
)

// Action is the kind of change a write made.
type Action string

const (
	Created Action = "created"
	Updated Action = "updated"
	Deleted Action = "deleted"
	// Resync marks a gap in a change stream. It carries only Kind; followers
	// must reload since changes were lost.
	Resync Action = "resync"
)

// Change is one entry of a change stream or of a record's history.
type Change struct {
	Action  Action          `json:"action"`
	Kind    domain.Kind     `json:"kind"`
	ID      uuid.UUID       `json:"id"`
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data,omitempty"`
	At      time.Time       `json:"at"`
}

// Store is implemented by the memory and postgres stores and by decorators.
type Store interface {
	GetCustomer(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
	GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error)
	GetRental(ctx context.Context, id uuid.UUID) (*domain.Rental, error)
	GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)

	ListCustomers(ctx context.Context, q Query) (Page[*domain.Customer], error)
	ListItems(ctx context.Context, q Query) (Page[*domain.Item], error)
	ListRentals(ctx context.Context, q Query) (Page[*domain.Rental], error)
	ListReservations(ctx context.Context, q Query) (Page[*domain.Reservation], error)

	// Commit applies every op of the batch or none of them.
	Commit(ctx context.Context, b *Batch) error

	// Subscribe streams changes of one kind until ctx is done.
	Subscribe(ctx context.Context, kind domain.Kind) (<-chan Change, error)

	// History returns the changes of one record, oldest first.
	History(ctx context.Context, id uuid.UUID) ([]Change, error)
}

// Page is one page of a query result.
type Page[T any] struct {
	Records []T `json:"records"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}
