// internal/reservation/service.go
package reservation

import (
	"context"

	"github.com/google/uuid"

	"lendnexus/internal/store"
)

// Service defines the interface for the reservation service. Converting a
// reservation into a rental belongs to the circulation service.
type Service interface {
	CreateReservation(ctx context.Context, req CreateRequest) (*Created, error)
	// VerifyCode checks a pickup code. Attempts are throttled per reservation.
	VerifyCode(ctx context.Context, id uuid.UUID, code string) (*View, error)
	CancelReservation(ctx context.Context, id uuid.UUID) error
	GetReservation(ctx context.Context, id uuid.UUID) (*View, error)
	ListReservations(ctx context.Context, q store.Query) (store.Page[*View], error)
	History(ctx context.Context, id uuid.UUID) ([]store.Change, error)
}
