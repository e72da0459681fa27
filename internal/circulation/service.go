// internal/circulation/service.go
package circulation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lendnexus/internal/domain"
	"lendnexus/internal/inventory"
	"lendnexus/internal/store"
)

// Service runs the rental lifecycle.
type Service interface {
	CreateRental(ctx context.Context, req CreateRentalRequest) (*domain.Rental, error)
	ExtendRental(ctx context.Context, rentalID uuid.UUID, newExpectedOn time.Time, employee string) (*domain.Rental, error)
	RecordReturn(ctx context.Context, rentalID uuid.UUID, req ReturnRequest) (*domain.Rental, error)
	ReturnDeposit(ctx context.Context, rentalID uuid.UUID, amount decimal.Decimal, employee string) (*domain.Rental, error)
	ConvertReservation(ctx context.Context, req ConvertRequest) (*domain.Rental, error)

	GetRental(ctx context.Context, rentalID uuid.UUID) (*RentalView, error)
	// ListRentals filters by q and, when q.Status is set, by derived status.
	ListRentals(ctx context.Context, q store.Query) (store.Page[*RentalView], error)
	History(ctx context.Context, rentalID uuid.UUID) ([]store.Change, error)
	Availability(ctx context.Context, itemID uuid.UUID) (inventory.Availability, error)
	Dashboard(ctx context.Context) (*Dashboard, error)
}
