// internal/membership/service.go
package membership

import (
	"context"

	"github.com/google/uuid"

	"lendnexus/internal/domain"
	"lendnexus/internal/store"
)

// Service defines the interface for the membership service.
type Service interface {
	// RegisterCustomer is throttled and returns httpx.ErrRateLimited when
	// the limit is hit.
	RegisterCustomer(ctx context.Context, req RegisterRequest) (*domain.Customer, error)
	EditCustomer(ctx context.Context, id uuid.UUID, req EditRequest) (*domain.Customer, error)
	// RenewMembership stamps today as the renewal date.
	RenewMembership(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (*CustomerView, error)
	ListCustomers(ctx context.Context, q store.Query) (store.Page[*CustomerView], error)
}
