// internal/catalog/service.go
package catalog

import (
	"context"

	"github.com/google/uuid"

	"lendnexus/internal/domain"
	"lendnexus/internal/inventory"
	"lendnexus/internal/store"
)

// Service defines the interface for the catalog service.
type Service interface {
	AddItem(ctx context.Context, req AddItemRequest) (*domain.Item, error)
	EditItem(ctx context.Context, id uuid.UUID, req EditItemRequest) (*domain.Item, error)
	// ApplyAction runs a staff status action such as mark_lost or restore.
	ApplyAction(ctx context.Context, id uuid.UUID, action inventory.Action) (*domain.Item, error)
	GetItem(ctx context.Context, id uuid.UUID) (*ItemView, error)
	ListItems(ctx context.Context, q store.Query) (store.Page[*ItemView], error)
	Availability(ctx context.Context, id uuid.UUID) (inventory.Availability, error)
	History(ctx context.Context, id uuid.UUID) ([]store.Change, error)
}
