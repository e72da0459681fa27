// internal/circulation/query.go
package circulation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lendnexus/internal/domain"
	"lendnexus/internal/inventory"
	"lendnexus/internal/store"
)

// itemCache avoids reading the same item twice while describing a page.
type itemCache struct {
	store store.Store
	items map[uuid.UUID]*domain.Item
}

func newItemCache(st store.Store) *itemCache {
	return &itemCache{store: st, items: make(map[uuid.UUID]*domain.Item)}
}

func (c *itemCache) forRental(ctx context.Context, r *domain.Rental) ([]*domain.Item, error) {
	out := make([]*domain.Item, 0, len(r.Items))
	for _, id := range r.Items {
		item, ok := c.items[id]
		if !ok {
			var err error
			item, err = c.store.GetItem(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("get item %s: %w", id, err)
			}
			c.items[id] = item
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *service) describe(ctx context.Context, cache *itemCache, r *domain.Rental) (*RentalView, error) {
	items, err := cache.forRental(ctx, r)
	if err != nil {
		return nil, err
	}
	return Describe(s.today(), s.dueSoonDays, r, items), nil
}

func (s *service) GetRental(ctx context.Context, rentalID uuid.UUID) (*RentalView, error) {
	r, err := s.store.GetRental(ctx, rentalID)
	if err != nil {
		return nil, fmt.Errorf("get rental: %w", err)
	}
	return s.describe(ctx, newItemCache(s.store), r)
}

func (s *service) ListRentals(ctx context.Context, q store.Query) (store.Page[*RentalView], error) {
	ctx, span := s.tracer.Start(ctx, "circulation.list_rentals",
		trace.WithAttributes(attribute.String("filter.status", q.Status)),
	)
	defer span.End()

	q = q.Normalize()
	out := store.Page[*RentalView]{Page: q.Page, PerPage: q.PerPage, Records: []*RentalView{}}
	cache := newItemCache(s.store)

	if q.Status == "" {
		page, err := s.store.ListRentals(ctx, q)
		if err != nil {
			return out, fail(span, fmt.Errorf("list rentals: %w", err))
		}
		out.Total = page.Total
		for _, r := range page.Records {
			v, err := s.describe(ctx, cache, r)
			if err != nil {
				return out, fail(span, err)
			}
			out.Records = append(out.Records, v)
		}
		return out, nil
	}

	// Derived statuses are not stored, so filter after describing every match.
	status := domain.RentalStatus(q.Status)
	if !validRentalStatus(status) {
		return out, fail(span, domain.Invalidf("unknown rental status %q", q.Status))
	}
	all, err := store.Collect(ctx, s.store.ListRentals, q)
	if err != nil {
		return out, fail(span, fmt.Errorf("list rentals: %w", err))
	}
	var matched []*RentalView
	for _, r := range all {
		v, err := s.describe(ctx, cache, r)
		if err != nil {
			return out, fail(span, err)
		}
		if v.Status == status {
			matched = append(matched, v)
		}
	}
	out.Total = len(matched)
	start := q.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + q.PerPage
	if end > len(matched) {
		end = len(matched)
	}
	out.Records = append(out.Records, matched[start:end]...)
	return out, nil
}

func (s *service) History(ctx context.Context, rentalID uuid.UUID) ([]store.Change, error) {
	if _, err := s.store.GetRental(ctx, rentalID); err != nil {
		return nil, fmt.Errorf("get rental: %w", err)
	}
	return s.store.History(ctx, rentalID)
}

// Availability derives the free copies of an item from its open rentals.
func (s *service) Availability(ctx context.Context, itemID uuid.UUID) (inventory.Availability, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return inventory.Availability{}, fmt.Errorf("get item: %w", err)
	}
	return s.availability(ctx, item, nil)
}

// availability counts the copies of item out on open rentals. override, when
// set, stands in for the stored copy of the same rental.
func (s *service) availability(ctx context.Context, item *domain.Item, override *domain.Rental) (inventory.Availability, error) {
	rentals, err := store.Collect(ctx, s.store.ListRentals, store.Query{ItemID: item.ID, OpenOnly: true})
	if err != nil {
		return inventory.Availability{}, fmt.Errorf("list rentals: %w", err)
	}
	if override != nil {
		replaced := false
		for i, r := range rentals {
			if r.ID == override.ID {
				rentals[i] = override
				replaced = true
			}
		}
		if !replaced {
			rentals = append(rentals, override)
		}
	}
	return inventory.Derive(item, rentals), nil
}
