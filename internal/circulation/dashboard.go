// internal/circulation/dashboard.go
package circulation

import (
	"context"
	"fmt"
	"sort"

	"lendnexus/internal/domain"
	"lendnexus/internal/metrics"
	"lendnexus/internal/store"
	"lendnexus/internal/temporal"
)

// Dashboard classifies every open rental against today.
func (s *service) Dashboard(ctx context.Context) (*Dashboard, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.dashboard")
	defer span.End()

	open, err := s.openRentals(ctx)
	if err != nil {
		return nil, fail(span, err)
	}

	d := &Dashboard{
		Today:   s.today(),
		Buckets: make(map[temporal.Severity]int, len(temporal.Severities)),
		Rentals: []*RentalView{},
	}
	for _, sev := range temporal.Severities {
		d.Buckets[sev] = 0
	}

	cache := newItemCache(s.store)
	for _, r := range open {
		v, err := s.describe(ctx, cache, r)
		if err != nil {
			return nil, fail(span, err)
		}
		d.Open++
		switch v.Status {
		case domain.RentalOverdue:
			d.Overdue++
			d.Buckets[v.Severity]++
			d.Rentals = append(d.Rentals, v)
		case domain.RentalDueToday:
			d.DueToday++
			d.Rentals = append(d.Rentals, v)
		}
		if v.DueSoon {
			d.DueSoon++
		}
	}

	sort.SliceStable(d.Rentals, func(i, j int) bool {
		a, b := d.Rentals[i], d.Rentals[j]
		if a.DaysOverdue != b.DaysOverdue {
			return a.DaysOverdue > b.DaysOverdue
		}
		return a.DisplayID < b.DisplayID
	})

	for sev, n := range d.Buckets {
		metrics.OverdueRentals.WithLabelValues(string(sev)).Set(float64(n))
	}
	return d, nil
}

func (s *service) openRentals(ctx context.Context) ([]*domain.Rental, error) {
	if s.rentals != nil {
		var open []*domain.Rental
		for _, r := range s.rentals.Records() {
			if !r.Closed() {
				open = append(open, r)
			}
		}
		return open, nil
	}
	open, err := store.Collect(ctx, s.store.ListRentals, store.Query{OpenOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list rentals: %w", err)
	}
	return open, nil
}
