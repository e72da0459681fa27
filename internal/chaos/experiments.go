// internal/chaos/experiments.go
package chaos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"lendnexus/internal/catalog"
	"lendnexus/internal/circulation"
	"lendnexus/internal/membership"
	"lendnexus/internal/store"
	"lendnexus/internal/store/breaker"
)

// Target is the system under test: services built on Breaker, which wraps
// Faults, which wraps the real store.
type Target struct {
	Faults      *Store
	Breaker     *breaker.Store
	Catalog     catalog.Service
	Membership  membership.Service
	Circulation circulation.Service
	// Today is the rental date experiments book from.
	Today time.Time
}

// Pacing of the observation window.
type Pacing struct {
	Duration time.Duration
	Interval time.Duration
}

// DefaultPacing observes for a minute, sampling every second.
var DefaultPacing = Pacing{Duration: time.Minute, Interval: time.Second}

// Experiments returns the lending experiments in game-day order. The
// outage runs last since it leaves the breaker open until its timeout.
func Experiments(t Target, p Pacing, latency time.Duration) []Experiment {
	return []Experiment{
		StoreLatencyExperiment(t, p, latency),
		DoubleBookingExperiment(t, p, 10),
		StoreOutageExperiment(t, p),
	}
}

// probeSuccessRate lists one page of items n times and returns the
// percentage that succeeded.
func probeSuccessRate(t Target, n int) func(context.Context) (float64, error) {
	return func(ctx context.Context) (float64, error) {
		ok := 0
		for range n {
			if _, err := t.Catalog.ListItems(ctx, store.Query{PerPage: 1}); err == nil {
				ok++
			}
		}
		return float64(ok) / float64(n) * 100, nil
	}
}

// StoreLatencyExperiment slows every store call down.
func StoreLatencyExperiment(t Target, p Pacing, latency time.Duration) Experiment {
	return Experiment{
		Name:       "store-latency-injection",
		Hypothesis: "Lending requests keep succeeding while the store is slow",
		SteadyState: []Metric{{
			Name:      "probe_success_rate",
			Query:     probeSuccessRate(t, 5),
			Threshold: Threshold{Operator: ">", Value: 99},
		}},
		Method: []Action{{
			Type:   "inject-latency",
			Target: "store",
			Execute: func(context.Context) error {
				t.Faults.InjectLatency(latency, latency/5)
				return nil
			},
		}},
		Rollback: []Action{{
			Type:   "remove-latency",
			Target: "store",
			Execute: func(context.Context) error {
				t.Faults.Reset()
				return nil
			},
		}},
		Validation: []Assertion{{
			Metric:    "probe_success_rate",
			Condition: func(v float64) bool { return v > 95 },
			Message:   "item listing success rate should stay above 95%",
		}},
		Duration: p.Duration,
		Interval: p.Interval,
	}
}

// DoubleBookingExperiment races contenders for the last copy of an item
// while the store is slow enough for their reads to interleave.
func DoubleBookingExperiment(t Target, p Pacing, contenders int) Experiment {
	var (
		mu      sync.Mutex
		itemID  uuid.UUID
		granted atomic.Int64
	)
	overLent := func(ctx context.Context) (float64, error) {
		mu.Lock()
		id := itemID
		mu.Unlock()
		if id == uuid.Nil {
			return 0, nil
		}
		item, err := t.Catalog.GetItem(ctx, id)
		if err != nil {
			return 0, err
		}
		return float64(max(item.Availability.Outstanding-item.Copies, 0)), nil
	}

	return Experiment{
		Name:       "concurrent-rental-race",
		Hypothesis: "Concurrent rentals never lend out more copies than an item has",
		SteadyState: []Metric{
			{
				Name:      "copies_over_lent",
				Query:     overLent,
				Threshold: Threshold{Operator: "==", Value: 0},
			},
			{
				Name:      "rentals_granted",
				Query:     func(context.Context) (float64, error) { return float64(granted.Load()), nil },
				Threshold: Threshold{Operator: "<=", Value: 1},
			},
		},
		Method: []Action{
			{
				Type:   "inject-latency",
				Target: "store",
				Execute: func(context.Context) error {
					t.Faults.InjectLatency(5*time.Millisecond, 5*time.Millisecond)
					return nil
				},
			},
			{
				Type:   "concurrent-rentals",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					id, err := raceForLastCopy(ctx, t, contenders, &granted)
					mu.Lock()
					itemID = id
					mu.Unlock()
					return err
				},
			},
		},
		Rollback: []Action{{
			Type:   "remove-latency",
			Target: "store",
			Execute: func(context.Context) error {
				t.Faults.Reset()
				return nil
			},
		}},
		Validation: []Assertion{
			{
				Metric:    "copies_over_lent",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "no item may be lent beyond its copies",
			},
			{
				Metric:    "rentals_granted",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "exactly one rental should claim the last copy",
			},
		},
		Duration: p.Duration,
		Interval: p.Interval,
	}
}

func raceForLastCopy(ctx context.Context, t Target, contenders int, granted *atomic.Int64) (uuid.UUID, error) {
	item, err := t.Catalog.AddItem(ctx, catalog.AddItemRequest{Name: "chaos probe", Copies: 1})
	if err != nil {
		return uuid.Nil, fmt.Errorf("add probe item: %w", err)
	}
	customers := make([]uuid.UUID, 0, contenders)
	for i := range contenders {
		c, err := t.Membership.RegisterCustomer(ctx, membership.RegisterRequest{
			Firstname: "Chaos",
			Lastname:  fmt.Sprintf("Contender %d", i+1),
		})
		if err != nil {
			return item.ID, fmt.Errorf("register contender: %w", err)
		}
		customers = append(customers, c.ID)
	}

	var wg sync.WaitGroup
	for _, id := range customers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := t.Circulation.CreateRental(ctx, circulation.CreateRentalRequest{
				CustomerID: id,
				Items:      []circulation.Line{{ItemID: item.ID, Copies: 1}},
				RentedOn:   t.Today,
				ExpectedOn: t.Today.AddDate(0, 0, 1),
			})
			if err == nil {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()
	return item.ID, nil
}

// StoreOutageExperiment fails every store call and expects the breaker to
// start rejecting requests without reaching the store.
func StoreOutageExperiment(t Target, p Pacing) Experiment {
	rejectedFast := func(ctx context.Context) (float64, error) {
		_, err := t.Catalog.GetItem(ctx, uuid.New())
		if errors.Is(err, breaker.ErrUnavailable) {
			return 1, nil
		}
		return 0, nil
	}
	return Experiment{
		Name:       "store-outage",
		Hypothesis: "The store breaker opens and rejects requests fast during an outage",
		SteadyState: []Metric{
			{
				Name:      "rejected_fast",
				Query:     rejectedFast,
				Threshold: Threshold{Operator: "==", Value: 0},
			},
			{
				Name: "breaker_open",
				Query: func(context.Context) (float64, error) {
					if t.Breaker.State() == gobreaker.StateOpen {
						return 1, nil
					}
					return 0, nil
				},
				Threshold: Threshold{Operator: "==", Value: 0},
			},
		},
		Method: []Action{{
			Type:   "inject-failure",
			Target: "store",
			Execute: func(context.Context) error {
				t.Faults.InjectFailures(1)
				return nil
			},
		}},
		Rollback: []Action{{
			Type:   "restore-store",
			Target: "store",
			Execute: func(context.Context) error {
				t.Faults.Reset()
				return nil
			},
		}},
		Validation: []Assertion{
			{
				Metric:    "rejected_fast",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "requests should be rejected by the open breaker",
			},
			{
				Metric:    "breaker_open",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "the store breaker should be open",
			},
		},
		Duration: p.Duration,
		Interval: p.Interval,
	}
}
