// internal/store/breaker/breaker.go

// Package breaker guards a store.Store with a circuit breaker so a failing
// database is rejected fast instead of piling up requests.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"lendnexus/internal/domain"
	"lendnexus/internal/metrics"
	"lendnexus/internal/store"
)

// ErrUnavailable is returned while the breaker is open or probing.
var ErrUnavailable = errors.New("store unavailable")

// Settings tune the breaker.
type Settings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// DefaultSettings trip after 60% failures over at least 5 calls.
func DefaultSettings() Settings {
	return Settings{
		MaxRequests:  3,
		Interval:     15 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

// Store decorates another store.
type Store struct {
	next store.Store
	cb   *gobreaker.CircuitBreaker
	name string
}

// New wraps next. name labels the breaker metrics.
func New(next store.Store, name string, s Settings) *Store {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},
		OnStateChange: func(cbName string, from gobreaker.State, to gobreaker.State) {
			metrics.StoreBreakerState.WithLabelValues(cbName).Set(stateValue(to))
			log.WithFields(log.Fields{
				"breaker": cbName,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Store circuit breaker state changed")
		},
		IsSuccessful: isSuccessful,
	})
	metrics.StoreBreakerState.WithLabelValues(name).Set(0)
	return &Store{next: next, cb: cb, name: name}
}

// State reports the breaker state.
func (b *Store) State() gobreaker.State { return b.cb.State() }

// isSuccessful keeps expected outcomes (misses, conflicts, cancellations)
// from tripping the breaker.
func isSuccessful(err error) bool {
	return err == nil ||
		errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, store.ErrConflict) ||
		errors.Is(err, context.Canceled)
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

func call[T any](b *Store, fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.StoreFailures.WithLabelValues(b.name).Inc()
		var zero T
		return zero, errors.Join(ErrUnavailable, err)
	}
	if err != nil && !isSuccessful(err) {
		metrics.StoreFailures.WithLabelValues(b.name).Inc()
	}
	t, _ := res.(T)
	return t, err
}

func (b *Store) GetCustomer(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	return call(b, func() (*domain.Customer, error) { return b.next.GetCustomer(ctx, id) })
}

func (b *Store) GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	return call(b, func() (*domain.Item, error) { return b.next.GetItem(ctx, id) })
}

func (b *Store) GetRental(ctx context.Context, id uuid.UUID) (*domain.Rental, error) {
	return call(b, func() (*domain.Rental, error) { return b.next.GetRental(ctx, id) })
}

func (b *Store) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	return call(b, func() (*domain.Reservation, error) { return b.next.GetReservation(ctx, id) })
}

func (b *Store) ListCustomers(ctx context.Context, q store.Query) (store.Page[*domain.Customer], error) {
	return call(b, func() (store.Page[*domain.Customer], error) { return b.next.ListCustomers(ctx, q) })
}

func (b *Store) ListItems(ctx context.Context, q store.Query) (store.Page[*domain.Item], error) {
	return call(b, func() (store.Page[*domain.Item], error) { return b.next.ListItems(ctx, q) })
}

func (b *Store) ListRentals(ctx context.Context, q store.Query) (store.Page[*domain.Rental], error) {
	return call(b, func() (store.Page[*domain.Rental], error) { return b.next.ListRentals(ctx, q) })
}

func (b *Store) ListReservations(ctx context.Context, q store.Query) (store.Page[*domain.Reservation], error) {
	return call(b, func() (store.Page[*domain.Reservation], error) { return b.next.ListReservations(ctx, q) })
}

func (b *Store) Commit(ctx context.Context, batch *store.Batch) error {
	_, err := call(b, func() (struct{}, error) { return struct{}{}, b.next.Commit(ctx, batch) })
	return err
}

func (b *Store) Subscribe(ctx context.Context, kind domain.Kind) (<-chan store.Change, error) {
	return call(b, func() (<-chan store.Change, error) { return b.next.Subscribe(ctx, kind) })
}

func (b *Store) History(ctx context.Context, id uuid.UUID) ([]store.Change, error) {
	return call(b, func() ([]store.Change, error) { return b.next.History(ctx, id) })
}
