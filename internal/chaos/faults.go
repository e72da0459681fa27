// internal/chaos/faults.go
package chaos

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"lendnexus/internal/domain"
	"lendnexus/internal/store"
)

// ErrInjected is returned by calls the fault store chose to fail.
var ErrInjected = errors.New("chaos: injected store failure")

// Store wraps a store.Store and injects latency and failures into every
// call. With no faults set it is a pass-through.
type Store struct {
	next store.Store

	mu          sync.RWMutex
	latency     time.Duration
	jitter      time.Duration
	failureRate float64

	injected atomic.Int64
}

// Wrap returns a fault store over next.
func Wrap(next store.Store) *Store {
	return &Store{next: next}
}

// InjectLatency delays every call by latency plus up to jitter.
func (s *Store) InjectLatency(latency, jitter time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency, s.jitter = latency, jitter
}

// InjectFailures fails the given fraction of calls, 0 to 1.
func (s *Store) InjectFailures(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureRate = min(max(rate, 0), 1)
}

// Reset removes every fault.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency, s.jitter, s.failureRate = 0, 0, 0
}

// Injected counts the failures injected so far.
func (s *Store) Injected() int64 { return s.injected.Load() }

func (s *Store) fault(ctx context.Context) error {
	s.mu.RLock()
	delay := s.latency
	if s.jitter > 0 {
		delay += rand.N(s.jitter)
	}
	rate := s.failureRate
	s.mu.RUnlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	if rate > 0 && rand.Float64() < rate {
		s.injected.Add(1)
		return ErrInjected
	}
	return nil
}

func through[T any](ctx context.Context, s *Store, fn func() (T, error)) (T, error) {
	if err := s.fault(ctx); err != nil {
		var zero T
		return zero, err
	}
	return fn()
}

func (s *Store) GetCustomer(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	return through(ctx, s, func() (*domain.Customer, error) { return s.next.GetCustomer(ctx, id) })
}

func (s *Store) GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	return through(ctx, s, func() (*domain.Item, error) { return s.next.GetItem(ctx, id) })
}

func (s *Store) GetRental(ctx context.Context, id uuid.UUID) (*domain.Rental, error) {
	return through(ctx, s, func() (*domain.Rental, error) { return s.next.GetRental(ctx, id) })
}

func (s *Store) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	return through(ctx, s, func() (*domain.Reservation, error) { return s.next.GetReservation(ctx, id) })
}

func (s *Store) ListCustomers(ctx context.Context, q store.Query) (store.Page[*domain.Customer], error) {
	return through(ctx, s, func() (store.Page[*domain.Customer], error) { return s.next.ListCustomers(ctx, q) })
}

func (s *Store) ListItems(ctx context.Context, q store.Query) (store.Page[*domain.Item], error) {
	return through(ctx, s, func() (store.Page[*domain.Item], error) { return s.next.ListItems(ctx, q) })
}

func (s *Store) ListRentals(ctx context.Context, q store.Query) (store.Page[*domain.Rental], error) {
	return through(ctx, s, func() (store.Page[*domain.Rental], error) { return s.next.ListRentals(ctx, q) })
}

func (s *Store) ListReservations(ctx context.Context, q store.Query) (store.Page[*domain.Reservation], error) {
	return through(ctx, s, func() (store.Page[*domain.Reservation], error) { return s.next.ListReservations(ctx, q) })
}

func (s *Store) Commit(ctx context.Context, b *store.Batch) error {
	if err := s.fault(ctx); err != nil {
		return err
	}
	return s.next.Commit(ctx, b)
}

// Subscribe is never faulted so views keep following the stream.
func (s *Store) Subscribe(ctx context.Context, kind domain.Kind) (<-chan store.Change, error) {
	return s.next.Subscribe(ctx, kind)
}

func (s *Store) History(ctx context.Context, id uuid.UUID) ([]store.Change, error) {
	return through(ctx, s, func() ([]store.Change, error) { return s.next.History(ctx, id) })
}
