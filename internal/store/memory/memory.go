// internal/store/memory/memory.go

// Package memory is an in-process Store. Records are kept as JSON documents
// so callers never share memory with the store.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lendnexus/internal/domain"
	"lendnexus/internal/store"
)

type entry struct {
	data      []byte
	version   int
	displayID int64
	createdAt time.Time
}

// Store implements store.Store in memory.
type Store struct {
	mu       sync.RWMutex
	records  map[domain.Kind]map[uuid.UUID]*entry
	counters map[domain.Kind]int64
	history  map[uuid.UUID][]store.Change
	subs     map[domain.Kind][]*subscription
	now      func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		records:  make(map[domain.Kind]map[uuid.UUID]*entry),
		counters: make(map[domain.Kind]int64),
		history:  make(map[uuid.UUID][]store.Change),
		subs:     make(map[domain.Kind][]*subscription),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) GetCustomer(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	return get[*domain.Customer](s, domain.KindCustomer, id)
}

func (s *Store) GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	return get[*domain.Item](s, domain.KindItem, id)
}

func (s *Store) GetRental(ctx context.Context, id uuid.UUID) (*domain.Rental, error) {
	return get[*domain.Rental](s, domain.KindRental, id)
}

func (s *Store) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	return get[*domain.Reservation](s, domain.KindReservation, id)
}

func (s *Store) ListCustomers(ctx context.Context, q store.Query) (store.Page[*domain.Customer], error) {
	return list[*domain.Customer](s, domain.KindCustomer, q)
}

func (s *Store) ListItems(ctx context.Context, q store.Query) (store.Page[*domain.Item], error) {
	return list[*domain.Item](s, domain.KindItem, q)
}

func (s *Store) ListRentals(ctx context.Context, q store.Query) (store.Page[*domain.Rental], error) {
	return list[*domain.Rental](s, domain.KindRental, q)
}

func (s *Store) ListReservations(ctx context.Context, q store.Query) (store.Page[*domain.Reservation], error) {
	return list[*domain.Reservation](s, domain.KindReservation, q)
}

func get[T domain.Record](s *Store, kind domain.Kind, id uuid.UUID) (T, error) {
	var zero T
	s.mu.RLock()
	e, ok := s.records[kind][id]
	s.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return store.DecodeAs[T](kind, e.data)
}

func list[T domain.Record](s *Store, kind domain.Kind, q store.Query) (store.Page[T], error) {
	q = q.Normalize()
	page := store.Page[T]{Page: q.Page, PerPage: q.PerPage}

	s.mu.RLock()
	matched := make([]T, 0, len(s.records[kind]))
	for _, e := range s.records[kind] {
		rec, err := store.DecodeAs[T](kind, e.data)
		if err != nil {
			s.mu.RUnlock()
			return page, err
		}
		if store.Match(rec, q) {
			matched = append(matched, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return store.Less(matched[i], matched[j], q) })

	page.Total = len(matched)
	start := q.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + q.PerPage
	if end > len(matched) {
		end = len(matched)
	}
	page.Records = matched[start:end]
	return page, nil
}

type staged struct {
	op     store.Op
	kind   domain.Kind
	header domain.Header
	data   []byte
}

// Commit applies the batch atomically under the store lock.
func (s *Store) Commit(ctx context.Context, b *store.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	changes, err := s.apply(b)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	for _, c := range changes {
		s.publish(c)
	}
	return nil
}

func (s *Store) apply(b *store.Batch) ([]store.Change, error) {
	seen := make(map[uuid.UUID]bool, b.Len())
	for _, op := range b.Ops() {
		h := op.Record.Head()
		kind := op.Record.Kind()
		if seen[h.ID] {
			return nil, fmt.Errorf("%s %s written twice in one batch", kind, h.ID)
		}
		seen[h.ID] = true

		e, exists := s.records[kind][h.ID]
		switch op.Action {
		case store.Created:
			if exists {
				return nil, fmt.Errorf("%s %s already exists: %w", kind, h.ID, store.ErrConflict)
			}
		default:
			if !exists {
				return nil, fmt.Errorf("%s %s: %w", kind, h.ID, store.ErrNotFound)
			}
			if e.version != op.Expected {
				return nil, fmt.Errorf("%s %s at version %d, expected %d: %w", kind, h.ID, e.version, op.Expected, store.ErrConflict)
			}
		}
	}

	now := s.now()
	counters := make(map[domain.Kind]int64)
	stage := make([]staged, 0, b.Len())
	for _, op := range b.Ops() {
		kind := op.Record.Kind()
		h := *op.Record.Head()
		if op.Action == store.Created {
			counters[kind]++
			h.DisplayID = s.counters[kind] + counters[kind]
			h.Version = 1
			h.CreatedAt = now
		} else {
			e := s.records[kind][h.ID]
			h.DisplayID = e.displayID
			h.CreatedAt = e.createdAt
			h.Version = op.Expected + 1
		}
		h.UpdatedAt = now
		stage = append(stage, staged{op: op, kind: kind, header: h})
	}

	// Stamp headers first so the stored documents carry them, restoring the
	// caller's records if encoding fails.
	previous := make([]domain.Header, len(stage))
	for i := range stage {
		previous[i] = *stage[i].op.Record.Head()
		*stage[i].op.Record.Head() = stage[i].header
	}
	for i := range stage {
		data, err := json.Marshal(stage[i].op.Record)
		if err != nil {
			for j := range stage {
				*stage[j].op.Record.Head() = previous[j]
			}
			return nil, fmt.Errorf("encode %s: %w", stage[i].kind, err)
		}
		stage[i].data = data
	}

	changes := make([]store.Change, 0, len(stage))
	for _, st := range stage {
		h := st.header
		if s.records[st.kind] == nil {
			s.records[st.kind] = make(map[uuid.UUID]*entry)
		}
		if st.op.Action == store.Deleted {
			delete(s.records[st.kind], h.ID)
		} else {
			s.records[st.kind][h.ID] = &entry{data: st.data, version: h.Version, displayID: h.DisplayID, createdAt: h.CreatedAt}
		}
		c := store.Change{Action: st.op.Action, Kind: st.kind, ID: h.ID, Version: h.Version, Data: st.data, At: now}
		s.history[h.ID] = append(s.history[h.ID], c)
		changes = append(changes, c)
	}
	for kind, n := range counters {
		s.counters[kind] += n
	}
	return changes, nil
}

// History returns every change of the record, oldest first.
func (s *Store) History(ctx context.Context, id uuid.UUID) ([]store.Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.history[id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, store.ErrNotFound)
	}
	return append([]store.Change(nil), h...), nil
}
