// internal/feed/feed.go

// Package feed keeps an in-memory view of one record collection in step
// with a store change stream. Changes may arrive late, twice or out of
// order; the view keys them by record id and keeps the highest version.
package feed

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"lendnexus/internal/domain"
	"lendnexus/internal/store"
)

const (
	retryMin = time.Second
	retryMax = time.Minute
)

// Subscriber is the part of store.Store a view follows.
type Subscriber interface {
	Subscribe(ctx context.Context, kind domain.Kind) (<-chan store.Change, error)
}

// View holds the latest known version of each record of one kind.
type View[T domain.Record] struct {
	kind domain.Kind
	keep func(T) bool
	load func(context.Context) ([]T, error)

	mu       sync.RWMutex
	records  map[uuid.UUID]T
	versions map[uuid.UUID]int
	deleted  map[uuid.UUID]bool
}

// New returns an empty view. keep filters which records stay visible; a
// record that stops matching is dropped but its version is remembered.
func New[T domain.Record](kind domain.Kind, keep func(T) bool) *View[T] {
	if keep == nil {
		keep = func(T) bool { return true }
	}
	return &View[T]{
		kind:     kind,
		keep:     keep,
		records:  make(map[uuid.UUID]T),
		versions: make(map[uuid.UUID]int),
		deleted:  make(map[uuid.UUID]bool),
	}
}

// Seed merges records read from the store.
func (v *View[T]) Seed(records []T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, r := range records {
		v.put(r)
	}
}

// Reset merges a fresh load and hides visible records the load no longer
// returns. Their versions are kept so a late change cannot revive them.
func (v *View[T]) Reset(records []T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	loaded := make(map[uuid.UUID]bool, len(records))
	for _, r := range records {
		loaded[r.Head().ID] = true
		v.put(r)
	}
	for id := range v.records {
		if !loaded[id] {
			delete(v.records, id)
		}
	}
}

// Apply merges one change. It reports whether the view changed.
func (v *View[T]) Apply(c store.Change) (bool, error) {
	if c.Kind != v.kind {
		return false, fmt.Errorf("feed for %s got %s change", v.kind, c.Kind)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if c.Version <= v.versions[c.ID] || v.deleted[c.ID] {
		return false, nil
	}
	if c.Action == store.Deleted {
		v.versions[c.ID] = c.Version
		v.deleted[c.ID] = true
		delete(v.records, c.ID)
		return true, nil
	}

	rec, err := store.DecodeAs[T](c.Kind, c.Data)
	if err != nil {
		return false, err
	}
	// Documents carry their own header; trust the change for identity.
	rec.Head().ID = c.ID
	rec.Head().Version = c.Version
	return v.put(rec), nil
}

func (v *View[T]) put(r T) bool {
	h := r.Head()
	if v.deleted[h.ID] || h.Version <= v.versions[h.ID] {
		return false
	}
	v.versions[h.ID] = h.Version
	if v.keep(r) {
		v.records[h.ID] = r
	} else {
		delete(v.records, h.ID)
	}
	return true
}

// Follow applies changes until ch closes or ctx ends. A store.Resync
// change reloads the view when it was started by Sync.
func (v *View[T]) Follow(ctx context.Context, ch <-chan store.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-ch:
			if !ok {
				return
			}
			if c.Action == store.Resync {
				v.resync(ctx)
				continue
			}
			if _, err := v.Apply(c); err != nil {
				log.WithError(err).WithFields(log.Fields{
					"kind": c.Kind,
					"id":   c.ID,
				}).Warn("Dropped change")
			}
		}
	}
}

// Sync subscribes first and loads second, so nothing written in between
// is missed, then follows the stream in the background until ctx ends.
// A closed stream is resubscribed and the view reloaded.
func (v *View[T]) Sync(ctx context.Context, sub Subscriber, load func(context.Context) ([]T, error)) error {
	ch, err := sub.Subscribe(ctx, v.kind)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", v.kind, err)
	}
	records, err := load(ctx)
	if err != nil {
		return fmt.Errorf("load %s: %w", v.kind, err)
	}
	v.Seed(records)
	v.load = load
	go v.follow(ctx, sub, ch)
	return nil
}

func (v *View[T]) follow(ctx context.Context, sub Subscriber, ch <-chan store.Change) {
	for {
		v.Follow(ctx, ch)
		if ctx.Err() != nil {
			return
		}
		log.WithField("kind", v.kind).Warn("Change stream closed, resubscribing")
		ch = v.resubscribe(ctx, sub)
		if ch == nil {
			return
		}
		v.resync(ctx)
	}
}

// resubscribe returns nil once ctx ends.
func (v *View[T]) resubscribe(ctx context.Context, sub Subscriber) <-chan store.Change {
	wait := retryMin
	for {
		ch, err := sub.Subscribe(ctx, v.kind)
		if err == nil {
			return ch
		}
		log.WithError(err).WithField("kind", v.kind).Warn("Failed to resubscribe")
		if !sleep(ctx, wait) {
			return nil
		}
		wait = min(2*wait, retryMax)
	}
}

// resync reloads until it succeeds or ctx ends. Changes queue meanwhile.
func (v *View[T]) resync(ctx context.Context) {
	if v.load == nil {
		return
	}
	wait := retryMin
	for {
		records, err := v.load(ctx)
		if err == nil {
			v.Reset(records)
			log.WithFields(log.Fields{
				"kind":    v.kind,
				"records": len(records),
			}).Info("View resynced")
			return
		}
		log.WithError(err).WithField("kind", v.kind).Error("Failed to reload view")
		if !sleep(ctx, wait) {
			return
		}
		wait = min(2*wait, retryMax)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Get returns the record if it is visible.
func (v *View[T]) Get(id uuid.UUID) (T, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	r, ok := v.records[id]
	return r, ok
}

// Records returns the visible records ordered by display id. Callers must
// not mutate them.
func (v *View[T]) Records() []T {
	v.mu.RLock()
	out := make([]T, 0, len(v.records))
	for _, r := range v.records {
		out = append(out, r)
	}
	v.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Head().DisplayID < out[j].Head().DisplayID })
	return out
}

// Len is the number of visible records.
func (v *View[T]) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.records)
}
