// internal/store/postgres/listen.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"

	"lendnexus/internal/domain"
	"lendnexus/internal/store"
)

const channelPrefix = "lendnexus_"

func channel(kind domain.Kind) string { return channelPrefix + string(kind) }

// notification is the pg_notify payload. Documents are read back from the
// event log because payloads are limited in size.
type notification struct {
	Action  store.Action `json:"action"`
	Kind    domain.Kind  `json:"kind"`
	ID      uuid.UUID    `json:"id"`
	Version int          `json:"version"`
	At      time.Time    `json:"at"`
}

// Subscribe listens on the kind's channel with a dedicated connection.
func (s *Store) Subscribe(ctx context.Context, kind domain.Kind) (<-chan store.Change, error) {
	listener := pq.NewListener(s.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.WithError(err).WithField("kind", kind).Warn("Change listener event")
		}
	})
	if err := listener.Listen(channel(kind)); err != nil {
		listener.Close()
		return nil, fmt.Errorf("listen %s: %w", kind, err)
	}

	out := make(chan store.Change)
	go func() {
		defer close(out)
		defer listener.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				var (
					c   store.Change
					err error
				)
				if n == nil {
					// Reconnected; notifications sent meanwhile are gone.
					log.WithField("kind", kind).Warn("Change listener reconnected")
					c = resync(kind)
				} else if c, err = s.resolve(ctx, []byte(n.Extra)); err != nil {
					log.WithError(err).WithField("kind", kind).Error("Failed to resolve change")
					c = resync(kind)
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func resync(kind domain.Kind) store.Change {
	return store.Change{Action: store.Resync, Kind: kind, At: time.Now().UTC()}
}

// resolve turns a notification payload into a change carrying the document
// written at that version.
func (s *Store) resolve(ctx context.Context, payload []byte) (store.Change, error) {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return store.Change{}, fmt.Errorf("decode notification: %w", err)
	}
	c := store.Change{Action: n.Action, Kind: n.Kind, ID: n.ID, Version: n.Version, At: n.At}

	events, err := s.events.Load(ctx, s.db, n.ID, n.Version, n.Version)
	if err != nil {
		return c, err
	}
	if len(events) == 0 {
		return c, fmt.Errorf("%s %s version %d: %w", n.Kind, n.ID, n.Version, store.ErrNotFound)
	}
	c.Data = events[0].EventData
	return c, nil
}

// History returns the record's changes from the event log.
func (s *Store) History(ctx context.Context, id uuid.UUID) ([]store.Change, error) {
	events, err := s.events.Load(ctx, s.db, id, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("record %s: %w", id, store.ErrNotFound)
	}
	changes := make([]store.Change, 0, len(events))
	for _, e := range events {
		changes = append(changes, store.Change{
			Action:  store.Action(e.EventType),
			Kind:    domain.Kind(e.AggregateType),
			ID:      e.AggregateID,
			Version: e.Version,
			Data:    e.EventData,
			At:      e.CreatedAt,
		})
	}
	return changes, nil
}
