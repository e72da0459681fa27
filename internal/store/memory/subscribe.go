// internal/store/memory/subscribe.go
package memory

import (
	"context"
	"sync"

	"lendnexus/internal/domain"
	"lendnexus/internal/store"
)

// subscription buffers changes without bound so publishing never blocks
// the writer and slow readers never lose entries.
type subscription struct {
	mu     sync.Mutex
	queue  []store.Change
	wake   chan struct{}
	out    chan store.Change
	closed bool
}

// Subscribe streams changes of kind committed after the call.
func (s *Store) Subscribe(ctx context.Context, kind domain.Kind) (<-chan store.Change, error) {
	sub := &subscription{
		wake: make(chan struct{}, 1),
		out:  make(chan store.Change),
	}

	s.mu.Lock()
	s.subs[kind] = append(s.subs[kind], sub)
	s.mu.Unlock()

	go func() {
		defer s.unsubscribe(kind, sub)
		sub.pump(ctx)
	}()
	return sub.out, nil
}

func (s *Store) publish(c store.Change) {
	s.mu.RLock()
	subs := append([]*subscription(nil), s.subs[c.Kind]...)
	s.mu.RUnlock()
	for _, sub := range subs {
		sub.push(c)
	}
}

func (s *Store) unsubscribe(kind domain.Kind, target *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs[kind]
	for i, sub := range subs {
		if sub == target {
			s.subs[kind] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

func (sub *subscription) push(c store.Change) {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.queue = append(sub.queue, c)
	sub.mu.Unlock()

	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *subscription) pump(ctx context.Context) {
	defer close(sub.out)
	for {
		sub.mu.Lock()
		pending := sub.queue
		sub.queue = nil
		sub.mu.Unlock()

		for _, c := range pending {
			select {
			case sub.out <- c:
			case <-ctx.Done():
				sub.close()
				return
			}
		}

		select {
		case <-sub.wake:
		case <-ctx.Done():
			sub.close()
			return
		}
	}
}

func (sub *subscription) close() {
	sub.mu.Lock()
	sub.closed = true
	sub.queue = nil
	sub.mu.Unlock()
}
