// Package notify fans write notifications out to snapshot subscribers for
// stores that have no native change feed.
package notify

import (
	"context"
	"sync"

	"github.com/zoobzio/docsync/internal/shared"
)

// Query produces the current result set of one subscription.
type Query func(ctx context.Context) ([]shared.RawRecord, error)

// Hub tracks subscriptions per collection.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	collection string
	query      Query
	wake       chan struct{}
	cancel     context.CancelFunc
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Subscribe runs query at once and again after every Notify for collection.
// Wake-ups coalesce, so a slow reader only sees the latest result set.
// The channel closes when ctx is done or the hub is closed.
func (h *Hub) Subscribe(ctx context.Context, collection string, query Query) (<-chan shared.SnapshotEvent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, shared.ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &subscriber{
		collection: collection,
		query:      query,
		wake:       make(chan struct{}, 1),
		cancel:     cancel,
	}
	sub.wake <- struct{}{}
	h.subs[sub] = struct{}{}

	out := make(chan shared.SnapshotEvent)
	go h.run(ctx, sub, out)
	return out, nil
}

func (h *Hub) run(ctx context.Context, sub *subscriber, out chan<- shared.SnapshotEvent) {
	defer close(out)
	defer func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
		sub.cancel()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.wake:
		}
		recs, err := sub.query(ctx)
		if ctx.Err() != nil {
			return
		}
		select {
		case out <- shared.SnapshotEvent{Records: recs, Err: err}:
		case <-ctx.Done():
			return
		}
	}
}

// Notify wakes every subscriber of collection.
func (h *Hub) Notify(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if sub.collection != collection {
			continue
		}
		select {
		case sub.wake <- struct{}{}:
		default:
		}
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()
	for _, sub := range subs {
		sub.cancel()
	}
}
