// Package memory provides an in-process docsync DocumentStore.
// It evaluates queries with the same semantics as the managed backends and
// pushes full snapshots to subscribers after every write.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/zoobzio/docsync"
	"github.com/zoobzio/docsync/internal/notify"
	"github.com/zoobzio/docsync/internal/shared"
)

// Store implements docsync.DocumentStore in memory.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	hub         *notify.Hub
	closed      bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		collections: make(map[string]map[string]map[string]any),
		hub:         notify.New(),
	}
}

// Get retrieves the document id in collection.
func (s *Store) Get(_ context.Context, collection, id string) (docsync.RawRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields, ok := s.collections[collection][id]
	if !ok {
		return docsync.RawRecord{}, docsync.ErrNotFound
	}
	return docsync.RawRecord{ID: id, Fields: shared.CloneFields(fields)}, nil
}

// RunQuery evaluates spec over the collection.
func (s *Store) RunQuery(_ context.Context, collection string, spec docsync.QuerySpec, after *docsync.RawRecord) ([]docsync.RawRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return shared.Apply(spec, s.snapshot(collection), after), nil
}

// Set writes fields under id, assigning a UUID when id is empty.
// Merge writes combine nested maps recursively.
func (s *Store) Set(_ context.Context, collection, id string, fields map[string]any, merge bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", docsync.ErrClosed
	}
	id = s.setLocked(collection, id, fields, merge)
	s.hub.Notify(collection)
	return id, nil
}

// SetBatch applies every write under a single lock.
func (s *Store) SetBatch(_ context.Context, collection string, writes []docsync.Write) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, docsync.ErrClosed
	}
	ids := make([]string, len(writes))
	for i, w := range writes {
		ids[i] = s.setLocked(collection, w.ID, w.Fields, w.Merge)
	}
	s.hub.Notify(collection)
	return ids, nil
}

func (s *Store) setLocked(collection, id string, fields map[string]any, merge bool) string {
	if id == "" {
		id = uuid.NewString()
	}
	docs := s.collections[collection]
	if docs == nil {
		docs = make(map[string]map[string]any)
		s.collections[collection] = docs
	}
	existing, ok := docs[id]
	if merge && ok {
		shared.MergeFields(existing, fields)
	} else {
		docs[id] = shared.CloneFields(fields)
	}
	return id
}

// Delete removes the document id.
func (s *Store) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docsync.ErrClosed
	}
	if _, ok := s.collections[collection][id]; !ok {
		return docsync.ErrNotFound
	}
	delete(s.collections[collection], id)
	s.hub.Notify(collection)
	return nil
}

// Increment adds delta to field. A missing or non-numeric field is set to delta.
func (s *Store) Increment(_ context.Context, collection, id, field string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docsync.ErrClosed
	}
	fields, ok := s.collections[collection][id]
	if !ok {
		return docsync.ErrNotFound
	}
	switch cur := fields[field].(type) {
	case int64:
		fields[field] = cur + delta
	case int:
		fields[field] = int64(cur) + delta
	case float64:
		fields[field] = cur + float64(delta)
	default:
		fields[field] = delta
	}
	s.hub.Notify(collection)
	return nil
}

// Subscribe delivers the current result set at once and again after every
// write to collection. Slow readers only ever see the latest snapshot.
func (s *Store) Subscribe(ctx context.Context, collection string, spec docsync.QuerySpec) (<-chan docsync.SnapshotEvent, error) {
	return s.hub.Subscribe(ctx, collection, func(context.Context) ([]docsync.RawRecord, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return shared.Apply(spec, s.snapshot(collection), nil), nil
	})
}

// snapshot copies every record of collection. Callers hold s.mu.
func (s *Store) snapshot(collection string) []docsync.RawRecord {
	docs := s.collections[collection]
	out := make([]docsync.RawRecord, 0, len(docs))
	for id, fields := range docs {
		out = append(out, docsync.RawRecord{ID: id, Fields: shared.CloneFields(fields)})
	}
	return out
}

// Len returns the number of documents in collection.
func (s *Store) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// Close ends every subscription. Further writes return ErrClosed.
func (s *Store) Close(_ context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hub.Close()
	return nil
}

// Ensure Store implements the docsync store interfaces.
var (
	_ docsync.DocumentStore = (*Store)(nil)
	_ docsync.Batcher       = (*Store)(nil)
	_ docsync.Lifecycle     = (*Store)(nil)
)
