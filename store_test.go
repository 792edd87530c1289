package docsync

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/zoobzio/docsync/internal/shared"
)

// testItem is the payload used across root package tests.
type testItem struct {
	Name  string `json:"name"`
	Seq   int    `json:"seq"`
	Count int    `json:"count,omitempty"`
}

// mockStore is an in-memory DocumentStore with error injection.
type mockStore struct {
	mu   sync.Mutex
	data map[string]map[string]map[string]any
	next int

	getErr   error
	queryErr error
	setErr   error
	delErr   error
	incErr   error
	subErr   error

	// deleteGate and queryGate, when set, block Delete and RunQuery until closed.
	deleteGate chan struct{}
	queryGate  chan struct{}
	queried    chan struct{}

	getCalls    int
	queryCalls  int
	setCalls    int
	deleteCalls int

	subs []chan SnapshotEvent
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]map[string]map[string]any)}
}

func (m *mockStore) put(collection, id string, fields map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]map[string]any)
	}
	m.data[collection][id] = maps.Clone(fields)
}

func (m *mockStore) fields(collection, id string) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.data[collection][id]
	return maps.Clone(f), ok
}

func (m *mockStore) calls() (get, query, set, del int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCalls, m.queryCalls, m.setCalls, m.deleteCalls
}

func (m *mockStore) Get(_ context.Context, collection, id string) (RawRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.getErr != nil {
		return RawRecord{}, m.getErr
	}
	f, ok := m.data[collection][id]
	if !ok {
		return RawRecord{}, ErrNotFound
	}
	return RawRecord{ID: id, Fields: maps.Clone(f)}, nil
}

func (m *mockStore) RunQuery(_ context.Context, collection string, spec QuerySpec, after *RawRecord) ([]RawRecord, error) {
	m.mu.Lock()
	gate, queried := m.queryGate, m.queried
	m.mu.Unlock()
	if queried != nil {
		queried <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryCalls++
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return shared.Apply(spec, m.records(collection), after), nil
}

func (m *mockStore) records(collection string) []RawRecord {
	out := make([]RawRecord, 0, len(m.data[collection]))
	for id, f := range m.data[collection] {
		out = append(out, RawRecord{ID: id, Fields: maps.Clone(f)})
	}
	return out
}

func (m *mockStore) Set(_ context.Context, collection, id string, fields map[string]any, merge bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if m.setErr != nil {
		return "", m.setErr
	}
	if id == "" {
		m.next++
		id = fmt.Sprintf("gen-%03d", m.next)
	}
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]map[string]any)
	}
	existing, ok := m.data[collection][id]
	if merge && ok {
		maps.Copy(existing, fields)
	} else {
		m.data[collection][id] = maps.Clone(fields)
	}
	return id, nil
}

func (m *mockStore) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	gate := m.deleteGate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	if m.delErr != nil {
		return m.delErr
	}
	if _, ok := m.data[collection][id]; !ok {
		return ErrNotFound
	}
	delete(m.data[collection], id)
	return nil
}

func (m *mockStore) Increment(_ context.Context, collection, id, field string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incErr != nil {
		return m.incErr
	}
	f, ok := m.data[collection][id]
	if !ok {
		return ErrNotFound
	}
	switch cur := f[field].(type) {
	case int64:
		f[field] = cur + delta
	case float64:
		f[field] = cur + float64(delta)
	default:
		f[field] = delta
	}
	return nil
}

// Subscribe returns a channel fed by emit.
func (m *mockStore) Subscribe(ctx context.Context, _ string, _ QuerySpec) (<-chan SnapshotEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subErr != nil {
		return nil, m.subErr
	}
	ch := make(chan SnapshotEvent, 8)
	m.subs = append(m.subs, ch)
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, c := range m.subs {
			if c == ch {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}()
	return ch, nil
}

// emit pushes ev to every open subscription.
func (m *mockStore) emit(ev SnapshotEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.subs {
		c <- ev
	}
}

func (m *mockStore) subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// batchStore adds Batcher support to mockStore.
type batchStore struct {
	*mockStore
	batchCalls int
	batchErr   error
}

func (b *batchStore) SetBatch(ctx context.Context, collection string, writes []Write) ([]string, error) {
	b.batchCalls++
	if b.batchErr != nil {
		return nil, b.batchErr
	}
	ids := make([]string, len(writes))
	for i, w := range writes {
		id, err := b.Set(ctx, collection, w.ID, w.Fields, w.Merge)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

var (
	_ DocumentStore = (*mockStore)(nil)
	_ Batcher       = (*batchStore)(nil)
)
