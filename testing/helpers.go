// Package testing provides test utilities for docsync.
package testing

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/docsync"
	"github.com/zoobzio/docsync/memory"
)

// Method names a DocumentStore operation for fault injection.
type Method string

// DocumentStore methods.
const (
	MethodGet       Method = "get"
	MethodRunQuery  Method = "run-query"
	MethodSet       Method = "set"
	MethodSetBatch  Method = "set-batch"
	MethodDelete    Method = "delete"
	MethodIncrement Method = "increment"
	MethodSubscribe Method = "subscribe"
)

// FakeStore is an in-memory docsync.DocumentStore that records calls and
// fails on demand. Data handling is delegated to memory.Store.
type FakeStore struct {
	*memory.Store

	mu     sync.Mutex
	calls  map[Method]int
	faults map[Method][]error
	sticky map[Method]error
	gates  map[Method]chan struct{}
}

// NewFakeStore creates an empty fake store.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		Store:  memory.New(),
		calls:  make(map[Method]int),
		faults: make(map[Method][]error),
		sticky: make(map[Method]error),
		gates:  make(map[Method]chan struct{}),
	}
}

// Block makes calls to m wait until release is called. Calls already
// waiting are released together.
func (f *FakeStore) Block(m Method) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[m] = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gates[m] == gate {
				delete(f.gates, m)
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// FailNext makes the next call to m return err. Queued faults are consumed
// in order.
func (f *FakeStore) FailNext(m Method, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[m] = append(f.faults[m], err)
}

// FailAlways makes every call to m return err until Reset.
func (f *FakeStore) FailAlways(m Method, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sticky[m] = err
}

// Calls returns how many times m was invoked.
func (f *FakeStore) Calls(m Method) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[m]
}

// Reset clears call counts and pending faults. Stored documents are kept;
// open gates stay closed until released.
func (f *FakeStore) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[Method]int)
	f.faults = make(map[Method][]error)
	f.sticky = make(map[Method]error)
}

func (f *FakeStore) enter(ctx context.Context, m Method) error {
	f.mu.Lock()
	f.calls[m]++
	gate := f.gates[m]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if q := f.faults[m]; len(q) > 0 {
		f.faults[m] = q[1:]
		return q[0]
	}
	return f.sticky[m]
}

// Get retrieves the document id in collection.
func (f *FakeStore) Get(ctx context.Context, collection, id string) (docsync.RawRecord, error) {
	if err := f.enter(ctx, MethodGet); err != nil {
		return docsync.RawRecord{}, err
	}
	return f.Store.Get(ctx, collection, id)
}

// RunQuery evaluates spec over the collection.
func (f *FakeStore) RunQuery(ctx context.Context, collection string, spec docsync.QuerySpec, after *docsync.RawRecord) ([]docsync.RawRecord, error) {
	if err := f.enter(ctx, MethodRunQuery); err != nil {
		return nil, err
	}
	return f.Store.RunQuery(ctx, collection, spec, after)
}

// Set writes fields under id.
func (f *FakeStore) Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) (string, error) {
	if err := f.enter(ctx, MethodSet); err != nil {
		return "", err
	}
	return f.Store.Set(ctx, collection, id, fields, merge)
}

// SetBatch applies every write.
func (f *FakeStore) SetBatch(ctx context.Context, collection string, writes []docsync.Write) ([]string, error) {
	if err := f.enter(ctx, MethodSetBatch); err != nil {
		return nil, err
	}
	return f.Store.SetBatch(ctx, collection, writes)
}

// Delete removes the document id.
func (f *FakeStore) Delete(ctx context.Context, collection, id string) error {
	if err := f.enter(ctx, MethodDelete); err != nil {
		return err
	}
	return f.Store.Delete(ctx, collection, id)
}

// Increment adds delta to field.
func (f *FakeStore) Increment(ctx context.Context, collection, id, field string, delta int64) error {
	if err := f.enter(ctx, MethodIncrement); err != nil {
		return err
	}
	return f.Store.Increment(ctx, collection, id, field, delta)
}

// Subscribe streams snapshots of spec.
func (f *FakeStore) Subscribe(ctx context.Context, collection string, spec docsync.QuerySpec) (<-chan docsync.SnapshotEvent, error) {
	if err := f.enter(ctx, MethodSubscribe); err != nil {
		return nil, err
	}
	return f.Store.Subscribe(ctx, collection, spec)
}

// Ensure FakeStore implements the docsync store interfaces.
var (
	_ docsync.DocumentStore = (*FakeStore)(nil)
	_ docsync.Batcher       = (*FakeStore)(nil)
	_ docsync.Lifecycle     = (*FakeStore)(nil)
)

// CapturedEvent represents an event captured during testing.
type CapturedEvent struct {
	Signal    capitan.Signal
	Fields    []capitan.Field
	Timestamp time.Time
}

// EventCapture captures docsync events for verification in tests.
type EventCapture struct {
	events []CapturedEvent
	mu     sync.Mutex
}

// NewEventCapture creates a new event capture utility.
func NewEventCapture() *EventCapture {
	return &EventCapture{
		events: make([]CapturedEvent, 0),
	}
}

// Handler returns a capitan.EventCallback that captures events.
func (c *EventCapture) Handler() capitan.EventCallback {
	return func(_ context.Context, e *capitan.Event) {
		c.mu.Lock()
		defer c.mu.Unlock()

		c.events = append(c.events, CapturedEvent{
			Signal:    e.Signal(),
			Fields:    e.Fields(),
			Timestamp: time.Now(),
		})
	}
}

// Events returns a copy of all captured events.
func (c *EventCapture) Events() []CapturedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]CapturedEvent, len(c.events))
	copy(result, c.events)
	return result
}

// Count returns the number of captured events.
func (c *EventCapture) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// Reset clears all captured events.
func (c *EventCapture) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = make([]CapturedEvent, 0)
}

// WaitForCount blocks until n events are captured or timeout elapses.
func (c *EventCapture) WaitForCount(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.Count() >= n {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return c.Count() >= n
}

// EventsBySignal returns events filtered by signal.
func (c *EventCapture) EventsBySignal(sig capitan.Signal) []CapturedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]CapturedEvent, 0)
	for _, e := range c.events {
		if e.Signal == sig {
			result = append(result, e)
		}
	}
	return result
}

// Signals returns the captured signals in arrival order.
func (c *EventCapture) Signals() []capitan.Signal {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]capitan.Signal, len(c.events))
	for i, e := range c.events {
		result[i] = e.Signal
	}
	return result
}

// EventCounter counts events without storing them.
type EventCounter struct {
	count int64
	mu    sync.Mutex
}

// NewEventCounter creates a new event counter.
func NewEventCounter() *EventCounter {
	return &EventCounter{}
}

// Handler returns a capitan.EventCallback that increments the counter.
func (c *EventCounter) Handler() capitan.EventCallback {
	return func(_ context.Context, _ *capitan.Event) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.count++
	}
}

// Count returns the current count.
func (c *EventCounter) Count() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Reset resets the counter to zero.
func (c *EventCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = 0
}

// FieldExtractor provides typed field extraction from captured events.
type FieldExtractor struct{}

// NewFieldExtractor creates a new field extractor.
func NewFieldExtractor() *FieldExtractor {
	return &FieldExtractor{}
}

// Collection returns the collection name carried by fields.
func (FieldExtractor) Collection(fields []capitan.Field) string {
	return docsync.FieldCollection.ExtractFromFields(fields)
}

// ID returns the document id carried by fields.
func (FieldExtractor) ID(fields []capitan.Field) string {
	return docsync.FieldID.ExtractFromFields(fields)
}

// IDs returns the document ids of a batch event.
func (FieldExtractor) IDs(fields []capitan.Field) []string {
	return docsync.FieldIDs.ExtractFromFields(fields)
}

// Count returns the record count carried by fields.
func (FieldExtractor) Count(fields []capitan.Field) int {
	return docsync.FieldCount.ExtractFromFields(fields)
}

// Exhausted returns the exhausted flag of a fetch event.
func (FieldExtractor) Exhausted(fields []capitan.Field) bool {
	return docsync.FieldExhausted.ExtractFromFields(fields)
}

// Error returns the error carried by a failure event.
func (FieldExtractor) Error(fields []capitan.Field) error {
	return docsync.FieldError.ExtractFromFields(fields)
}

// Duration returns the operation duration carried by fields.
func (FieldExtractor) Duration(fields []capitan.Field) time.Duration {
	return docsync.FieldDuration.ExtractFromFields(fields)
}
