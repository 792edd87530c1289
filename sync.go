package docsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/docsync/internal/shared"
)

// Sync keeps an ordered, deduplicated view of one query against a remote
// collection. Pages are fetched on demand with FetchNextPage; local writes go
// to the backend and are reconciled into the view immediately.
//
// A Sync is the only mutator of its view, cursor and exhausted flag. Readers
// may call Items concurrently with writers.
type Sync[T any] struct {
	coll       *Collection[T]
	spec       QuerySpec
	comparator Comparator[T]

	mu        sync.RWMutex
	items     []Document[T]
	cursor    *RawRecord
	exhausted bool
	fetching  bool
	gen       uint64
	closed    bool
	disposers []func()

	errMu      sync.Mutex
	errs       chan error
	errsClosed bool
	lastErr    error

	pending   sync.WaitGroup
	closeOnce sync.Once
}

// NewSync creates a session over collection in store for the base query spec.
// The spec is validated and normalized once; every page uses it.
func NewSync[T any](store DocumentStore, collection string, spec QuerySpec, opts ...Option[T]) (*Sync[T], error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	coll, err := NewCollection(store, collection, opts...)
	if err != nil {
		return nil, err
	}
	s := newSettings(opts)
	return &Sync[T]{
		coll:       coll,
		spec:       spec.Normalize(),
		comparator: s.comparator,
		errs:       make(chan error, s.errorBuffer),
	}, nil
}

// Collection returns the typed collection the session writes through.
func (s *Sync[T]) Collection() *Collection[T] {
	return s.coll
}

// Spec returns the normalized base query.
func (s *Sync[T]) Spec() QuerySpec {
	return s.spec
}

// FetchNextPage loads the page after the cursor and merges it into the view.
// It returns nil without doing anything when the session is exhausted or a
// fetch is already in flight.
//
// Documents whose id is already in the view replace that entry in place; new
// ids are appended. Records that fail to decode are dropped and reported
// through Errors under DecodeSkip. Under DecodeRaise the page fails as a whole
// and the view is left untouched.
func (s *Sync[T]) FetchNextPage(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.exhausted || s.fetching {
		s.mu.Unlock()
		return nil
	}
	s.fetching = true
	gen := s.gen
	var cursor *RawRecord
	if s.cursor != nil {
		c := *s.cursor
		cursor = &c
	}
	s.mu.Unlock()

	start := time.Now()
	capitan.Emit(ctx, FetchStarted,
		FieldCollection.Field(s.coll.name),
		FieldCursor.Field(cursorID(cursor)),
	)

	page, err := s.coll.Page(ctx, s.spec, cursor)
	if err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.fetching = false
		}
		s.mu.Unlock()
		s.setLastError(err)
		capitan.Emit(ctx, FetchFailed,
			FieldCollection.Field(s.coll.name),
			FieldError.Field(err),
			FieldDuration.Field(time.Since(start)),
		)
		return err
	}
	for _, f := range page.Failures {
		s.report(f)
	}

	last := page.Last()

	s.mu.Lock()
	for _, doc := range page.Documents {
		s.upsert(doc)
	}
	exhausted := last == nil || shared.SameIdentity(last, cursor)
	// A fetch overtaken by Refresh still merges its documents, but the
	// fetching flag, cursor and exhausted flag belong to the newer fetch.
	current := s.gen == gen
	if current {
		s.fetching = false
		if exhausted {
			s.exhausted = true
		} else {
			s.cursor = last
		}
	}
	size := len(s.items)
	s.mu.Unlock()

	capitan.Emit(ctx, FetchCompleted,
		FieldCollection.Field(s.coll.name),
		FieldCount.Field(len(page.Documents)),
		FieldExhausted.Field(exhausted && current),
		FieldDuration.Field(time.Since(start)),
	)
	if exhausted && current {
		capitan.Emit(ctx, SessionExhausted,
			FieldCollection.Field(s.coll.name),
			FieldCount.Field(size),
		)
	}
	return nil
}

// Refresh clears the view, cursor and exhausted flag, then fetches the first
// page again. A fetch already in flight is not cancelled: its documents still
// merge into the view when it lands, last write wins, but it no longer moves
// the cursor or releases the in-flight guard.
func (s *Sync[T]) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.items = nil
	s.cursor = nil
	s.exhausted = false
	s.fetching = false
	s.gen++
	s.mu.Unlock()

	capitan.Emit(ctx, SessionRefreshed, FieldCollection.Field(s.coll.name))
	return s.FetchNextPage(ctx)
}

// Create persists doc and inserts the stored version into the view.
// An empty ID is assigned by the backend. With IfNonExistent and a non-empty
// ID, an existing remote document is returned and placed in the view instead.
func (s *Sync[T]) Create(ctx context.Context, doc Document[T], opts ...WriteOption[T]) (Document[T], error) {
	if s.isClosed() {
		return Document[T]{}, ErrClosed
	}
	w := s.writeSettings(opts)

	var (
		out Document[T]
		err error
	)
	if w.ifNonExistent {
		out, err = s.coll.CreateIfNonExistent(ctx, doc)
	} else {
		out, err = s.coll.Create(ctx, doc)
	}
	if err != nil {
		s.setLastError(err)
		return Document[T]{}, err
	}

	s.mu.Lock()
	s.upsert(out)
	Sort(s.items, w.sort)
	s.mu.Unlock()
	return out, nil
}

// Update merge-writes updated under old.ID and replaces that entry in the view,
// appending it when the view does not hold it.
func (s *Sync[T]) Update(ctx context.Context, old Document[T], updated T, opts ...WriteOption[T]) (Document[T], error) {
	if s.isClosed() {
		return Document[T]{}, ErrClosed
	}
	w := s.writeSettings(opts)

	out, err := s.coll.Update(ctx, old.ID, updated)
	if err != nil {
		s.setLastError(err)
		return Document[T]{}, err
	}

	s.mu.Lock()
	s.upsert(out)
	Sort(s.items, w.sort)
	s.mu.Unlock()
	return out, nil
}

// Delete removes doc from the view at once and deletes it remotely in the
// background. A remote failure is reported through Errors and LastError;
// the document is not put back.
func (s *Sync[T]) Delete(ctx context.Context, doc Document[T]) error {
	if doc.ID == "" {
		return shared.Invalid("empty document id")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.remove(doc.ID)
	s.pending.Add(1)
	s.mu.Unlock()

	bg := context.WithoutCancel(ctx)
	go func() {
		defer s.pending.Done()
		if err := s.coll.Delete(bg, doc.ID); err != nil {
			s.report(err)
		}
	}()
	return nil
}

// Wait blocks until every background delete has settled.
func (s *Sync[T]) Wait() {
	s.pending.Wait()
}

// Increment atomically raises field of document id by by.
// A zero or negative amount is a silent no-op. The view is not modified.
func (s *Sync[T]) Increment(ctx context.Context, id, field string, by int64) error {
	if s.isClosed() {
		return ErrClosed
	}
	err := s.coll.Increment(ctx, id, field, by)
	if err != nil {
		s.setLastError(err)
	}
	return err
}

// Decrement atomically lowers field of document id by by.
// A zero or negative amount is a silent no-op. The view is not modified.
func (s *Sync[T]) Decrement(ctx context.Context, id, field string, by int64) error {
	if s.isClosed() {
		return ErrClosed
	}
	err := s.coll.Decrement(ctx, id, field, by)
	if err != nil {
		s.setLastError(err)
	}
	return err
}

// Listen subscribes to the base query without a cursor. Each snapshot
// replaces the whole view. The subscription lives until ctx is done or the
// session is closed.
func (s *Sync[T]) Listen(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	snaps, stop, err := s.coll.Listen(ctx, s.spec)
	if err != nil {
		s.setLastError(err)
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		stop()
		return ErrClosed
	}
	done := make(chan struct{})
	s.disposers = append(s.disposers, func() {
		stop()
		<-done
	})
	s.mu.Unlock()

	go func() {
		defer close(done)
		for snap := range snaps {
			if snap.Err != nil {
				s.report(snap.Err)
				continue
			}
			for _, f := range snap.Failures {
				s.report(f)
			}
			// The snapshot replaces the view; a repeated id keeps its last version.
			s.mu.Lock()
			s.items = make([]Document[T], 0, len(snap.Documents))
			for _, doc := range snap.Documents {
				s.upsert(doc)
			}
			Sort(s.items, s.comparator)
			s.mu.Unlock()
		}
	}()
	return nil
}

// Items returns a copy of the current view.
func (s *Sync[T]) Items() []Document[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document[T], len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of documents in the view.
func (s *Sync[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Exhausted reports whether the last fetch found no further pages.
func (s *Sync[T]) Exhausted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exhausted
}

// Fetching reports whether a page fetch is in flight.
func (s *Sync[T]) Fetching() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetching
}

// LastError returns the most recent error the session observed, or nil.
func (s *Sync[T]) LastError() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.lastErr
}

// Errors returns the channel asynchronous failures are delivered on:
// background deletes, decode failures and subscription errors.
// Sends never block; when the buffer is full the error is only kept as
// LastError. The channel is closed by Close.
func (s *Sync[T]) Errors() <-chan error {
	return s.errs
}

// Close stops every subscription the session owns, waits for background
// deletes and closes the error channel. Calling Close more than once is safe.
func (s *Sync[T]) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		disposers := s.disposers
		s.disposers = nil
		s.mu.Unlock()

		for _, dispose := range disposers {
			dispose()
		}
		s.pending.Wait()

		s.errMu.Lock()
		s.errsClosed = true
		close(s.errs)
		s.errMu.Unlock()

		capitan.Emit(context.Background(), SessionClosed, FieldCollection.Field(s.coll.name))
	})
	return nil
}

func (s *Sync[T]) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Sync[T]) writeSettings(opts []WriteOption[T]) writeSettings[T] {
	w := writeSettings[T]{sort: s.comparator}
	for _, opt := range opts {
		opt(&w)
	}
	return w
}

// upsert replaces the entry with doc.ID in place or appends doc.
// Callers hold s.mu.
func (s *Sync[T]) upsert(doc Document[T]) {
	for i := range s.items {
		if s.items[i].ID == doc.ID {
			s.items[i] = doc
			return
		}
	}
	s.items = append(s.items, doc)
}

// remove drops the entry with id. Callers hold s.mu.
func (s *Sync[T]) remove(id string) {
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

func (s *Sync[T]) setLastError(err error) {
	s.errMu.Lock()
	s.lastErr = err
	s.errMu.Unlock()
}

// report records err as the last error and offers it to the error channel.
func (s *Sync[T]) report(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	s.lastErr = err
	if s.errsClosed {
		return
	}
	select {
	case s.errs <- err:
	default:
	}
}

func cursorID(r *RawRecord) string {
	if r == nil {
		return ""
	}
	return r.ID
}

// IsDecodeError reports whether err carries a record that failed to decode.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
