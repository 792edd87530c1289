package docsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/docsync/internal/shared"
	"github.com/zoobzio/sentinel"
)

// Collection provides typed, stateless document operations over a DocumentStore.
// It handles encoding T to fields, decoding records back to T, lifecycle hooks,
// error classification and signal emission. Sync builds on it.
type Collection[T any] struct {
	store    DocumentStore
	name     string
	codec    Codec
	strategy DecodeStrategy
	key      capitan.GenericKey[T]
	metadata sentinel.Metadata
	times    []timeField
}

// NewCollection creates a Collection for type T named name inside store.
// Uses JSONCodec by default; override with WithCodec.
func NewCollection[T any](store DocumentStore, name string, opts ...Option[T]) (*Collection[T], error) {
	if store == nil {
		return nil, shared.Invalid("nil document store")
	}
	if name == "" {
		return nil, shared.Invalid("empty collection name")
	}
	s := newSettings(opts)

	// Non-struct payloads such as map[string]any carry no metadata.
	meta, err := sentinel.TryInspect[T]()
	var variant capitan.Variant
	if err != nil {
		var zero T
		variant = capitan.Variant(fmt.Sprintf("%T", zero))
	} else {
		variant = capitan.Variant(meta.PackageName + "." + meta.TypeName)
	}

	return &Collection[T]{
		store:    store,
		name:     name,
		codec:    s.codec,
		strategy: s.strategy,
		key:      capitan.NewKey[T]("document", variant),
		metadata: meta,
		times:    timeFields(meta),
	}, nil
}

// Name returns the collection name.
func (c *Collection[T]) Name() string {
	return c.name
}

// Key returns the capitan key for extracting T from events.
func (c *Collection[T]) Key() capitan.GenericKey[T] {
	return c.key
}

// Metadata returns the sentinel metadata for type T. It is empty when T is
// not a struct.
func (c *Collection[T]) Metadata() sentinel.Metadata {
	return c.metadata
}

// Get retrieves the document id.
// Returns ErrNotFound if the document does not exist.
func (c *Collection[T]) Get(ctx context.Context, id string) (Document[T], error) {
	if id == "" {
		return Document[T]{}, shared.Invalid("empty document id")
	}
	start := time.Now()

	rec, err := c.store.Get(ctx, c.name, id)
	if err != nil {
		err = shared.Transport(err)
		capitan.Emit(ctx, GetFailed,
			FieldCollection.Field(c.name),
			FieldID.Field(id),
			FieldError.Field(err),
			FieldDuration.Field(time.Since(start)),
		)
		return Document[T]{}, err
	}

	doc, err := c.decode(ctx, rec)
	if err != nil {
		capitan.Emit(ctx, GetFailed,
			FieldCollection.Field(c.name),
			FieldID.Field(id),
			FieldError.Field(err),
			FieldDuration.Field(time.Since(start)),
		)
		return Document[T]{}, err
	}

	capitan.Emit(ctx, GetCompleted,
		FieldCollection.Field(c.name),
		FieldID.Field(id),
		FieldDuration.Field(time.Since(start)),
		c.key.Field(doc.Data),
	)
	return doc, nil
}

// Page executes spec starting strictly after the given record.
// Under DecodeSkip, records that fail to decode are listed in Failures and
// the call still succeeds. Under DecodeRaise, any failure fails the call.
func (c *Collection[T]) Page(ctx context.Context, spec QuerySpec, after *RawRecord) (*Page[T], error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	raw, err := c.store.RunQuery(ctx, c.name, spec.Normalize(), after)
	if err != nil {
		err = shared.Transport(err)
		capitan.Emit(ctx, QueryFailed,
			FieldCollection.Field(c.name),
			FieldError.Field(err),
			FieldDuration.Field(time.Since(start)),
		)
		return nil, err
	}

	page := &Page[T]{Raw: raw, Documents: make([]Document[T], 0, len(raw))}
	for _, rec := range raw {
		doc, err := c.decode(ctx, rec)
		if err != nil {
			var de *DecodeError
			if errors.As(err, &de) {
				page.Failures = append(page.Failures, de)
				continue
			}
			return nil, err
		}
		page.Documents = append(page.Documents, doc)
	}

	if len(page.Failures) > 0 && c.strategy == DecodeRaise {
		err := joinFailures(page.Failures)
		capitan.Emit(ctx, QueryFailed,
			FieldCollection.Field(c.name),
			FieldError.Field(err),
			FieldDuration.Field(time.Since(start)),
		)
		return nil, err
	}

	capitan.Emit(ctx, QueryCompleted,
		FieldCollection.Field(c.name),
		FieldCount.Field(len(page.Documents)),
		FieldDuration.Field(time.Since(start)),
	)
	return page, nil
}

// Query executes spec and returns the decoded documents.
// Undecodable records are dropped under DecodeSkip.
func (c *Collection[T]) Query(ctx context.Context, spec QuerySpec) ([]Document[T], error) {
	page, err := c.Page(ctx, spec, nil)
	if err != nil {
		return nil, err
	}
	return page.Documents, nil
}

// Create persists doc. An empty ID is assigned by the backend and set on the
// returned copy. A non-empty ID overwrites any document stored there.
func (c *Collection[T]) Create(ctx context.Context, doc Document[T]) (Document[T], error) {
	start := time.Now()
	capitan.Emit(ctx, CreateStarted,
		FieldCollection.Field(c.name),
		FieldID.Field(doc.ID),
	)

	out, err := c.write(ctx, doc, false)
	if err != nil {
		capitan.Emit(ctx, CreateFailed,
			FieldCollection.Field(c.name),
			FieldID.Field(doc.ID),
			FieldError.Field(err),
			FieldDuration.Field(time.Since(start)),
		)
		return Document[T]{}, err
	}

	capitan.Emit(ctx, CreateCompleted,
		FieldCollection.Field(c.name),
		FieldID.Field(out.ID),
		FieldDuration.Field(time.Since(start)),
		c.key.Field(out.Data),
	)
	return out, nil
}

// CreateIfNonExistent persists doc unless a document already exists at doc.ID.
// When one exists it is returned unchanged and no write is issued. Only
// ErrNotFound from the read falls through to the write; any other read error
// is returned as is. An empty ID behaves like Create.
func (c *Collection[T]) CreateIfNonExistent(ctx context.Context, doc Document[T]) (Document[T], error) {
	if doc.ID == "" {
		return c.Create(ctx, doc)
	}
	existing, err := c.Get(ctx, doc.ID)
	if err == nil {
		capitan.Emit(ctx, CreateSkipped,
			FieldCollection.Field(c.name),
			FieldID.Field(doc.ID),
		)
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Document[T]{}, err
	}
	return c.Create(ctx, doc)
}

// Update merge-writes data under id: fields present in data overwrite remote
// fields, fields absent are left untouched.
func (c *Collection[T]) Update(ctx context.Context, id string, data T) (Document[T], error) {
	if id == "" {
		return Document[T]{}, shared.Invalid("empty document id")
	}
	start := time.Now()
	capitan.Emit(ctx, UpdateStarted,
		FieldCollection.Field(c.name),
		FieldID.Field(id),
	)

	out, err := c.write(ctx, Document[T]{ID: id, Data: data}, true)
	if err != nil {
		capitan.Emit(ctx, UpdateFailed,
			FieldCollection.Field(c.name),
			FieldID.Field(id),
			FieldError.Field(err),
			FieldDuration.Field(time.Since(start)),
		)
		return Document[T]{}, err
	}

	capitan.Emit(ctx, UpdateCompleted,
		FieldCollection.Field(c.name),
		FieldID.Field(id),
		FieldDuration.Field(time.Since(start)),
		c.key.Field(out.Data),
	)
	return out, nil
}

// Set writes doc, merging when merge is true and replacing otherwise.
func (c *Collection[T]) Set(ctx context.Context, doc Document[T], merge bool) (Document[T], error) {
	if merge {
		return c.Update(ctx, doc.ID, doc.Data)
	}
	return c.Create(ctx, doc)
}

// Delete removes the document id.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	if id == "" {
		return shared.Invalid("empty document id")
	}
	start := time.Now()
	capitan.Emit(ctx, DeleteStarted,
		FieldCollection.Field(c.name),
		FieldID.Field(id),
	)

	err := callBeforeDelete[T](ctx, id)
	if err == nil {
		err = shared.Transport(c.store.Delete(ctx, c.name, id))
	}
	if err == nil {
		err = callAfterDelete[T](ctx, id)
	}
	if err != nil {
		capitan.Emit(ctx, DeleteFailed,
			FieldCollection.Field(c.name),
			FieldID.Field(id),
			FieldError.Field(err),
			FieldDuration.Field(time.Since(start)),
		)
		return err
	}

	capitan.Emit(ctx, DeleteCompleted,
		FieldCollection.Field(c.name),
		FieldID.Field(id),
		FieldDuration.Field(time.Since(start)),
	)
	return nil
}

// Increment atomically raises field of document id by by.
// A zero or negative amount is a silent no-op.
func (c *Collection[T]) Increment(ctx context.Context, id, field string, by int64) error {
	if by <= 0 {
		return nil
	}
	return c.increment(ctx, id, field, by)
}

// Decrement atomically lowers field of document id by by.
// A zero or negative amount is a silent no-op.
func (c *Collection[T]) Decrement(ctx context.Context, id, field string, by int64) error {
	if by <= 0 {
		return nil
	}
	return c.increment(ctx, id, field, -by)
}

func (c *Collection[T]) increment(ctx context.Context, id, field string, delta int64) error {
	if id == "" {
		return shared.Invalid("empty document id")
	}
	if field == "" {
		return shared.Invalid("empty field")
	}
	start := time.Now()
	if err := c.store.Increment(ctx, c.name, id, field, delta); err != nil {
		err = shared.Transport(err)
		capitan.Emit(ctx, IncrementFailed,
			FieldCollection.Field(c.name),
			FieldID.Field(id),
			FieldField.Field(field),
			FieldDelta.Field(delta),
			FieldError.Field(err),
		)
		return err
	}
	capitan.Emit(ctx, IncrementCompleted,
		FieldCollection.Field(c.name),
		FieldID.Field(id),
		FieldField.Field(field),
		FieldDelta.Field(delta),
		FieldDuration.Field(time.Since(start)),
	)
	return nil
}

// BatchSet writes several documents in one call. Documents without an id get
// one assigned. Stores implementing Batcher commit the writes together;
// others receive them one at a time and the first failure stops the batch.
func (c *Collection[T]) BatchSet(ctx context.Context, docs []Document[T], merge bool) ([]Document[T], error) {
	start := time.Now()
	out := make([]Document[T], len(docs))
	copy(out, docs)

	batcher, ok := c.store.(Batcher)
	if !ok {
		for i := range out {
			written, err := c.write(ctx, out[i], merge)
			if err != nil {
				c.emitBatchFailed(ctx, err, start)
				return nil, err
			}
			out[i] = written
		}
		c.emitBatchCompleted(ctx, out, start)
		return out, nil
	}

	writes := make([]Write, len(out))
	for i := range out {
		if err := callBeforeSave(ctx, &out[i].Data); err != nil {
			c.emitBatchFailed(ctx, err, start)
			return nil, err
		}
		fields, err := toFields(c.codec, out[i].Data)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrEncode, err)
			c.emitBatchFailed(ctx, err, start)
			return nil, err
		}
		nativeTimes(out[i].Data, c.times, fields)
		writes[i] = Write{ID: out[i].ID, Fields: fields, Merge: merge}
	}
	ids, err := batcher.SetBatch(ctx, c.name, writes)
	if err != nil {
		err = shared.Transport(err)
		c.emitBatchFailed(ctx, err, start)
		return nil, err
	}
	if len(ids) != len(out) {
		err := fmt.Errorf("%w: batch returned %d ids for %d writes", ErrTransport, len(ids), len(out))
		c.emitBatchFailed(ctx, err, start)
		return nil, err
	}
	for i := range out {
		out[i].ID = ids[i]
		if err := callAfterSave(ctx, ids[i], &out[i].Data); err != nil {
			c.emitBatchFailed(ctx, err, start)
			return nil, err
		}
	}
	c.emitBatchCompleted(ctx, out, start)
	return out, nil
}

func (c *Collection[T]) emitBatchCompleted(ctx context.Context, docs []Document[T], start time.Time) {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	capitan.Emit(ctx, BatchCompleted,
		FieldCollection.Field(c.name),
		FieldIDs.Field(ids),
		FieldCount.Field(len(docs)),
		FieldDuration.Field(time.Since(start)),
	)
}

func (c *Collection[T]) emitBatchFailed(ctx context.Context, err error, start time.Time) {
	capitan.Emit(ctx, BatchFailed,
		FieldCollection.Field(c.name),
		FieldError.Field(err),
		FieldDuration.Field(time.Since(start)),
	)
}

// Listen subscribes to spec. Every snapshot carries the full decoded result
// set and replaces the previous one. The channel closes after stop is called,
// when ctx is done, or when the backend ends the subscription.
func (c *Collection[T]) Listen(ctx context.Context, spec QuerySpec) (<-chan Snapshot[T], func(), error) {
	if err := spec.Validate(); err != nil {
		return nil, nil, err
	}
	ctx, stop := context.WithCancel(ctx)
	events, err := c.store.Subscribe(ctx, c.name, spec.Normalize())
	if err != nil {
		stop()
		return nil, nil, shared.Transport(err)
	}

	out := make(chan Snapshot[T])
	go func() {
		defer close(out)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				snap := c.snapshot(ctx, ev)
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, stop, nil
}

func (c *Collection[T]) snapshot(ctx context.Context, ev SnapshotEvent) Snapshot[T] {
	if ev.Err != nil {
		err := shared.Transport(ev.Err)
		capitan.Emit(ctx, ListenFailed,
			FieldCollection.Field(c.name),
			FieldError.Field(err),
		)
		return Snapshot[T]{Err: err}
	}

	snap := Snapshot[T]{Documents: make([]Document[T], 0, len(ev.Records))}
	for _, rec := range ev.Records {
		doc, err := c.decode(ctx, rec)
		if err != nil {
			var de *DecodeError
			if errors.As(err, &de) {
				snap.Failures = append(snap.Failures, de)
				continue
			}
			snap.Err = err
			return snap
		}
		snap.Documents = append(snap.Documents, doc)
	}
	if len(snap.Failures) > 0 && c.strategy == DecodeRaise {
		return Snapshot[T]{Failures: snap.Failures, Err: joinFailures(snap.Failures)}
	}

	capitan.Emit(ctx, ListenSnapshot,
		FieldCollection.Field(c.name),
		FieldCount.Field(len(snap.Documents)),
	)
	return snap
}

// write encodes and persists doc, running save hooks around the store call.
func (c *Collection[T]) write(ctx context.Context, doc Document[T], merge bool) (Document[T], error) {
	if err := callBeforeSave(ctx, &doc.Data); err != nil {
		return Document[T]{}, err
	}
	fields, err := toFields(c.codec, doc.Data)
	if err != nil {
		return Document[T]{}, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	nativeTimes(doc.Data, c.times, fields)
	id, err := c.store.Set(ctx, c.name, doc.ID, fields, merge)
	if err != nil {
		return Document[T]{}, shared.Transport(err)
	}
	if id == "" {
		return Document[T]{}, fmt.Errorf("%w: store returned an empty id", ErrTransport)
	}
	doc.ID = id
	if err := callAfterSave(ctx, id, &doc.Data); err != nil {
		return Document[T]{}, err
	}
	return doc, nil
}

// errUnreadable marks a record whose body the backend could not parse.
// Backends report such records with nil Fields.
var errUnreadable = errors.New("record body is unreadable")

// decode converts a raw record into a Document, wrapping failures in DecodeError.
func (c *Collection[T]) decode(ctx context.Context, rec RawRecord) (Document[T], error) {
	var data T
	err := errUnreadable
	if rec.Fields != nil {
		err = fromFields(c.codec, rec.Fields, &data)
	}
	if err == nil {
		err = callAfterLoad(ctx, rec.ID, &data)
	}
	if err != nil {
		de := &DecodeError{Record: rec, Err: err}
		capitan.Emit(ctx, DecodeFailed,
			FieldCollection.Field(c.name),
			FieldID.Field(rec.ID),
			FieldError.Field(de),
		)
		return Document[T]{}, de
	}
	return Document[T]{ID: rec.ID, Data: data}, nil
}

func joinFailures(failures []*DecodeError) error {
	errs := make([]error, len(failures))
	for i, f := range failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}
