// Package firestore provides a docsync DocumentStore for Google Cloud Firestore.
package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"github.com/zoobzio/docsync"
	"github.com/zoobzio/docsync/internal/shared"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Store implements docsync.DocumentStore for Firestore. Collection names
// may be slash-separated paths to reach subcollections.
type Store struct {
	client *firestore.Client
}

// New creates a Firestore store on a pre-configured client.
func New(client *firestore.Client) *Store {
	return &Store{client: client}
}

// Open creates a client for projectID. A non-empty database selects a
// named database instead of the default one.
func Open(ctx context.Context, projectID, database string, opts ...option.ClientOption) (*Store, error) {
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database, opts...)
	if err != nil {
		return nil, err
	}
	return New(client), nil
}

// Get retrieves the document id in collection.
func (s *Store) Get(ctx context.Context, collection, id string) (docsync.RawRecord, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return docsync.RawRecord{}, mapError(err)
	}
	return record(snap), nil
}

// RunQuery executes spec with Firestore's native cursors.
func (s *Store) RunQuery(ctx context.Context, collection string, spec docsync.QuerySpec, after *docsync.RawRecord) ([]docsync.RawRecord, error) {
	p := translate(spec, after)
	docs, err := p.apply(s.client.Collection(collection).Query).Documents(ctx).GetAll()
	if err != nil {
		return nil, mapError(err)
	}
	return records(docs), nil
}

// Set writes fields under id. An empty id lets Firestore assign one.
func (s *Store) Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) (string, error) {
	ref := s.ref(collection, id)
	if _, err := ref.Set(ctx, payload(fields), setOptions(merge)...); err != nil {
		return "", mapError(err)
	}
	return ref.ID, nil
}

// SetBatch commits every write in one transaction.
func (s *Store) SetBatch(ctx context.Context, collection string, writes []docsync.Write) ([]string, error) {
	refs := make([]*firestore.DocumentRef, len(writes))
	for i, w := range writes {
		refs[i] = s.ref(collection, w.ID)
	}
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		for i, w := range writes {
			if err := tx.Set(refs[i], payload(w.Fields), setOptions(w.Merge)...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.ID
	}
	return ids, nil
}

// Delete removes the document id. A missing document yields ErrNotFound.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.Collection(collection).Doc(id).Delete(ctx, firestore.Exists)
	return mapError(err)
}

// Increment applies a server-side numeric transform to field.
func (s *Store) Increment(ctx context.Context, collection, id, field string, delta int64) error {
	_, err := s.client.Collection(collection).Doc(id).Update(ctx, []firestore.Update{
		{Path: field, Value: firestore.Increment(delta)},
	})
	return mapError(err)
}

// Subscribe streams realtime snapshots of spec until ctx is done.
func (s *Store) Subscribe(ctx context.Context, collection string, spec docsync.QuerySpec) (<-chan docsync.SnapshotEvent, error) {
	it := translate(spec, nil).apply(s.client.Collection(collection).Query).Snapshots(ctx)
	out := make(chan docsync.SnapshotEvent)
	go func() {
		defer close(out)
		defer it.Stop()
		for {
			snap, err := it.Next()
			if ctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
				return
			}
			var ev docsync.SnapshotEvent
			if err != nil {
				ev.Err = mapError(err)
			} else {
				docs, derr := snap.Documents.GetAll()
				ev = docsync.SnapshotEvent{Records: records(docs), Err: mapError(derr)}
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			// The iterator keeps returning the same error once it fails.
			if err != nil {
				return
			}
		}
	}()
	return out, nil
}

// Client returns the underlying Firestore client.
func (s *Store) Client() *firestore.Client {
	return s.client
}

// Close closes the Firestore client connection.
func (s *Store) Close(_ context.Context) error {
	return s.client.Close()
}

func (s *Store) ref(collection, id string) *firestore.DocumentRef {
	if id == "" {
		return s.client.Collection(collection).NewDoc()
	}
	return s.client.Collection(collection).Doc(id)
}

func setOptions(merge bool) []firestore.SetOption {
	if merge {
		return []firestore.SetOption{firestore.MergeAll}
	}
	return nil
}

// payload never hands Firestore a nil map; MergeAll rejects it.
func payload(fields map[string]any) map[string]any {
	if fields == nil {
		return map[string]any{}
	}
	return fields
}

func record(snap *firestore.DocumentSnapshot) docsync.RawRecord {
	fields := snap.Data()
	if fields == nil {
		fields = map[string]any{}
	}
	return docsync.RawRecord{ID: snap.Ref.ID, Fields: fields}
}

func records(docs []*firestore.DocumentSnapshot) []docsync.RawRecord {
	out := make([]docsync.RawRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, record(d))
	}
	return out
}

// mapError translates gRPC status codes to docsync errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return docsync.ErrNotFound
	case codes.AlreadyExists:
		return errors.Join(docsync.ErrAlreadyExists, err)
	case codes.FailedPrecondition:
		return errors.Join(docsync.ErrPrecondition, err)
	case codes.InvalidArgument:
		return errors.Join(docsync.ErrInvalidArgument, err)
	}
	return shared.Transport(err)
}

// Ensure Store implements the docsync store interfaces.
var (
	_ docsync.DocumentStore = (*Store)(nil)
	_ docsync.Batcher       = (*Store)(nil)
	_ docsync.Lifecycle     = (*Store)(nil)
)
