// Package couchdb provides a docsync DocumentStore for Apache CouchDB.
//
// All collections share one database. A document id is stored as
// "<collection>:<id>" and queries are Mango selectors over that prefix.
// Unordered queries page through the primary index with the cursor as an _id
// bound. Ordered queries need no Mango index: they read every match and order
// and paginate on the fetched rows, so each page costs O(matches).
// Subscriptions follow the database changes feed.
package couchdb

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-kivik/kivik/v4"
	"github.com/google/uuid"
	"github.com/zoobzio/docsync"
	"github.com/zoobzio/docsync/internal/notify"
	"github.com/zoobzio/docsync/internal/shared"

	// Registers the "couch" driver.
	_ "github.com/go-kivik/kivik/v4/couchdb"
)

const (
	separator = ":"

	// findBatch is the page size used to drain Mango results.
	findBatch = 500

	// maxConflictRetries bounds read-modify-write loops on 409 conflicts.
	maxConflictRetries = 5
)

// Store implements docsync.DocumentStore for CouchDB.
type Store struct {
	client *kivik.Client
	db     *kivik.DB
	hub    *notify.Hub

	followOnce sync.Once
	stop       context.CancelFunc
	done       chan struct{}
}

// New creates a store on the database db of client.
func New(client *kivik.Client, db string) *Store {
	return &Store{
		client: client,
		db:     client.DB(db),
		hub:    notify.New(),
		done:   make(chan struct{}),
	}
}

// Open connects to the CouchDB server at url and creates db if needed.
func Open(ctx context.Context, url, db string) (*Store, error) {
	client, err := kivik.New("couch", url)
	if err != nil {
		return nil, err
	}
	exists, err := client.DBExists(ctx, db)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.CreateDB(ctx, db); err != nil && kivik.HTTPStatus(err) != http.StatusPreconditionFailed {
			return nil, err
		}
	}
	return New(client, db), nil
}

// Get retrieves the document id in collection.
func (s *Store) Get(ctx context.Context, collection, id string) (docsync.RawRecord, error) {
	body, err := s.fetch(ctx, docID(collection, id))
	if err != nil {
		return docsync.RawRecord{}, err
	}
	return docsync.RawRecord{ID: id, Fields: fields(body)}, nil
}

// RunQuery selects the collection's matching documents with Mango. Specs
// without ordering page through the primary index one page at a time; every
// other spec drains all matches and is ordered, resumed and limited locally,
// which costs a read of the whole match set per page.
func (s *Store) RunQuery(ctx context.Context, collection string, spec docsync.QuerySpec, after *docsync.RawRecord) ([]docsync.RawRecord, error) {
	query, ok, err := keysetQuery(collection, spec, after)
	if err != nil {
		return nil, err
	}
	if ok {
		recs, _, err := s.find(ctx, query)
		return recs, err
	}

	sel, err := selector(collection, spec)
	if err != nil {
		return nil, err
	}
	var all []docsync.RawRecord
	bookmark := ""
	for {
		batch := map[string]any{"selector": sel, "limit": findBatch}
		if bookmark != "" {
			batch["bookmark"] = bookmark
		}
		recs, next, err := s.find(ctx, batch)
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
		if len(recs) < findBatch || next == "" || next == bookmark {
			break
		}
		bookmark = next
	}
	return shared.Apply(spec, all, after), nil
}

// find runs one Mango request and returns its rows and bookmark.
func (s *Store) find(ctx context.Context, query map[string]any) ([]docsync.RawRecord, string, error) {
	rows := s.db.Find(ctx, query)
	var out []docsync.RawRecord
	for rows.Next() {
		var body map[string]any
		if err := rows.ScanDoc(&body); err != nil {
			_ = rows.Close()
			return nil, "", err
		}
		_, id := splitID(stringField(body, "_id"))
		out = append(out, docsync.RawRecord{ID: id, Fields: fields(body)})
	}
	if err := rows.Err(); err != nil {
		return nil, "", mapError(err)
	}
	meta, err := rows.Metadata()
	if err != nil {
		return nil, "", mapError(err)
	}
	return out, meta.Bookmark, nil
}

// Set writes fields under id, assigning a UUID when id is empty. Writes
// read the current revision first and retry on conflict.
func (s *Store) Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) (string, error) {
	if err := checkFields(fields); err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
	}
	key := docID(collection, id)
	err := s.retry(func() error {
		body, err := s.prepare(ctx, key, fields, merge)
		if err != nil {
			return err
		}
		_, err = s.db.Put(ctx, key, body)
		return err
	})
	if err != nil {
		return "", err
	}
	s.hub.Notify(collection)
	return id, nil
}

// SetBatch submits every write through _bulk_docs.
func (s *Store) SetBatch(ctx context.Context, collection string, writes []docsync.Write) ([]string, error) {
	ids := make([]string, len(writes))
	docs := make([]any, len(writes))
	for i, w := range writes {
		if err := checkFields(w.Fields); err != nil {
			return nil, err
		}
		ids[i] = w.ID
		if ids[i] == "" {
			ids[i] = uuid.NewString()
		}
		body, err := s.prepare(ctx, docID(collection, ids[i]), w.Fields, w.Merge)
		if err != nil {
			return nil, err
		}
		docs[i] = body
	}
	results, err := s.db.BulkDocs(ctx, docs)
	if err != nil {
		return nil, mapError(err)
	}
	var errs []error
	for _, r := range results {
		if r.Error != nil {
			errs = append(errs, mapError(r.Error))
		}
	}
	s.hub.Notify(collection)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return ids, nil
}

// Delete removes the document id at its current revision.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	key := docID(collection, id)
	err := s.retry(func() error {
		rev, err := s.db.GetRev(ctx, key)
		if err != nil {
			return err
		}
		_, err = s.db.Delete(ctx, key, rev)
		return err
	})
	if err != nil {
		return err
	}
	s.hub.Notify(collection)
	return nil
}

// Increment adds delta to field with a revision-checked read-modify-write.
// A missing or non-numeric field is set to delta.
func (s *Store) Increment(ctx context.Context, collection, id, field string, delta int64) error {
	key := docID(collection, id)
	err := s.retry(func() error {
		body, err := s.fetch(ctx, key)
		if err != nil {
			return err
		}
		increment(body, field, delta)
		_, err = s.db.Put(ctx, key, body)
		return err
	})
	if err != nil {
		return err
	}
	s.hub.Notify(collection)
	return nil
}

// Subscribe re-runs spec after every change to the collection, whether made
// through this store or by another client of the database.
func (s *Store) Subscribe(ctx context.Context, collection string, spec docsync.QuerySpec) (<-chan docsync.SnapshotEvent, error) {
	s.followOnce.Do(s.follow)
	return s.hub.Subscribe(ctx, collection, func(ctx context.Context) ([]docsync.RawRecord, error) {
		return s.RunQuery(ctx, collection, spec, nil)
	})
}

// follow starts one continuous changes feed for the database and wakes the
// subscribers of each changed document's collection.
func (s *Store) follow() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	go func() {
		defer close(s.done)
		changes := s.db.Changes(ctx, kivik.Params(map[string]any{
			"feed":      "continuous",
			"since":     "now",
			"heartbeat": 30000,
		}))
		defer changes.Close()
		for changes.Next() {
			if collection, _ := splitID(changes.ID()); collection != "" {
				s.hub.Notify(collection)
			}
		}
	}()
}

// Client returns the underlying kivik client.
func (s *Store) Client() *kivik.Client {
	return s.client
}

// Close stops the changes feed, ends every subscription and closes the client.
func (s *Store) Close(_ context.Context) error {
	s.followOnce.Do(func() { close(s.done) })
	if s.stop != nil {
		s.stop()
	}
	<-s.done
	s.hub.Close()
	return s.client.Close()
}

func (s *Store) fetch(ctx context.Context, key string) (map[string]any, error) {
	var body map[string]any
	if err := s.db.Get(ctx, key).ScanDoc(&body); err != nil {
		return nil, mapError(err)
	}
	return body, nil
}

// prepare builds the body to PUT under key, carrying the current revision.
func (s *Store) prepare(ctx context.Context, key string, fields map[string]any, merge bool) (map[string]any, error) {
	current, err := s.fetch(ctx, key)
	if err != nil && !errors.Is(err, docsync.ErrNotFound) {
		return nil, err
	}
	body := map[string]any{}
	if merge && current != nil {
		body = current
	}
	shared.MergeFields(body, fields)
	body["_id"] = key
	if rev := stringField(current, "_rev"); rev != "" {
		body["_rev"] = rev
	}
	return body, nil
}

// retry runs fn again while it fails with a revision conflict.
func (s *Store) retry(fn func() error) error {
	var err error
	for range maxConflictRetries {
		err = fn()
		if kivik.HTTPStatus(err) != http.StatusConflict {
			return mapError(err)
		}
	}
	return errors.Join(docsync.ErrPrecondition, err)
}

func docID(collection, id string) string {
	return collection + separator + id
}

// splitID reverses docID. Ids without a separator belong to no collection.
func splitID(key string) (collection, id string) {
	collection, id, ok := strings.Cut(key, separator)
	if !ok {
		return "", key
	}
	return collection, id
}

// fields strips CouchDB metadata from a document body.
func fields(body map[string]any) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		if strings.HasPrefix(k, "_") {
			continue
		}
		out[k] = v
	}
	return out
}

// checkFields rejects top-level names CouchDB reserves.
func checkFields(fields map[string]any) error {
	for k := range fields {
		if strings.HasPrefix(k, "_") {
			return shared.Invalid("field %q: leading underscore is reserved", k)
		}
	}
	return nil
}

func stringField(body map[string]any, key string) string {
	s, _ := body[key].(string)
	return s
}

func increment(body map[string]any, field string, delta int64) {
	parent := body
	parts := strings.Split(field, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := parent[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			parent[p] = next
		}
		parent = next
	}
	leaf := parts[len(parts)-1]
	switch cur := parent[leaf].(type) {
	case float64:
		parent[leaf] = cur + float64(delta)
	case int64:
		parent[leaf] = cur + delta
	default:
		parent[leaf] = delta
	}
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch kivik.HTTPStatus(err) {
	case http.StatusNotFound:
		return docsync.ErrNotFound
	case http.StatusConflict:
		return errors.Join(docsync.ErrAlreadyExists, err)
	case http.StatusPreconditionFailed:
		return errors.Join(docsync.ErrPrecondition, err)
	case http.StatusBadRequest:
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
