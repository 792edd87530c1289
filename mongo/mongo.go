// Package mongo provides a docsync DocumentStore for MongoDB.
// Each docsync collection maps to a MongoDB collection in one database and
// document ids are stored as string _id values.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/zoobzio/docsync"
	"github.com/zoobzio/docsync/internal/shared"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Store implements docsync.DocumentStore for MongoDB.
type Store struct {
	db *mongo.Database
}

// New creates a MongoDB store on db.
func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

// Open connects to uri and uses the named database.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return New(client.Database(database)), nil
}

// Get retrieves the document id in collection.
func (s *Store) Get(ctx context.Context, collection, id string) (docsync.RawRecord, error) {
	var doc bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return docsync.RawRecord{}, docsync.ErrNotFound
		}
		return docsync.RawRecord{}, err
	}
	return record(doc), nil
}

// RunQuery executes spec with keyset pagination after the given record.
func (s *Store) RunQuery(ctx context.Context, collection string, spec docsync.QuerySpec, after *docsync.RawRecord) ([]docsync.RawRecord, error) {
	req, err := translate(spec, after)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(req.Sort)
	if req.Limit > 0 {
		opts.SetLimit(req.Limit)
	}

	cur, err := s.db.Collection(collection).Find(ctx, req.Filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []docsync.RawRecord
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, record(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	if req.Reversed {
		slices.Reverse(out)
	}
	return out, nil
}

// Set writes fields under id, assigning an ObjectID hex string when id is
// empty. Merge writes use $set; other writes replace the document.
func (s *Store) Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) (string, error) {
	if id == "" {
		id = bson.NewObjectID().Hex()
	}
	coll := s.db.Collection(collection)
	var err error
	if merge {
		_, err = coll.UpdateOne(ctx, bson.M{"_id": id}, mergeUpdate(fields), options.UpdateOne().SetUpsert(true))
	} else {
		_, err = coll.ReplaceOne(ctx, bson.M{"_id": id}, replacement(fields), options.Replace().SetUpsert(true))
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// SetBatch applies every write in one ordered bulk call.
func (s *Store) SetBatch(ctx context.Context, collection string, writes []docsync.Write) ([]string, error) {
	if len(writes) == 0 {
		return nil, nil
	}
	ids := make([]string, len(writes))
	models := make([]mongo.WriteModel, len(writes))
	for i, w := range writes {
		ids[i] = w.ID
		if ids[i] == "" {
			ids[i] = bson.NewObjectID().Hex()
		}
		if w.Merge {
			models[i] = mongo.NewUpdateOneModel().
				SetFilter(bson.M{"_id": ids[i]}).
				SetUpdate(mergeUpdate(w.Fields)).
				SetUpsert(true)
		} else {
			models[i] = mongo.NewReplaceOneModel().
				SetFilter(bson.M{"_id": ids[i]}).
				SetReplacement(replacement(w.Fields)).
				SetUpsert(true)
		}
	}
	if _, err := s.db.Collection(collection).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
		return nil, err
	}
	return ids, nil
}

// Delete removes the document id.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	result, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return docsync.ErrNotFound
	}
	return nil
}

// Increment applies $inc to field. A missing field starts at zero.
func (s *Store) Increment(ctx context.Context, collection, id, field string, delta int64) error {
	result, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{field: delta}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return docsync.ErrNotFound
	}
	return nil
}

// Subscribe opens a change stream on collection and re-runs spec after
// each batch of changes. Change streams need a replica set or sharded
// cluster; on a standalone server the error is returned here.
func (s *Store) Subscribe(ctx context.Context, collection string, spec docsync.QuerySpec) (<-chan docsync.SnapshotEvent, error) {
	stream, err := s.db.Collection(collection).Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return nil, err
	}
	out := make(chan docsync.SnapshotEvent)
	go func() {
		defer close(out)
		defer stream.Close(context.WithoutCancel(ctx))
		for {
			recs, err := s.RunQuery(ctx, collection, spec, nil)
			if ctx.Err() != nil {
				return
			}
			select {
			case out <- docsync.SnapshotEvent{Records: recs, Err: err}:
			case <-ctx.Done():
				return
			}
			if !stream.Next(ctx) {
				if ctx.Err() == nil && stream.Err() != nil {
					select {
					case out <- docsync.SnapshotEvent{Err: shared.Transport(stream.Err())}:
					case <-ctx.Done():
					}
				}
				return
			}
			drain(ctx, stream)
		}
	}()
	return out, nil
}

// drain consumes changes that are already buffered so one query covers them.
func drain(ctx context.Context, stream *mongo.ChangeStream) {
	for stream.TryNext(ctx) {
		continue
	}
}

// Database returns the underlying database handle.
func (s *Store) Database() *mongo.Database {
	return s.db
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

// mergeUpdate writes each field with $set. Nested maps are flattened to
// dotted paths so sibling keys survive.
func mergeUpdate(fields map[string]any) bson.M {
	set := bson.M{}
	flatten("", fields, set)
	return bson.M{"$set": set}
}

func flatten(prefix string, fields map[string]any, out bson.M) {
	for k, v := range fields {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if m, ok := v.(map[string]any); ok && len(m) > 0 {
			flatten(path, m, out)
			continue
		}
		out[path] = v
	}
}

func replacement(fields map[string]any) bson.M {
	doc := make(bson.M, len(fields))
	for k, v := range fields {
		if k == "_id" {
			continue
		}
		doc[k] = v
	}
	return doc
}

// record converts a decoded document to a RawRecord with plain Go values.
func record(doc bson.M) docsync.RawRecord {
	id := idString(doc["_id"])
	fields := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		fields[k] = plain(v)
	}
	return docsync.RawRecord{ID: id, Fields: fields}
}

func idString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bson.ObjectID:
		return t.Hex()
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// plain converts BSON container and scalar types to the types docsync
// codecs understand.
func plain(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = plain(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = plain(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = plain(item)
		}
		return out
	case bson.DateTime:
		return t.Time().UTC()
	case bson.ObjectID:
		return t.Hex()
	case int32:
		return int64(t)
	}
	return v
}

// Ensure Store implements the docsync store interfaces.
var (
	_ docsync.DocumentStore = (*Store)(nil)
	_ docsync.Batcher       = (*Store)(nil)
	_ docsync.Lifecycle     = (*Store)(nil)
)
