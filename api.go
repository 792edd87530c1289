// Package docsync provides a typed, paginated, client-reconciled view over
// remote document collections. Backends plug in through DocumentStore; the
// package adapts their request/response API into an in-memory ordered view
// that callers read while docsync keeps it reconciled with remote writes.
package docsync

import (
	"context"

	"github.com/zoobzio/docsync/internal/shared"
)

// Semantic errors for document operations (re-exported from internal/shared).
var (
	ErrNotFound        = shared.ErrNotFound
	ErrDecode          = shared.ErrDecode
	ErrEncode          = shared.ErrEncode
	ErrAlreadyExists   = shared.ErrAlreadyExists
	ErrPrecondition    = shared.ErrPrecondition
	ErrTransport       = shared.ErrTransport
	ErrInvalidArgument = shared.ErrInvalidArgument
	ErrClosed          = shared.ErrClosed
)

// DecodeError is re-exported from internal/shared for the public API.
type DecodeError = shared.DecodeError

// RawRecord is re-exported from internal/shared for the public API.
type RawRecord = shared.RawRecord

// SnapshotEvent is re-exported from internal/shared for the public API.
type SnapshotEvent = shared.SnapshotEvent

// DocumentStore defines the raw document operations a backend provides.
// Implementations (memory, firestore, mongo, sqlite, couchdb) satisfy this interface.
type DocumentStore interface {
	// Get retrieves the document id in collection.
	// Returns ErrNotFound if the document does not exist.
	Get(ctx context.Context, collection, id string) (RawRecord, error)

	// RunQuery executes spec against collection.
	// When after is non-nil, results start strictly after that record
	// under the spec's ordering.
	RunQuery(ctx context.Context, collection string, spec QuerySpec, after *RawRecord) ([]RawRecord, error)

	// Set writes fields to the document id and returns the id written.
	// An empty id asks the backend to assign one. With merge, fields present
	// overwrite remote fields and absent fields are left untouched;
	// without merge the document is replaced.
	Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) (string, error)

	// Delete removes the document id.
	Delete(ctx context.Context, collection, id string) error

	// Subscribe streams full result sets for spec until ctx is done.
	// Each event replaces the previous one; the channel closes when the
	// subscription ends.
	Subscribe(ctx context.Context, collection string, spec QuerySpec) (<-chan SnapshotEvent, error)

	// Increment atomically adds delta to a numeric field of document id.
	Increment(ctx context.Context, collection, id, field string, delta int64) error
}

// Write is one entry of a batched write.
type Write struct {
	ID     string
	Fields map[string]any
	Merge  bool
}

// Batcher is implemented by stores that can commit several writes at once.
type Batcher interface {
	// SetBatch commits writes atomically where the backend allows it and
	// returns the written ids in input order.
	SetBatch(ctx context.Context, collection string, writes []Write) ([]string, error)
}

// Lifecycle is implemented by stores that hold connections.
type Lifecycle interface {
	Close(ctx context.Context) error
}
