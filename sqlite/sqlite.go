// Package sqlite provides a docsync DocumentStore backed by SQLite.
// Documents live in one table as JSON text; queries are translated to
// json_extract/json_each expressions and keyset pagination.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
	"github.com/zoobzio/docsync"
	"github.com/zoobzio/docsync/internal/notify"
	"github.com/zoobzio/docsync/internal/shared"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"
)

// DefaultTable is the table documents are stored in unless WithTable is used.
const DefaultTable = "documents"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// row is one stored document.
type row struct {
	ID   string `db:"id"`
	Body string `db:"body"`
}

// Store implements docsync.DocumentStore for SQLite.
type Store struct {
	db    *sqlx.DB
	table string
	hub   *notify.Hub
}

// Option configures a Store.
type Option func(*Store)

// WithTable stores documents in table instead of DefaultTable.
func WithTable(table string) Option {
	return func(s *Store) {
		s.table = table
	}
}

// Open connects to dsn with the modernc driver and prepares the schema.
// In-memory databases are pinned to one connection so every query sees
// the same data.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	s, err := New(ctx, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection and creates the document table if needed.
func New(ctx context.Context, db *sqlx.DB, opts ...Option) (*Store, error) {
	s := &Store{db: db, table: DefaultTable, hub: notify.New()}
	for _, opt := range opts {
		opt(s)
	}
	if !tableName.MatchString(s.table) {
		return nil, shared.Invalid("bad table name %q", s.table)
	}
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		body TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	)`, s.table)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, err
	}
	return s, nil
}

// Get retrieves the document id in collection.
func (s *Store) Get(ctx context.Context, collection, id string) (docsync.RawRecord, error) {
	var r row
	err := s.db.GetContext(ctx, &r, fmt.Sprintf("SELECT id, body FROM %s WHERE collection = ? AND id = ?", s.table), collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return docsync.RawRecord{}, docsync.ErrNotFound
	}
	if err != nil {
		return docsync.RawRecord{}, err
	}
	return r.record(), nil
}

// RunQuery executes spec with keyset pagination after the given record.
func (s *Store) RunQuery(ctx context.Context, collection string, spec docsync.QuerySpec, after *docsync.RawRecord) ([]docsync.RawRecord, error) {
	query, args, reversed, err := selectQuery(s.table, collection, spec, after)
	if err != nil {
		return nil, err
	}
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	if reversed {
		slices.Reverse(rows)
	}
	out := make([]docsync.RawRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

// Set writes fields under id, assigning a ULID when id is empty.
func (s *Store) Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) (string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	id, err = s.write(ctx, tx, collection, docsync.Write{ID: id, Fields: fields, Merge: merge})
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	s.hub.Notify(collection)
	return id, nil
}

// SetBatch applies every write in one transaction.
func (s *Store) SetBatch(ctx context.Context, collection string, writes []docsync.Write) ([]string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]string, len(writes))
	for i, w := range writes {
		if ids[i], err = s.write(ctx, tx, collection, w); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.hub.Notify(collection)
	return ids, nil
}

func (s *Store) write(ctx context.Context, tx *sqlx.Tx, collection string, w docsync.Write) (string, error) {
	id := w.ID
	if id == "" {
		id = ulid.Make().String()
	}
	fields := w.Fields
	if w.Merge {
		var body string
		err := tx.GetContext(ctx, &body, fmt.Sprintf("SELECT body FROM %s WHERE collection = ? AND id = ?", s.table), collection, id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return "", err
		default:
			existing, err := shared.DecodeFields([]byte(body))
			if err != nil {
				return "", fmt.Errorf("document %q: %w", id, err)
			}
			if existing == nil {
				existing = map[string]any{}
			}
			shared.MergeFields(existing, fields)
			fields = existing
		}
	}
	if fields == nil {
		fields = map[string]any{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (collection, id, body) VALUES (?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET body = excluded.body`, s.table), collection, id, string(data))
	if err != nil {
		return "", err
	}
	return id, nil
}

// Delete removes the document id.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	result, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE collection = ? AND id = ?", s.table), collection, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return docsync.ErrNotFound
	}
	s.hub.Notify(collection)
	return nil
}

// Increment adds delta to field in a single statement. A missing or
// non-numeric field is set to delta.
func (s *Store) Increment(ctx context.Context, collection, id, field string, delta int64) error {
	path, err := jsonPath(field)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET body = json_set(body, ?,
		CASE WHEN json_type(body, ?) IN ('integer', 'real') THEN json_extract(body, ?) + ? ELSE ? END)
		WHERE collection = ? AND id = ?`, s.table)
	result, err := s.db.ExecContext(ctx, query, path, path, path, delta, delta, collection, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return docsync.ErrNotFound
	}
	s.hub.Notify(collection)
	return nil
}

// Subscribe re-runs spec after every write made through this Store.
// Writes by other processes are not observed.
func (s *Store) Subscribe(ctx context.Context, collection string, spec docsync.QuerySpec) (<-chan docsync.SnapshotEvent, error) {
	return s.hub.Subscribe(ctx, collection, func(ctx context.Context) ([]docsync.RawRecord, error) {
		return s.RunQuery(ctx, collection, spec, nil)
	})
}

// DB returns the underlying connection.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close ends every subscription and closes the connection.
func (s *Store) Close(_ context.Context) error {
	s.hub.Close()
	return s.db.Close()
}

// record parses the body. An unparsable body yields nil Fields so the
// document surfaces as a decode failure instead of failing the read.
func (r row) record() docsync.RawRecord {
	fields, err := shared.DecodeFields([]byte(r.Body))
	if err != nil {
		return docsync.RawRecord{ID: r.ID}
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return docsync.RawRecord{ID: r.ID, Fields: fields}
}

// Ensure Store implements the docsync store interfaces.
var (
	_ docsync.DocumentStore = (*Store)(nil)
	_ docsync.Batcher       = (*Store)(nil)
	_ docsync.Lifecycle     = (*Store)(nil)
)
