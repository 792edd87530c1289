package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/docsync"
	"github.com/zoobzio/docsync/internal/config"
	"github.com/zoobzio/docsync/memory"
	"github.com/zoobzio/docsync/sqlite"
)

func TestParseWhere(t *testing.T) {
	tests := []struct {
		expr string
		want docsync.Predicate
	}{
		{"status==open", docsync.Equals("status", "open")},
		{"status == open", docsync.Equals("status", "open")},
		{`title=="a b"`, docsync.Equals("title", "a b")},
		{"done==true", docsync.Equals("done", true)},
		{"parent==null", docsync.Equals("parent", nil)},
		{"seq>=3", docsync.GreaterOrEqual("seq", 3.0)},
		{"seq<=3", docsync.LessOrEqual("seq", 3.0)},
		{"seq<3", docsync.LessThan("seq", 3.0)},
		{"seq>3", docsync.GreaterThan("seq", 3.0)},
		{"owner in u1,u2", docsync.In("owner", "u1", "u2")},
		{"kind not-in draft, 2", docsync.NotIn("kind", "draft", 2.0)},
		{"tags contains red", docsync.ArrayContains("tags", "red")},
		{"tags contains-any red,blue", docsync.ArrayContainsAny("tags", "red", "blue")},
		{"note in a==b", docsync.In("note", "a==b")},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := parseWhere(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseWhere_Errors(t *testing.T) {
	for _, expr := range []string{"", "seq", "==3", "seq==", "owner in  "} {
		_, err := parseWhere(expr)
		assert.Error(t, err, "expr %q", expr)
	}
}

func TestUsage_Parses(t *testing.T) {
	opts, err := docopt.ParseArgs(usage, []string{
		"page", "notes", "--order=seq", "--desc", "--where=a==1", "--where=b<2",
	}, version)
	require.NoError(t, err)

	page, _ := opts.Bool("page")
	assert.True(t, page)
	collection, _ := opts.String("<collection>")
	assert.Equal(t, "notes", collection)
	assert.Equal(t, []string{"a==1", "b<2"}, stringsOption(opts, "--where"))

	pages, err := intOption(opts, "--pages", 7)
	require.NoError(t, err)
	assert.Equal(t, 1, pages)
	limit, err := intOption(opts, "--limit", 50)
	require.NoError(t, err)
	assert.Equal(t, 50, limit)
}

func TestIntOption_Rejects(t *testing.T) {
	_, err := intOption(docopt.Opts{"--limit": "many"}, "--limit", 1)
	assert.Error(t, err)
	_, err = intOption(docopt.Opts{"--limit": "-1"}, "--limit", 1)
	assert.Error(t, err)
}

func testConfig() *config.Config {
	return &config.Config{
		Backend: config.BackendMemory,
		Session: config.SessionConfig{PageSize: 2, ErrorBuffer: 4, Timeout: time.Second},
	}
}

func seeded(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		_, err := store.Set(ctx, "notes", id, map[string]any{"seq": i, "open": i%2 == 0}, false)
		require.NoError(t, err)
	}
	return store
}

func decodeLines(t *testing.T, out string) []docsync.Document[record] {
	t.Helper()
	var docs []docsync.Document[record]
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var doc docsync.Document[record]
		require.NoError(t, json.Unmarshal([]byte(line), &doc))
		docs = append(docs, doc)
	}
	return docs
}

func docIDs(docs []docsync.Document[record]) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

func TestRunPage(t *testing.T) {
	store := seeded(t)

	tests := []struct {
		name string
		opts docopt.Opts
		want []string
	}{
		{
			name: "first page",
			opts: docopt.Opts{"<collection>": "notes", "--order": "seq", "--desc": false, "--pages": "1"},
			want: []string{"a", "b"},
		},
		{
			name: "all pages descending",
			opts: docopt.Opts{"<collection>": "notes", "--order": "seq", "--desc": true, "--pages": "0"},
			want: []string{"e", "d", "c", "b", "a"},
		},
		{
			name: "filtered",
			opts: docopt.Opts{"<collection>": "notes", "--order": "seq", "--desc": false, "--pages": "0", "--limit": "10", "--where": []string{"open==true"}},
			want: []string{"a", "c", "e"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, runPage(context.Background(), store, testConfig(), tt.opts, &buf))
			assert.Equal(t, tt.want, docIDs(decodeLines(t, buf.String())))
		})
	}
}

func TestRunPage_BadWhere(t *testing.T) {
	store := seeded(t)
	opts := docopt.Opts{"<collection>": "notes", "--order": "seq", "--where": []string{"open"}}
	err := runPage(context.Background(), store, testConfig(), opts, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRunGet(t *testing.T) {
	store := seeded(t)

	var buf bytes.Buffer
	opts := docopt.Opts{"<collection>": "notes", "<id>": "c"}
	require.NoError(t, runGet(context.Background(), store, testConfig(), opts, &buf))
	docs := decodeLines(t, buf.String())
	require.Len(t, docs, 1)
	assert.Equal(t, "c", docs[0].ID)
	assert.Equal(t, 2.0, docs[0].Data["seq"])

	opts["<id>"] = "missing"
	err := runGet(context.Background(), store, testConfig(), opts, &bytes.Buffer{})
	assert.ErrorIs(t, err, docsync.ErrNotFound)
}

func TestRunListen(t *testing.T) {
	store := seeded(t)
	ctx, cancel := context.WithCancel(context.Background())

	var buf bytes.Buffer
	done := make(chan error, 1)
	opts := docopt.Opts{"<collection>": "notes", "--order": "seq", "--desc": false, "--where": []string{"open==true"}}
	go func() { done <- runListen(ctx, store, opts, &buf) }()

	// Give the initial snapshot time to arrive, then stop.
	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	line := strings.SplitN(strings.TrimSpace(buf.String()), "\n", 2)[0]
	var snap snapshotLine
	require.NoError(t, json.Unmarshal([]byte(line), &snap))
	assert.Equal(t, 3, snap.Count)
	assert.Equal(t, []string{"a", "c", "e"}, docIDs(snap.Documents))
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	store, err := openStore(ctx, testConfig())
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, store)
	closeStore(store)

	cfg := testConfig()
	cfg.Backend = config.BackendSQLite
	cfg.SQLite.DSN = ":memory:"
	cfg.SQLite.Table = "cli_docs"
	store, err = openStore(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, store)
	closeStore(store)
}

func TestDescribe(t *testing.T) {
	got := describe(nil)
	assert.Empty(t, got)

	got = describe([]capitan.Field{
		docsync.FieldCollection.Field("notes"),
		docsync.FieldCount.Field(3),
	})
	assert.Equal(t, "collection=notes count=3", got)
}
