package couchdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/docsync"
)

func TestDocID(t *testing.T) {
	key := docID("notes", "n-1")
	assert.Equal(t, "notes:n-1", key)

	collection, id := splitID(key)
	assert.Equal(t, "notes", collection)
	assert.Equal(t, "n-1", id)

	// Only the first separator splits.
	collection, id = splitID("notes:a:b")
	assert.Equal(t, "notes", collection)
	assert.Equal(t, "a:b", id)

	collection, id = splitID("_design/x")
	assert.Empty(t, collection)
	assert.Equal(t, "_design/x", id)
}

func TestFields_StripsMetadata(t *testing.T) {
	got := fields(map[string]any{"_id": "notes:a", "_rev": "1-x", "_conflicts": []any{}, "title": "a"})
	assert.Equal(t, map[string]any{"title": "a"}, got)
}

func TestCheckFields(t *testing.T) {
	assert.NoError(t, checkFields(map[string]any{"title": "a", "meta": map[string]any{"_x": 1}}))
	assert.ErrorIs(t, checkFields(map[string]any{"_rev": "1"}), docsync.ErrInvalidArgument)
}

func TestCondition(t *testing.T) {
	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name string
		in   docsync.Predicate
		want map[string]any
	}{
		{"equals", docsync.Equals("title", "a"), map[string]any{"title": map[string]any{"$eq": "a"}}},
		{"equals null", docsync.Equals("parent", nil), map[string]any{"parent": map[string]any{"$eq": nil}}},
		{"range number", docsync.GreaterThan("seq", 1), map[string]any{"seq": map[string]any{"$type": "number", "$gt": 1}}},
		{"range string", docsync.LessOrEqual("title", "m"), map[string]any{"title": map[string]any{"$type": "string", "$lte": "m"}}},
		{"range time", docsync.GreaterOrEqual("at", when), map[string]any{"at": map[string]any{"$type": "string", "$gte": "2024-01-02T03:04:05Z"}}},
		{"in", docsync.In("owner", "u1", "u2"), map[string]any{"owner": map[string]any{"$in": []any{"u1", "u2"}}}},
		{"not in", docsync.NotIn("kind", "draft"), map[string]any{"kind": map[string]any{"$exists": true, "$ne": nil, "$nin": []any{"draft"}}}},
		{"array contains", docsync.ArrayContains("tags", "red"), map[string]any{"tags": map[string]any{"$elemMatch": map[string]any{"$eq": "red"}}}},
		{"array contains any", docsync.ArrayContainsAny("tags", "a", true), map[string]any{"tags": map[string]any{"$elemMatch": map[string]any{"$in": []any{"a", true}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := condition(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := condition(docsync.Equals("x", struct{}{}))
	assert.ErrorIs(t, err, docsync.ErrInvalidArgument)
	_, err = condition(docsync.In("x", []int{1}))
	assert.ErrorIs(t, err, docsync.ErrInvalidArgument)
}

func TestSelector(t *testing.T) {
	spec := docsync.Query(docsync.Equals("status", "open"), docsync.OrderBy("seq", false), docsync.Limit(10))
	got, err := selector("notes", spec)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"$and": []any{
		map[string]any{"_id": map[string]any{"$gt": "notes:", "$lt": "notes:\ufff0"}},
		map[string]any{"status": map[string]any{"$eq": "open"}},
		map[string]any{"seq": map[string]any{"$exists": true}},
	}}, got)
}

func TestKeysetQuery(t *testing.T) {
	spec := docsync.Query(docsync.Equals("status", "open"), docsync.Limit(2))

	got, ok, err := keysetQuery("notes", spec, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"selector": map[string]any{"$and": []any{
			map[string]any{"_id": map[string]any{"$gt": "notes:", "$lt": "notes:\ufff0"}},
			map[string]any{"status": map[string]any{"$eq": "open"}},
		}},
		"sort":  []any{map[string]any{"_id": "asc"}},
		"limit": 2,
	}, got)

	got, ok, err = keysetQuery("notes", spec, &docsync.RawRecord{ID: "b"})
	require.NoError(t, err)
	require.True(t, ok)
	and := got["selector"].(map[string]any)["$and"].([]any)
	assert.Equal(t, map[string]any{"_id": map[string]any{"$gt": "notes:b", "$lt": "notes:\ufff0"}}, and[0])

	// Ordered, unbounded and limit-to-last specs drain and order locally.
	for _, spec := range []docsync.QuerySpec{
		docsync.Query(docsync.OrderBy("seq", false), docsync.Limit(2)),
		docsync.Query(docsync.Equals("status", "open")),
		docsync.Query(docsync.OrderBy("seq", false), docsync.LimitToLast(2)),
	} {
		_, ok, err := keysetQuery("notes", spec, nil)
		require.NoError(t, err)
		assert.False(t, ok, "spec %v", spec)
	}
}

func TestIncrement(t *testing.T) {
	body := map[string]any{"views": 2.0, "label": "x"}
	increment(body, "views", 3)
	increment(body, "label", 4)
	increment(body, "likes", -1)
	increment(body, "stats.hits", 1)
	increment(body, "stats.hits", 1)

	assert.Equal(t, 5.0, body["views"])
	assert.Equal(t, int64(4), body["label"])
	assert.Equal(t, int64(-1), body["likes"])
	assert.Equal(t, map[string]any{"hits": int64(2)}, body["stats"])
}

func TestMapError_Nil(t *testing.T) {
	assert.NoError(t, mapError(nil))
	assert.ErrorIs(t, mapError(docsync.ErrNotFound), docsync.ErrNotFound)
}
