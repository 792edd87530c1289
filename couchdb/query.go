package couchdb

import (
	"encoding/json"
	"time"

	"github.com/zoobzio/docsync"
	"github.com/zoobzio/docsync/internal/shared"
)

// mangoType names the Mango $type of a comparison value, so that range
// operators never cross type classes under CouchDB collation.
func mangoType(v any) (string, any, error) {
	switch t := v.(type) {
	case nil:
		return "null", nil, nil
	case string:
		return "string", t, nil
	case bool:
		return "boolean", t, nil
	case time.Time:
		return "string", t.Format(time.RFC3339Nano), nil
	case json.Number, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return "number", t, nil
	}
	return "", nil, shared.Invalid("unsupported comparison value %T", v)
}

func rangeOperator(op docsync.Op) string {
	switch op {
	case docsync.OpLessThan:
		return "$lt"
	case docsync.OpGreaterThan:
		return "$gt"
	case docsync.OpLessOrEqual:
		return "$lte"
	case docsync.OpGreaterOrEqual:
		return "$gte"
	}
	return ""
}

func values(vs []any) ([]any, error) {
	out := make([]any, len(vs))
	for i, v := range vs {
		_, bound, err := mangoType(v)
		if err != nil {
			return nil, err
		}
		out[i] = bound
	}
	return out, nil
}

// condition renders one Mango selector for a filter predicate.
func condition(p docsync.Predicate) (map[string]any, error) {
	switch p.Op {
	case docsync.OpEquals:
		_, bound, err := mangoType(p.Value)
		if err != nil {
			return nil, err
		}
		return map[string]any{p.Field: map[string]any{"$eq": bound}}, nil
	case docsync.OpLessThan, docsync.OpGreaterThan, docsync.OpLessOrEqual, docsync.OpGreaterOrEqual:
		typ, bound, err := mangoType(p.Value)
		if err != nil {
			return nil, err
		}
		return map[string]any{p.Field: map[string]any{"$type": typ, rangeOperator(p.Op): bound}}, nil
	case docsync.OpIn:
		vs, err := values(p.Values)
		if err != nil {
			return nil, err
		}
		return map[string]any{p.Field: map[string]any{"$in": vs}}, nil
	case docsync.OpNotIn:
		vs, err := values(p.Values)
		if err != nil {
			return nil, err
		}
		return map[string]any{p.Field: map[string]any{"$exists": true, "$ne": nil, "$nin": vs}}, nil
	case docsync.OpArrayContains:
		_, bound, err := mangoType(p.Value)
		if err != nil {
			return nil, err
		}
		return map[string]any{p.Field: map[string]any{"$elemMatch": map[string]any{"$eq": bound}}}, nil
	case docsync.OpArrayContainsAny:
		vs, err := values(p.Values)
		if err != nil {
			return nil, err
		}
		return map[string]any{p.Field: map[string]any{"$elemMatch": map[string]any{"$in": vs}}}, nil
	}
	return nil, shared.Invalid("unsupported filter %s", p.Op)
}

// selector renders the Mango selector for spec's filters within collection.
// Ordering, cursors and limits are applied after the fetch.
func selector(collection string, spec docsync.QuerySpec) (map[string]any, error) {
	prefix := collection + separator
	and := []any{
		map[string]any{"_id": map[string]any{"$gt": prefix, "$lt": prefix + "\ufff0"}},
	}
	for _, p := range spec.Filters() {
		c, err := condition(p)
		if err != nil {
			return nil, err
		}
		and = append(and, c)
	}
	for _, o := range spec.Orders() {
		and = append(and, map[string]any{o.Field: map[string]any{"$exists": true}})
	}
	return map[string]any{"$and": and}, nil
}

// keysetQuery renders a single Mango request for specs the primary index can
// serve: no ordering and a forward limit. Such specs page in id order, which
// _all_docs collates bytewise like the in-memory order, so the cursor becomes
// an _id bound and only one page is read. ok is false for every other spec.
func keysetQuery(collection string, spec docsync.QuerySpec, after *docsync.RawRecord) (query map[string]any, ok bool, err error) {
	n, last, limited := spec.Limit()
	if !limited || last || len(spec.Orders()) > 0 {
		return nil, false, nil
	}
	sel, err := selector(collection, spec)
	if err != nil {
		return nil, false, err
	}
	if after != nil {
		and := sel["$and"].([]any)
		and[0] = map[string]any{"_id": map[string]any{"$gt": docID(collection, after.ID), "$lt": collection + separator + "\ufff0"}}
	}
	return map[string]any{
		"selector": sel,
		"sort":     []any{map[string]any{"_id": "asc"}},
		"limit":    n,
	}, true, nil
}
