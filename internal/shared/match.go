package shared //nolint:revive // internal shared package is intentional

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
	"time"
)

// Lookup resolves a dotted field path inside fields.
func Lookup(fields map[string]any, path string) (any, bool) {
	var cur any = fields
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Match reports whether fields satisfy every filter in q.
// Order and limit clauses are ignored.
func Match(q QuerySpec, fields map[string]any) bool {
	for _, p := range q.Filters() {
		if !matchOne(p, fields) {
			return false
		}
	}
	return true
}

func matchOne(p Predicate, fields map[string]any) bool {
	v, ok := Lookup(fields, p.Field)
	switch p.Op {
	case OpEquals:
		return ok && Compare(v, p.Value) == 0
	case OpIn:
		return ok && containsValue(p.Values, v)
	case OpNotIn:
		return ok && v != nil && !containsValue(p.Values, v)
	case OpArrayContains:
		arr, isArr := toSlice(v)
		return ok && isArr && containsValue(arr, p.Value)
	case OpArrayContainsAny:
		arr, isArr := toSlice(v)
		if !ok || !isArr {
			return false
		}
		for _, want := range p.Values {
			if containsValue(arr, want) {
				return true
			}
		}
		return false
	case OpLessThan:
		return ok && sameClass(v, p.Value) && Compare(v, p.Value) < 0
	case OpGreaterThan:
		return ok && sameClass(v, p.Value) && Compare(v, p.Value) > 0
	case OpLessOrEqual:
		return ok && sameClass(v, p.Value) && Compare(v, p.Value) <= 0
	case OpGreaterOrEqual:
		return ok && sameClass(v, p.Value) && Compare(v, p.Value) >= 0
	}
	return true
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if Compare(item, v) == 0 {
			return true
		}
	}
	return false
}

func toSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// sameClass reports whether range comparisons between a and b are meaningful.
// Range filters only match values of the same type class.
func sameClass(a, b any) bool {
	return rank(a) == rank(b)
}

// Type ranks used for cross-type ordering.
const (
	rankNull = iota
	rankBool
	rankNumber
	rankTime
	rankString
	rankBytes
	rankArray
	rankMap
	rankOther
)

func rank(v any) int {
	switch v.(type) {
	case nil:
		return rankNull
	case bool:
		return rankBool
	case time.Time, *time.Time:
		return rankTime
	case string:
		return rankString
	case []byte:
		return rankBytes
	case map[string]any:
		return rankMap
	}
	if _, ok := toFloat(v); ok {
		return rankNumber
	}
	if _, ok := toSlice(v); ok {
		return rankArray
	}
	return rankOther
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Compare orders two field values: null < bool < number < time < string < bytes < array < map.
// Values of the same class compare naturally.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch ra {
	case rankNull:
		return 0
	case rankBool:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case rankNumber:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb || (math.IsNaN(fa) && !math.IsNaN(fb)):
			return -1
		case fa > fb || (!math.IsNaN(fa) && math.IsNaN(fb)):
			return 1
		}
		return 0
	case rankTime:
		return toTime(a).Compare(toTime(b))
	case rankString:
		return strings.Compare(a.(string), b.(string))
	case rankBytes:
		return strings.Compare(string(a.([]byte)), string(b.([]byte)))
	case rankArray:
		sa, _ := toSlice(a)
		sb, _ := toSlice(b)
		for i := 0; i < len(sa) && i < len(sb); i++ {
			if c := Compare(sa[i], sb[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(sa), len(sb))
	case rankMap:
		return compareMaps(a.(map[string]any), b.(map[string]any))
	}
	// Other values order by dynamic type, then by their printed form.
	if reflect.DeepEqual(a, b) {
		return 0
	}
	if c := strings.Compare(fmt.Sprintf("%T", a), fmt.Sprintf("%T", b)); c != 0 {
		return c
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func compareMaps(a, b map[string]any) int {
	ka := sortedKeys(a)
	kb := sortedKeys(b)
	for i := 0; i < len(ka) && i < len(kb); i++ {
		if c := strings.Compare(ka[i], kb[i]); c != 0 {
			return c
		}
		if c := Compare(a[ka[i]], b[kb[i]]); c != 0 {
			return c
		}
	}
	return cmpInt(len(ka), len(kb))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func toTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case *time.Time:
		if t != nil {
			return *t
		}
	}
	return time.Time{}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// CompareRecords orders two records by the order clauses, breaking ties by id.
// The id tie-break follows the direction of the last order clause.
func CompareRecords(orders QuerySpec, a, b RawRecord) int {
	desc := false
	for _, o := range orders {
		va, _ := Lookup(a.Fields, o.Field)
		vb, _ := Lookup(b.Fields, o.Field)
		c := Compare(va, vb)
		if o.Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
		desc = o.Descending
	}
	c := strings.Compare(a.ID, b.ID)
	if desc {
		c = -c
	}
	return c
}

// After reports whether rec sorts strictly after cursor under orders.
func After(orders QuerySpec, cursor, rec RawRecord) bool {
	return CompareRecords(orders, cursor, rec) < 0
}

// Apply evaluates q over records in memory: filter, sort, start after cursor, limit.
// Records lacking an order field are excluded, as managed backends do.
func Apply(q QuerySpec, records []RawRecord, after *RawRecord) []RawRecord {
	orders := q.Orders()
	out := make([]RawRecord, 0, len(records))
	for _, r := range records {
		if !Match(q, r.Fields) {
			continue
		}
		if !hasFields(r.Fields, orders) {
			continue
		}
		out = append(out, r)
	}
	slices.SortStableFunc(out, func(a, b RawRecord) int {
		return CompareRecords(orders, a, b)
	})
	if after != nil {
		i := 0
		for i < len(out) && !After(orders, *after, out[i]) {
			i++
		}
		out = out[i:]
	}
	if n, last, ok := q.Limit(); ok && len(out) > n {
		if last {
			out = out[len(out)-n:]
		} else {
			out = out[:n]
		}
	}
	return out
}

func hasFields(fields map[string]any, orders QuerySpec) bool {
	for _, o := range orders {
		if _, ok := Lookup(fields, o.Field); !ok {
			return false
		}
	}
	return true
}
