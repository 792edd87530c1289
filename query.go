package docsync

import "github.com/zoobzio/docsync/internal/shared"

// Op is re-exported from internal/shared for the public API.
type Op = shared.Op

// Predicate is re-exported from internal/shared for the public API.
type Predicate = shared.Predicate

// QuerySpec is re-exported from internal/shared for the public API.
type QuerySpec = shared.QuerySpec

// Predicate kinds.
const (
	OpEquals           = shared.OpEquals
	OpIn               = shared.OpIn
	OpNotIn            = shared.OpNotIn
	OpArrayContains    = shared.OpArrayContains
	OpArrayContainsAny = shared.OpArrayContainsAny
	OpLessThan         = shared.OpLessThan
	OpGreaterThan      = shared.OpGreaterThan
	OpLessOrEqual      = shared.OpLessOrEqual
	OpGreaterOrEqual   = shared.OpGreaterOrEqual
	OpOrderBy          = shared.OpOrderBy
	OpLimit            = shared.OpLimit
	OpLimitToLast      = shared.OpLimitToLast
)

// Query builds a QuerySpec from predicates.
func Query(predicates ...Predicate) QuerySpec {
	return QuerySpec(predicates)
}

// Equals matches documents whose field equals value.
func Equals(field string, value any) Predicate {
	return Predicate{Op: OpEquals, Field: field, Value: value}
}

// In matches documents whose field equals one of values.
func In(field string, values ...any) Predicate {
	return Predicate{Op: OpIn, Field: field, Values: values}
}

// NotIn matches documents whose field is present and equals none of values.
func NotIn(field string, values ...any) Predicate {
	return Predicate{Op: OpNotIn, Field: field, Values: values}
}

// ArrayContains matches documents whose array field contains value.
func ArrayContains(field string, value any) Predicate {
	return Predicate{Op: OpArrayContains, Field: field, Value: value}
}

// ArrayContainsAny matches documents whose array field contains any of values.
func ArrayContainsAny(field string, values ...any) Predicate {
	return Predicate{Op: OpArrayContainsAny, Field: field, Values: values}
}

// LessThan matches documents whose field is less than value.
func LessThan(field string, value any) Predicate {
	return Predicate{Op: OpLessThan, Field: field, Value: value}
}

// GreaterThan matches documents whose field is greater than value.
func GreaterThan(field string, value any) Predicate {
	return Predicate{Op: OpGreaterThan, Field: field, Value: value}
}

// LessOrEqual matches documents whose field is at most value.
func LessOrEqual(field string, value any) Predicate {
	return Predicate{Op: OpLessOrEqual, Field: field, Value: value}
}

// GreaterOrEqual matches documents whose field is at least value.
func GreaterOrEqual(field string, value any) Predicate {
	return Predicate{Op: OpGreaterOrEqual, Field: field, Value: value}
}

// OrderBy sorts results by field.
func OrderBy(field string, descending bool) Predicate {
	return Predicate{Op: OpOrderBy, Field: field, Descending: descending}
}

// Limit keeps the first n results.
func Limit(n int) Predicate {
	return Predicate{Op: OpLimit, N: n}
}

// LimitToLast keeps the last n results.
func LimitToLast(n int) Predicate {
	return Predicate{Op: OpLimitToLast, N: n}
}

// Paginate appends the order and page size clauses used by Sync.
func Paginate(spec QuerySpec, orderBy string, descending bool, pageSize int) QuerySpec {
	out := make(QuerySpec, 0, len(spec)+2)
	out = append(out, spec...)
	out = append(out, OrderBy(orderBy, descending), Limit(pageSize))
	return out
}
