package shared //nolint:revive // internal shared package is intentional

// Op identifies the kind of a query predicate.
type Op string

// Predicate kinds.
const (
	OpEquals           Op = "=="
	OpIn               Op = "in"
	OpNotIn            Op = "not-in"
	OpArrayContains    Op = "array-contains"
	OpArrayContainsAny Op = "array-contains-any"
	OpLessThan         Op = "<"
	OpGreaterThan      Op = ">"
	OpLessOrEqual      Op = "<="
	OpGreaterOrEqual   Op = ">="
	OpOrderBy          Op = "order-by"
	OpLimit            Op = "limit"
	OpLimitToLast      Op = "limit-to-last"
)

// IsFilter reports whether op narrows the result set.
func (op Op) IsFilter() bool {
	switch op {
	case OpEquals, OpIn, OpNotIn, OpArrayContains, OpArrayContainsAny,
		OpLessThan, OpGreaterThan, OpLessOrEqual, OpGreaterOrEqual:
		return true
	}
	return false
}

// Predicate is one filter, order or limit clause.
type Predicate struct {
	Op         Op
	Field      string
	Value      any
	Values     []any
	Descending bool
	N          int
}

// QuerySpec is an ordered sequence of predicates.
type QuerySpec []Predicate

// Validate checks every predicate and the limit clauses.
func (q QuerySpec) Validate() error {
	limits := 0
	for i, p := range q {
		switch p.Op {
		case OpEquals, OpArrayContains, OpLessThan, OpGreaterThan, OpLessOrEqual, OpGreaterOrEqual:
			if p.Field == "" {
				return Invalid("predicate %d (%s): empty field", i, p.Op)
			}
		case OpIn, OpNotIn, OpArrayContainsAny:
			if p.Field == "" {
				return Invalid("predicate %d (%s): empty field", i, p.Op)
			}
			if len(p.Values) == 0 {
				return Invalid("predicate %d (%s): empty value list", i, p.Op)
			}
		case OpOrderBy:
			if p.Field == "" {
				return Invalid("predicate %d (%s): empty field", i, p.Op)
			}
		case OpLimit, OpLimitToLast:
			if p.N <= 0 {
				return Invalid("predicate %d (%s): limit must be positive, got %d", i, p.Op, p.N)
			}
			limits++
		default:
			return Invalid("predicate %d: unknown op %q", i, p.Op)
		}
	}
	if limits > 1 {
		return Invalid("at most one limit clause, got %d", limits)
	}
	return nil
}

// Normalize returns a copy with filters first, then order clauses, then limits.
// Relative order within each group is preserved.
func (q QuerySpec) Normalize() QuerySpec {
	out := make(QuerySpec, 0, len(q))
	out = append(out, q.Filters()...)
	out = append(out, q.Orders()...)
	for _, p := range q {
		if p.Op == OpLimit || p.Op == OpLimitToLast {
			out = append(out, p)
		}
	}
	return out
}

// Filters returns the filter predicates in order.
func (q QuerySpec) Filters() QuerySpec {
	var out QuerySpec
	for _, p := range q {
		if p.Op.IsFilter() {
			out = append(out, p)
		}
	}
	return out
}

// Orders returns the order-by predicates in order.
func (q QuerySpec) Orders() QuerySpec {
	var out QuerySpec
	for _, p := range q {
		if p.Op == OpOrderBy {
			out = append(out, p)
		}
	}
	return out
}

// Limit returns the limit clause, if any. last is true for LimitToLast.
func (q QuerySpec) Limit() (n int, last bool, ok bool) {
	for _, p := range q {
		switch p.Op {
		case OpLimit:
			return p.N, false, true
		case OpLimitToLast:
			return p.N, true, true
		}
	}
	return 0, false, false
}

// WithoutLimit returns a copy with limit clauses removed.
func (q QuerySpec) WithoutLimit() QuerySpec {
	out := make(QuerySpec, 0, len(q))
	for _, p := range q {
		if p.Op != OpLimit && p.Op != OpLimitToLast {
			out = append(out, p)
		}
	}
	return out
}
