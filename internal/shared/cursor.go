package shared //nolint:revive // internal shared package is intentional

// IDField names the document id inside boundary terms.
const IDField = "__id__"

// Term is one comparison of a start-after boundary.
type Term struct {
	Field string
	Op    Op
	Value any
}

// StartAfter expands "strictly after cursor" for backends without native cursors.
// The result is a disjunction of conjunctions over the order fields and the id:
//
//	(o1 > c1) OR (o1 = c1 AND o2 > c2) OR ... OR (o1 = c1 AND ... AND id > cid)
//
// Comparison direction follows each order clause; the id follows the last one.
func StartAfter(orders QuerySpec, cursor RawRecord) [][]Term {
	keys := make([]Term, 0, len(orders)+1)
	desc := false
	for _, o := range orders {
		v, _ := Lookup(cursor.Fields, o.Field)
		keys = append(keys, Term{Field: o.Field, Op: strictOp(o.Descending), Value: v})
		desc = o.Descending
	}
	keys = append(keys, Term{Field: IDField, Op: strictOp(desc), Value: cursor.ID})

	out := make([][]Term, 0, len(keys))
	for i := range keys {
		clause := make([]Term, 0, i+1)
		for _, eq := range keys[:i] {
			clause = append(clause, Term{Field: eq.Field, Op: OpEquals, Value: eq.Value})
		}
		clause = append(clause, keys[i])
		out = append(out, clause)
	}
	return out
}

func strictOp(desc bool) Op {
	if desc {
		return OpLessThan
	}
	return OpGreaterThan
}
