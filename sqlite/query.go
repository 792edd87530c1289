package sqlite

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zoobzio/docsync"
	"github.com/zoobzio/docsync/internal/shared"
)

// json_type() names per value class.
var (
	numberTypes = []string{"integer", "real"}
	textTypes   = []string{"text"}
	boolTypes   = []string{"true", "false"}
)

// where accumulates SQL conditions and their bound arguments.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return "1"
	}
	return strings.Join(w.conds, " AND ")
}

// jsonPath renders a dotted field as a quoted SQLite JSON path.
func jsonPath(field string) (string, error) {
	if field == "" || strings.ContainsAny(field, `"\`) {
		return "", shared.Invalid("unsupported field name %q", field)
	}
	parts := strings.Split(field, ".")
	var b strings.Builder
	b.WriteString("$")
	for _, p := range parts {
		if p == "" {
			return "", shared.Invalid("unsupported field name %q", field)
		}
		b.WriteString(`."`)
		b.WriteString(p)
		b.WriteString(`"`)
	}
	return b.String(), nil
}

// operand is something a condition compares: a JSON path inside body,
// an element produced by json_each, or the id column.
type operand struct {
	value string
	typ   string
	args  []any
}

func fieldOperand(field string) (operand, error) {
	if field == shared.IDField {
		return operand{value: "id"}, nil
	}
	path, err := jsonPath(field)
	if err != nil {
		return operand{}, err
	}
	return operand{
		value: "json_extract(body, ?)",
		typ:   "json_type(body, ?)",
		args:  []any{path},
	}, nil
}

var elementOperand = operand{value: "je.value", typ: "je.type"}

// bindValue converts a predicate value to an SQLite parameter and the
// json_type() names it may match.
func bindValue(v any) (any, []string, error) {
	switch t := v.(type) {
	case string:
		return t, textTypes, nil
	case bool:
		if t {
			return 1, boolTypes, nil
		}
		return 0, boolTypes, nil
	case time.Time:
		return t.Format(time.RFC3339Nano), textTypes, nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, nil, shared.Invalid("bad number %q", t)
		}
		return f, numberTypes, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return t, numberTypes, nil
	}
	return nil, nil, shared.Invalid("unsupported comparison value %T", v)
}

// compare renders "operand op value" with a type-class guard so values of
// different classes never compare.
func compare(o operand, op docsync.Op, v any) (string, []any, error) {
	if o.typ == "" {
		// id column: plain text comparison
		sqlOp, err := sqlOperator(op)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s %s ?", o.value, sqlOp), []any{v}, nil
	}

	if v == nil {
		switch op {
		case docsync.OpEquals, docsync.OpLessOrEqual:
			return fmt.Sprintf("%s = 'null'", o.typ), o.args, nil
		case docsync.OpGreaterOrEqual:
			return fmt.Sprintf("%s IS NOT NULL", o.typ), o.args, nil
		case docsync.OpGreaterThan:
			return fmt.Sprintf("(%s IS NOT NULL AND %s != 'null')", o.typ, o.typ), append(append([]any{}, o.args...), o.args...), nil
		case docsync.OpLessThan:
			return "0", nil, nil
		}
		return "", nil, shared.Invalid("unsupported operator %s", op)
	}

	bound, types, err := bindValue(v)
	if err != nil {
		return "", nil, err
	}
	sqlOp, err := sqlOperator(op)
	if err != nil {
		return "", nil, err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(types)), ", ")
	cond := fmt.Sprintf("(%s IN (%s) AND %s %s ?)", o.typ, placeholders, o.value, sqlOp)
	args := make([]any, 0, len(o.args)*2+len(types)+1)
	args = append(args, o.args...)
	for _, t := range types {
		args = append(args, t)
	}
	args = append(args, o.args...)
	args = append(args, bound)
	return cond, args, nil
}

func sqlOperator(op docsync.Op) (string, error) {
	switch op {
	case docsync.OpEquals:
		return "=", nil
	case docsync.OpLessThan:
		return "<", nil
	case docsync.OpGreaterThan:
		return ">", nil
	case docsync.OpLessOrEqual:
		return "<=", nil
	case docsync.OpGreaterOrEqual:
		return ">=", nil
	}
	return "", shared.Invalid("unsupported operator %s", op)
}

// anyEqual renders "operand equals one of values".
func anyEqual(o operand, values []any) (string, []any, error) {
	conds := make([]string, 0, len(values))
	var args []any
	for _, v := range values {
		c, a, err := compare(o, docsync.OpEquals, v)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, c)
		args = append(args, a...)
	}
	return "(" + strings.Join(conds, " OR ") + ")", args, nil
}

// filter renders one filter predicate.
func filter(p docsync.Predicate) (string, []any, error) {
	o, err := fieldOperand(p.Field)
	if err != nil {
		return "", nil, err
	}
	switch p.Op {
	case docsync.OpEquals, docsync.OpLessThan, docsync.OpGreaterThan, docsync.OpLessOrEqual, docsync.OpGreaterOrEqual:
		return compare(o, p.Op, p.Value)
	case docsync.OpIn:
		return anyEqual(o, p.Values)
	case docsync.OpNotIn:
		c, a, err := anyEqual(o, p.Values)
		if err != nil {
			return "", nil, err
		}
		cond := fmt.Sprintf("(%s IS NOT NULL AND %s != 'null' AND NOT %s)", o.typ, o.typ, c)
		args := append(append(append([]any{}, o.args...), o.args...), a...)
		return cond, args, nil
	case docsync.OpArrayContains, docsync.OpArrayContainsAny:
		values := p.Values
		if p.Op == docsync.OpArrayContains {
			values = []any{p.Value}
		}
		c, a, err := anyEqual(elementOperand, values)
		if err != nil {
			return "", nil, err
		}
		cond := fmt.Sprintf("(%s = 'array' AND EXISTS (SELECT 1 FROM json_each(body, ?) AS je WHERE %s))", o.typ, c)
		args := append(append(append([]any{}, o.args...), o.args...), a...)
		return cond, args, nil
	}
	return "", nil, shared.Invalid("unsupported filter %s", p.Op)
}

// startAfter renders the keyset condition that resumes after cursor.
func startAfter(orders docsync.QuerySpec, cursor docsync.RawRecord) (string, []any, error) {
	clauses := shared.StartAfter(orders, cursor)
	ors := make([]string, 0, len(clauses))
	var args []any
	for _, clause := range clauses {
		ands := make([]string, 0, len(clause))
		for _, term := range clause {
			o, err := fieldOperand(term.Field)
			if err != nil {
				return "", nil, err
			}
			c, a, err := compare(o, term.Op, term.Value)
			if err != nil {
				return "", nil, err
			}
			ands = append(ands, c)
			args = append(args, a...)
		}
		ors = append(ors, "("+strings.Join(ands, " AND ")+")")
	}
	return "(" + strings.Join(ors, " OR ") + ")", args, nil
}

// selectQuery renders the full statement for spec over collection.
// reversed is true when the caller must reverse the rows (limit to last).
func selectQuery(table, collection string, spec docsync.QuerySpec, after *docsync.RawRecord) (query string, args []any, reversed bool, err error) {
	w := &where{}
	w.add("collection = ?", collection)

	for _, p := range spec.Filters() {
		c, a, err := filter(p)
		if err != nil {
			return "", nil, false, err
		}
		w.add(c, a...)
	}

	orders := spec.Orders()
	n, last, limited := spec.Limit()

	orderBy := make([]string, 0, len(orders)+1)
	var orderArgs []any
	desc := false
	for _, o := range orders {
		path, err := jsonPath(o.Field)
		if err != nil {
			return "", nil, false, err
		}
		w.add("json_type(body, ?) IS NOT NULL", path)
		dir := o.Descending != (limited && last)
		orderBy = append(orderBy, "json_extract(body, ?) "+direction(dir))
		orderArgs = append(orderArgs, path)
		desc = o.Descending
	}
	orderBy = append(orderBy, "id "+direction(desc != (limited && last)))

	if after != nil {
		c, a, err := startAfter(orders, *after)
		if err != nil {
			return "", nil, false, err
		}
		w.add(c, a...)
	}

	query = fmt.Sprintf("SELECT id, body FROM %s WHERE %s ORDER BY %s", table, w.sql(), strings.Join(orderBy, ", "))
	args = append(w.args, orderArgs...)
	if limited {
		query += " LIMIT ?"
		args = append(args, n)
	}
	return query, args, limited && last, nil
}

func direction(desc bool) string {
	if desc {
		return "DESC"
	}
	return "ASC"
}
