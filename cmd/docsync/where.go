package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zoobzio/docsync"
)

// Word operators are matched before symbols so that values may contain
// comparison characters.
var wordOps = []struct {
	token string
	build func(field string, values []any) docsync.Predicate
	list  bool
}{
	{" contains-any ", func(f string, v []any) docsync.Predicate { return docsync.ArrayContainsAny(f, v...) }, true},
	{" not-in ", func(f string, v []any) docsync.Predicate { return docsync.NotIn(f, v...) }, true},
	{" contains ", func(f string, v []any) docsync.Predicate { return docsync.ArrayContains(f, v[0]) }, false},
	{" in ", func(f string, v []any) docsync.Predicate { return docsync.In(f, v...) }, true},
}

var symbolOps = []struct {
	token string
	build func(field string, value any) docsync.Predicate
}{
	{"==", docsync.Equals},
	{"<=", docsync.LessOrEqual},
	{">=", docsync.GreaterOrEqual},
	{"<", docsync.LessThan},
	{">", docsync.GreaterThan},
}

// parseWhere turns a filter expression into a predicate.
func parseWhere(expr string) (docsync.Predicate, error) {
	for _, op := range wordOps {
		field, rest, ok := strings.Cut(expr, op.token)
		if !ok {
			continue
		}
		field, rest = strings.TrimSpace(field), strings.TrimSpace(rest)
		if field == "" || rest == "" {
			return docsync.Predicate{}, fmt.Errorf("where %q: missing field or value", expr)
		}
		var values []any
		if op.list {
			for _, part := range strings.Split(rest, ",") {
				values = append(values, parseValue(strings.TrimSpace(part)))
			}
		} else {
			values = []any{parseValue(rest)}
		}
		return op.build(field, values), nil
	}

	for _, op := range symbolOps {
		field, rest, ok := strings.Cut(expr, op.token)
		if !ok {
			continue
		}
		field, rest = strings.TrimSpace(field), strings.TrimSpace(rest)
		if field == "" || rest == "" {
			return docsync.Predicate{}, fmt.Errorf("where %q: missing field or value", expr)
		}
		return op.build(field, parseValue(rest)), nil
	}
	return docsync.Predicate{}, fmt.Errorf("where %q: no operator", expr)
}

func parseWheres(exprs []string) ([]docsync.Predicate, error) {
	out := make([]docsync.Predicate, 0, len(exprs))
	for _, expr := range exprs {
		p, err := parseWhere(expr)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// parseValue reads JSON literals (numbers, booleans, null, quoted strings)
// and falls back to the raw text.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}
