package firestore

import (
	"cloud.google.com/go/firestore"
	"github.com/zoobzio/docsync"
	"github.com/zoobzio/docsync/internal/shared"
)

// whereClause is a single Firestore where condition.
type whereClause struct {
	Path     string
	Operator string
	Value    any
}

// orderClause is a single Firestore order condition.
type orderClause struct {
	Path      string
	Direction firestore.Direction
}

// plan is a QuerySpec lowered to Firestore query builder calls.
type plan struct {
	Where      []whereClause
	OrderBy    []orderClause
	Limit      int
	ToLast     bool
	StartAfter []any
}

// translate lowers spec to a plan. Every plan orders by document id last so
// cursors are unambiguous; the id follows the direction of the last order.
func translate(spec docsync.QuerySpec, after *docsync.RawRecord) plan {
	var p plan
	for _, f := range spec.Filters() {
		value := f.Value
		switch f.Op {
		case docsync.OpIn, docsync.OpNotIn, docsync.OpArrayContainsAny:
			value = f.Values
		}
		p.Where = append(p.Where, whereClause{Path: f.Field, Operator: string(f.Op), Value: value})
	}

	last := firestore.Asc
	for _, o := range spec.Orders() {
		dir := firestore.Asc
		if o.Descending {
			dir = firestore.Desc
		}
		p.OrderBy = append(p.OrderBy, orderClause{Path: o.Field, Direction: dir})
		last = dir
	}
	p.OrderBy = append(p.OrderBy, orderClause{Path: firestore.DocumentID, Direction: last})

	if n, toLast, ok := spec.Limit(); ok {
		p.Limit, p.ToLast = n, toLast
	}

	if after != nil {
		for _, o := range spec.Orders() {
			v, _ := shared.Lookup(after.Fields, o.Field)
			p.StartAfter = append(p.StartAfter, v)
		}
		p.StartAfter = append(p.StartAfter, after.ID)
	}
	return p
}

func (p plan) apply(q firestore.Query) firestore.Query {
	for _, w := range p.Where {
		q = q.Where(w.Path, w.Operator, w.Value)
	}
	for _, o := range p.OrderBy {
		q = q.OrderBy(o.Path, o.Direction)
	}
	if len(p.StartAfter) > 0 {
		q = q.StartAfter(p.StartAfter...)
	}
	if p.Limit > 0 {
		if p.ToLast {
			q = q.LimitToLast(p.Limit)
		} else {
			q = q.Limit(p.Limit)
		}
	}
	return q
}
