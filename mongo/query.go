package mongo

import (
	"github.com/zoobzio/docsync"
	"github.com/zoobzio/docsync/internal/shared"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// field maps a docsync field path to its MongoDB name.
func field(path string) string {
	if path == shared.IDField {
		return "_id"
	}
	return path
}

// condition renders one comparison. Null equality uses $type so that a
// missing field does not match.
func condition(op docsync.Op, value any) bson.M {
	switch op {
	case docsync.OpEquals:
		if value == nil {
			return bson.M{"$type": "null"}
		}
		return bson.M{"$eq": value}
	case docsync.OpLessThan:
		return bson.M{"$lt": value}
	case docsync.OpGreaterThan:
		return bson.M{"$gt": value}
	case docsync.OpLessOrEqual:
		return bson.M{"$lte": value}
	case docsync.OpGreaterOrEqual:
		return bson.M{"$gte": value}
	}
	return nil
}

// predicate renders one filter predicate.
func predicate(p docsync.Predicate) (bson.M, error) {
	switch p.Op {
	case docsync.OpEquals, docsync.OpLessThan, docsync.OpGreaterThan, docsync.OpLessOrEqual, docsync.OpGreaterOrEqual:
		return bson.M{field(p.Field): condition(p.Op, p.Value)}, nil
	case docsync.OpIn:
		return bson.M{field(p.Field): bson.M{"$in": bson.A(p.Values)}}, nil
	case docsync.OpNotIn:
		return bson.M{field(p.Field): bson.M{"$exists": true, "$ne": nil, "$nin": bson.A(p.Values)}}, nil
	case docsync.OpArrayContains:
		return bson.M{field(p.Field): bson.M{"$elemMatch": bson.M{"$eq": p.Value}}}, nil
	case docsync.OpArrayContainsAny:
		return bson.M{field(p.Field): bson.M{"$elemMatch": bson.M{"$in": bson.A(p.Values)}}}, nil
	}
	return nil, shared.Invalid("unsupported filter %s", p.Op)
}

// request is a QuerySpec lowered to a find call.
type request struct {
	Filter   bson.D
	Sort     bson.D
	Limit    int64
	Reversed bool
}

// translate lowers spec to a find request. Results are ordered by _id last,
// in the direction of the last order clause. Limit to last flips the sort;
// the caller reverses the rows when Reversed is set.
func translate(spec docsync.QuerySpec, after *docsync.RawRecord) (request, error) {
	var and bson.A
	for _, p := range spec.Filters() {
		m, err := predicate(p)
		if err != nil {
			return request{}, err
		}
		and = append(and, m)
	}

	n, last, limited := spec.Limit()
	flip := limited && last

	var req request
	desc := false
	for _, o := range spec.Orders() {
		and = append(and, bson.M{field(o.Field): bson.M{"$exists": true}})
		req.Sort = append(req.Sort, bson.E{Key: field(o.Field), Value: direction(o.Descending != flip)})
		desc = o.Descending
	}
	req.Sort = append(req.Sort, bson.E{Key: "_id", Value: direction(desc != flip)})

	if after != nil {
		var or bson.A
		for _, clause := range shared.StartAfter(spec.Orders(), *after) {
			var terms bson.A
			for _, t := range clause {
				terms = append(terms, bson.M{field(t.Field): condition(t.Op, t.Value)})
			}
			or = append(or, bson.M{"$and": terms})
		}
		and = append(and, bson.M{"$or": or})
	}

	if len(and) > 0 {
		req.Filter = bson.D{{Key: "$and", Value: and}}
	} else {
		req.Filter = bson.D{}
	}
	if limited {
		req.Limit = int64(n)
		req.Reversed = flip
	}
	return req, nil
}

func direction(desc bool) int {
	if desc {
		return -1
	}
	return 1
}
