package docsync

import (
	"cmp"
	"slices"
	"time"
)

// Comparator orders two documents, returning a negative number when a sorts
// before b, zero when they tie and a positive number otherwise.
type Comparator[T any] func(a, b Document[T]) int

// SortBy builds a Comparator from a typed key extraction.
func SortBy[T any, K cmp.Ordered](key func(T) K, descending bool) Comparator[T] {
	return func(a, b Document[T]) int {
		c := cmp.Compare(key(a.Data), key(b.Data))
		if descending {
			return -c
		}
		return c
	}
}

// SortByTime builds a Comparator from a timestamp extraction.
func SortByTime[T any](key func(T) time.Time, descending bool) Comparator[T] {
	return func(a, b Document[T]) int {
		c := key(a.Data).Compare(key(b.Data))
		if descending {
			return -c
		}
		return c
	}
}

// ThenBy chains a tie-breaker onto c.
func (c Comparator[T]) ThenBy(next Comparator[T]) Comparator[T] {
	return func(a, b Document[T]) int {
		if r := c(a, b); r != 0 {
			return r
		}
		return next(a, b)
	}
}

// Sort orders docs in place with c. Equal elements keep their relative order.
func Sort[T any](docs []Document[T], c Comparator[T]) {
	if c == nil {
		return
	}
	slices.SortStableFunc(docs, c)
}
