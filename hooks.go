package docsync

import "context"

// BeforeSave runs on the payload before it is encoded and written.
// Mutations are persisted. An error aborts the write.
type BeforeSave interface {
	BeforeSave(ctx context.Context) error
}

// AfterSave runs once the write succeeded, with the id the document was
// stored under. For creates without an id this is the backend-assigned one.
type AfterSave interface {
	AfterSave(ctx context.Context, id string) error
}

// AfterLoad runs on every decoded payload. An error turns the record into a
// decode failure, isolated like any other.
type AfterLoad interface {
	AfterLoad(ctx context.Context, id string) error
}

// BeforeDelete runs on a zero T before the document id is removed.
// An error aborts the delete.
type BeforeDelete interface {
	BeforeDelete(ctx context.Context, id string) error
}

// AfterDelete runs on a zero T after the document id was removed.
type AfterDelete interface {
	AfterDelete(ctx context.Context, id string) error
}

// hook runs call when *T implements H.
func hook[H any, T any](value *T, call func(H) error) error {
	if h, ok := any(value).(H); ok {
		return call(h)
	}
	return nil
}

func callBeforeSave[T any](ctx context.Context, value *T) error {
	return hook(value, func(h BeforeSave) error { return h.BeforeSave(ctx) })
}

func callAfterSave[T any](ctx context.Context, id string, value *T) error {
	return hook(value, func(h AfterSave) error { return h.AfterSave(ctx, id) })
}

func callAfterLoad[T any](ctx context.Context, id string, value *T) error {
	return hook(value, func(h AfterLoad) error { return h.AfterLoad(ctx, id) })
}

func callBeforeDelete[T any](ctx context.Context, id string) error {
	var zero T
	return hook(&zero, func(h BeforeDelete) error { return h.BeforeDelete(ctx, id) })
}

func callAfterDelete[T any](ctx context.Context, id string) error {
	var zero T
	return hook(&zero, func(h AfterDelete) error { return h.AfterDelete(ctx, id) })
}
