package docsync

// DecodeStrategy selects how a page reacts to records that fail to decode.
type DecodeStrategy int

const (
	// DecodeSkip drops undecodable records and reports each failure.
	// The rest of the page is still delivered.
	DecodeSkip DecodeStrategy = iota

	// DecodeRaise fails the whole page when any record fails to decode.
	DecodeRaise
)

// defaultErrorBuffer is the capacity of a session's error channel.
const defaultErrorBuffer = 16

type settings[T any] struct {
	codec       Codec
	strategy    DecodeStrategy
	comparator  Comparator[T]
	errorBuffer int
}

func newSettings[T any](opts []Option[T]) settings[T] {
	s := settings[T]{
		codec:       JSONCodec{},
		strategy:    DecodeSkip,
		errorBuffer: defaultErrorBuffer,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.codec == nil {
		s.codec = JSONCodec{}
	}
	if s.errorBuffer < 0 {
		s.errorBuffer = 0
	}
	return s
}

// Option configures a Collection or a Sync.
type Option[T any] func(*settings[T])

// WithCodec sets a custom codec.
// If not specified, JSONCodec is used.
func WithCodec[T any](c Codec) Option[T] {
	return func(s *settings[T]) {
		s.codec = c
	}
}

// WithDecodeStrategy sets how decode failures inside a page are handled.
// Defaults to DecodeSkip.
func WithDecodeStrategy[T any](strategy DecodeStrategy) Option[T] {
	return func(s *settings[T]) {
		s.strategy = strategy
	}
}

// WithComparator sets the ordering a Sync re-applies to its whole view after
// Create and Update. A per-call WithSort takes precedence.
func WithComparator[T any](c Comparator[T]) Option[T] {
	return func(s *settings[T]) {
		s.comparator = c
	}
}

// WithErrorBuffer sets the capacity of a Sync's error channel.
// Errors reported while the channel is full are dropped from the channel
// but still recorded as the last error.
func WithErrorBuffer[T any](n int) Option[T] {
	return func(s *settings[T]) {
		s.errorBuffer = n
	}
}

// WriteOption configures a single Sync write.
type WriteOption[T any] func(*writeSettings[T])

type writeSettings[T any] struct {
	sort          Comparator[T]
	ifNonExistent bool
}

// WithSort re-sorts the whole view with c after the write.
func WithSort[T any](c Comparator[T]) WriteOption[T] {
	return func(w *writeSettings[T]) {
		w.sort = c
	}
}

// IfNonExistent makes Create read the target id first and keep an existing
// remote document instead of overwriting it.
func IfNonExistent[T any]() WriteOption[T] {
	return func(w *writeSettings[T]) {
		w.ifNonExistent = true
	}
}
