// Package shared contains canonical type definitions shared across docsync.
package shared //nolint:revive // internal shared package is intentional

import (
	"errors"
	"fmt"
)

// Semantic errors for document operations.
var (
	// ErrNotFound indicates the requested document or query target does not exist.
	ErrNotFound = errors.New("docsync: document not found")

	// ErrDecode indicates a raw record could not be decoded into the typed document.
	ErrDecode = errors.New("docsync: decode failure")

	// ErrEncode indicates a typed document could not be encoded into fields.
	ErrEncode = errors.New("docsync: encode failure")

	// ErrAlreadyExists indicates a document with the same id already exists.
	ErrAlreadyExists = errors.New("docsync: document already exists")

	// ErrPrecondition indicates an operation was attempted in a state that forbids it.
	ErrPrecondition = errors.New("docsync: precondition failed")

	// ErrTransport wraps any other failure reported by the backend.
	ErrTransport = errors.New("docsync: transport error")

	// ErrInvalidArgument indicates a malformed predicate, an empty id, or similar caller error.
	ErrInvalidArgument = errors.New("docsync: invalid argument")

	// ErrClosed indicates the session was used after Close.
	ErrClosed = errors.New("docsync: session closed")
)

// DecodeError reports a single raw record that failed to decode.
// It matches ErrDecode under errors.Is.
type DecodeError struct {
	Record RawRecord
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v: record %q: %v", ErrDecode, e.Record.ID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrDecode.
func (*DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// Transport wraps err in ErrTransport unless it already belongs to the taxonomy.
// The cause stays reachable through errors.Is and errors.As.
func Transport(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		ErrNotFound, ErrDecode, ErrEncode, ErrAlreadyExists, ErrPrecondition,
		ErrTransport, ErrInvalidArgument, ErrClosed,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// Invalid builds an ErrInvalidArgument with detail.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
