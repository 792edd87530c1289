package docsync

// Document pairs a decoded payload with its backend id.
// An empty ID means the document has not been persisted yet.
type Document[T any] struct {
	ID   string `json:"id"`
	Data T      `json:"data"`
}

// Snapshot is one emission of a listened query.
// Documents replaces whatever the previous snapshot held.
type Snapshot[T any] struct {
	Documents []Document[T]
	Failures  []*DecodeError
	Err       error
}

// Page is the result of one paginated query.
// Raw holds every record the backend returned, including those that
// failed to decode; Documents holds the successfully decoded ones.
type Page[T any] struct {
	Documents []Document[T]
	Raw       []RawRecord
	Failures  []*DecodeError
}

// Last returns the last raw record of the page, or nil when empty.
func (p *Page[T]) Last() *RawRecord {
	if len(p.Raw) == 0 {
		return nil
	}
	last := p.Raw[len(p.Raw)-1]
	return &last
}
