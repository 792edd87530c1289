package docsync

import (
	"testing"
)

// customCodec is a test codec implementation.
type customCodec struct {
	contentType string
}

func (customCodec) Encode(v any) ([]byte, error) {
	return JSONCodec{}.Encode(v)
}

func (customCodec) Decode(data []byte, v any) error {
	return JSONCodec{}.Decode(data, v)
}

func TestWithCodec(t *testing.T) {
	custom := customCodec{contentType: "application/custom"}
	c, _ := NewCollection[testItem](newMockStore(), "items", WithCodec[testItem](custom))

	if got, ok := c.codec.(customCodec); !ok {
		t.Error("expected customCodec")
	} else if got.contentType != "application/custom" {
		t.Errorf("content type: got %s", got.contentType)
	}
}

func TestWithCodec_NilCodec(t *testing.T) {
	c, _ := NewCollection[testItem](newMockStore(), "items", WithCodec[testItem](nil))
	if _, ok := c.codec.(JSONCodec); !ok {
		t.Error("expected JSONCodec fallback for nil codec")
	}
}

func TestWithCodec_Functional(t *testing.T) {
	c, _ := NewCollection[testItem](newMockStore(), "items", WithCodec[testItem](customCodec{}))
	ctx := t.Context()

	created, err := c.Create(ctx, Document[testItem]{ID: "opt", Data: testItem{Name: "options", Seq: 3}})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	got, err := c.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Data != created.Data {
		t.Errorf("got %+v, want %+v", got.Data, created.Data)
	}
}

func TestMultipleOptions(t *testing.T) {
	c, _ := NewCollection[testItem](newMockStore(), "items",
		WithCodec[testItem](customCodec{contentType: "first"}),
		WithCodec[testItem](customCodec{contentType: "second"}),
		WithDecodeStrategy[testItem](DecodeRaise),
	)

	// Last option wins
	if got := c.codec.(customCodec); got.contentType != "second" {
		t.Errorf("content type: got %s, want second", got.contentType)
	}
	if c.strategy != DecodeRaise {
		t.Error("expected DecodeRaise")
	}
}

func TestNewSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s := newSettings[testItem](nil)
		if s.errorBuffer != defaultErrorBuffer {
			t.Errorf("error buffer: got %d, want %d", s.errorBuffer, defaultErrorBuffer)
		}
		if s.comparator != nil {
			t.Error("expected no comparator")
		}
		if s.strategy != DecodeSkip {
			t.Error("expected DecodeSkip")
		}
	})

	t.Run("negative buffer clamps", func(t *testing.T) {
		s := newSettings([]Option[testItem]{WithErrorBuffer[testItem](-5)})
		if s.errorBuffer != 0 {
			t.Errorf("error buffer: got %d, want 0", s.errorBuffer)
		}
	})
}

func TestWriteOptions(t *testing.T) {
	s := newTestSync(t, newMockStore(), nil)

	w := s.writeSettings(nil)
	if w.ifNonExistent || w.sort != nil {
		t.Errorf("unexpected defaults %+v", w)
	}

	w = s.writeSettings([]WriteOption[testItem]{
		IfNonExistent[testItem](),
		WithSort(SortBy(func(i testItem) int { return i.Seq }, false)),
	})
	if !w.ifNonExistent || w.sort == nil {
		t.Error("expected both write options applied")
	}
}
