package docsync

import (
	"errors"
	"testing"
	"time"

	"github.com/zoobzio/sentinel"
)

type testStruct struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestJSONCodec_Encode(t *testing.T) {
	codec := JSONCodec{}

	t.Run("struct", func(t *testing.T) {
		data, err := codec.Encode(testStruct{Name: "test", Value: 42})
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if string(data) != `{"name":"test","value":42}` {
			t.Errorf("unexpected output %s", data)
		}
	})

	t.Run("nil", func(t *testing.T) {
		data, err := codec.Encode(nil)
		if err != nil {
			t.Fatalf("Encode nil failed: %v", err)
		}
		if string(data) != "null" {
			t.Errorf("expected 'null', got %q", string(data))
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		if _, err := codec.Encode(make(chan int)); err == nil {
			t.Error("expected error for channel value")
		}
	})
}

func TestJSONCodec_Decode(t *testing.T) {
	codec := JSONCodec{}

	t.Run("invalid json", func(t *testing.T) {
		var v testStruct
		if err := codec.Decode([]byte(`{invalid}`), &v); err == nil {
			t.Error("expected error for invalid JSON")
		}
	})

	t.Run("empty", func(t *testing.T) {
		var v testStruct
		if err := codec.Decode([]byte(`{}`), &v); err != nil {
			t.Fatalf("Decode empty failed: %v", err)
		}
		if v.Name != "" || v.Value != 0 {
			t.Errorf("expected zero values, got %+v", v)
		}
	})
}

func TestJSONCodec_ContentType(t *testing.T) {
	if ct := (JSONCodec{}).ContentType(); ct != "application/json" {
		t.Errorf("got %q", ct)
	}
}

func TestToFields(t *testing.T) {
	t.Run("struct", func(t *testing.T) {
		fields, err := toFields(JSONCodec{}, testStruct{Name: "n", Value: 3})
		if err != nil {
			t.Fatalf("toFields: %v", err)
		}
		if fields["name"] != "n" || fields["value"] != int64(3) {
			t.Errorf("unexpected fields %v", fields)
		}
	})

	t.Run("nil payload yields empty map", func(t *testing.T) {
		var p *testStruct
		fields, err := toFields(JSONCodec{}, p)
		if err != nil {
			t.Fatalf("toFields: %v", err)
		}
		if fields == nil || len(fields) != 0 {
			t.Errorf("expected empty non-nil map, got %v", fields)
		}
	})

	t.Run("non object payload", func(t *testing.T) {
		if _, err := toFields(JSONCodec{}, 42); err == nil {
			t.Error("expected error for scalar payload")
		}
	})

	t.Run("large integer keeps precision", func(t *testing.T) {
		type wide struct {
			Big   int64   `json:"big"`
			Ratio float64 `json:"ratio"`
		}
		fields, err := toFields(JSONCodec{}, wide{Big: 1<<60 + 1, Ratio: 0.5})
		if err != nil {
			t.Fatalf("toFields: %v", err)
		}
		if got, ok := fields["big"].(int64); !ok || got != 1<<60+1 {
			t.Errorf("big: got %T %v", fields["big"], fields["big"])
		}
		if fields["ratio"] != 0.5 {
			t.Errorf("ratio: got %T %v", fields["ratio"], fields["ratio"])
		}
	})

	t.Run("codec without fields decoder", func(t *testing.T) {
		fields, err := toFields(plainCodec{}, testStruct{Name: "n", Value: 3})
		if err != nil {
			t.Fatalf("toFields: %v", err)
		}
		if fields["value"] != 3.0 {
			t.Errorf("value: got %T %v", fields["value"], fields["value"])
		}
	})
}

// plainCodec is JSON without the FieldsDecoder fast path.
type plainCodec struct{}

func (plainCodec) Encode(v any) ([]byte, error)    { return JSONCodec{}.Encode(v) }
func (plainCodec) Decode(data []byte, v any) error { return JSONCodec{}.Decode(data, v) }

type stamped struct {
	Name    string     `json:"name"`
	When    time.Time  `json:"when"`
	Updated *time.Time `json:"updated,omitempty"`
	Skipped time.Time  `json:"-"`
	Plain   time.Time
}

func TestNativeTimes(t *testing.T) {
	meta, err := sentinel.TryInspect[stamped]()
	if err != nil {
		t.Fatalf("TryInspect: %v", err)
	}
	times := timeFields(meta)
	if len(times) != 3 {
		t.Fatalf("expected when, updated and Plain, got %+v", times)
	}

	when := time.Date(2024, 3, 1, 12, 30, 0, 500, time.UTC)
	v := stamped{Name: "n", When: when, Updated: &when, Plain: when}
	fields, err := toFields(JSONCodec{}, v)
	if err != nil {
		t.Fatalf("toFields: %v", err)
	}
	if _, ok := fields["when"].(string); !ok {
		t.Fatalf("expected encoded string before swap, got %T", fields["when"])
	}
	nativeTimes(v, times, fields)
	for _, name := range []string{"when", "updated", "Plain"} {
		if got, ok := fields[name].(time.Time); !ok || !got.Equal(when) {
			t.Errorf("%s: got %T %v", name, fields[name], fields[name])
		}
	}
	if fields["name"] != "n" {
		t.Errorf("name: got %v", fields["name"])
	}

	var back stamped
	if err := fromFields(JSONCodec{}, fields, &back); err != nil {
		t.Fatalf("fromFields: %v", err)
	}
	if !back.When.Equal(when) || back.Updated == nil || !back.Updated.Equal(when) {
		t.Errorf("round trip: got %+v", back)
	}

	// Nil pointers stay absent and non-struct payloads are ignored.
	fields, _ = toFields(JSONCodec{}, stamped{When: when})
	nativeTimes(stamped{When: when}, times, fields)
	if _, ok := fields["updated"]; ok {
		t.Errorf("expected omitted nil time, got %v", fields["updated"])
	}
	m := map[string]any{"when": "x"}
	nativeTimes(m, times, m)
	if m["when"] != "x" {
		t.Errorf("map payload changed: %v", m)
	}
}

func TestFromFields(t *testing.T) {
	var v testStruct
	if err := fromFields(JSONCodec{}, map[string]any{"name": "x", "value": 7.0}, &v); err != nil {
		t.Fatalf("fromFields: %v", err)
	}
	if v.Name != "x" || v.Value != 7 {
		t.Errorf("got %+v", v)
	}

	if err := fromFields(JSONCodec{}, map[string]any{"value": "seven"}, &v); err == nil {
		t.Error("expected type mismatch error")
	}

	var m map[string]any
	if err := fromFields(JSONCodec{}, map[string]any{"big": int64(1<<60 + 1)}, &m); err != nil {
		t.Fatalf("fromFields map: %v", err)
	}
	if m["big"] != int64(1<<60+1) {
		t.Errorf("map big: got %T %v", m["big"], m["big"])
	}
}

// failingCodec fails every encode.
type failingCodec struct{}

var errCodec = errors.New("codec failure")

func (failingCodec) Encode(any) ([]byte, error) { return nil, errCodec }
func (failingCodec) Decode([]byte, any) error   { return errCodec }

func TestCollection_EncodeError(t *testing.T) {
	store := newMockStore()
	c, _ := NewCollection[testItem](store, "items", WithCodec[testItem](failingCodec{}))

	_, err := c.Create(t.Context(), Document[testItem]{Data: testItem{Name: "x"}})
	if !errors.Is(err, ErrEncode) {
		t.Errorf("expected ErrEncode, got %v", err)
	}
	if !errors.Is(err, errCodec) {
		t.Errorf("expected cause preserved, got %v", err)
	}
	if _, _, sets, _ := store.calls(); sets != 0 {
		t.Errorf("expected no writes, got %d", sets)
	}
}
