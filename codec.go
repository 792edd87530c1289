package docsync

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/zoobzio/docsync/internal/shared"
	"github.com/zoobzio/sentinel"
)

// Codec defines encoding/decoding between typed payloads and bytes.
// Fields travel to and from backends as map[string]any, so a codec must
// round-trip both T and map[string]any.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// FieldsDecoder is implemented by codecs that decode straight into backend
// fields. toFields prefers it over Decode so integers survive as int64.
type FieldsDecoder interface {
	DecodeFields(data []byte) (map[string]any, error)
}

// JSONCodec implements Codec using JSON encoding.
type JSONCodec struct{}

// Encode serializes a value to JSON bytes.
func (JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode deserializes JSON bytes into a value.
func (JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// DecodeFields deserializes a JSON object, keeping integral numbers as int64.
func (JSONCodec) DecodeFields(data []byte) (map[string]any, error) {
	return shared.DecodeFields(data)
}

// ContentType returns the JSON MIME type.
func (JSONCodec) ContentType() string {
	return "application/json"
}

var (
	_ Codec         = JSONCodec{}
	_ FieldsDecoder = JSONCodec{}
)

// toFields converts a payload into backend fields via codec.
func toFields(codec Codec, v any) (map[string]any, error) {
	data, err := codec.Encode(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if fd, ok := codec.(FieldsDecoder); ok {
		fields, err = fd.DecodeFields(data)
	} else {
		err = codec.Decode(data, &fields)
	}
	if err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

// fromFields converts backend fields into a payload via codec.
func fromFields(codec Codec, fields map[string]any, v any) error {
	data, err := codec.Encode(fields)
	if err != nil {
		return err
	}
	if m, ok := v.(*map[string]any); ok {
		if fd, ok := codec.(FieldsDecoder); ok {
			*m, err = fd.DecodeFields(data)
			return err
		}
	}
	return codec.Decode(data, v)
}

var timeType = reflect.TypeOf(time.Time{})

// timeField is a top-level time.Time or *time.Time field of a payload.
type timeField struct {
	name  string
	index []int
}

// timeFields lists the time fields of a struct payload by their json name.
func timeFields(meta sentinel.Metadata) []timeField {
	var out []timeField
	for _, f := range meta.Fields {
		t := f.ReflectType
		if t == nil {
			continue
		}
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t != timeType {
			continue
		}
		name, _, _ := strings.Cut(f.Tags["json"], ",")
		switch name {
		case "-":
			continue
		case "":
			name = f.Name
		}
		out = append(out, timeField{name: name, index: f.Index})
	}
	return out
}

// nativeTimes swaps the encoded form of each time field in fields back to
// the time.Time value, so backends store timestamps natively.
func nativeTimes(v any, times []timeField, fields map[string]any) {
	if len(times) == 0 {
		return
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Struct {
		return
	}
	for _, tf := range times {
		if _, ok := fields[tf.name].(string); !ok {
			continue
		}
		fv, err := rv.FieldByIndexErr(tf.index)
		if err != nil {
			continue
		}
		switch t := fv.Interface().(type) {
		case time.Time:
			fields[tf.name] = t
		case *time.Time:
			if t != nil {
				fields[tf.name] = *t
			}
		}
	}
}
