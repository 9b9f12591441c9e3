package payload

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

var ErrNotObject = errors.New("notification body is not a JSON object")

// Fields is a decoded JSON object. Numbers are kept as json.Number so their literal
// text survives for signature checks. A nil Fields behaves as an empty object.
type Fields map[string]any

// Notification is an inbound provider callback: the raw body plus its decoded top-level object.
type Notification struct {
	Fields
	raw []byte
}

func Parse(body []byte) (*Notification, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, errors.Wrap(err, "decode notification")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("decode notification: trailing data after JSON value")
	}

	fields, ok := value.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}

	return &Notification{Fields: fields, raw: body}, nil
}

// Raw returns the body exactly as it was received.
func (n *Notification) Raw() []byte {
	return n.raw
}

// String returns the canonical text of a scalar field.
func (f Fields) String(key string) (string, bool) {
	return Scalar(f[key])
}

// Optional is String for nullable columns: absent, null and nested values yield nil.
func (f Fields) Optional(key string) *string {
	s, ok := f.String(key)
	if !ok {
		return nil
	}
	return &s
}

func (f Fields) Int64(key string) (int64, bool) {
	switch v := f[key].(type) {
	case json.Number:
		i, err := v.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// Object returns a nested object, or nil when key is absent or holds anything else.
func (f Fields) Object(key string) Fields {
	if m, ok := f[key].(map[string]any); ok {
		return m
	}
	return nil
}

// Scalar renders a decoded JSON scalar: strings verbatim, numbers as their literal text,
// booleans as "true"/"false". Null, objects and arrays are not scalars.
func Scalar(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}
