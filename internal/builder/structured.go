package builder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/myaccess/kiosk-console/internal/payload"
)

// ErrInvalidStructuredValue is returned when list or dict text does not
// parse into the declared shape.
var ErrInvalidStructuredValue = errors.New("builder: invalid structured value")

// ParseStructured strictly parses text as the value of a list or dict leaf:
// a JSON array for list, a JSON object for dict.
func ParseStructured(t payload.Type, text string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStructuredValue, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrInvalidStructuredValue)
	}
	v = payload.EntryOf(numbers(v)).Interface()

	switch t {
	case payload.TypeList:
		if _, ok := v.([]any); !ok {
			return nil, fmt.Errorf("%w: want a list", ErrInvalidStructuredValue)
		}
	case payload.TypeDict:
		if _, ok := v.(map[string]any); !ok {
			return nil, fmt.Errorf("%w: want an object", ErrInvalidStructuredValue)
		}
	default:
		return nil, fmt.Errorf("%w: %q is not a structured type", ErrInvalidStructuredValue, t)
	}
	return v, nil
}

// numbers turns json.Number values into int64 or float64.
func numbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = numbers(t[i])
		}
	case map[string]any:
		for k := range t {
			t[k] = numbers(t[k])
		}
	}
	return v
}

// StructuredInput is the text box of a list or dict leaf. The text may be
// edited freely; on blur it either becomes the new value or snaps back to
// the last valid one.
type StructuredInput struct {
	typ   payload.Type
	value any
	text  string
}

// NewStructuredInput starts an input showing value.
func NewStructuredInput(t payload.Type, value any) *StructuredInput {
	s := &StructuredInput{typ: t}
	s.Sync(value)
	return s
}

// Sync replaces the value from outside, for example after a document update.
func (s *StructuredInput) Sync(value any) {
	switch s.typ {
	case payload.TypeList:
		value = listValue(value)
	case payload.TypeDict:
		value = dictValue(value)
	}
	s.value = value
	s.text, _ = marshalText(value)
}

// SetText records a keystroke.
func (s *StructuredInput) SetText(text string) { s.text = text }

// Text returns the text currently shown.
func (s *StructuredInput) Text() string { return s.text }

// Value returns the last accepted value.
func (s *StructuredInput) Value() any { return s.value }

// Blur commits the text. Invalid text is replaced by the last valid value
// and ErrInvalidStructuredValue is returned; the value is left untouched.
func (s *StructuredInput) Blur() (any, error) {
	v, err := ParseStructured(s.typ, s.text)
	if err != nil {
		s.text, _ = marshalText(s.value)
		return s.value, err
	}
	s.value = v
	return v, nil
}

func marshalText(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
