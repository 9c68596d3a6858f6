package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotObject is returned when a document frame is not a JSON/msgpack object.
var ErrNotObject = errors.New("payload: document is not an object")

// EntryOf classifies a plain decoded value. This is the only place that
// tells typed nodes from folders: an object carrying both a string "type"
// key and a "value" key is a typed node, any other object is a folder.
func EntryOf(v any) Entry {
	switch t := v.(type) {
	case Entry:
		return t
	case Document:
		return Folder(t)
	case map[string]any:
		if node, ok := asNode(t); ok {
			return Entry{Kind: KindNode, Node: node}
		}
		return Folder(FromMap(t))
	case map[any]any:
		return EntryOf(stringKeys(t))
	case []any:
		items := make([]Entry, len(t))
		for i, item := range t {
			items[i] = EntryOf(item)
		}
		return Array(items...)
	case []map[string]any:
		items := make([]Entry, len(t))
		for i, item := range t {
			items[i] = EntryOf(item)
		}
		return Array(items...)
	}
	return Scalar(v)
}

func asNode(m map[string]any) (*Node, bool) {
	rawType, hasType := m["type"]
	rawValue, hasValue := m["value"]
	if !hasType || !hasValue {
		return nil, false
	}
	typ, ok := rawType.(string)
	if !ok {
		return nil, false
	}
	return &Node{Type: Type(typ), Value: conform(Type(typ), EntryOf(rawValue))}, true
}

// conform aligns integral numbers with the declared numeric type so that
// {"type":"float","value":2} and {"type":"float","value":2.0} decode alike.
func conform(t Type, e Entry) Entry {
	if e.Kind != KindScalar {
		return e
	}
	switch t {
	case TypeFloat:
		if i, ok := e.Scalar.(int64); ok {
			e.Scalar = float64(i)
		}
	case TypeInt:
		if f, ok := e.Scalar.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			e.Scalar = int64(f)
		}
	}
	return e
}

func stringKeys(m map[any]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[fmt.Sprint(k)] = v
	}
	return out
}

// FromMap converts a decoded object into a document.
func FromMap(m map[string]any) Document {
	doc := make(Document, len(m))
	for k, v := range m {
		doc[k] = EntryOf(v)
	}
	return doc
}

// ParseJSON decodes a JSON object into a document. Integral numbers become
// int64, everything else float64.
func ParseJSON(data []byte) (Document, error) {
	raw, err := decodeJSONValue(data)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return Document{}, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return FromMap(m), nil
}

// ParseMsgpack decodes a msgpack map into a document.
func ParseMsgpack(data []byte) (Document, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	raw, err := dec.DecodeInterface()
	if err != nil {
		return nil, fmt.Errorf("decoding msgpack document: %w", err)
	}
	switch m := raw.(type) {
	case map[string]any:
		return FromMap(m), nil
	case map[any]any:
		return FromMap(stringKeys(m)), nil
	}
	return nil, ErrNotObject
}

// MarshalMsgpack encodes a document as a msgpack map.
func MarshalMsgpack(doc Document) ([]byte, error) {
	return msgpack.Marshal(doc.Interface())
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (e Entry) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(e.Interface())
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (e *Entry) DecodeMsgpack(dec *msgpack.Decoder) error {
	raw, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	*e = EntryOf(raw)
	return nil
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return FromMap(d.Interface())
}

// Equal reports structural equality of two documents.
func Equal(a, b Document) bool {
	return entriesEqual(Folder(a), Folder(b))
}

func entriesEqual(a, b Entry) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindScalar:
		return a.Scalar == b.Scalar
	case KindArray:
		if len(a.Items) != len(b.Items) {
			return false
		}
		for i := range a.Items {
			if !entriesEqual(a.Items[i], b.Items[i]) {
				return false
			}
		}
		return true
	case KindNode:
		if a.Node == nil || b.Node == nil {
			return a.Node == b.Node
		}
		return a.Node.Type == b.Node.Type && entriesEqual(a.Node.Value, b.Node.Value)
	case KindFolder:
		if len(a.Folder) != len(b.Folder) {
			return false
		}
		for k, av := range a.Folder {
			bv, ok := b.Folder[k]
			if !ok || !entriesEqual(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

func decodeJSONValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding json document: %w", err)
	}
	return normalizeNumbers(raw), nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeNumbers(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalizeNumbers(val)
		}
		return t
	case json.Number:
		return normalizeScalar(t)
	}
	return v
}
