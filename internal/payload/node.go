// Package payload models the device state document delivered over the
// device socket: a tree of string keys whose entries are either typed value
// nodes ({"type": ..., "value": ...}), untyped folders, or bare JSON values.
package payload

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Type is the declared type of a typed value node.
type Type string

const (
	TypeString  Type = "string"
	TypeInt     Type = "int"
	TypeFloat   Type = "float"
	TypeBoolean Type = "boolean"
	TypeDict    Type = "dict"
	TypeList    Type = "list"
)

// Types lists every supported node type in display order.
var Types = []Type{TypeString, TypeInt, TypeFloat, TypeBoolean, TypeDict, TypeList}

// Valid reports whether t is one of the supported node types.
func (t Type) Valid() bool {
	switch t {
	case TypeString, TypeInt, TypeFloat, TypeBoolean, TypeDict, TypeList:
		return true
	}
	return false
}

// Kind tags the shape of an Entry.
type Kind uint8

const (
	// KindScalar is a bare JSON primitive: string, int64, float64, bool or nil.
	KindScalar Kind = iota
	// KindArray is a bare JSON array.
	KindArray
	// KindNode is a typed value node.
	KindNode
	// KindFolder is an untyped nested mapping.
	KindFolder
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindArray:
		return "array"
	case KindNode:
		return "node"
	case KindFolder:
		return "folder"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Document maps keys to entries. A document is never mutated after it is
// published; updates replace it wholesale.
type Document map[string]Entry

// Node is a typed value node. Value holds a scalar for primitive types, a
// folder for dict and an array for list.
type Node struct {
	Type  Type  `json:"type" msgpack:"type"`
	Value Entry `json:"value" msgpack:"value"`
}

// Entry is one value inside a document. Exactly one of the fields matching
// Kind is meaningful.
type Entry struct {
	Kind   Kind
	Scalar any
	Items  []Entry
	Node   *Node
	Folder Document
}

// Scalar wraps a primitive value.
func Scalar(v any) Entry {
	return Entry{Kind: KindScalar, Scalar: normalizeScalar(v)}
}

// Array wraps a list of entries.
func Array(items ...Entry) Entry {
	if items == nil {
		items = []Entry{}
	}
	return Entry{Kind: KindArray, Items: items}
}

// Folder wraps a nested untyped document.
func Folder(doc Document) Entry {
	if doc == nil {
		doc = Document{}
	}
	return Entry{Kind: KindFolder, Folder: doc}
}

// Typed builds a typed value node entry. v may be any plain Go value; it is
// converted with EntryOf.
func Typed(t Type, v any) Entry {
	return Entry{Kind: KindNode, Node: &Node{Type: t, Value: conform(t, EntryOf(v))}}
}

// IsNull reports whether the entry is a JSON null.
func (e Entry) IsNull() bool {
	return e.Kind == KindScalar && e.Scalar == nil
}

// Unwrap strips one typed-node layer, returning the node's value. Other
// entries are returned unchanged.
func (e Entry) Unwrap() Entry {
	if e.Kind == KindNode && e.Node != nil {
		return e.Node.Value
	}
	return e
}

// Get looks up key when the entry is a folder. Null entries count as absent.
func (e Entry) Get(key string) (Entry, bool) {
	if e.Kind != KindFolder {
		return Entry{}, false
	}
	child, ok := e.Folder[key]
	if !ok || child.IsNull() {
		return Entry{}, false
	}
	return child, true
}

// Interface converts the entry back into plain Go values: map[string]any,
// []any and primitives. Typed nodes become {"type", "value"} maps.
func (e Entry) Interface() any {
	switch e.Kind {
	case KindScalar:
		return e.Scalar
	case KindArray:
		out := make([]any, len(e.Items))
		for i, item := range e.Items {
			out[i] = item.Interface()
		}
		return out
	case KindNode:
		if e.Node == nil {
			return nil
		}
		return map[string]any{"type": string(e.Node.Type), "value": e.Node.Value.Interface()}
	case KindFolder:
		return e.Folder.Interface()
	}
	return nil
}

// Interface converts the document into a plain map.
func (d Document) Interface() map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = v.Interface()
	}
	return out
}

// Float coerces a scalar entry to a number the way a dashboard renders it:
// numbers pass through, booleans map to 1/0, numeric strings are parsed.
func (e Entry) Float() (float64, bool) {
	e = e.Unwrap()
	if e.Kind != KindScalar {
		return 0, false
	}
	return ToFloat(e.Scalar)
}

// ToFloat coerces a plain value to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	case int:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// MarshalJSON writes the entry in wire shape.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Interface())
}

// UnmarshalJSON decodes any JSON value into an entry.
func (e *Entry) UnmarshalJSON(data []byte) error {
	raw, err := decodeJSONValue(data)
	if err != nil {
		return err
	}
	*e = EntryOf(raw)
	return nil
}

// UnmarshalJSON decodes a JSON object into a document.
func (d *Document) UnmarshalJSON(data []byte) error {
	doc, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*d = doc
	return nil
}

func normalizeScalar(v any) any {
	switch n := v.(type) {
	case nil, string, bool, int64, float64:
		return v
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		if n > math.MaxInt64 {
			return float64(n)
		}
		return int64(n)
	case float32:
		return float64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	}
	return fmt.Sprint(v)
}
