// Package builder converts between payload documents and the editable tree
// the payload editor works on.
package builder

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/myaccess/kiosk-console/internal/models"
	"github.com/myaccess/kiosk-console/internal/payload"
)

// TreeNode is one row of the payload editor. A node is either a typed leaf
// (Type set, Children nil) or a container (Type empty, Children non-nil);
// the edit functions keep the two exclusive. Leaves of type list and dict
// carry the raw decoded value, all other leaves carry text.
type TreeNode struct {
	Key      string       `json:"key"`
	Type     payload.Type `json:"type,omitempty"`
	Value    any          `json:"value,omitempty"`
	Children []TreeNode   `json:"children"`
}

// IsContainer reports whether the node holds children.
func (n TreeNode) IsContainer() bool { return n.Children != nil }

// DocumentToTree builds editor rows for doc, keys in sorted order.
func DocumentToTree(doc payload.Document) []TreeNode {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	nodes := make([]TreeNode, 0, len(keys))
	for _, k := range keys {
		nodes = append(nodes, entryToNode(k, doc[k]))
	}
	return nodes
}

func entryToNode(key string, e payload.Entry) TreeNode {
	switch e.Kind {
	case payload.KindNode:
		if e.Node == nil {
			break
		}
		n := TreeNode{Key: key, Type: e.Node.Type}
		switch e.Node.Type {
		case payload.TypeList:
			n.Value = listValue(e.Node.Value.Interface())
		case payload.TypeDict:
			n.Value = dictValue(e.Node.Value.Interface())
		default:
			n.Value = textOf(e.Node.Value.Interface())
		}
		return n
	case payload.KindFolder:
		return TreeNode{Key: key, Children: DocumentToTree(e.Folder)}
	}
	return TreeNode{Key: key}
}

// TreeToDocument builds the document the editor rows describe. Rows without
// a key are skipped, containers become nested documents (also when empty),
// and leaves need a type and a non-empty value. Anything else is half
// configured and left out.
func TreeToDocument(nodes []TreeNode) payload.Document {
	doc := payload.Document{}
	for _, n := range nodes {
		if n.Key == "" {
			continue
		}
		if n.Children != nil {
			doc[n.Key] = payload.Folder(TreeToDocument(n.Children))
			continue
		}
		switch n.Type {
		case "":
			continue
		case payload.TypeList:
			doc[n.Key] = payload.Typed(payload.TypeList, listValue(n.Value))
		case payload.TypeDict:
			doc[n.Key] = payload.Typed(payload.TypeDict, dictValue(n.Value))
		default:
			if isEmpty(n.Value) {
				continue
			}
			doc[n.Key] = payload.Typed(n.Type, parseValue(n.Value, n.Type))
		}
	}
	return doc
}

// Body wraps a built document as a device create/update request body. The
// payload is omitted when the tree yields nothing.
func Body(nodes []TreeNode) models.DevicePayloadBody {
	doc := TreeToDocument(nodes)
	if len(doc) == 0 {
		return models.DevicePayloadBody{}
	}
	return models.DevicePayloadBody{Payload: doc}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	}
	return false
}

func listValue(v any) []any {
	if l, ok := v.([]any); ok {
		return l
	}
	return []any{}
}

func dictValue(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

var (
	intPrefix   = regexp.MustCompile(`^[+-]?\d+`)
	floatPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
)

// parseValue converts editor text to the declared type. Numbers take the
// longest numeric prefix and fall back to 0; booleans are true only for the
// text "true".
func parseValue(v any, t payload.Type) any {
	s := strings.TrimSpace(textOf(v))
	switch t {
	case payload.TypeInt:
		if m := intPrefix.FindString(s); m != "" {
			if i, err := strconv.ParseInt(m, 10, 64); err == nil {
				return i
			}
		}
		return int64(0)
	case payload.TypeFloat:
		if m := floatPrefix.FindString(s); m != "" {
			if f, err := strconv.ParseFloat(m, 64); err == nil {
				return f
			}
		}
		return 0.0
	case payload.TypeBoolean:
		return textOf(v) == "true"
	}
	return textOf(v)
}

func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	text, err := marshalText(v)
	if err != nil {
		return ""
	}
	return text
}
