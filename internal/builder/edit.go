package builder

import (
	"errors"
	"fmt"

	"github.com/myaccess/kiosk-console/internal/payload"
)

// ErrBadIndex is returned when an edit addresses a row that does not exist.
var ErrBadIndex = errors.New("builder: index out of range")

// SetKey renames a node.
func SetKey(n TreeNode, key string) TreeNode {
	n.Key = key
	return n
}

// SetType makes n a leaf of type t and resets its value to the empty value
// of that type. An empty t clears the type. Children are always dropped.
func SetType(n TreeNode, t payload.Type) TreeNode {
	n.Type = t
	n.Children = nil
	switch t {
	case "":
		n.Value = nil
	case payload.TypeDict:
		n.Value = map[string]any{}
	case payload.TypeList:
		n.Value = []any{}
	case payload.TypeBoolean:
		n.Value = "false"
	default:
		n.Value = ""
	}
	return n
}

// SetValue replaces the value of a leaf.
func SetValue(n TreeNode, v any) TreeNode {
	n.Value = v
	return n
}

// AddChild appends an empty row under n, turning it into a container.
func AddChild(n TreeNode) TreeNode {
	kids := make([]TreeNode, len(n.Children), len(n.Children)+1)
	copy(kids, n.Children)
	n.Children = append(kids, TreeNode{})
	n.Type = ""
	n.Value = nil
	return n
}

// UpdateChild replaces the child at i.
func UpdateChild(n TreeNode, i int, child TreeNode) (TreeNode, error) {
	if i < 0 || i >= len(n.Children) {
		return n, fmt.Errorf("%w: child %d of %q", ErrBadIndex, i, n.Key)
	}
	kids := make([]TreeNode, len(n.Children))
	copy(kids, n.Children)
	kids[i] = child
	n.Children = kids
	return n, nil
}

// RemoveChild deletes the child at i. Removing the last child leaves n
// without children, so it is neither container nor leaf until edited again.
func RemoveChild(n TreeNode, i int) (TreeNode, error) {
	if i < 0 || i >= len(n.Children) {
		return n, fmt.Errorf("%w: child %d of %q", ErrBadIndex, i, n.Key)
	}
	kids := make([]TreeNode, 0, len(n.Children)-1)
	kids = append(kids, n.Children[:i]...)
	kids = append(kids, n.Children[i+1:]...)
	if len(kids) == 0 {
		kids = nil
	}
	n.Children = kids
	return n, nil
}

// Op names a tree edit.
type Op string

const (
	OpAddRoot  Op = "add_root"
	OpSetKey   Op = "set_key"
	OpSetType  Op = "set_type"
	OpSetValue Op = "set_value"
	OpAddChild Op = "add_child"
	OpRemove   Op = "remove"
)

// Edit is one editor action addressed by the row indices leading from the
// root list down to the target node.
type Edit struct {
	Op    Op           `json:"op"`
	Path  []int        `json:"path"`
	Key   string       `json:"key,omitempty"`
	Type  payload.Type `json:"type,omitempty"`
	Value any          `json:"value,omitempty"`
}

// ErrUnknownOp is returned for an unsupported edit operation.
var ErrUnknownOp = errors.New("builder: unknown edit operation")

// Apply returns a new root list with e applied. The input is not modified.
func Apply(roots []TreeNode, e Edit) ([]TreeNode, error) {
	if e.Op == OpAddRoot {
		out := make([]TreeNode, len(roots), len(roots)+1)
		copy(out, roots)
		return append(out, TreeNode{}), nil
	}
	var edit func(TreeNode) (TreeNode, error)
	switch e.Op {
	case OpSetKey:
		edit = func(n TreeNode) (TreeNode, error) { return SetKey(n, e.Key), nil }
	case OpSetType:
		edit = func(n TreeNode) (TreeNode, error) { return SetType(n, e.Type), nil }
	case OpSetValue:
		edit = func(n TreeNode) (TreeNode, error) { return SetValue(n, e.Value), nil }
	case OpAddChild:
		edit = func(n TreeNode) (TreeNode, error) { return AddChild(n), nil }
	case OpRemove:
	default:
		return roots, fmt.Errorf("%w: %q", ErrUnknownOp, e.Op)
	}
	if len(e.Path) == 0 {
		return roots, fmt.Errorf("%w: empty path", ErrBadIndex)
	}
	if e.Op == OpRemove {
		return remove(roots, e.Path)
	}
	return update(roots, e.Path, edit)
}

func update(roots []TreeNode, path []int, edit func(TreeNode) (TreeNode, error)) ([]TreeNode, error) {
	i := path[0]
	if i < 0 || i >= len(roots) {
		return roots, fmt.Errorf("%w: row %d", ErrBadIndex, i)
	}
	target := roots[i]
	var err error
	if len(path) == 1 {
		target, err = edit(target)
	} else {
		var kids []TreeNode
		kids, err = update(target.Children, path[1:], edit)
		target.Children = kids
	}
	if err != nil {
		return roots, err
	}
	out := make([]TreeNode, len(roots))
	copy(out, roots)
	out[i] = target
	return out, nil
}

func remove(roots []TreeNode, path []int) ([]TreeNode, error) {
	if len(path) == 1 {
		holder := TreeNode{Children: roots}
		holder, err := RemoveChild(holder, path[0])
		if err != nil {
			return roots, err
		}
		if holder.Children == nil {
			return []TreeNode{}, nil
		}
		return holder.Children, nil
	}
	parent := path[:len(path)-1]
	last := path[len(path)-1]
	return update(roots, parent, func(n TreeNode) (TreeNode, error) { return RemoveChild(n, last) })
}
