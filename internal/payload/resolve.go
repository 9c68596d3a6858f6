package payload

import "strings"

// Wildcard as a field name selects the whole container addressed by the path.
const Wildcard = "*"

// SplitPath splits a slash-delimited path, dropping empty segments. Both ""
// and "/" address the document root.
func SplitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Resolve walks path from the root of doc and returns the entry selected by
// field. A false result means "no data", never an error.
//
// Each path segment descends into the matching key. When that key holds a
// typed node whose value is an object, the walk continues inside the value
// (one level of unwrap); otherwise it continues at the raw entry. With field
// set to Wildcard the container reached by the path is returned as-is;
// otherwise the field's entry is returned with its typed-node layer removed.
func Resolve(doc Document, path, field string) (Entry, bool) {
	if doc == nil {
		return Entry{}, false
	}
	current := Folder(doc)
	for _, seg := range SplitPath(path) {
		child, ok := current.Get(seg)
		if !ok {
			return Entry{}, false
		}
		if child.Kind == KindNode && child.Node != nil && child.Node.Value.Kind == KindFolder {
			current = child.Node.Value
		} else {
			current = child
		}
	}

	if field == Wildcard {
		return current, true
	}
	if field == "" {
		return Entry{}, false
	}
	entry, ok := current.Get(field)
	if !ok {
		return Entry{}, false
	}
	return entry.Unwrap(), true
}
