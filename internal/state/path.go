package state

import (
	"strings"

	"git.home.luguber.info/inful/harnesscache/internal/foundation/errors"
)

// SplitPath splits a dotted path into its keys. Empty paths and empty keys
// ("a..b", ".a") are rejected.
func SplitPath(path string) ([]string, error) {
	if path == "" {
		return nil, errors.ValidationError("empty state path").Build()
	}
	keys := strings.Split(path, ".")
	for _, k := range keys {
		if k == "" {
			return nil, errors.ValidationError("state path contains an empty key").
				WithContext("key_path", path).
				Build()
		}
	}
	return keys, nil
}

// Lookup walks keys through nested mappings. It reports whether the final
// key is present, regardless of the value's truthiness. Nothing is created.
func Lookup(root Value, keys []string) (Value, bool) {
	cur := root
	for _, k := range keys {
		next, ok := cur.Field(k)
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// Assign stores v at keys below root and returns the updated root. Missing
// intermediate mappings are created; a non-mapping value in the way is
// replaced by a new mapping. Mappings along the path are updated in place.
func Assign(root Value, keys []string, v Value) Value {
	if len(keys) == 0 {
		return v
	}
	if root.kind != KindMap {
		root = NewMap()
	}
	root.m[keys[0]] = Assign(root.m[keys[0]], keys[1:], v)
	return root
}
