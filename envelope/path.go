package envelope

import (
	"strings"

	"github.com/c360/flowmesh/errors"
)

// splitPath validates and splits a dot-separated property path.
// Empty paths and empty segments are malformed.
func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "empty property path")
	}
	segs := strings.Split(path, ".")
	for _, s := range segs {
		if s == "" {
			return nil, errors.Newf(errors.CodeInvalidArgument, "malformed property path %q", path)
		}
	}
	return segs, nil
}

// GetPath walks the tree from root along a dot-separated path.
func GetPath(root *Value, path string) (*Value, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	cur := root
	for _, seg := range segs {
		if cur.Kind() != KindObject {
			return nil, errors.Newf(errors.CodeTypeMismatch,
				"property path %q traverses %s value", path, cur.Kind())
		}
		next, ok := cur.Get(seg)
		if !ok {
			return nil, errors.Newf(errors.CodeInvalidArgument, "no property at path %q", path)
		}
		cur = next
	}
	return cur, nil
}

// SetPath stores v at a dot-separated path under root, creating
// intermediate objects as needed. An existing non-object intermediate
// is a path error, not something to silently overwrite.
func SetPath(root *Value, path string, v *Value) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	cur := root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur.Get(seg)
		if !ok {
			next = Object()
			if err := cur.Set(seg, next); err != nil {
				return err
			}
		}
		if next.Kind() != KindObject {
			return errors.Newf(errors.CodeTypeMismatch,
				"property path %q traverses %s value", path, next.Kind())
		}
		cur = next
	}
	return cur.Set(segs[len(segs)-1], v)
}
