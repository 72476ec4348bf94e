package graph

import (
	"encoding/json"
	"math"

	"github.com/c360/flowmesh/envelope"
	"github.com/c360/flowmesh/errors"
)

// PropertyTree converts a node's decoded JSON property block into a
// runtime property tree. Integral JSON numbers become int64 values,
// everything else maps onto the matching value kind.
func PropertyTree(props map[string]any) (*envelope.Value, error) {
	root := envelope.Object()
	for k, raw := range props {
		v, err := valueFromJSON(raw)
		if err != nil {
			return nil, errors.Wrap(err, "graph", "PropertyTree", "property "+k)
		}
		if err := root.Set(k, v); err != nil {
			return nil, err
		}
	}
	return root, nil
}

func valueFromJSON(raw any) (*envelope.Value, error) {
	switch x := raw.(type) {
	case nil:
		return envelope.Null(), nil
	case bool:
		return envelope.Bool(x), nil
	case string:
		return envelope.String(x), nil
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return envelope.Int64(int64(x)), nil
		}
		return envelope.Float64(x), nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return envelope.Int64(n), nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, errors.WrapCode(errors.CodeInvalidArgument, err, "bad number "+x.String())
		}
		return envelope.Float64(f), nil
	case []any:
		arr := envelope.Array()
		for _, item := range x {
			v, err := valueFromJSON(item)
			if err != nil {
				return nil, err
			}
			if err := arr.Append(v); err != nil {
				return nil, err
			}
		}
		return arr, nil
	case map[string]any:
		obj := envelope.Object()
		for k, item := range x {
			v, err := valueFromJSON(item)
			if err != nil {
				return nil, err
			}
			if err := obj.Set(k, v); err != nil {
				return nil, err
			}
		}
		return obj, nil
	default:
		return nil, errors.Newf(errors.CodeInvalidArgument, "unsupported property type %T", raw)
	}
}
