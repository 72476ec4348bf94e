package envelope

import (
	"bytes"
	"math"

	"github.com/c360/flowmesh/errors"
)

// ValueKind enumerates the types a property value can hold.
type ValueKind int

const (
	// KindNull is the explicit null value.
	KindNull ValueKind = iota
	// KindBool holds a boolean.
	KindBool
	// KindInt8 through KindInt64 hold signed integers of declared width.
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	// KindUint8 through KindUint64 hold unsigned integers of declared width.
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	// KindFloat32 and KindFloat64 hold floating point values.
	KindFloat32
	KindFloat64
	// KindString holds UTF-8 text.
	KindString
	// KindBytes holds an opaque byte buffer.
	KindBytes
	// KindPtr holds an in-process pointer. Ptr values never cross a
	// process boundary; serializing one fails with invalid_argument.
	KindPtr
	// KindArray holds an ordered list of values.
	KindArray
	// KindObject holds a map of UTF-8 keys to values.
	KindObject
)

// String returns the kind name used in logs and mismatch errors.
func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt8:
		return "int8"
	case KindInt16:
		return "int16"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindUint8:
		return "uint8"
	case KindUint16:
		return "uint16"
	case KindUint32:
		return "uint32"
	case KindUint64:
		return "uint64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindPtr:
		return "ptr"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "invalid"
	}
}

// Value is one node of a property tree. Values are constructed through
// the typed constructors and read through the typed getters; a getter
// applied to a value of another kind fails with type_mismatch.
type Value struct {
	kind ValueKind

	b   bool
	i   int64
	u   uint64
	f   float64
	s   string
	buf []byte
	ptr any
	arr []*Value
	obj map[string]*Value
}

// Null returns the explicit null value.
func Null() *Value { return &Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(v bool) *Value { return &Value{kind: KindBool, b: v} }

// Int8 returns a signed 8-bit integer value.
func Int8(v int8) *Value { return &Value{kind: KindInt8, i: int64(v)} }

// Int16 returns a signed 16-bit integer value.
func Int16(v int16) *Value { return &Value{kind: KindInt16, i: int64(v)} }

// Int32 returns a signed 32-bit integer value.
func Int32(v int32) *Value { return &Value{kind: KindInt32, i: int64(v)} }

// Int64 returns a signed 64-bit integer value.
func Int64(v int64) *Value { return &Value{kind: KindInt64, i: v} }

// Uint8 returns an unsigned 8-bit integer value.
func Uint8(v uint8) *Value { return &Value{kind: KindUint8, u: uint64(v)} }

// Uint16 returns an unsigned 16-bit integer value.
func Uint16(v uint16) *Value { return &Value{kind: KindUint16, u: uint64(v)} }

// Uint32 returns an unsigned 32-bit integer value.
func Uint32(v uint32) *Value { return &Value{kind: KindUint32, u: uint64(v)} }

// Uint64 returns an unsigned 64-bit integer value.
func Uint64(v uint64) *Value { return &Value{kind: KindUint64, u: v} }

// Float32 returns a 32-bit float value.
func Float32(v float32) *Value { return &Value{kind: KindFloat32, f: float64(v)} }

// Float64 returns a 64-bit float value.
func Float64(v float64) *Value { return &Value{kind: KindFloat64, f: v} }

// String returns a UTF-8 string value.
func String(v string) *Value { return &Value{kind: KindString, s: v} }

// Bytes returns a byte-buffer value. The buffer is not copied.
func Bytes(v []byte) *Value { return &Value{kind: KindBytes, buf: v} }

// Ptr returns an opaque in-process pointer value.
func Ptr(v any) *Value { return &Value{kind: KindPtr, ptr: v} }

// Array returns an array value over the given items.
func Array(items ...*Value) *Value { return &Value{kind: KindArray, arr: items} }

// Object returns an empty object value.
func Object() *Value { return &Value{kind: KindObject, obj: map[string]*Value{}} }

// Kind returns the kind of the value.
func (v *Value) Kind() ValueKind { return v.kind }

func (v *Value) mismatch(want string) error {
	return errors.Newf(errors.CodeTypeMismatch, "%s read on %s value", want, v.kind)
}

// AsBool reads a boolean value.
func (v *Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, v.mismatch("bool")
	}
	return v.b, nil
}

// AsInt reads any signed integer value widened to int64.
func (v *Value) AsInt() (int64, error) {
	switch v.kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return v.i, nil
	default:
		return 0, v.mismatch("int")
	}
}

// AsInt32 reads a signed integer value that fits in 32 bits.
func (v *Value) AsInt32() (int32, error) {
	i, err := v.AsInt()
	if err != nil {
		return 0, err
	}
	if i < math.MinInt32 || i > math.MaxInt32 {
		return 0, errors.Newf(errors.CodeTypeMismatch, "value %d overflows int32", i)
	}
	return int32(i), nil
}

// AsUint reads any unsigned integer value widened to uint64.
func (v *Value) AsUint() (uint64, error) {
	switch v.kind {
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return v.u, nil
	default:
		return 0, v.mismatch("uint")
	}
}

// AsFloat reads a float value widened to float64.
func (v *Value) AsFloat() (float64, error) {
	switch v.kind {
	case KindFloat32, KindFloat64:
		return v.f, nil
	default:
		return 0, v.mismatch("float")
	}
}

// AsString reads a string value.
func (v *Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", v.mismatch("string")
	}
	return v.s, nil
}

// AsBytes reads a byte-buffer value.
func (v *Value) AsBytes() ([]byte, error) {
	if v.kind != KindBytes {
		return nil, v.mismatch("bytes")
	}
	return v.buf, nil
}

// AsPtr reads an opaque pointer value.
func (v *Value) AsPtr() (any, error) {
	if v.kind != KindPtr {
		return nil, v.mismatch("ptr")
	}
	return v.ptr, nil
}

// AsArray reads the items of an array value.
func (v *Value) AsArray() ([]*Value, error) {
	if v.kind != KindArray {
		return nil, v.mismatch("array")
	}
	return v.arr, nil
}

// AsObject reads the entries of an object value.
func (v *Value) AsObject() (map[string]*Value, error) {
	if v.kind != KindObject {
		return nil, v.mismatch("object")
	}
	return v.obj, nil
}

// Append adds an item to an array value.
func (v *Value) Append(item *Value) error {
	if v.kind != KindArray {
		return v.mismatch("array")
	}
	v.arr = append(v.arr, item)
	return nil
}

// Set stores an entry in an object value.
func (v *Value) Set(key string, item *Value) error {
	if v.kind != KindObject {
		return v.mismatch("object")
	}
	v.obj[key] = item
	return nil
}

// Get reads an entry of an object value; the second result reports presence.
func (v *Value) Get(key string) (*Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	item, ok := v.obj[key]
	return item, ok
}

// ContainsPtr reports whether the tree rooted at v holds any opaque
// pointer value. Such trees cannot be serialized.
func (v *Value) ContainsPtr() bool {
	switch v.kind {
	case KindPtr:
		return true
	case KindArray:
		for _, item := range v.arr {
			if item.ContainsPtr() {
				return true
			}
		}
	case KindObject:
		for _, item := range v.obj {
			if item.ContainsPtr() {
				return true
			}
		}
	}
	return false
}

// DeepCopy returns a structurally independent copy of the tree. Opaque
// pointer values are copied by reference.
func (v *Value) DeepCopy() *Value {
	out := &Value{kind: v.kind, b: v.b, i: v.i, u: v.u, f: v.f, s: v.s, ptr: v.ptr}
	if v.buf != nil {
		out.buf = append([]byte(nil), v.buf...)
	}
	if v.arr != nil {
		out.arr = make([]*Value, len(v.arr))
		for i, item := range v.arr {
			out.arr[i] = item.DeepCopy()
		}
	}
	if v.obj != nil {
		out.obj = make(map[string]*Value, len(v.obj))
		for k, item := range v.obj {
			out.obj[k] = item.DeepCopy()
		}
	}
	return out
}

// Interface converts the tree into plain Go values (int64/uint64/
// float64/string/[]byte/[]any/map[string]any) for JSON interop. Opaque
// pointers do not convert.
func (v *Value) Interface() (any, error) {
	switch v.kind {
	case KindNull:
		return nil, nil
	case KindBool:
		return v.b, nil
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return v.i, nil
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return v.u, nil
	case KindFloat32, KindFloat64:
		return v.f, nil
	case KindString:
		return v.s, nil
	case KindBytes:
		return v.buf, nil
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			x, err := item.Interface()
			if err != nil {
				return nil, err
			}
			out[i] = x
		}
		return out, nil
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			x, err := item.Interface()
			if err != nil {
				return nil, err
			}
			out[k] = x
		}
		return out, nil
	default:
		return nil, errors.Newf(errors.CodeInvalidArgument, "%s value does not convert", v.kind)
	}
}

// EqualValue reports deep structural equality, including integer widths.
// Opaque pointers compare by identity.
func (v *Value) EqualValue(o *Value) bool {
	if v == nil || o == nil {
		return v == o
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return v.i == o.i
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return v.u == o.u
	case KindFloat32, KindFloat64:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindBytes:
		return bytes.Equal(v.buf, o.buf)
	case KindPtr:
		return v.ptr == o.ptr
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].EqualValue(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, item := range v.obj {
			other, ok := o.obj[k]
			if !ok || !item.EqualValue(other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
