// Package envelope defines the typed message values moved between
// extensions: commands, command results, data, audio frames and video
// frames, all sharing a common header of name, source, destinations,
// correlation id and a recursive property tree.
//
// # Ownership
//
// Envelopes are shared-owned through an explicit strong reference count.
// Clone takes a new reference to the same underlying envelope; Release
// drops one. A successful send transfers the caller's reference to the
// runtime and freezes the envelope: any later mutation through the old
// handle is a programming error, detected when DebugOwnershipChecks is
// enabled. On a failed send the caller keeps ownership.
//
// # Properties
//
// Property values form a typed tree (null, bool, integers of declared
// widths, floats, strings, byte buffers, opaque pointers, arrays and
// objects). Paths are dot-separated; SetProperty inserts intermediate
// objects. Reads are typed and fail with type_mismatch on a kind
// mismatch. All non-pointer values round-trip through the msgpack wire
// codec byte-for-byte; pointer values are in-process only.
package envelope
