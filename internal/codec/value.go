// Package codec implements the tagged binary serialization CSH uses
// for every request and response payload.
//
// A Value is one of ten kinds, each identified by a single-byte tag.
// Every encoded value, at any nesting depth, is framed as
// tag(1) || length(8, little-endian unsigned) || payload. Decoding is
// total on well-formed input and returns a *Error on any framing
// violation.
package codec

import "fmt"

// Tag identifies the kind of an encoded Value.
type Tag byte

const (
	TagInt     Tag = 0
	TagFloat32 Tag = 1
	TagText    Tag = 2
	TagBytes   Tag = 3
	TagList    Tag = 4
	TagTuple   Tag = 5
	TagMapping Tag = 6
	TagNull    Tag = 7
	TagBool    Tag = 8
	TagSet     Tag = 9
)

func (t Tag) String() string {
	switch t {
	case TagInt:
		return "int"
	case TagFloat32:
		return "float32"
	case TagText:
		return "text"
	case TagBytes:
		return "bytes"
	case TagList:
		return "list"
	case TagTuple:
		return "tuple"
	case TagMapping:
		return "mapping"
	case TagNull:
		return "null"
	case TagBool:
		return "bool"
	case TagSet:
		return "set"
	default:
		return fmt.Sprintf("tag(%d)", byte(t))
	}
}

// Error reports a codec framing violation: unknown tag, truncated
// payload, a declared length exceeding the available buffer, or an
// element that itself failed to decode.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func errf(format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// List is the Go type for list values; set values also decode to a
// List. List, tuple and set share payload layout and differ only by
// tag; tuples have their own Go type, Tuple.
type List []any

// Tuple is wire-distinct from List: same payload layout (a
// concatenation of encoded elements) but tagged 5, not 4, per §4.1's
// table. Go has no native tuple type, so callers that need the tuple
// tag on the wire (e.g. the UTC 9-tuple timestamp field) construct a
// Tuple explicitly rather than a List.
type Tuple []any

// Mapping is a CSH mapping value: an ordered list of [key, value]
// pairs decoded and folded into a map. Later duplicate keys overwrite
// earlier ones, per §4.1.
type Mapping map[string]any

// Get returns m[key] and whether it was present.
func (m Mapping) Get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}
