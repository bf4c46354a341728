// Package prefs implements layered preference scopes: a Default scope
// seeded by initializers, a persisted Global scope, and per-entity scopes
// that fall back to Global.
package prefs

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/aretw0/owlet/pkg/core"
)

// Type tags how the encoded strings of a Value are parsed.
type Type int

const (
	Boolean Type = iota + 1
	Integer
	Long
	String
	BooleanArray
	IntegerArray
	LongArray
	StringArray
)

var typeNames = map[Type]string{
	Boolean:      "boolean",
	Integer:      "integer",
	Long:         "long",
	String:       "string",
	BooleanArray: "boolean[]",
	IntegerArray: "integer[]",
	LongArray:    "long[]",
	StringArray:  "string[]",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, error) {
	for t, n := range typeNames {
		if n == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown preference type %q", s)
}

// IsArray reports whether values of this type hold any number of elements.
func (t Type) IsArray() bool { return t >= BooleanArray && t <= StringArray }

// Scalar returns the element type of an array type, or t itself.
func (t Type) Scalar() Type {
	if t.IsArray() {
		return t - (BooleanArray - Boolean)
	}
	return t
}

// Value is a preference value: a type tag plus the ordered string
// encodings of its elements. Scalars hold exactly one encoding, arrays zero
// or more. The zero Value is "no value" and cannot be stored.
type Value struct {
	typ Type
	enc []string
}

func BooleanValue(b bool) Value     { return Value{typ: Boolean, enc: []string{encodeBool(b)}} }
func IntegerValue(i int32) Value    { return Value{typ: Integer, enc: []string{strconv.FormatInt(int64(i), 10)}} }
func LongValue(l int64) Value       { return Value{typ: Long, enc: []string{strconv.FormatInt(l, 10)}} }
func StringValue(s string) Value    { return Value{typ: String, enc: []string{s}} }
func StringsValue(s []string) Value { return Value{typ: StringArray, enc: slices.Clone(nonNil(s))} }

// BooleansValue builds a boolean array value. A nil slice is a contract violation.
func BooleansValue(b []bool) Value {
	if b == nil {
		core.Violation("nil boolean array")
	}
	enc := make([]string, len(b))
	for i, v := range b {
		enc[i] = encodeBool(v)
	}
	return Value{typ: BooleanArray, enc: enc}
}

// IntegersValue builds an integer array value.
func IntegersValue(v []int32) Value {
	if v == nil {
		core.Violation("nil integer array")
	}
	enc := make([]string, len(v))
	for i, n := range v {
		enc[i] = strconv.FormatInt(int64(n), 10)
	}
	return Value{typ: IntegerArray, enc: enc}
}

// LongsValue builds a long array value.
func LongsValue(v []int64) Value {
	if v == nil {
		core.Violation("nil long array")
	}
	enc := make([]string, len(v))
	for i, n := range v {
		enc[i] = strconv.FormatInt(n, 10)
	}
	return Value{typ: LongArray, enc: enc}
}

func nonNil(s []string) []string {
	if s == nil {
		core.Violation("nil string array")
	}
	return s
}

// Decode rebuilds a Value from its stored form. It is used by stores and
// reports malformed encodings as errors so corrupt data can be surfaced.
func Decode(t Type, enc []string) (Value, error) {
	if _, ok := typeNames[t]; !ok {
		return Value{}, fmt.Errorf("unknown preference type %d", int(t))
	}
	if !t.IsArray() && len(enc) != 1 {
		return Value{}, fmt.Errorf("%s value with %d encodings", t, len(enc))
	}
	for _, e := range enc {
		if err := validate(t.Scalar(), e); err != nil {
			return Value{}, err
		}
	}
	if enc == nil {
		enc = []string{}
	}
	return Value{typ: t, enc: slices.Clone(enc)}, nil
}

func validate(t Type, e string) error {
	var err error
	switch t {
	case Boolean:
		_, err = decodeBool(e)
	case Integer:
		_, err = strconv.ParseInt(e, 10, 32)
	case Long:
		_, err = strconv.ParseInt(e, 10, 64)
	}
	if err != nil {
		return fmt.Errorf("malformed %s encoding %q: %w", t, e, err)
	}
	return nil
}

func encodeBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func decodeBool(s string) (bool, error) {
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean")
}

// Type returns the type tag.
func (v Value) Type() Type { return v.typ }

// IsZero reports whether v is the zero Value.
func (v Value) IsZero() bool { return v.typ == 0 }

// Encoded returns a copy of the stored encodings.
func (v Value) Encoded() []string { return slices.Clone(v.enc) }

// Len returns the number of elements.
func (v Value) Len() int { return len(v.enc) }

// Equal reports whether both values have the same type and encodings.
func (v Value) Equal(o Value) bool {
	return v.typ == o.typ && slices.Equal(v.enc, o.enc)
}

func (v Value) String() string {
	if v.IsZero() {
		return "<none>"
	}
	if v.typ.IsArray() {
		return v.typ.String() + "[" + strings.Join(v.enc, ",") + "]"
	}
	return v.typ.String() + "(" + v.enc[0] + ")"
}

func (v Value) expect(t Type) {
	if v.typ != t {
		core.Violation("preference is %s, not %s", v.typ, t)
	}
}

func mustBool(s string) bool {
	b, err := decodeBool(s)
	if err != nil {
		core.Violation("malformed boolean encoding %q", s)
	}
	return b
}

func mustInt(s string, bits int) int64 {
	n, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		core.Violation("malformed integer encoding %q", s)
	}
	return n
}

// AsBoolean returns the value of a Boolean preference.
func (v Value) AsBoolean() bool {
	v.expect(Boolean)
	return mustBool(v.enc[0])
}

// AsInteger returns the value of an Integer preference.
func (v Value) AsInteger() int32 {
	v.expect(Integer)
	return int32(mustInt(v.enc[0], 32))
}

// AsLong returns the value of a Long preference.
func (v Value) AsLong() int64 {
	v.expect(Long)
	return mustInt(v.enc[0], 64)
}

// AsString returns the value of a String preference.
func (v Value) AsString() string {
	v.expect(String)
	return v.enc[0]
}

// AsBooleans returns the elements of a BooleanArray preference.
func (v Value) AsBooleans() []bool {
	v.expect(BooleanArray)
	out := make([]bool, len(v.enc))
	for i, e := range v.enc {
		out[i] = mustBool(e)
	}
	return out
}

// AsIntegers returns the elements of an IntegerArray preference.
func (v Value) AsIntegers() []int32 {
	v.expect(IntegerArray)
	out := make([]int32, len(v.enc))
	for i, e := range v.enc {
		out[i] = int32(mustInt(e, 32))
	}
	return out
}

// AsLongs returns the elements of a LongArray preference.
func (v Value) AsLongs() []int64 {
	v.expect(LongArray)
	out := make([]int64, len(v.enc))
	for i, e := range v.enc {
		out[i] = mustInt(e, 64)
	}
	return out
}

// AsStrings returns the elements of a StringArray preference.
func (v Value) AsStrings() []string {
	v.expect(StringArray)
	return slices.Clone(v.enc)
}
