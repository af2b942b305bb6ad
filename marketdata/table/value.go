package table

import (
	"fmt"
	"strconv"
	"time"
)

// ValueType is the declared type of a column.
type ValueType uint8

// List of value types. The zero ValueType marks a null value.
const (
	Text ValueType = iota + 1
	Float32
	UInt8
	UInt16
	UInt32
	Int8
	DateTime
)

func (t ValueType) String() string {
	switch t {
	case Text:
		return "text"
	case Float32:
		return "float32"
	case UInt8:
		return "uint8"
	case UInt16:
		return "uint16"
	case UInt32:
		return "uint32"
	case Int8:
		return "int8"
	case DateTime:
		return "datetime"
	default:
		return "null"
	}
}

// Numeric reports whether values of the type can be read as float64.
func (t ValueType) Numeric() bool {
	switch t {
	case Float32, UInt8, UInt16, UInt32, Int8:
		return true
	}
	return false
}

// Value is a single typed scalar of a row. The zero Value is null.
type Value struct {
	typ ValueType
	s   string
	n   int64
	f   float32
	t   time.Time
}

// NullValue returns a null value.
func NullValue() Value { return Value{} }

// TextValue returns a text value.
func TextValue(s string) Value { return Value{typ: Text, s: s} }

// Float32Value returns a 32-bit float value.
func Float32Value(f float32) Value { return Value{typ: Float32, f: f} }

// UInt8Value returns an unsigned 8-bit value.
func UInt8Value(u uint8) Value { return Value{typ: UInt8, n: int64(u)} }

// UInt16Value returns an unsigned 16-bit value.
func UInt16Value(u uint16) Value { return Value{typ: UInt16, n: int64(u)} }

// UInt32Value returns an unsigned 32-bit value.
func UInt32Value(u uint32) Value { return Value{typ: UInt32, n: int64(u)} }

// Int8Value returns a signed 8-bit value.
func Int8Value(i int8) Value { return Value{typ: Int8, n: int64(i)} }

// DateTimeValue returns a timestamp value.
func DateTimeValue(t time.Time) Value { return Value{typ: DateTime, t: t} }

// Type returns the type of the value, or 0 for null.
func (v Value) Type() ValueType { return v.typ }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.typ == 0 }

// Text returns the text of a Text value.
func (v Value) Text() string { return v.s }

// Float32 returns the float of a Float32 value.
func (v Value) Float32() float32 { return v.f }

// Uint returns the integer of an unsigned value.
func (v Value) Uint() uint64 {
	if v.n < 0 {
		return 0
	}
	return uint64(v.n)
}

// Int returns the integer of any integer value.
func (v Value) Int() int64 { return v.n }

// Time returns the timestamp of a DateTime value.
func (v Value) Time() time.Time { return v.t }

// Float64 converts a numeric value to float64.
func (v Value) Float64() (float64, bool) {
	switch v.typ {
	case Float32:
		return float64(v.f), true
	case UInt8, UInt16, UInt32, Int8:
		return float64(v.n), true
	}
	return 0, false
}

func (v Value) String() string {
	switch v.typ {
	case Text:
		return v.s
	case Float32:
		return strconv.FormatFloat(float64(v.f), 'f', -1, 32)
	case UInt8, UInt16, UInt32, Int8:
		return strconv.FormatInt(v.n, 10)
	case DateTime:
		return v.t.Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// Compare orders two values. Nulls sort first; values of different types
// are ordered by type.
func Compare(a, b Value) int {
	if a.typ != b.typ {
		if a.typ < b.typ {
			return -1
		}
		return 1
	}
	switch a.typ {
	case Text:
		return compareOrdered(a.s, b.s)
	case Float32:
		return compareOrdered(a.f, b.f)
	case UInt8, UInt16, UInt32, Int8:
		return compareOrdered(a.n, b.n)
	case DateTime:
		return a.t.Compare(b.t)
	}
	return 0
}

func compareOrdered[T string | float32 | int64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// ParseValue coerces raw text to the column's declared type. Timestamps
// without zone information are interpreted in loc.
func ParseValue(raw string, col Column, loc *time.Location) (Value, error) {
	switch col.Type {
	case Text:
		return TextValue(raw), nil
	case Float32:
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return Value{}, err
		}
		return Float32Value(float32(f)), nil
	case UInt8:
		u, err := strconv.ParseUint(raw, 10, 8)
		if err != nil {
			return Value{}, err
		}
		return UInt8Value(uint8(u)), nil
	case UInt16:
		u, err := strconv.ParseUint(raw, 10, 16)
		if err != nil {
			return Value{}, err
		}
		return UInt16Value(uint16(u)), nil
	case UInt32:
		u, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return Value{}, err
		}
		return UInt32Value(uint32(u)), nil
	case Int8:
		i, err := strconv.ParseInt(raw, 10, 8)
		if err != nil {
			return Value{}, err
		}
		return Int8Value(int8(i)), nil
	case DateTime:
		t, err := col.Format.Parse(raw, loc)
		if err != nil {
			return Value{}, err
		}
		return DateTimeValue(t), nil
	}
	return Value{}, fmt.Errorf("unsupported column type %d", col.Type)
}
