package types

import (
	"math"
	"strconv"
)

// Kind tells whether a Value holds an observation and of which numeric form.
type Kind uint8

const (
	// KindUnset marks a field that no event has touched yet.
	KindUnset Kind = iota
	// KindInt is an integer count.
	KindInt
	// KindFloat is a floating-point average or latency in minutes.
	KindFloat
)

// String returns a human-readable representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindUnset:
		return "unset"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Value is one field of a table row. The zero Value is unset.
type Value struct {
	kind Kind
	i    int64
	f    float64
}

// Unset returns an unset Value.
func Unset() Value { return Value{} }

// Int returns an integer Value.
func Int(n int64) Value { return Value{kind: KindInt, i: n} }

// Float returns a floating-point Value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// IsSet returns true if the field holds an observation.
func (v Value) IsSet() bool { return v.kind != KindUnset }

// Int64 returns the value as an integer; floats are truncated and unset is 0.
func (v Value) Int64() int64 {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return int64(v.f)
	default:
		return 0
	}
}

// Float64 returns the value as a float; unset is 0.
func (v Value) Float64() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.i)
	case KindFloat:
		return v.f
	default:
		return 0
	}
}

// Equal reports whether two values have the same kind and number.
// NaN floats compare equal to each other.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i == o.i
	case KindFloat:
		if math.IsNaN(v.f) && math.IsNaN(o.f) {
			return true
		}
		return v.f == o.f
	default:
		return true
	}
}

// String renders the value as persisted: empty for unset, decimal for ints,
// and floats always carry a fractional or exponent part so they parse back
// as floats.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		s := strconv.FormatFloat(v.f, 'g', -1, 64)
		if _, err := strconv.ParseInt(s, 10, 64); err == nil {
			s += ".0"
		}
		return s
	default:
		return ""
	}
}

// ParseValue parses a persisted field. Empty text is unset; text that parses
// as a base-10 integer is an int; anything else must parse as a float.
func ParseValue(s string) (Value, error) {
	if s == "" {
		return Unset(), nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(n), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Unset(), err
	}
	return Float(f), nil
}
