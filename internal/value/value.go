// Package value defines the tagged-union Value that crosses every boundary of
// the runtime: graph pins, variables, event payloads and action inputs.
package value

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind string

const (
	KindNull   Kind = "null"
	KindNumber Kind = "number"
	KindString Kind = "string"
	KindBool   Kind = "boolean"
	KindVec2   Kind = "vec2"
	KindVec3   Kind = "vec3"
	KindColor  Kind = "color"
	KindEntity Kind = "entity"
	KindArray  Kind = "array"
	KindObject Kind = "object"
)

// Value is a sealed interface. Only the types in this package implement it.
type Value interface {
	Kind() Kind
	sealed()
}

// Null is the absence of a value.
type Null struct{}

// Number is a float64 number.
type Number float64

// String is a UTF-8 string.
type String string

// Bool is a boolean.
type Bool bool

// Vec2 is a 2-component vector.
type Vec2 struct{ X, Y float64 }

// Vec3 is a 3-component vector.
type Vec3 struct{ X, Y, Z float64 }

// Color is an RGBA color with components in 0..1.
type Color struct{ R, G, B, A float64 }

// EntityRef references an entity by id. It never holds the entity itself.
type EntityRef string

// Array is an ordered list of values.
type Array []Value

// Object is a string-keyed map of values. Use Keys for deterministic iteration.
type Object map[string]Value

func (Null) Kind() Kind      { return KindNull }
func (Number) Kind() Kind    { return KindNumber }
func (String) Kind() Kind    { return KindString }
func (Bool) Kind() Kind      { return KindBool }
func (Vec2) Kind() Kind      { return KindVec2 }
func (Vec3) Kind() Kind      { return KindVec3 }
func (Color) Kind() Kind     { return KindColor }
func (EntityRef) Kind() Kind { return KindEntity }
func (Array) Kind() Kind     { return KindArray }
func (Object) Kind() Kind    { return KindObject }

func (Null) sealed()      {}
func (Number) sealed()    {}
func (String) sealed()    {}
func (Bool) sealed()      {}
func (Vec2) sealed()      {}
func (Vec3) sealed()      {}
func (Color) sealed()     {}
func (EntityRef) sealed() {}
func (Array) sealed()     {}
func (Object) sealed()    {}

// White is the fallback color for unparsable color input.
var White = Color{R: 1, G: 1, B: 1, A: 1}

// Keys returns the object's keys in sorted order.
func (o Object) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Or returns v, or fallback when v is nil or Null.
func Or(v Value, fallback Value) Value {
	if IsNull(v) {
		return fallback
	}
	return v
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Equal reports deep equality. nil and Null are equal.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case Number:
		bv := b.(Number)
		return av == bv || (math.IsNaN(float64(av)) && math.IsNaN(float64(bv)))
	case Array:
		bv := b.(Array)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv := b.(Object)
		if len(av) != len(bv) {
			return false
		}
		for k, x := range av {
			y, ok := bv[k]
			if !ok || !Equal(x, y) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// Clone returns a deep copy of v. Scalars are returned as-is.
func Clone(v Value) Value {
	switch tv := v.(type) {
	case nil:
		return Null{}
	case Array:
		out := make(Array, len(tv))
		for i, x := range tv {
			out[i] = Clone(x)
		}
		return out
	case Object:
		out := make(Object, len(tv))
		for k, x := range tv {
			out[k] = Clone(x)
		}
		return out
	default:
		return v
	}
}

// Truthy applies the boolean coercion rules: numbers are true when non-zero,
// strings are false for "", "0" and "false", collections are true when
// non-empty, null is false and everything else is true.
func Truthy(v Value) bool {
	switch tv := v.(type) {
	case nil, Null:
		return false
	case Bool:
		return bool(tv)
	case Number:
		return tv != 0 && !math.IsNaN(float64(tv))
	case String:
		s := strings.TrimSpace(strings.ToLower(string(tv)))
		return s != "" && s != "0" && s != "false"
	case Array:
		return len(tv) > 0
	case Object:
		return len(tv) > 0
	case EntityRef:
		return tv != ""
	default:
		return true
	}
}

// AsNumber extracts a number using the coercion rules of the variable store:
// numeric strings parse, booleans map to 0/1. ok is false when no number
// could be derived.
func AsNumber(v Value) (float64, bool) {
	switch tv := v.(type) {
	case Number:
		return float64(tv), true
	case Bool:
		if tv {
			return 1, true
		}
		return 0, true
	case String:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(tv)), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// ToString renders v for logs and string coercion.
func ToString(v Value) string {
	switch tv := v.(type) {
	case nil, Null:
		return ""
	case String:
		return string(tv)
	case Number:
		return strconv.FormatFloat(float64(tv), 'f', -1, 64)
	case Bool:
		return strconv.FormatBool(bool(tv))
	case EntityRef:
		return string(tv)
	case Vec2:
		return fmt.Sprintf("(%g, %g)", tv.X, tv.Y)
	case Vec3:
		return fmt.Sprintf("(%g, %g, %g)", tv.X, tv.Y, tv.Z)
	case Color:
		return tv.Hex()
	default:
		b, err := Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Hex renders the color as #rrggbbaa.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x%02x", channel(c.R), channel(c.G), channel(c.B), channel(c.A))
}

func channel(f float64) int {
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return int(math.Round(f * 255))
}
