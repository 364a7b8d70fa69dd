package variables

import (
	"math"
	"strconv"
	"strings"

	"github.com/AaronLay10/SentientPlay/internal/value"
)

// Type is a declared variable type.
type Type string

const (
	TypeAny    Type = "any"
	TypeNumber Type = "number"
	TypeString Type = "string"
	TypeBool   Type = "boolean"
	TypeVec2   Type = "vec2"
	TypeVec3   Type = "vec3"
	TypeColor  Type = "color"
	TypeEntity Type = "entity"
	TypeArray  Type = "array"
	TypeObject Type = "object"
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	switch t {
	case TypeAny, TypeNumber, TypeString, TypeBool, TypeVec2, TypeVec3,
		TypeColor, TypeEntity, TypeArray, TypeObject:
		return true
	}
	return false
}

func zero(t Type) value.Value {
	switch t {
	case TypeNumber:
		return value.Number(0)
	case TypeString:
		return value.String("")
	case TypeBool:
		return value.Bool(false)
	case TypeVec2:
		return value.Vec2{}
	case TypeVec3:
		return value.Vec3{}
	case TypeColor:
		return value.White
	case TypeEntity:
		return value.EntityRef("")
	case TypeArray:
		return value.Array{}
	case TypeObject:
		return value.Object{}
	default:
		return value.Null{}
	}
}

// Coerce converts v to t:
//   - number: numeric strings parse, booleans map to 0/1, anything else is 0
//   - string: the value's string form
//   - boolean: truthiness, with "false", "" and "0" falsy
//   - vec2/vec3: arrays or {x,y[,z]} objects
//   - color: #rrggbb[aa] hex or a numeric array, opaque white otherwise
//   - entity: entity refs, strings or {id} objects
func Coerce(v value.Value, t Type) value.Value {
	if v == nil {
		v = value.Null{}
	}
	switch t {
	case TypeNumber:
		if f, ok := value.AsNumber(v); ok {
			return value.Number(f)
		}
		return value.Number(0)
	case TypeString:
		return value.String(value.ToString(v))
	case TypeBool:
		return value.Bool(value.Truthy(v))
	case TypeVec2:
		c := components(v, 2)
		return value.Vec2{X: c[0], Y: c[1]}
	case TypeVec3:
		c := components(v, 3)
		return value.Vec3{X: c[0], Y: c[1], Z: c[2]}
	case TypeColor:
		return coerceColor(v)
	case TypeEntity:
		switch tv := v.(type) {
		case value.EntityRef:
			return tv
		case value.String:
			return value.EntityRef(tv)
		case value.Object:
			if id, ok := tv["id"].(value.String); ok {
				return value.EntityRef(id)
			}
		}
		return value.EntityRef("")
	case TypeArray:
		switch tv := v.(type) {
		case value.Array:
			return tv
		case value.Null:
			return value.Array{}
		default:
			return value.Array{tv}
		}
	case TypeObject:
		if o, ok := v.(value.Object); ok {
			return o
		}
		return value.Object{}
	default:
		return v
	}
}

func components(v value.Value, n int) [3]float64 {
	var out [3]float64
	switch tv := v.(type) {
	case value.Vec2:
		out[0], out[1] = tv.X, tv.Y
	case value.Vec3:
		out[0], out[1], out[2] = tv.X, tv.Y, tv.Z
	case value.Array:
		for i := 0; i < n && i < len(tv); i++ {
			out[i], _ = value.AsNumber(tv[i])
		}
	case value.Object:
		for i, k := range []string{"x", "y", "z"}[:n] {
			if x, ok := tv[k]; ok {
				out[i], _ = value.AsNumber(x)
			}
		}
	}
	return out
}

func coerceColor(v value.Value) value.Value {
	switch tv := v.(type) {
	case value.Color:
		return tv
	case value.String:
		if c, ok := ParseHexColor(string(tv)); ok {
			return c
		}
	case value.Array:
		if len(tv) < 3 {
			break
		}
		c := [4]float64{0, 0, 0, 1}
		for i := 0; i < 4 && i < len(tv); i++ {
			f, ok := value.AsNumber(tv[i])
			if !ok {
				return value.White
			}
			c[i] = f
		}
		return value.Color{R: c[0], G: c[1], B: c[2], A: c[3]}
	}
	return value.White
}

// ParseHexColor parses #rrggbb or #rrggbbaa (the leading # is optional).
func ParseHexColor(s string) (value.Color, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 && len(s) != 8 {
		return value.Color{}, false
	}
	var c [4]float64
	c[3] = 1
	for i := 0; i < len(s)/2; i++ {
		n, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return value.Color{}, false
		}
		c[i] = float64(n) / 255
	}
	return value.Color{R: c[0], G: c[1], B: c[2], A: c[3]}, true
}

func clamp(v value.Value, def *Definition) value.Value {
	n, ok := v.(value.Number)
	if !ok {
		return v
	}
	f := float64(n)
	if math.IsNaN(f) {
		switch {
		case def.Min != nil:
			f = *def.Min
		case def.Max != nil:
			f = *def.Max
		default:
			f = 0
		}
	}
	if def.Min != nil && f < *def.Min {
		f = *def.Min
	}
	if def.Max != nil && f > *def.Max {
		f = *def.Max
	}
	// Stored numbers stay finite so the store always serializes.
	if math.IsInf(f, 1) {
		f = math.MaxFloat64
	} else if math.IsInf(f, -1) {
		f = -math.MaxFloat64
	}
	return value.Number(f)
}
