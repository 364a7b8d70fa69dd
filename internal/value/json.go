package value

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Tagged keys used for the variants JSON has no native shape for.
const (
	tagVec2   = "$vec2"
	tagVec3   = "$vec3"
	tagColor  = "$color"
	tagEntity = "$entity"
)

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// MarshalJSON implements json.Marshaler for Vec2.
func (v Vec2) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]float64{tagVec2: {v.X, v.Y}})
}

// MarshalJSON implements json.Marshaler for Vec3.
func (v Vec3) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]float64{tagVec3: {v.X, v.Y, v.Z}})
}

// MarshalJSON implements json.Marshaler for Color.
func (c Color) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]float64{tagColor: {c.R, c.G, c.B, c.A}})
}

// MarshalJSON implements json.Marshaler for EntityRef.
func (e EntityRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{tagEntity: string(e)})
}

// MarshalJSON implements json.Marshaler for Array so nil elements encode as null.
func (a Array) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("array index %d: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for Object with sorted keys.
func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		b, err := Marshal(o[k])
		if err != nil {
			return nil, fmt.Errorf("object key %q: %w", k, err)
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler for Array.
func (a *Array) UnmarshalJSON(data []byte) error {
	v, err := Unmarshal(data)
	if err != nil {
		return err
	}
	arr, ok := v.(Array)
	if !ok {
		return fmt.Errorf("expected array, got %s", v.Kind())
	}
	*a = arr
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for Object.
func (o *Object) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = make(Object, len(raw))
	for k, r := range raw {
		v, err := Unmarshal(r)
		if err != nil {
			return fmt.Errorf("object key %q: %w", k, err)
		}
		(*o)[k] = v
	}
	return nil
}

// Marshal encodes v. A nil Value encodes as null.
func Marshal(v Value) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// Unmarshal decodes JSON produced by Marshal, or any plain JSON document.
func Unmarshal(data []byte) (Value, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case 'n':
		return Null{}, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return String(s), nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		arr := make(Array, len(raw))
		for i, r := range raw {
			v, err := Unmarshal(r)
			if err != nil {
				return nil, fmt.Errorf("array index %d: %w", i, err)
			}
			arr[i] = v
		}
		return arr, nil
	case '{':
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		if len(raw) == 1 {
			if v, ok, err := unmarshalTagged(raw); ok || err != nil {
				return v, err
			}
		}
		obj := make(Object, len(raw))
		for k, r := range raw {
			v, err := Unmarshal(r)
			if err != nil {
				return nil, fmt.Errorf("object key %q: %w", k, err)
			}
			obj[k] = v
		}
		return obj, nil
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		return Number(f), nil
	}
}

func unmarshalTagged(raw map[string]json.RawMessage) (Value, bool, error) {
	for tag, r := range raw {
		switch tag {
		case tagEntity:
			var id string
			if err := json.Unmarshal(r, &id); err != nil {
				return nil, true, fmt.Errorf("%s: %w", tag, err)
			}
			return EntityRef(id), true, nil
		case tagVec2, tagVec3, tagColor:
			var c []float64
			if err := json.Unmarshal(r, &c); err != nil {
				return nil, true, fmt.Errorf("%s: %w", tag, err)
			}
			want := map[string]int{tagVec2: 2, tagVec3: 3, tagColor: 4}[tag]
			if len(c) != want {
				return nil, true, fmt.Errorf("%s: expected %d components, got %d", tag, want, len(c))
			}
			switch tag {
			case tagVec2:
				return Vec2{X: c[0], Y: c[1]}, true, nil
			case tagVec3:
				return Vec3{X: c[0], Y: c[1], Z: c[2]}, true, nil
			default:
				return Color{R: c[0], G: c[1], B: c[2], A: c[3]}, true, nil
			}
		}
	}
	return nil, false, nil
}

// Box carries a single Value through encoding/json and yaml struct fields.
type Box struct {
	V Value
}

// MarshalJSON implements json.Marshaler.
func (b Box) MarshalJSON() ([]byte, error) {
	return Marshal(b.V)
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Box) UnmarshalJSON(data []byte) error {
	v, err := Unmarshal(data)
	if err != nil {
		return err
	}
	b.V = v
	return nil
}

// Get returns the boxed value, or Null when empty.
func (b Box) Get() Value {
	if b.V == nil {
		return Null{}
	}
	return b.V
}

// FromAny converts decoded Go values (encoding/json or yaml.v3 output) into
// a Value. Maps carrying a single "$vec2"/"$vec3"/"$color"/"$entity" key are
// decoded as the tagged variant.
func FromAny(x any) (Value, error) {
	switch tx := x.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return tx, nil
	case bool:
		return Bool(tx), nil
	case string:
		return String(tx), nil
	case float64:
		return Number(tx), nil
	case float32:
		return Number(tx), nil
	case int:
		return Number(tx), nil
	case int64:
		return Number(tx), nil
	case uint64:
		return Number(tx), nil
	case json.Number:
		f, err := tx.Float64()
		if err != nil {
			return nil, err
		}
		return Number(f), nil
	case []any:
		arr := make(Array, len(tx))
		for i, e := range tx {
			v, err := FromAny(e)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			arr[i] = v
		}
		return arr, nil
	case map[string]any:
		if len(tx) == 1 {
			raw := make(map[string]json.RawMessage, 1)
			for k, e := range tx {
				if k == tagVec2 || k == tagVec3 || k == tagColor || k == tagEntity {
					b, err := json.Marshal(e)
					if err != nil {
						return nil, err
					}
					raw[k] = b
				}
			}
			if len(raw) == 1 {
				v, _, err := unmarshalTagged(raw)
				return v, err
			}
		}
		obj := make(Object, len(tx))
		for k, e := range tx {
			v, err := FromAny(e)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			obj[k] = v
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", x)
	}
}

// MustFromAny is FromAny for literals known to be valid. It panics on error.
func MustFromAny(x any) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}

// ToAny converts v into plain Go values suitable for encoding/json fields
// or log attributes.
func ToAny(v Value) any {
	switch tv := v.(type) {
	case nil, Null:
		return nil
	case Number:
		return float64(tv)
	case String:
		return string(tv)
	case Bool:
		return bool(tv)
	case EntityRef:
		return string(tv)
	case Vec2:
		return map[string]any{"x": tv.X, "y": tv.Y}
	case Vec3:
		return map[string]any{"x": tv.X, "y": tv.Y, "z": tv.Z}
	case Color:
		return tv.Hex()
	case Array:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = ToAny(e)
		}
		return out
	case Object:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[k] = ToAny(e)
		}
		return out
	default:
		return nil
	}
}
