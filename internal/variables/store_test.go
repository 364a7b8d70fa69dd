package variables

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/SentientPlay/internal/value"
)

func newTestStore() *Store {
	return NewStore(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func ptr(f float64) *float64 { return &f }

func TestSetClampsToRange(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Define(Definition{
		Name: "health", Type: TypeNumber, Scope: ScopeGlobal,
		Default: value.Number(50), Min: ptr(0), Max: ptr(100),
	}))

	inputs := []value.Value{
		value.Number(150), value.Number(-3), value.Number(math.MaxFloat64),
		value.Number(-math.MaxFloat64), value.String("1e9"), value.Bool(true),
		value.String("NaN"), value.Number(math.NaN()), value.Number(math.Inf(1)), value.String("-Inf"),
		value.Number(42),
	}
	for _, in := range inputs {
		got, err := s.Set("health", ScopeGlobal, in, "", SourceGraph)
		require.NoError(t, err)
		n := float64(got.(value.Number))
		assert.GreaterOrEqual(t, n, 0.0)
		assert.LessOrEqual(t, n, 100.0)

		stored, ok := s.Get("health", ScopeGlobal, "")
		require.True(t, ok)
		assert.Equal(t, got, stored)
	}

	got, _ := s.Get("health", ScopeGlobal, "")
	assert.Equal(t, value.Number(42), got)
}

func TestResolvePrecedence(t *testing.T) {
	s := newTestStore()
	for _, scope := range []Scope{ScopeGlobal, ScopeScene, ScopeNode} {
		require.NoError(t, s.Define(Definition{Name: "speed", Type: TypeNumber, Scope: scope}))
	}
	_, err := s.Set("speed", ScopeGlobal, value.Number(1), "", SourceUser)
	require.NoError(t, err)
	_, err = s.Set("speed", ScopeScene, value.Number(2), "", SourceUser)
	require.NoError(t, err)
	_, err = s.Set("speed", ScopeNode, value.Number(3), "n1", SourceUser)
	require.NoError(t, err)

	v, scope, ok := s.Resolve("speed", "n1")
	require.True(t, ok)
	assert.Equal(t, value.Number(3), v)
	assert.Equal(t, ScopeNode, scope)

	v, scope, ok = s.Resolve("speed", "")
	require.True(t, ok)
	assert.Equal(t, value.Number(2), v)
	assert.Equal(t, ScopeScene, scope)

	_, _, ok = s.Resolve("missing", "n1")
	assert.False(t, ok)
}

func TestOwnedScopeNeedsOwner(t *testing.T) {
	s := newTestStore()
	_, err := s.Set("x", ScopeNode, value.Number(1), "", SourceUser)
	assert.True(t, errors.Is(err, ErrOwnerRequired))

	_, err = s.Set("x", Scope("galaxy"), value.Number(1), "", SourceUser)
	assert.True(t, errors.Is(err, ErrInvalidScope))
}

func TestReadonlyRejectsOrdinaryWrites(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Define(Definition{
		Name: "level", Type: TypeString, Scope: ScopeGlobal,
		Default: value.String("intro"), Readonly: true,
	}))

	var violations []*ReadonlyViolation
	s.OnReadonlyViolation(func(v *ReadonlyViolation) { violations = append(violations, v) })

	got, err := s.Set("level", ScopeGlobal, value.String("boss"), "", SourceGraph)
	require.NoError(t, err)
	assert.Equal(t, value.String("intro"), got)
	require.Len(t, violations, 1)
	assert.Equal(t, "level", violations[0].Name)

	got, err = s.Set("level", ScopeGlobal, value.String("boss"), "", SourceSystem)
	require.NoError(t, err)
	assert.Equal(t, value.String("boss"), got)
	assert.Len(t, violations, 1)
}

func TestReadonlyWithoutValueAcceptsFirstWrite(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Define(Definition{Name: "seed", Type: TypeNumber, Scope: ScopeScene, Readonly: true}))

	got, err := s.Set("seed", ScopeScene, value.Number(7), "", SourceUser)
	require.NoError(t, err)
	assert.Equal(t, value.Number(7), got)

	got, err = s.Set("seed", ScopeScene, value.Number(8), "", SourceUser)
	require.NoError(t, err)
	assert.Equal(t, value.Number(7), got)
}

func TestWatchersSkipEqualWrites(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Define(Definition{Name: "pos", Type: TypeVec2, Scope: ScopeGlobal}))

	var named, scoped []Change
	unwatch := s.Watch("pos", ScopeGlobal, func(c Change) { named = append(named, c) })
	s.WatchScope(ScopeGlobal, func(c Change) { scoped = append(scoped, c) })

	_, err := s.Set("pos", ScopeGlobal, value.Array{value.Number(1), value.Number(2)}, "", SourceUser)
	require.NoError(t, err)
	_, err = s.Set("pos", ScopeGlobal, value.Object{"x": value.Number(1), "y": value.Number(2)}, "", SourceUser)
	require.NoError(t, err)
	_, err = s.Set("pos", ScopeGlobal, value.Vec2{X: 1, Y: 2}, "", SourceUser)
	require.NoError(t, err)

	require.Len(t, named, 1)
	assert.Equal(t, value.Vec2{}, named[0].Old)
	assert.Equal(t, value.Vec2{X: 1, Y: 2}, named[0].New)
	assert.Len(t, scoped, 1)

	unwatch()
	_, err = s.Set("pos", ScopeGlobal, value.Vec2{X: 5}, "", SourceUser)
	require.NoError(t, err)
	assert.Len(t, named, 1)
	assert.Len(t, scoped, 2)
}

func TestCoercionRules(t *testing.T) {
	cases := []struct {
		name string
		in   value.Value
		typ  Type
		want value.Value
	}{
		{"numeric string", value.String(" 3.5 "), TypeNumber, value.Number(3.5)},
		{"bool to number", value.Bool(true), TypeNumber, value.Number(1)},
		{"junk to number", value.String("abc"), TypeNumber, value.Number(0)},
		{"number to string", value.Number(2), TypeString, value.String("2")},
		{"false string", value.String("false"), TypeBool, value.Bool(false)},
		{"zero string", value.String("0"), TypeBool, value.Bool(false)},
		{"empty string", value.String(""), TypeBool, value.Bool(false)},
		{"nonzero number", value.Number(-1), TypeBool, value.Bool(true)},
		{"array to vec2", value.Array{value.Number(1), value.Number(2)}, TypeVec2, value.Vec2{X: 1, Y: 2}},
		{"object to vec3", value.Object{"x": value.Number(1), "z": value.Number(3)}, TypeVec3, value.Vec3{X: 1, Z: 3}},
		{"hex color", value.String("#ff000080"), TypeColor, value.Color{R: 1, A: 128.0 / 255}},
		{"hex color no alpha", value.String("00ff00"), TypeColor, value.Color{G: 1, A: 1}},
		{"array color", value.Array{value.Number(0.1), value.Number(0.2), value.Number(0.3)}, TypeColor, value.Color{R: 0.1, G: 0.2, B: 0.3, A: 1}},
		{"bad color", value.String("not a color"), TypeColor, value.White},
		{"string to entity", value.String("e1"), TypeEntity, value.EntityRef("e1")},
		{"scalar to array", value.Number(1), TypeArray, value.Array{value.Number(1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, value.Equal(tc.want, Coerce(tc.in, tc.typ)), "got %#v", Coerce(tc.in, tc.typ))
		})
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Define(Definition{Name: "score", Type: TypeNumber, Scope: ScopeGlobal, Min: ptr(0)}))
	require.NoError(t, s.Define(Definition{Name: "tint", Type: TypeColor, Scope: ScopeScene, Default: value.String("#336699")}))
	require.NoError(t, s.Define(Definition{Name: "hp", Type: TypeNumber, Scope: ScopeNode, Default: value.Number(3)}))
	require.NoError(t, s.Define(Definition{Name: "mode", Type: TypeString, Scope: ScopeGlobal, Default: value.String("a"), Readonly: true}))

	_, err := s.Set("score", ScopeGlobal, value.Number(12), "", SourceUser)
	require.NoError(t, err)
	_, err = s.Set("hp", ScopeNode, value.Number(1), "enemy", SourceGraph)
	require.NoError(t, err)
	_, err = s.Set("item", ScopeLocal, value.Vec3{X: 1, Y: 2, Z: 3}, "runner", SourceGraph)
	require.NoError(t, err)
	_, err = s.Set("free", ScopeScene, value.Object{"who": value.EntityRef("p1")}, "", SourceGraph)
	require.NoError(t, err)

	data, err := s.Serialize()
	require.NoError(t, err)

	fresh := newTestStore()
	require.NoError(t, fresh.Deserialize(data))

	assert.Equal(t, s.Definitions(), fresh.Definitions())
	assert.Equal(t, len(s.Entries()), len(fresh.Entries()))
	for _, e := range s.Entries() {
		got, ok := fresh.Get(e.Name, e.Scope, e.Owner)
		require.True(t, ok, "%s/%s", e.Scope, e.Name)
		assert.True(t, value.Equal(e.Value, got), "%s/%s: %#v != %#v", e.Scope, e.Name, e.Value, got)
	}

	got, ok := fresh.Get("hp", ScopeNode, "other")
	require.True(t, ok)
	assert.Equal(t, value.Number(3), got)

	got, _ = fresh.Set("mode", ScopeGlobal, value.String("b"), "", SourceUser)
	assert.Equal(t, value.String("a"), got)
}

func TestNonFiniteNumbersStayFinite(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Define(Definition{Name: "ratio", Type: TypeNumber, Scope: ScopeGlobal}))
	require.NoError(t, s.Define(Definition{Name: "ceiling", Type: TypeNumber, Scope: ScopeGlobal, Max: ptr(10)}))

	got, err := s.Set("ratio", ScopeGlobal, value.Number(math.NaN()), "", SourceGraph)
	require.NoError(t, err)
	assert.Equal(t, value.Number(0), got)
	got, err = s.Set("ceiling", ScopeGlobal, value.Number(math.NaN()), "", SourceGraph)
	require.NoError(t, err)
	assert.Equal(t, value.Number(10), got)
	got, err = s.Set("ratio", ScopeGlobal, value.Number(math.Inf(-1)), "", SourceGraph)
	require.NoError(t, err)
	assert.Equal(t, value.Number(-math.MaxFloat64), got)

	data, err := s.Serialize()
	require.NoError(t, err)
	fresh := newTestStore()
	require.NoError(t, fresh.Deserialize(data))
	got, ok := fresh.Get("ratio", ScopeGlobal, "")
	require.True(t, ok)
	assert.Equal(t, value.Number(-math.MaxFloat64), got)
}

func TestDeserializeRejectsUnknownVersion(t *testing.T) {
	s := newTestStore()
	assert.Error(t, s.Deserialize([]byte(`{"version":9}`)))
	assert.Error(t, s.Deserialize([]byte(`not json`)))
}

func TestImportScopeNotifiesDiffs(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Define(Definition{Name: "a", Type: TypeNumber, Scope: ScopeGlobal}))
	_, err := s.Set("a", ScopeGlobal, value.Number(1), "", SourceUser)
	require.NoError(t, err)
	_, err = s.Set("b", ScopeGlobal, value.Number(2), "", SourceUser)
	require.NoError(t, err)

	snap := s.ExportScope(ScopeGlobal)

	_, err = s.Set("a", ScopeGlobal, value.Number(10), "", SourceUser)
	require.NoError(t, err)
	_, err = s.Set("c", ScopeGlobal, value.Number(3), "", SourceUser)
	require.NoError(t, err)

	var changes []Change
	s.WatchScope(ScopeGlobal, func(c Change) { changes = append(changes, c) })
	s.ImportScope(ScopeGlobal, snap)

	got, _ := s.Get("a", ScopeGlobal, "")
	assert.Equal(t, value.Number(1), got)
	_, ok := s.Get("c", ScopeGlobal, "")
	assert.False(t, ok)
	assert.Len(t, changes, 2)
	for _, c := range changes {
		assert.Equal(t, SourceSystem, c.Source)
	}
}

func TestClearOwner(t *testing.T) {
	s := newTestStore()
	_, err := s.Set("hp", ScopeNode, value.Number(1), "e1", SourceGraph)
	require.NoError(t, err)
	_, err = s.Set("hp", ScopeNode, value.Number(2), "e2", SourceGraph)
	require.NoError(t, err)

	s.ClearOwner("e1")
	_, ok := s.Get("hp", ScopeNode, "e1")
	assert.False(t, ok)
	got, ok := s.Get("hp", ScopeNode, "e2")
	require.True(t, ok)
	assert.Equal(t, value.Number(2), got)
}
