package engine_test

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/SentientPlay/internal/actions"
	"github.com/AaronLay10/SentientPlay/internal/engine"
	"github.com/AaronLay10/SentientPlay/internal/graph"
	"github.com/AaronLay10/SentientPlay/internal/scene"
)

func TestRandomDrivesTranslateWithBuiltins(t *testing.T) {
	env := engine.NewEnv(slog.New(slog.NewTextHandler(io.Discard, nil)))
	actions.Register(env.Registry)
	env.Rand = rand.New(rand.NewPCG(3, 9))
	require.NoError(t, env.Scene.Add(scene.Entity{ID: "hero", Name: "Hero", X: 10, Y: 5}))

	g, err := graph.Parse([]byte(`{"id":"drift","nodes":[
		{"id":"s","kind":"signal","signal":"Init"},
		{"id":"r","kind":"action","component":"math","method":"random","inputs":{"min":1,"max":2},"outputs":["value"]},
		{"id":"t","kind":"action","component":"transform","method":"translate","inputs":{"dy":0},"params":["dx"]}
	],"edges":[{"from":"s","to":"t"},{"kind":"data","from":"r","to":"t","toPin":"dx"}]}`))
	require.NoError(t, err)
	rt, err := engine.New("hero", g, env)
	require.NoError(t, err)

	x := 10.0
	var moves []float64
	for range 2 {
		require.NoError(t, rt.TriggerSignal(context.Background(), "Init", nil))
		e, ok := env.Scene.Get("hero")
		require.True(t, ok)
		dx := e.X - x
		assert.GreaterOrEqual(t, dx, 1.0)
		assert.LessOrEqual(t, dx, 2.0)
		assert.Equal(t, 5.0, e.Y)
		moves = append(moves, dx)
		x = e.X
	}
	assert.NotEqual(t, moves[0], moves[1], "random is pulled fresh per activation")
	assert.Zero(t, rt.Stats().Errors)
}
