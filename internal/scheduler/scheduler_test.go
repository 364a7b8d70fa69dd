package scheduler

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/SentientPlay/internal/input"
	"github.com/AaronLay10/SentientPlay/internal/value"
	"github.com/AaronLay10/SentientPlay/internal/variables"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type recorder struct {
	calls []string
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		BeginFrame:  func(*Frame) { r.calls = append(r.calls, "begin") },
		FixedUpdate: func(*Frame, float64) { r.calls = append(r.calls, "fixed") },
		Update:      func(*Frame) { r.calls = append(r.calls, "update") },
		LateUpdate:  func(*Frame) { r.calls = append(r.calls, "late") },
		EndFrame:    func(*Frame) { r.calls = append(r.calls, "end") },
	}
}

func TestTickRunsPhasesInOrder(t *testing.T) {
	rec := &recorder{}
	s := New(Config{FixedHz: 10, MaxDelta: 1}, rec.hooks(), Deps{Logger: quiet()})

	f, ran := s.Tick(0.25)
	require.True(t, ran)
	assert.Equal(t, []string{"begin", "fixed", "fixed", "update", "late", "end"}, rec.calls)
	assert.Equal(t, 2, f.FixedSteps)
	assert.InDelta(t, 0.5, f.Alpha, 1e-9)
	assert.Equal(t, uint64(1), f.Number)

	f, _ = s.Tick(0.06)
	assert.Equal(t, 1, f.FixedSteps, "leftover accumulates")
}

func TestDeltaIsClampedAndScaled(t *testing.T) {
	s := New(Config{MaxDelta: 0.1, TimeScale: 2}, Hooks{}, Deps{Logger: quiet()})
	f, _ := s.Tick(5)
	assert.InDelta(t, 0.2, f.Delta, 1e-12)
	assert.Equal(t, 5.0, f.RealDelta)
}

func TestFixedStepBacklogIsDropped(t *testing.T) {
	s := New(Config{FixedHz: 100, MaxDelta: 1, MaxFixedSteps: 3}, Hooks{}, Deps{Logger: quiet()})
	f, _ := s.Tick(0.5)
	assert.Equal(t, 3, f.FixedSteps)
	assert.Zero(t, f.Alpha)
}

func TestPauseAndStep(t *testing.T) {
	rec := &recorder{}
	s := New(Config{FixedHz: 50}, rec.hooks(), Deps{Logger: quiet()})

	assert.ErrorIs(t, s.Step(1), ErrNotPaused)

	s.Pause()
	_, ran := s.Tick(0.016)
	assert.False(t, ran)
	assert.Empty(t, rec.calls)

	require.NoError(t, s.Step(2))
	for i := 0; i < 2; i++ {
		f, ran := s.Tick(3)
		require.True(t, ran)
		assert.True(t, f.Stepped)
		assert.Equal(t, 1, f.FixedSteps)
		assert.InDelta(t, 0.02, f.Delta, 1e-12)
	}
	_, ran = s.Tick(0.016)
	assert.False(t, ran)
	assert.True(t, s.Paused())
	assert.Equal(t, uint64(2), s.Stats().FrameCount)

	s.Resume()
	_, ran = s.Tick(0.016)
	assert.True(t, ran)
}

func TestSystemVariables(t *testing.T) {
	vars := variables.NewStore(quiet())
	in := input.New()
	s := New(Config{FixedHz: 10, MaxDelta: 1}, Hooks{}, Deps{Input: in, Vars: vars, Logger: quiet()})
	require.NoError(t, s.DefineVariables())

	in.KeyDown("left")
	in.SetPointer(5, 6)
	s.Tick(0.1)

	get := func(name string) value.Value {
		v, ok := vars.Get(name, variables.ScopeGlobal, "")
		require.True(t, ok, name)
		return v
	}
	assert.Equal(t, value.Number(1), get(VarFrame))
	assert.Equal(t, value.Number(0.1), get(VarDelta))
	assert.Equal(t, value.Number(0.1), get(VarFixedDelta))
	assert.Equal(t, value.Array{value.String("left")}, get(VarKeys))
	assert.Equal(t, value.Vec2{X: 5, Y: 6}, get(VarPointer))

	old, err := vars.Set(VarFrame, variables.ScopeGlobal, value.Number(99), "", variables.SourceGraph)
	require.NoError(t, err)
	assert.Equal(t, value.Number(1), old, "graphs cannot overwrite system time")
}

func TestStatsSmoothFPS(t *testing.T) {
	s := New(Config{MaxDelta: 1}, Hooks{}, Deps{Logger: quiet()})
	s.Tick(0.5)
	assert.InDelta(t, 2, s.Stats().FPS, 1e-9)
	s.Tick(0.25)
	st := s.Stats()
	assert.InDelta(t, 2.2, st.FPS, 1e-9)
	assert.InDelta(t, 250, st.FrameTime, 1e-9)
	assert.Equal(t, uint64(2), st.FrameCount)

	s.Reset()
	assert.Zero(t, s.Stats().FrameCount)
}

func TestStartDrivesTicksUnderLock(t *testing.T) {
	var mu sync.Mutex
	frames := 0
	s := New(Config{TargetFPS: 500}, Hooks{Update: func(*Frame) { frames++ }}, Deps{Logger: quiet()})

	mu.Lock()
	s.Start(&mu)
	s.Start(&mu)
	mu.Unlock()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return frames >= 3
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	s.Stop()
	assert.False(t, s.Running())
	mu.Unlock()
	s.Wait()

	mu.Lock()
	after := frames
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, after, frames)
	mu.Unlock()
}
