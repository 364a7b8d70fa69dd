package orchestrator

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/SentientPlay/internal/actions"
	"github.com/AaronLay10/SentientPlay/internal/bus"
	"github.com/AaronLay10/SentientPlay/internal/engine"
	"github.com/AaronLay10/SentientPlay/internal/events"
	"github.com/AaronLay10/SentientPlay/internal/graph"
	"github.com/AaronLay10/SentientPlay/internal/scene"
	"github.com/AaronLay10/SentientPlay/internal/scheduler"
	"github.com/AaronLay10/SentientPlay/internal/value"
	"github.com/AaronLay10/SentientPlay/internal/variables"
)

const moverGraph = `{"id":"mover","nodes":[
	{"id":"u","kind":"signal","signal":"Update"},
	{"id":"m","kind":"action","component":"transform","method":"translate","inputs":{"dx":1,"dy":1}}
],"edges":[{"from":"u","to":"m"}]}`

const scorerGraph = `{"id":"scorer","nodes":[
	{"id":"i","kind":"signal","signal":"Init"},
	{"id":"s","kind":"variable","op":"set","name":"score","scope":"global","value":5}
],"edges":[{"from":"i","to":"s"}]}`

const spawnerGraph = `{"id":"spawner","nodes":[
	{"id":"i","kind":"signal","signal":"Init"},
	{"id":"sp","kind":"action","component":"scene","method":"spawn",
	 "inputs":{"name":"minion","behavior":"mover","parent":"world","x":50,"y":50},"outputs":["entity"]}
],"edges":[{"from":"i","to":"sp"}]}`

const doomedGraph = `{"id":"doomed","nodes":[
	{"id":"u","kind":"signal","signal":"Update"},
	{"id":"d","kind":"action","component":"scene","method":"destroy"},
	{"id":"bye","kind":"signal","signal":"Destroy"},
	{"id":"log","kind":"variable","op":"set","name":"farewells","scope":"global","value":1}
],"edges":[{"from":"u","to":"d"},{"from":"bye","to":"log"}]}`

const brokenGraph = `{"id":"broken","nodes":[
	{"id":"u","kind":"signal","signal":"Update"},
	{"id":"x","kind":"action","component":"teleporter","method":"warp"}
],"edges":[{"from":"u","to":"x"}]}`

const jumperGraph = `{"id":"jumper","nodes":[
	{"id":"k","kind":"signal","signal":"KeyDown"},
	{"id":"b","kind":"branch","condition":"payload.key == 'space'"},
	{"id":"m","kind":"action","component":"transform","method":"translate","inputs":{"dx":0,"dy":-5}}
],"edges":[{"from":"k","to":"b"},{"from":"b","fromPin":"true","to":"m"}]}`

const sleeperGraph = `{"id":"sleeper","nodes":[
	{"id":"i","kind":"signal","signal":"Init"},
	{"id":"w","kind":"flow","flow":"delay","duration":0.15},
	{"id":"m","kind":"action","component":"transform","method":"translate","inputs":{"dx":1,"dy":0}}
],"edges":[{"from":"i","to":"w"},{"from":"w","to":"m"}]}`

type fixture struct {
	o       *Orchestrator
	env     *engine.Env
	journal *events.Journal
}

func parseGraphs(t *testing.T, docs ...string) []*graph.Graph {
	t.Helper()
	var out []*graph.Graph
	for _, d := range docs {
		g, err := graph.Parse([]byte(d))
		require.NoError(t, err)
		out = append(out, g)
	}
	return out
}

// newFixture builds a scene with a world root and a hero carrying behavior,
// driven manually at 10 Hz fixed steps.
func newFixture(t *testing.T, behavior string, docs ...string) *fixture {
	t.Helper()
	env := engine.NewEnv(slog.New(slog.NewTextHandler(io.Discard, nil)))
	actions.Register(env.Registry)
	require.NoError(t, env.Scene.Add(scene.Entity{ID: "world", Name: "world", Width: 200, Height: 200}))
	require.NoError(t, env.Scene.Add(scene.Entity{ID: "hero", Name: "hero", Parent: "world", X: 10, Y: 10, Behavior: behavior}))

	journal := events.NewJournal(128)
	o, err := New(env, parseGraphs(t, docs...), Options{
		Manual:    true,
		Journal:   journal,
		Scheduler: scheduler.Config{FixedHz: 10, MaxDelta: 1, TargetFPS: 10},
	})
	require.NoError(t, err)
	t.Cleanup(o.Close)
	return &fixture{o: o, env: env, journal: journal}
}

func (f *fixture) tick(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, ran, err := f.o.Tick(0.1)
		require.NoError(t, err)
		require.True(t, ran)
	}
}

func (f *fixture) pos(t *testing.T, id string) (float64, float64) {
	t.Helper()
	e, ok := f.env.Scene.Get(id)
	require.True(t, ok, "entity %s", id)
	return e.X, e.Y
}

func (f *fixture) journalNames() []string {
	var names []string
	for _, e := range f.journal.Snapshot() {
		names = append(names, e.Name)
	}
	return names
}

func TestStopWithoutApplyRestoresScene(t *testing.T) {
	f := newFixture(t, "mover", moverGraph)
	require.NoError(t, f.o.Start())
	assert.Equal(t, StatePlaying, f.o.Status().State)

	f.tick(t, 3)
	x, y := f.pos(t, "hero")
	assert.Equal(t, 13.0, x)
	assert.Equal(t, 13.0, y)

	require.NoError(t, f.o.Stop(false))
	x, y = f.pos(t, "hero")
	assert.Equal(t, 10.0, x)
	assert.Equal(t, 10.0, y)

	st := f.o.Status()
	assert.Equal(t, StateStopped, st.State)
	assert.Zero(t, st.Behaviors)
	assert.Contains(t, f.journalNames(), "play.started")
	assert.Contains(t, f.journalNames(), "play.stopped")

	last := f.journal.Recent(1)[0]
	assert.Equal(t, "play.stopped", last.Name)
	assert.EqualValues(t, 3, last.Fields["frames"])
	assert.Equal(t, false, last.Fields["applied"])
	assert.NotEmpty(t, last.Session)
}

func TestStopWithApplyKeepsChanges(t *testing.T) {
	f := newFixture(t, "mover", moverGraph)
	require.NoError(t, f.o.Start())
	f.tick(t, 2)
	require.NoError(t, f.o.Stop(true))

	x, y := f.pos(t, "hero")
	assert.Equal(t, 12.0, x)
	assert.Equal(t, 12.0, y)
}

func TestStopRestoresGlobals(t *testing.T) {
	f := newFixture(t, "scorer", scorerGraph)
	require.NoError(t, f.env.Vars.Define(variables.Definition{Name: "score", Type: variables.TypeNumber, Scope: variables.ScopeGlobal}))
	_, err := f.env.Vars.Set("score", variables.ScopeGlobal, value.Number(1), "", variables.SourceUser)
	require.NoError(t, err)

	require.NoError(t, f.o.Start())
	got, _ := f.env.Vars.Get("score", variables.ScopeGlobal, "")
	assert.Equal(t, value.Number(5), got, "Init ran")

	require.NoError(t, f.o.Stop(false))
	got, _ = f.env.Vars.Get("score", variables.ScopeGlobal, "")
	assert.Equal(t, value.Number(1), got)

	require.NoError(t, f.o.Start())
	require.NoError(t, f.o.Stop(true))
	got, _ = f.env.Vars.Get("score", variables.ScopeGlobal, "")
	assert.Equal(t, value.Number(5), got)
}

func TestInvalidTransitionsAreRejected(t *testing.T) {
	f := newFixture(t, "mover", moverGraph)

	assert.ErrorIs(t, f.o.Pause(), ErrInvalidState)
	assert.ErrorIs(t, f.o.Resume(), ErrInvalidState)
	assert.ErrorIs(t, f.o.StepFrame(1), ErrInvalidState)
	assert.ErrorIs(t, f.o.Stop(false), ErrInvalidState)
	_, _, err := f.o.Tick(0.1)
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, f.o.Start())
	assert.ErrorIs(t, f.o.Start(), ErrInvalidState)
	assert.ErrorIs(t, f.o.Resume(), ErrInvalidState)
	assert.ErrorIs(t, f.o.StepFrame(1), ErrInvalidState)

	require.NoError(t, f.o.Pause())
	assert.ErrorIs(t, f.o.Pause(), ErrInvalidState)
	assert.Error(t, f.o.StepFrame(0))

	assert.Contains(t, f.journalNames(), "command.rejected")
}

func TestStartRequiresRoot(t *testing.T) {
	env := engine.NewEnv(slog.New(slog.NewTextHandler(io.Discard, nil)))
	journal := events.NewJournal(16)
	o, err := New(env, nil, Options{Manual: true, Journal: journal})
	require.NoError(t, err)

	err = o.Start()
	assert.ErrorIs(t, err, ErrNoRoot)
	assert.Equal(t, StateStopped, o.Status().State)
	assert.Equal(t, "command.rejected", journal.Recent(1)[0].Name)
}

func TestPauseResumeAndStepFrame(t *testing.T) {
	f := newFixture(t, "mover", moverGraph)
	require.NoError(t, f.o.Start())
	require.NoError(t, f.o.Pause())

	_, ran, err := f.o.Tick(0.1)
	require.NoError(t, err)
	assert.False(t, ran, "paused frames do not run")

	require.NoError(t, f.o.StepFrame(2))
	assert.Equal(t, 2, f.o.Status().PendingSteps)
	for _, want := range []bool{true, true, false} {
		_, ran, err := f.o.Tick(0.5)
		require.NoError(t, err)
		assert.Equal(t, want, ran)
	}
	x, _ := f.pos(t, "hero")
	assert.Equal(t, 12.0, x)
	assert.Equal(t, StatePaused, f.o.Status().State)

	require.NoError(t, f.o.Resume())
	f.tick(t, 1)
	x, _ = f.pos(t, "hero")
	assert.Equal(t, 13.0, x)
}

func TestSpawnedBehaviorIsBoundAndInitialized(t *testing.T) {
	f := newFixture(t, "spawner", spawnerGraph, moverGraph)
	require.NoError(t, f.o.Start())

	id, ok := f.env.Scene.FindByName("minion")
	require.True(t, ok)
	assert.Equal(t, 2, f.o.Stats().BehaviorCount)
	parent, _ := f.env.Bus.Parent(id)
	assert.Equal(t, "world", parent)

	f.tick(t, 1)
	x, y := f.pos(t, id)
	assert.Equal(t, 51.0, x)
	assert.Equal(t, 51.0, y)

	require.NoError(t, f.o.Stop(false))
	assert.False(t, f.env.Scene.Exists(id), "spawned entity discarded")
}

func TestDeferredDestroyAppliesAtEndOfFrame(t *testing.T) {
	f := newFixture(t, "doomed", doomedGraph)
	var seenDuringFrame bool
	f.env.Bus.Subscribe(CheckpointLateUpdate, bus.PhaseExecute, func(*bus.Event) error {
		seenDuringFrame = f.env.Scene.Exists("hero")
		return nil
	}, bus.SubscribeOptions{})

	require.NoError(t, f.o.Start())
	f.tick(t, 1)

	assert.True(t, seenDuringFrame)
	assert.False(t, f.env.Scene.Exists("hero"))
	assert.Zero(t, f.o.Stats().BehaviorCount)
	farewells, _ := f.env.Vars.Get("farewells", variables.ScopeGlobal, "")
	assert.Equal(t, value.Number(1), farewells, "Destroy signal delivered before removal")
	assert.Contains(t, f.journalNames(), "entity.destroyed")

	require.NoError(t, f.o.Stop(false))
	assert.True(t, f.env.Scene.Exists("hero"))
}

func TestBehaviorErrorsStayIsolated(t *testing.T) {
	f := newFixture(t, "mover", moverGraph, brokenGraph)
	require.NoError(t, f.env.Scene.Add(scene.Entity{ID: "gremlin", Parent: "world", Behavior: "broken"}))

	require.NoError(t, f.o.Start())
	f.tick(t, 2)

	x, _ := f.pos(t, "hero")
	assert.Equal(t, 12.0, x)
	st := f.o.Stats()
	assert.EqualValues(t, 2, st.BehaviorErrors)
	assert.EqualValues(t, 2, st.BusFailures)
	assert.Equal(t, StatePlaying, f.o.Status().State)

	var found bool
	for _, e := range f.journal.Snapshot() {
		if e.Name == "behavior.error" {
			found = true
			assert.Equal(t, "gremlin", e.Fields["entity"])
			assert.Equal(t, "x", e.Fields["node"])
		}
	}
	assert.True(t, found)
}

func TestUnknownBehaviorGraphIsReported(t *testing.T) {
	f := newFixture(t, "ghost", moverGraph)
	require.NoError(t, f.o.Start())
	assert.Zero(t, f.o.Stats().BehaviorCount)
	assert.Contains(t, f.journalNames(), "behavior.error")
}

func TestFrameCheckpointsInOrder(t *testing.T) {
	f := newFixture(t, "mover", moverGraph)
	var seen []string
	for _, name := range []string{CheckpointFixedUpdate, CheckpointUpdate, CheckpointLateUpdate} {
		f.env.Bus.Subscribe(name, bus.PhaseExecute, func(evt *bus.Event) error {
			seen = append(seen, evt.Type)
			return nil
		}, bus.SubscribeOptions{})
	}

	require.NoError(t, f.o.Start())
	_, _, err := f.o.Tick(0.25)
	require.NoError(t, err)
	assert.Equal(t, []string{CheckpointFixedUpdate, CheckpointFixedUpdate, CheckpointUpdate, CheckpointLateUpdate}, seen)
}

func TestKeyDownReachesBehaviors(t *testing.T) {
	f := newFixture(t, "jumper", jumperGraph)
	require.NoError(t, f.o.Start())

	f.o.Input().KeyDown("space")
	f.o.Input().KeyDown("left")
	f.tick(t, 1)
	_, y := f.pos(t, "hero")
	assert.Equal(t, 5.0, y)

	f.tick(t, 1)
	_, y = f.pos(t, "hero")
	assert.Equal(t, 5.0, y, "held keys do not repeat KeyDown")
}

func TestDelayResumesOnLaterFrame(t *testing.T) {
	f := newFixture(t, "sleeper", sleeperGraph)
	require.NoError(t, f.o.Start())

	f.tick(t, 1)
	x, _ := f.pos(t, "hero")
	assert.Equal(t, 10.0, x)

	f.tick(t, 1)
	x, _ = f.pos(t, "hero")
	assert.Equal(t, 11.0, x)
}

func TestStopCancelsPendingDelays(t *testing.T) {
	f := newFixture(t, "sleeper", sleeperGraph)
	require.NoError(t, f.o.Start())
	assert.Equal(t, 1, f.o.Stats().Timers)
	require.NoError(t, f.o.Stop(true))
	assert.Zero(t, f.o.Stats().Timers)
}

func TestStateListenerSeesTransitions(t *testing.T) {
	f := newFixture(t, "mover", moverGraph)
	var got []Transition
	off := f.o.OnStateChange(func(tr Transition) {
		got = append(got, tr)
		_ = f.o.Status()
	})
	frames := 0
	f.o.OnFrame(func(scheduler.Frame) { frames++ })

	require.NoError(t, f.o.Start())
	require.NoError(t, f.o.Pause())
	require.NoError(t, f.o.Resume())
	f.tick(t, 2)
	require.NoError(t, f.o.Stop(true))
	off()

	require.Len(t, got, 4)
	assert.Equal(t, []State{StateStopped, StatePlaying, StatePaused, StatePlaying},
		[]State{got[0].From, got[1].From, got[2].From, got[3].From})
	assert.Equal(t, StateStopped, got[3].To)
	assert.EqualValues(t, 2, got[3].Frames)
	assert.True(t, got[3].Applied)
	assert.NotEmpty(t, got[0].Session)
	assert.Equal(t, 2, frames)
}

func TestQueries(t *testing.T) {
	f := newFixture(t, "mover", moverGraph)
	require.NoError(t, f.env.Vars.Define(variables.Definition{Name: "lives", Type: variables.TypeNumber, Scope: variables.ScopeScene, Default: value.Number(3)}))
	require.NoError(t, f.o.Start())
	f.tick(t, 1)

	list := f.o.Entities()
	require.Len(t, list, 2)
	assert.Equal(t, "world", list[0].ID)
	assert.Equal(t, "hero", list[1].ID)
	assert.True(t, list[1].Bound)
	assert.Equal(t, value.Vec2{X: 11, Y: 11}, list[1].World)

	d, ok := f.o.Entity("hero")
	require.True(t, ok)
	require.NotNil(t, d.Runtime)
	assert.EqualValues(t, 1, d.Runtime.Activations)
	_, ok = f.o.Entity("nobody")
	assert.False(t, ok)

	st := f.o.Stats()
	assert.Equal(t, 2, st.EntityCount)
	assert.Equal(t, 1, st.BehaviorCount)
	assert.EqualValues(t, 1, st.FrameCount)

	var lives *Variable
	for _, v := range f.o.Variables() {
		if v.Name == "lives" {
			v := v
			lives = &v
		}
	}
	require.NotNil(t, lives)
	assert.Equal(t, value.Number(3), lives.Value.Get())
	assert.Equal(t, variables.TypeNumber, lives.Type)

	assert.NotEmpty(t, f.o.RecentEvents(5))
	assert.Equal(t, []string{"mover"}, f.o.Graphs())
}

func TestSchedulerLoopDrivesFrames(t *testing.T) {
	env := engine.NewEnv(slog.New(slog.NewTextHandler(io.Discard, nil)))
	actions.Register(env.Registry)
	require.NoError(t, env.Scene.Add(scene.Entity{ID: "world"}))
	require.NoError(t, env.Scene.Add(scene.Entity{ID: "hero", Parent: "world", Behavior: "mover"}))

	o, err := New(env, parseGraphs(t, moverGraph), Options{
		Journal:   events.NewJournal(16),
		Scheduler: scheduler.Config{TargetFPS: 200},
	})
	require.NoError(t, err)
	require.NoError(t, o.Start())

	require.Eventually(t, func() bool { return o.Stats().FrameCount >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, o.Stop(false))
	assert.False(t, o.Stats().FrameCount == 0)
	e, _ := env.Scene.Get("hero")
	assert.Zero(t, e.X)
}
