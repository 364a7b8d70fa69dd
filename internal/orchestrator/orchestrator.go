// Package orchestrator runs play mode. It snapshots the scene and the shared
// variables, binds one graph runtime per behavior entity, drives the frame
// scheduler and on stop either restores the snapshot or keeps the session's
// changes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/SentientPlay/internal/bus"
	"github.com/AaronLay10/SentientPlay/internal/engine"
	"github.com/AaronLay10/SentientPlay/internal/events"
	"github.com/AaronLay10/SentientPlay/internal/graph"
	"github.com/AaronLay10/SentientPlay/internal/input"
	"github.com/AaronLay10/SentientPlay/internal/scene"
	"github.com/AaronLay10/SentientPlay/internal/scheduler"
	"github.com/AaronLay10/SentientPlay/internal/value"
	"github.com/AaronLay10/SentientPlay/internal/variables"
)

// State is the play-mode state.
type State string

const (
	StateStopped State = "stopped"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

var (
	// ErrInvalidState rejects a command the current state does not allow.
	ErrInvalidState = errors.New("invalid play state")
	// ErrNoRoot rejects Start on an empty scene.
	ErrNoRoot = errors.New("scene has no root entity")
	// ErrUnknownGraph is reported for an entity whose behavior id was never loaded.
	ErrUnknownGraph = errors.New("unknown behavior graph")
)

// Bus checkpoints emitted once per phase, before the phase's signal reaches
// the bindings.
const (
	CheckpointFixedUpdate = "frame.fixedUpdate"
	CheckpointUpdate      = "frame.update"
	CheckpointLateUpdate  = "frame.lateUpdate"
)

// Options configure an Orchestrator.
type Options struct {
	Scheduler scheduler.Config
	// Journal receives lifecycle and behavior events; nil uses events.Default().
	Journal *events.Journal
	// Logger defaults to the env's logger.
	Logger *slog.Logger
	// Manual leaves frame pacing to the host, which calls Tick.
	Manual bool
	Clock  func() time.Time
}

// Transition describes one state change. Frames, Duration and Applied are
// set when the session stops.
type Transition struct {
	From     State         `json:"from"`
	To       State         `json:"to"`
	Session  string        `json:"session,omitempty"`
	At       time.Time     `json:"at"`
	Frames   uint64        `json:"frames,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Applied  bool          `json:"applied,omitempty"`
}

type snapshot struct {
	scene  *scene.Directory
	global []variables.Entry
	shared []variables.Entry
}

type binding struct {
	rt     *engine.Runtime
	unsubs []func()
}

type stateListener struct {
	id int
	fn func(Transition)
}

type frameListener struct {
	id int
	fn func(scheduler.Frame)
}

// Orchestrator owns play mode for one Env. Every public method serializes on
// one mutex, which the scheduler loop also holds while it runs a frame; the
// Env's components are only touched under it.
type Orchestrator struct {
	mu      sync.Mutex
	env     *engine.Env
	input   *input.State
	sched   *scheduler.Scheduler
	journal *events.Journal
	logger  *slog.Logger
	now     func() time.Time
	manual  bool

	graphs map[string]*graph.Graph

	state     State
	session   string
	started   time.Time
	snap      *snapshot
	ctx       context.Context
	cancel    context.CancelFunc
	bindings  map[string]*binding
	order     []string
	restoring bool
	lastFrame scheduler.Frame

	busEvents      uint64
	busFailures    uint64
	behaviorErrors uint64

	stateListeners []stateListener
	frameListeners []frameListener
	nextListener   int
	pending        []Transition

	detach []func()
}

// New wires an orchestrator around env. graphs are the behavior graphs
// entities refer to by id.
func New(env *engine.Env, graphs []*graph.Graph, opts Options) (*Orchestrator, error) {
	if env == nil || env.Scene == nil || env.Bus == nil || env.Vars == nil {
		return nil, errors.New("orchestrator: env with scene, bus and variables is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = env.Logger
	}
	if logger == nil {
		logger = slog.Default()
	}
	journal := opts.Journal
	if journal == nil {
		journal = events.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	o := &Orchestrator{
		env:      env,
		input:    input.New(),
		journal:  journal,
		logger:   logger.With("component", "orchestrator"),
		now:      now,
		manual:   opts.Manual,
		graphs:   make(map[string]*graph.Graph),
		state:    StateStopped,
		bindings: make(map[string]*binding),
	}
	o.sched = scheduler.New(opts.Scheduler, scheduler.Hooks{
		BeginFrame:  o.beginFrame,
		FixedUpdate: o.fixedUpdate,
		Update:      o.update,
		LateUpdate:  o.lateUpdate,
		EndFrame:    o.endFrame,
	}, scheduler.Deps{Input: o.input, Vars: env.Vars, Logger: logger})

	for _, g := range graphs {
		if err := o.addGraph(g); err != nil {
			return nil, err
		}
	}

	o.detach = append(o.detach,
		env.Scene.OnChange(o.sceneChanged),
		env.Bus.Tap(func(evt *bus.Event) {
			o.busEvents++
			if evt.Err != nil {
				o.busFailures++
			}
		}),
	)

	prev := env.OnError
	env.OnError = func(err error) {
		if prev != nil {
			prev(err)
		}
		o.asyncError(err)
	}
	env.Vars.OnReadonlyViolation(func(v *variables.ReadonlyViolation) {
		o.emit(events.LevelWarn, "variable.readonly", v.Error(), map[string]interface{}{
			"name":   v.Name,
			"scope":  string(v.Scope),
			"owner":  v.Owner,
			"source": string(v.Source),
		})
	})
	o.mirrorHierarchy()
	return o, nil
}

// Env returns the runtime context the orchestrator drives.
func (o *Orchestrator) Env() *engine.Env { return o.env }

// Input returns the host-fed input state. It is safe to use from any goroutine.
func (o *Orchestrator) Input() *input.State { return o.input }

// Journal returns the event journal.
func (o *Orchestrator) Journal() *events.Journal { return o.journal }

// AddGraph registers a behavior graph after validating it. A graph with the
// same id replaces the old one for bindings created later.
func (o *Orchestrator) AddGraph(g *graph.Graph) error {
	o.mu.Lock()
	defer o.unlock()
	return o.addGraph(g)
}

func (o *Orchestrator) addGraph(g *graph.Graph) error {
	if g == nil {
		return errors.New("orchestrator: nil graph")
	}
	warnings, err := graph.Validate(g)
	if err != nil {
		return err
	}
	o.graphs[g.ID] = g
	o.emit(events.LevelInfo, "graph.loaded", "", map[string]interface{}{
		"graph":    g.ID,
		"version":  g.Version,
		"nodes":    len(g.Nodes),
		"warnings": len(warnings),
	})
	return nil
}

// Graphs returns the registered graph ids in order.
func (o *Orchestrator) Graphs() []string {
	o.mu.Lock()
	defer o.unlock()
	ids := make([]string, 0, len(o.graphs))
	for id := range o.graphs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Start snapshots the scene and shared variables, binds a runtime to every
// behavior entity, sends each its Init signal and starts the scheduler.
// It fails if play mode is already running or the scene is empty.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.unlock()

	if o.state != StateStopped {
		return o.reject("start", fmt.Errorf("start: %w: %s", ErrInvalidState, o.state))
	}
	if _, ok := o.env.Scene.Root(); !ok {
		return o.reject("start", fmt.Errorf("start: %w", ErrNoRoot))
	}

	o.snap = &snapshot{
		scene:  o.env.Scene.Clone(),
		global: o.env.Vars.ExportScope(variables.ScopeGlobal),
		shared: o.env.Vars.ExportScope(variables.ScopeScene),
	}
	o.session = uuid.NewString()
	o.started = o.now()
	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.journal.SetSession(o.session)

	o.sched.Reset()
	if err := o.sched.DefineVariables(); err != nil {
		o.logger.Warn("system variables not defined", "error", err)
	}
	if o.env.Transforms != nil {
		o.env.Transforms.Reset()
	}
	o.mirrorHierarchy()
	o.setState(StatePlaying, Transition{})

	var ids []string
	o.env.Scene.Walk(func(e scene.Entity) bool {
		if e.Behavior != "" {
			ids = append(ids, e.ID)
		}
		return true
	})
	for _, id := range ids {
		o.bind(id)
	}
	for _, id := range ids {
		if _, ok := o.bindings[id]; ok {
			o.signal(id, engine.SignalInit, value.Null{})
		}
	}

	o.logger.Info("play started", "session", o.session, "entities", o.env.Scene.Len(), "behaviors", len(o.bindings))
	o.emit(events.LevelInfo, "play.started", "", map[string]interface{}{
		"entities":  o.env.Scene.Len(),
		"behaviors": len(o.bindings),
	})

	if !o.manual {
		o.sched.Start(&o.mu)
	}
	return nil
}

// Stop halts the scheduler and disposes every binding. With apply false the
// scene and the global and scene variables return to their state at Start;
// with apply true the session's changes are kept. Node and local variables
// never outlive the session.
func (o *Orchestrator) Stop(apply bool) error {
	o.mu.Lock()
	if o.state == StateStopped {
		err := o.reject("stop", fmt.Errorf("stop: %w: %s", ErrInvalidState, o.state))
		o.unlock()
		return err
	}

	o.sched.Stop()
	stats := o.sched.Stats()
	o.cancel()

	for _, id := range slices.Clone(o.order) {
		o.unbind(id)
	}
	if o.env.Timers != nil {
		o.env.Timers.Clear()
	}
	if o.env.Tweens != nil {
		o.env.Tweens.Clear()
	}
	o.env.Vars.ClearScope(variables.ScopeNode)
	o.env.Vars.ClearScope(variables.ScopeLocal)

	for _, id := range o.env.Scene.IDs() {
		_ = o.env.Bus.SetParent(id, "")
	}
	if apply {
		o.env.Scene.FlushDestroyed()
	} else {
		o.restoring = true
		o.env.Scene.Restore(o.snap.scene)
		o.env.Vars.ImportScope(variables.ScopeGlobal, o.snap.global)
		o.env.Vars.ImportScope(variables.ScopeScene, o.snap.shared)
		o.restoring = false
	}
	o.mirrorHierarchy()
	if o.env.Transforms != nil {
		o.env.Transforms.Reset()
	}

	duration := o.now().Sub(o.started)
	o.setState(StateStopped, Transition{Frames: stats.FrameCount, Duration: duration, Applied: apply})
	o.logger.Info("play stopped", "session", o.session, "frames", stats.FrameCount, "duration", duration, "applied", apply)
	o.emit(events.LevelInfo, "play.stopped", "", map[string]interface{}{
		"frames":      stats.FrameCount,
		"duration_ms": duration.Milliseconds(),
		"applied":     apply,
	})
	o.journal.SetSession("")

	o.snap = nil
	o.session = ""
	o.unlock()
	o.sched.Wait()
	return nil
}

// Pause suspends frames. Bindings and the snapshot are untouched.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	defer o.unlock()
	if o.state != StatePlaying {
		return o.reject("pause", fmt.Errorf("pause: %w: %s", ErrInvalidState, o.state))
	}
	o.sched.Pause()
	o.setState(StatePaused, Transition{})
	o.emit(events.LevelInfo, "play.paused", "", map[string]interface{}{"frame": o.sched.Stats().FrameCount})
	return nil
}

// Resume lets frames run freely again after Pause.
func (o *Orchestrator) Resume() error {
	o.mu.Lock()
	defer o.unlock()
	if o.state != StatePaused {
		return o.reject("resume", fmt.Errorf("resume: %w: %s", ErrInvalidState, o.state))
	}
	o.sched.Resume()
	o.setState(StatePlaying, Transition{})
	o.emit(events.LevelInfo, "play.resumed", "", map[string]interface{}{"frame": o.sched.Stats().FrameCount})
	return nil
}

// StepFrame runs exactly n frames while paused, then stays paused. Each
// scheduler tick consumes one step; in manual mode the host's Tick calls do.
func (o *Orchestrator) StepFrame(n int) error {
	o.mu.Lock()
	defer o.unlock()
	if o.state != StatePaused {
		return o.reject("step", fmt.Errorf("step: %w: %s", ErrInvalidState, o.state))
	}
	if n < 1 {
		return o.reject("step", fmt.Errorf("step: frame count must be positive, got %d", n))
	}
	if err := o.sched.Step(n); err != nil {
		return o.reject("step", fmt.Errorf("step: %w", err))
	}
	o.emit(events.LevelInfo, "play.stepped", "", map[string]interface{}{"frames": n})
	return nil
}

// Tick runs one frame of realDelta seconds. Hosts that set Options.Manual
// drive play mode with it. ran is false while paused with no steps queued.
func (o *Orchestrator) Tick(realDelta float64) (f scheduler.Frame, ran bool, err error) {
	o.mu.Lock()
	defer o.unlock()
	if o.state == StateStopped {
		return scheduler.Frame{}, false, fmt.Errorf("tick: %w: %s", ErrInvalidState, o.state)
	}
	f, ran = o.sched.Tick(realDelta)
	return f, ran, nil
}

// Close stops a running session without applying it and detaches from the
// env's scene and bus.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	playing := o.state != StateStopped
	o.unlock()
	if playing {
		_ = o.Stop(false)
	}
	o.mu.Lock()
	defer o.unlock()
	for _, fn := range o.detach {
		fn()
	}
	o.detach = nil
}

// OnStateChange registers fn for every state transition. fn runs after the
// transition's method has released the lock, so it may query the orchestrator.
func (o *Orchestrator) OnStateChange(fn func(Transition)) func() {
	o.mu.Lock()
	defer o.unlock()
	o.nextListener++
	id := o.nextListener
	o.stateListeners = append(o.stateListeners, stateListener{id: id, fn: fn})
	return func() {
		o.mu.Lock()
		defer o.unlock()
		o.stateListeners = slices.DeleteFunc(o.stateListeners, func(l stateListener) bool { return l.id == id })
	}
}

// OnFrame registers fn to run at the end of every frame. fn runs with the
// orchestrator locked and must not call its methods.
func (o *Orchestrator) OnFrame(fn func(scheduler.Frame)) func() {
	o.mu.Lock()
	defer o.unlock()
	o.nextListener++
	id := o.nextListener
	o.frameListeners = append(o.frameListeners, frameListener{id: id, fn: fn})
	return func() {
		o.mu.Lock()
		defer o.unlock()
		o.frameListeners = slices.DeleteFunc(o.frameListeners, func(l frameListener) bool { return l.id == id })
	}
}

// unlock releases the mutex, then delivers the transitions recorded while it
// was held.
func (o *Orchestrator) unlock() {
	pending := o.pending
	o.pending = nil
	var listeners []stateListener
	if len(pending) > 0 {
		listeners = slices.Clone(o.stateListeners)
	}
	o.mu.Unlock()
	for _, t := range pending {
		for _, l := range listeners {
			l.fn(t)
		}
	}
}

func (o *Orchestrator) setState(to State, t Transition) {
	t.From = o.state
	t.To = to
	t.Session = o.session
	t.At = o.now()
	o.state = to
	o.pending = append(o.pending, t)
}

func (o *Orchestrator) reject(command string, err error) error {
	o.logger.Error("command rejected", "command", command, "state", string(o.state), "error", err)
	o.emit(events.LevelError, "command.rejected", err.Error(), map[string]interface{}{
		"command": command,
		"state":   string(o.state),
	})
	return err
}

func (o *Orchestrator) emit(level, name, msg string, fields map[string]interface{}) {
	if _, err := o.journal.Emit(level, name, msg, fields); err != nil {
		o.logger.Warn("journal emit failed", "event", name, "error", err)
	}
}

// mirrorHierarchy copies scene parent links into the bus so bubbling
// follows the scene tree.
func (o *Orchestrator) mirrorHierarchy() {
	o.env.Scene.Walk(func(e scene.Entity) bool {
		if e.Parent != "" {
			if err := o.env.Bus.SetParent(e.ID, e.Parent); err != nil {
				o.logger.Warn("bus hierarchy", "entity", e.ID, "error", err)
			}
		}
		return true
	})
}
