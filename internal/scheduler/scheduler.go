// Package scheduler drives frames: a fixed-step accumulator for
// FixedUpdate, one variable Update and one LateUpdate per frame, with
// pause, single-stepping and frame statistics.
package scheduler

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/AaronLay10/SentientPlay/internal/input"
	"github.com/AaronLay10/SentientPlay/internal/value"
	"github.com/AaronLay10/SentientPlay/internal/variables"
)

// System variables written before every frame's fixed updates.
const (
	VarDelta      = "time.delta"
	VarElapsed    = "time.elapsed"
	VarFrame      = "time.frame"
	VarFixedDelta = "time.fixedDelta"
	VarKeys       = "input.keys"
	VarPointer    = "input.pointer"
)

// ErrNotPaused is returned by Step when the scheduler is running freely.
var ErrNotPaused = errors.New("scheduler is not paused")

// Config tunes the loop. Zero fields take the defaults below.
type Config struct {
	FixedHz       float64 `yaml:"fixed_hz"`
	MaxDelta      float64 `yaml:"max_delta"`
	TargetFPS     float64 `yaml:"target_fps"`
	TimeScale     float64 `yaml:"time_scale"`
	MaxFixedSteps int     `yaml:"max_fixed_steps"`
}

// DefaultConfig returns 60 Hz fixed steps at 60 FPS with a 250 ms clamp.
func DefaultConfig() Config {
	return Config{FixedHz: 60, MaxDelta: 0.25, TargetFPS: 60, TimeScale: 1, MaxFixedSteps: 8}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FixedHz <= 0 {
		c.FixedHz = d.FixedHz
	}
	if c.MaxDelta <= 0 {
		c.MaxDelta = d.MaxDelta
	}
	if c.TargetFPS <= 0 {
		c.TargetFPS = d.TargetFPS
	}
	if c.TimeScale <= 0 {
		c.TimeScale = d.TimeScale
	}
	if c.MaxFixedSteps <= 0 {
		c.MaxFixedSteps = d.MaxFixedSteps
	}
	return c
}

// Frame describes the frame being run.
type Frame struct {
	Number     uint64      `json:"number"`
	Delta      float64     `json:"delta"`
	RealDelta  float64     `json:"realDelta"`
	Elapsed    float64     `json:"elapsed"`
	FixedDelta float64     `json:"fixedDelta"`
	FixedSteps int         `json:"fixedSteps"`
	Alpha      float64     `json:"alpha"`
	Stepped    bool        `json:"stepped"`
	Input      input.Frame `json:"input"`
}

// Hooks are the frame phases. Any may be nil.
type Hooks struct {
	BeginFrame  func(f *Frame)
	FixedUpdate func(f *Frame, dt float64)
	Update      func(f *Frame)
	LateUpdate  func(f *Frame)
	EndFrame    func(f *Frame)
}

// Stats are the frame counters.
type Stats struct {
	FPS        float64 `json:"fps"`
	FrameTime  float64 `json:"frameTimeMs"`
	FrameCount uint64  `json:"frameCount"`
	Elapsed    float64 `json:"elapsed"`
	FixedSteps uint64  `json:"fixedSteps"`
	Paused     bool    `json:"paused"`
	Running    bool    `json:"running"`
}

// Deps are the collaborators the scheduler writes system state into.
type Deps struct {
	Input  *input.State
	Vars   *variables.Store
	Logger *slog.Logger
}

// Scheduler is single-threaded; the Start loop serializes on the locker it
// is given.
type Scheduler struct {
	cfg    Config
	hooks  Hooks
	input  *input.State
	vars   *variables.Store
	logger *slog.Logger

	accumulator float64
	elapsed     float64
	frame       uint64
	fixedSteps  uint64
	paused      bool
	steps       int
	fps         float64
	frameTime   float64

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	now     func() time.Time
}

// New returns a scheduler. Missing dependencies are skipped at run time.
func New(cfg Config, hooks Hooks, deps Deps) *Scheduler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:    cfg.withDefaults(),
		hooks:  hooks,
		input:  deps.Input,
		vars:   deps.Vars,
		logger: logger,
		now:    time.Now,
	}
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config { return s.cfg }

// FixedDelta returns the fixed step in seconds.
func (s *Scheduler) FixedDelta() float64 { return 1 / s.cfg.FixedHz }

// DefineVariables declares the readonly global system variables.
func (s *Scheduler) DefineVariables() error {
	if s.vars == nil {
		return nil
	}
	defs := []variables.Definition{
		{Name: VarDelta, Type: variables.TypeNumber, Description: "scaled frame delta in seconds"},
		{Name: VarElapsed, Type: variables.TypeNumber, Description: "scaled seconds since play started"},
		{Name: VarFrame, Type: variables.TypeNumber, Description: "frame counter"},
		{Name: VarFixedDelta, Type: variables.TypeNumber, Description: "fixed step in seconds"},
		{Name: VarKeys, Type: variables.TypeArray, Description: "held keys"},
		{Name: VarPointer, Type: variables.TypeVec2, Description: "pointer position"},
	}
	for _, d := range defs {
		d.Scope = variables.ScopeGlobal
		d.Readonly = true
		if err := s.vars.Define(d); err != nil {
			return err
		}
	}
	return nil
}

// Tick runs one frame for realDelta seconds of wall time. It returns false
// without running anything while paused with no pending steps. A stepped
// frame advances exactly one fixed step and re-pauses once the step count
// reaches zero.
func (s *Scheduler) Tick(realDelta float64) (Frame, bool) {
	if s.paused && s.steps == 0 {
		return Frame{}, false
	}
	if realDelta < 0 {
		realDelta = 0
	}

	fixed := s.FixedDelta()
	f := Frame{RealDelta: realDelta, FixedDelta: fixed}
	if s.paused {
		s.steps--
		f.Stepped = true
		f.Delta = fixed
	} else {
		f.Delta = min(realDelta, s.cfg.MaxDelta) * s.cfg.TimeScale
	}

	s.frame++
	s.elapsed += f.Delta
	f.Number = s.frame
	f.Elapsed = s.elapsed
	if s.input != nil {
		f.Input = s.input.Sample()
	}
	s.writeVariables(&f)
	if s.hooks.BeginFrame != nil {
		s.hooks.BeginFrame(&f)
	}

	if f.Stepped {
		s.accumulator = 0
		s.fixedStep(&f, fixed)
	} else {
		s.accumulator += f.Delta
		for s.accumulator >= fixed && f.FixedSteps < s.cfg.MaxFixedSteps {
			s.accumulator -= fixed
			s.fixedStep(&f, fixed)
		}
		if s.accumulator >= fixed {
			s.logger.Debug("dropping fixed steps", "frame", f.Number, "backlog", s.accumulator)
			s.accumulator = 0
		}
	}

	if s.hooks.Update != nil {
		s.hooks.Update(&f)
	}
	if s.hooks.LateUpdate != nil {
		s.hooks.LateUpdate(&f)
	}
	f.Alpha = s.accumulator / fixed

	s.sampleStats(realDelta)
	if s.hooks.EndFrame != nil {
		s.hooks.EndFrame(&f)
	}
	return f, true
}

func (s *Scheduler) fixedStep(f *Frame, dt float64) {
	f.FixedSteps++
	s.fixedSteps++
	if s.hooks.FixedUpdate != nil {
		s.hooks.FixedUpdate(f, dt)
	}
}

func (s *Scheduler) writeVariables(f *Frame) {
	if s.vars == nil {
		return
	}
	set := func(name string, v value.Value) {
		if _, err := s.vars.Set(name, variables.ScopeGlobal, v, "", variables.SourceSystem); err != nil {
			s.logger.Warn("system variable write failed", "variable", name, "error", err)
		}
	}
	set(VarDelta, value.Number(f.Delta))
	set(VarElapsed, value.Number(f.Elapsed))
	set(VarFrame, value.Number(f.Number))
	set(VarFixedDelta, value.Number(f.FixedDelta))
	set(VarKeys, f.Input.Keys())
	set(VarPointer, f.Input.Pointer)
}

// sampleStats smooths fps exponentially over wall-clock deltas.
func (s *Scheduler) sampleStats(realDelta float64) {
	s.frameTime = realDelta * 1000
	if realDelta <= 0 {
		return
	}
	inst := 1 / realDelta
	if s.fps == 0 {
		s.fps = inst
		return
	}
	s.fps = s.fps*0.9 + inst*0.1
}

// Pause stops frames until Resume or Step.
func (s *Scheduler) Pause() {
	s.paused = true
	s.steps = 0
}

// Resume lets frames run freely again.
func (s *Scheduler) Resume() {
	s.paused = false
	s.steps = 0
}

// Paused reports whether free-running frames are suspended.
func (s *Scheduler) Paused() bool { return s.paused }

// Step queues n frames to run while paused. Each tick consumes one.
func (s *Scheduler) Step(n int) error {
	if !s.paused {
		return ErrNotPaused
	}
	if n > 0 {
		s.steps += n
	}
	return nil
}

// PendingSteps returns the frames still queued by Step.
func (s *Scheduler) PendingSteps() int { return s.steps }

// Reset zeroes the clock and counters and clears pause state.
func (s *Scheduler) Reset() {
	s.accumulator = 0
	s.elapsed = 0
	s.frame = 0
	s.fixedSteps = 0
	s.paused = false
	s.steps = 0
	s.fps = 0
	s.frameTime = 0
}

// Stats returns the frame counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		FPS:        s.fps,
		FrameTime:  s.frameTime,
		FrameCount: s.frame,
		Elapsed:    s.elapsed,
		FixedSteps: s.fixedSteps,
		Paused:     s.paused,
		Running:    s.running,
	}
}

// Start runs Tick from a ticker at TargetFPS on its own goroutine. Each
// tick holds lock, which must be the lock callers hold when they touch the
// scheduler or the components its hooks drive. Start and Stop must be
// called with lock held.
func (s *Scheduler) Start(lock sync.Locker) {
	if s.running {
		return
	}
	s.running = true
	stop := make(chan struct{})
	s.stopCh = stop
	interval := time.Duration(float64(time.Second) / s.cfg.TargetFPS)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		last := s.now()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				lock.Lock()
				select {
				case <-stop:
					lock.Unlock()
					return
				default:
				}
				now := s.now()
				s.Tick(now.Sub(last).Seconds())
				last = now
				lock.Unlock()
			}
		}
	}()
}

// Stop ends the Start loop. It does not wait for the goroutine, so it is
// safe to call with lock held; use Wait after releasing it.
func (s *Scheduler) Stop() {
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
}

// Running reports whether the Start loop is active.
func (s *Scheduler) Running() bool { return s.running }

// Wait blocks until a stopped loop goroutine has exited.
func (s *Scheduler) Wait() { s.wg.Wait() }
