// Package engine interprets behavior graphs. One Runtime is bound to one
// entity; it walks flow edges depth-first from the signal nodes an event
// triggers and pulls data edges lazily. All runtimes share an Env.
package engine

import (
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/AaronLay10/SentientPlay/internal/bus"
	"github.com/AaronLay10/SentientPlay/internal/scene"
	"github.com/AaronLay10/SentientPlay/internal/timers"
	"github.com/AaronLay10/SentientPlay/internal/transform"
	"github.com/AaronLay10/SentientPlay/internal/tween"
	"github.com/AaronLay10/SentientPlay/internal/variables"
)

// DefaultMaxSteps bounds the nodes one activation may execute.
const DefaultMaxSteps = 10000

// Env is the shared runtime context. Its components are single-threaded;
// callers serialize access.
type Env struct {
	Vars       *variables.Store
	Bus        *bus.Bus
	Timers     *timers.Service
	Scene      *scene.Directory
	Transforms *transform.Cache
	Tweens     *tween.Manager
	Registry   *Registry
	Logger     *slog.Logger
	Rand       *rand.Rand

	// MaxSteps caps node executions per activation; 0 means DefaultMaxSteps.
	MaxSteps int

	// OnError receives execution errors that surface outside TriggerSignal,
	// such as failures after a delay resumes.
	OnError func(error)
}

// NewEnv wires a fresh set of components. The transform cache follows
// scene changes and tweens write into the scene.
func NewEnv(logger *slog.Logger) *Env {
	if logger == nil {
		logger = slog.Default()
	}
	dir := scene.NewDirectory()
	env := &Env{
		Vars:       variables.NewStore(logger),
		Bus:        bus.New(logger),
		Timers:     timers.New(logger),
		Scene:      dir,
		Transforms: transform.NewCache(dir),
		Tweens:     tween.NewManager(dir),
		Registry:   NewRegistry(),
		Logger:     logger,
		Rand:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5e17)),
	}
	dir.OnChange(env.Transforms.Apply)
	return env
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Env) maxSteps() int {
	if e.MaxSteps <= 0 {
		return DefaultMaxSteps
	}
	return e.MaxSteps
}

// Float returns a pseudo-random number in [0, 1).
func (e *Env) Float() float64 {
	if e.Rand == nil {
		return rand.Float64()
	}
	return e.Rand.Float64()
}

func (e *Env) report(err error) {
	e.logger().Error("behavior error", "error", err)
	if e.OnError != nil {
		e.OnError(err)
	}
}
