// Package actions holds the built-in (component, method) handlers that
// action nodes dispatch to.
package actions

import (
	"errors"
	"fmt"

	"github.com/AaronLay10/SentientPlay/internal/bus"
	"github.com/AaronLay10/SentientPlay/internal/engine"
	"github.com/AaronLay10/SentientPlay/internal/scene"
	"github.com/AaronLay10/SentientPlay/internal/value"
)

// maxEmitDepth bounds events.emit re-entrancy, e.g. a graph that emits the
// signal it listens to.
const maxEmitDepth = 32

type builtins struct {
	emitDepth int
}

// Register adds every built-in handler to r.
func Register(r *engine.Registry) {
	b := &builtins{}

	r.MustRegister("transform", "translate", translate)
	r.MustRegister("transform", "setPosition", setPosition)
	r.MustRegister("transform", "getPosition", getPosition)
	r.MustRegister("transform", "tweenTo", b.tweenTo)

	r.MustRegister("math", "random", random)
	r.MustRegister("math", "add", arithmetic(func(a, b float64) float64 { return a + b }))
	r.MustRegister("math", "subtract", arithmetic(func(a, b float64) float64 { return a - b }))
	r.MustRegister("math", "multiply", arithmetic(func(a, b float64) float64 { return a * b }))
	r.MustRegister("math", "divide", divide)
	r.MustRegister("math", "clamp", clampNumber)
	r.MustRegister("math", "greaterThan", comparison(func(a, b float64) bool { return a > b }))
	r.MustRegister("math", "lessThan", comparison(func(a, b float64) bool { return a < b }))
	r.MustRegister("math", "equals", equals)
	r.MustRegister("math", "not", not)
	r.MustRegister("math", "and", logical(func(a, b bool) bool { return a && b }))
	r.MustRegister("math", "or", logical(func(a, b bool) bool { return a || b }))

	r.MustRegister("scene", "spawn", spawn)
	r.MustRegister("scene", "destroy", destroy)
	r.MustRegister("scene", "find", find)
	r.MustRegister("scene", "findByTag", findByTag)
	r.MustRegister("scene", "setProperty", setProperty)
	r.MustRegister("scene", "getProperty", getProperty)

	r.MustRegister("events", "emit", b.emit)
	r.MustRegister("debug", "log", debugLog)

	r.MustRegister("timers", "start", startTimer)
	r.MustRegister("timers", "cancel", cancelTimer)
}

// NewRegistry returns a registry holding the built-ins.
func NewRegistry() *engine.Registry {
	r := engine.NewRegistry()
	Register(r)
	return r
}

// deliver sends signal straight to entity's handlers.
func deliver(env *engine.Env, entity, signal string, payload value.Value) {
	if env.Bus == nil {
		return
	}
	evt := bus.NewEvent(signal, entity, payload)
	evt.Routing = bus.RouteDirect
	env.Bus.EmitSync(evt)
}

// ignoreMissing turns "entity not found" into a no-op; entities may be
// destroyed while a walk that addresses them is still running.
func ignoreMissing(err error) error {
	if errors.Is(err, scene.ErrNotFound) {
		return nil
	}
	return err
}

func required(c *engine.Call, name string) (string, error) {
	s := c.String(name, "")
	if s == "" {
		return "", fmt.Errorf("%s: missing input %q", c.NodeID, name)
	}
	return s, nil
}
