package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/AaronLay10/SentientPlay/internal/value"
)

// Call is what an action handler sees: the bound entity, the node that
// invoked it, its resolved inputs and the shared environment.
type Call struct {
	Ctx     context.Context
	Env     *Env
	Entity  string
	GraphID string
	NodeID  string
	Inputs  value.Object
}

// Input returns the named input, or Null when it is absent.
func (c *Call) Input(name string) value.Value {
	if v, ok := c.Inputs[name]; ok && v != nil {
		return v
	}
	return value.Null{}
}

// Number returns the named input as a number, or def when it is absent or
// not numeric.
func (c *Call) Number(name string, def float64) float64 {
	if f, ok := value.AsNumber(c.Input(name)); ok {
		return f
	}
	return def
}

// String returns the named input as a string, or def when it is absent.
func (c *Call) String(name, def string) string {
	v := c.Input(name)
	if value.IsNull(v) {
		return def
	}
	return value.ToString(v)
}

// Target returns the entity the action addresses: an explicit "entity"
// input, or the bound entity.
func (c *Call) Target() string {
	switch v := c.Input("entity").(type) {
	case value.EntityRef:
		if v != "" {
			return string(v)
		}
	case value.String:
		if v != "" {
			return string(v)
		}
	}
	return c.Entity
}

// Logger returns the environment logger annotated with the call site.
func (c *Call) Logger() *slog.Logger {
	return c.Env.logger().With("entity", c.Entity, "graph", c.GraphID, "node", c.NodeID)
}

// Handler implements one (component, method) action. The returned object
// holds the node's outputs by pin name; it may be nil.
type Handler func(c *Call) (value.Object, error)

type actionKey struct {
	component string
	method    string
}

// Registry maps (component, method) pairs to handlers.
type Registry struct {
	handlers map[actionKey]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[actionKey]Handler)}
}

// Register adds a handler. Registering the same pair twice is an error.
func (r *Registry) Register(component, method string, h Handler) error {
	if component == "" || method == "" || h == nil {
		return fmt.Errorf("register action %q.%q: component, method and handler are required", component, method)
	}
	k := actionKey{component, method}
	if _, dup := r.handlers[k]; dup {
		return fmt.Errorf("action %s.%s already registered", component, method)
	}
	r.handlers[k] = h
	return nil
}

// MustRegister is Register that panics on error, for init-time tables.
func (r *Registry) MustRegister(component, method string, h Handler) {
	if err := r.Register(component, method, h); err != nil {
		panic(err)
	}
}

// Lookup returns the handler for the pair or an *UnknownActionError.
func (r *Registry) Lookup(component, method string) (Handler, error) {
	h, ok := r.handlers[actionKey{component, method}]
	if !ok {
		return nil, &UnknownActionError{Component: component, Method: method}
	}
	return h, nil
}

// Actions lists registered pairs as "component.method", sorted.
func (r *Registry) Actions() []string {
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k.component+"."+k.method)
	}
	sort.Strings(out)
	return out
}
