package engine

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/AaronLay10/SentientPlay/internal/graph"
	"github.com/AaronLay10/SentientPlay/internal/timers"
	"github.com/AaronLay10/SentientPlay/internal/value"
	"github.com/AaronLay10/SentientPlay/internal/variables"
)

// Stats counts work done by one runtime.
type Stats struct {
	Activations    uint64 `json:"activations"`
	NodesExecuted  uint64 `json:"nodesExecuted"`
	Errors         uint64 `json:"errors"`
	InFlightDelays int    `json:"inFlightDelays"`
}

// Runtime executes one graph on behalf of one entity. It keeps only flow
// bookkeeping: pending delays, loop cursors and the last outputs of nodes
// that ran through control flow. Variables live in Env.Vars.
type Runtime struct {
	entity   string
	graph    *graph.Graph
	env      *Env
	warnings []graph.Warning

	ctx      context.Context
	cancel   context.CancelFunc
	disposed bool

	delays  map[timers.ID]struct{}
	cursors map[string]*cursor
	outputs map[string]value.Object
	stats   Stats
}

// cursor walks a forEach collection. A numeric collection has no items;
// its elements are the indexes 0..count-1.
type cursor struct {
	items []value.Value
	count int
	index int
	item  value.Value
}

func newCursor(coll value.Value) *cursor {
	items, count := collectionOf(coll)
	return &cursor{items: items, count: count, item: value.Null{}}
}

func (c *cursor) at(i int) value.Value {
	if c.items == nil {
		return value.Number(i)
	}
	return c.items[i]
}

// New validates g and binds it to entityID. Graph variables are declared in
// env.Vars; validation warnings are logged and kept on the runtime.
func New(entityID string, g *graph.Graph, env *Env) (*Runtime, error) {
	if entityID == "" {
		return nil, errors.New("engine: entity id is required")
	}
	if g == nil || env == nil {
		return nil, errors.New("engine: graph and env are required")
	}
	warnings, err := graph.Validate(g)
	if err != nil {
		return nil, err
	}
	log := env.logger()
	for _, w := range warnings {
		log.Warn("graph warning", "graph", g.ID, "entity", entityID, "kind", w.Kind, "node", w.NodeID, "msg", w.Msg)
	}
	if env.Vars != nil {
		for _, decl := range g.Variables {
			if err := env.Vars.Define(decl.Definition()); err != nil {
				return nil, fmt.Errorf("graph %s: %w", g.ID, err)
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		entity:   entityID,
		graph:    g,
		env:      env,
		warnings: warnings,
		ctx:      ctx,
		cancel:   cancel,
		delays:   make(map[timers.ID]struct{}),
		cursors:  make(map[string]*cursor),
		outputs:  make(map[string]value.Object),
	}, nil
}

// Entity returns the bound entity id.
func (rt *Runtime) Entity() string { return rt.entity }

// Graph returns the executed graph.
func (rt *Runtime) Graph() *graph.Graph { return rt.graph }

// Warnings returns the validation warnings found at load.
func (rt *Runtime) Warnings() []graph.Warning { return rt.warnings }

// Listens reports whether the graph has a signal node for signal.
func (rt *Runtime) Listens(signal string) bool {
	return len(rt.graph.SignalNodes(signal)) > 0
}

// TriggerSignal starts one activation per signal node bound to signal, in
// node order. It returns once every walk has ended or suspended on a delay;
// delayed continuations resume from a later Timers.Update. A missing entity
// or a disposed runtime makes it a no-op. The first failure halts the
// remaining activations and is returned as an *ExecutionError; a cancelled
// ctx stops the walk between nodes and returns ctx.Err().
func (rt *Runtime) TriggerSignal(ctx context.Context, signal string, payload value.Value) error {
	if rt.disposed || !rt.alive() {
		return nil
	}
	nodes := rt.graph.SignalNodes(signal)
	if len(nodes) == 0 {
		return nil
	}
	if payload == nil {
		payload = value.Null{}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rt.stats.Activations++

	for _, n := range nodes {
		rt.outputs[n.ID] = value.Object{graph.PinPayload: payload}
		w := rt.newWalker(ctx, signal, payload)
		root := &group{pending: 1}
		err := w.follow(n, graph.PinOut, root)
		if err == nil {
			err = w.run()
		}
		if err != nil {
			if !isCancellation(err) {
				rt.stats.Errors++
			}
			return err
		}
	}
	return nil
}

// Dispose cancels pending delays and stops in-flight walks at their next
// node boundary. Later triggers are ignored.
func (rt *Runtime) Dispose() {
	if rt.disposed {
		return
	}
	rt.disposed = true
	rt.cancel()
	if rt.env.Timers != nil {
		for id := range rt.delays {
			rt.env.Timers.CancelID(id)
		}
	}
	rt.delays = make(map[timers.ID]struct{})
	rt.cursors = make(map[string]*cursor)
}

// Disposed reports whether Dispose has run.
func (rt *Runtime) Disposed() bool { return rt.disposed }

// Stats returns a copy of the counters.
func (rt *Runtime) Stats() Stats {
	s := rt.stats
	s.InFlightDelays = len(rt.delays)
	return s
}

// LastOutputs returns the outputs the node produced when it last ran
// through control flow.
func (rt *Runtime) LastOutputs(nodeID string) (value.Object, bool) {
	out, ok := rt.outputs[nodeID]
	if !ok {
		return nil, false
	}
	return value.Clone(out).(value.Object), true
}

func (rt *Runtime) alive() bool {
	return rt.env.Scene == nil || rt.env.Scene.Exists(rt.entity)
}

// resume continues a delayed token from nodeID's "out" pin.
func (rt *Runtime) resume(n *graph.Node, g *group, signal string, payload value.Value) {
	if rt.disposed || !rt.alive() {
		return
	}
	w := rt.newWalker(rt.ctx, signal, payload)
	err := w.follow(n, graph.PinOut, g)
	if err == nil {
		err = w.run()
	}
	if err != nil && !isCancellation(err) {
		rt.stats.Errors++
		rt.env.report(err)
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// getVariable reads name for a variable node. Without an explicit scope a
// local value wins, then node, scene and global.
func (rt *Runtime) getVariable(n *graph.Node) value.Value {
	vars := rt.env.Vars
	if vars == nil {
		return value.Null{}
	}
	if n.Scope != "" {
		v, _ := vars.Get(n.Name, n.Scope, rt.entity)
		return v
	}
	if v, ok := vars.Get(n.Name, variables.ScopeLocal, rt.entity); ok {
		return v
	}
	v, _, _ := vars.Resolve(n.Name, rt.entity)
	return v
}

// setVariable writes through a variable node. Without an explicit scope the
// write goes where a read would find the variable, else to node scope.
func (rt *Runtime) setVariable(n *graph.Node, v value.Value) (value.Value, error) {
	vars := rt.env.Vars
	if vars == nil {
		return v, nil
	}
	scope := n.Scope
	if scope == "" {
		scope = variables.ScopeNode
		if _, ok := vars.Get(n.Name, variables.ScopeLocal, rt.entity); ok {
			scope = variables.ScopeLocal
		} else if _, found, ok := vars.Resolve(n.Name, rt.entity); ok {
			scope = found
		}
	}
	return vars.Set(n.Name, scope, v, rt.entity, variables.SourceGraph)
}

// collectionOf expands a forEach collection: array elements, object values
// in key order, nothing for null, else the value itself. A number n counts
// 0..n-1 without materializing items; non-finite or negative counts are
// empty, and the walk's step budget bounds large ones.
func collectionOf(v value.Value) ([]value.Value, int) {
	switch c := v.(type) {
	case nil, value.Null:
		return nil, 0
	case value.Array:
		return append([]value.Value(nil), c...), len(c)
	case value.Object:
		keys := c.Keys()
		out := make([]value.Value, len(keys))
		for i, k := range keys {
			out[i] = c[k]
		}
		return out, len(out)
	case value.Number:
		f := float64(c)
		switch {
		case math.IsNaN(f) || f <= 0:
			return nil, 0
		case f >= math.MaxInt32:
			return nil, math.MaxInt32
		}
		return nil, int(f)
	default:
		return []value.Value{v}, 1
	}
}
