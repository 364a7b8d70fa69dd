package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/AaronLay10/SentientPlay/internal/graph"
	"github.com/AaronLay10/SentientPlay/internal/timers"
	"github.com/AaronLay10/SentientPlay/internal/value"
	"github.com/AaronLay10/SentientPlay/internal/variables"
)

// group counts the live tokens of one fork. onDone runs once, when the last
// token ends, on whichever walker ended it.
type group struct {
	pending int
	done    bool
	onDone  func(w *walker) error
}

type task struct {
	node  string
	group *group
}

// walker runs one activation, or one resumed continuation of it, until its
// stack is empty.
type walker struct {
	rt      *Runtime
	ctx     context.Context
	signal  string
	payload value.Value
	stack   []task
	steps   int
	pulling map[string]bool
}

func (rt *Runtime) newWalker(ctx context.Context, signal string, payload value.Value) *walker {
	return &walker{rt: rt, ctx: ctx, signal: signal, payload: payload, pulling: make(map[string]bool)}
}

func (w *walker) run() error {
	for len(w.stack) > 0 {
		if err := w.ctx.Err(); err != nil {
			return err
		}
		if err := w.rt.ctx.Err(); err != nil {
			return err
		}
		t := w.stack[len(w.stack)-1]
		w.stack = w.stack[:len(w.stack)-1]
		if err := w.exec(t); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) fail(n *graph.Node, err error) error {
	if ee, ok := err.(*ExecutionError); ok {
		return ee
	}
	return &ExecutionError{GraphID: w.rt.graph.ID, EntityID: w.rt.entity, NodeID: n.ID, Err: err}
}

func (w *walker) step(n *graph.Node) error {
	w.steps++
	if w.steps > w.rt.env.maxSteps() {
		return w.fail(n, fmt.Errorf("%w (%d)", ErrStepLimit, w.rt.env.maxSteps()))
	}
	w.rt.stats.NodesExecuted++
	return nil
}

// follow moves the token leaving n's pin to every edge on it. Extra edges
// fork the token inside the same group; the first edge runs first.
func (w *walker) follow(n *graph.Node, pin string, g *group) error {
	edges := w.rt.graph.FlowTargets(n.ID, pin)
	if len(edges) == 0 {
		return w.end(g)
	}
	g.pending += len(edges) - 1
	for i := len(edges) - 1; i >= 0; i-- {
		w.stack = append(w.stack, task{node: edges[i].To, group: g})
	}
	return nil
}

func (w *walker) end(g *group) error {
	g.pending--
	if g.pending > 0 || g.done {
		return nil
	}
	g.done = true
	if g.onDone != nil {
		return g.onDone(w)
	}
	return nil
}

func (w *walker) exec(t task) error {
	n, ok := w.rt.graph.Node(t.node)
	if !ok {
		return &ExecutionError{GraphID: w.rt.graph.ID, EntityID: w.rt.entity, NodeID: t.node, Err: fmt.Errorf("unknown node %q", t.node)}
	}
	if err := w.step(n); err != nil {
		return err
	}

	switch n.Kind {
	case graph.KindAction:
		out, err := w.invoke(n)
		if err != nil {
			return w.fail(n, err)
		}
		w.rt.outputs[n.ID] = out
		if !n.Continue {
			return w.end(t.group)
		}
		return w.follow(n, graph.PinOut, t.group)

	case graph.KindBranch:
		ok, err := w.condition(n)
		if err != nil {
			return w.fail(n, err)
		}
		pin := graph.PinFalse
		if ok {
			pin = graph.PinTrue
		}
		return w.follow(n, pin, t.group)

	case graph.KindVariable:
		v, err := w.input(n, graph.PinValue)
		if err != nil {
			return w.fail(n, err)
		}
		stored, err := w.rt.setVariable(n, v)
		if err != nil {
			return w.fail(n, err)
		}
		w.rt.outputs[n.ID] = value.Object{graph.PinValue: stored}
		return w.follow(n, graph.PinOut, t.group)

	case graph.KindFlow:
		switch n.Flow {
		case graph.FlowSequence:
			return w.sequence(n, t.group)
		case graph.FlowDelay:
			return w.delay(n, t.group)
		case graph.FlowForEach:
			return w.forEach(n, t.group)
		case graph.FlowParallel:
			return w.parallel(n, t.group)
		}
	}
	return w.follow(n, graph.PinOut, t.group)
}

// sequence runs then0..thenN-1 in order; each subtree finishes, or
// suspends on a delay, before the next starts.
func (w *walker) sequence(n *graph.Node, g *group) error {
	var edges []graph.Edge
	for i := 0; i < n.Count; i++ {
		edges = append(edges, w.rt.graph.FlowTargets(n.ID, graph.ThenPin(i))...)
	}
	if len(edges) == 0 {
		return w.end(g)
	}
	g.pending += len(edges) - 1
	for i := len(edges) - 1; i >= 0; i-- {
		w.stack = append(w.stack, task{node: edges[i].To, group: g})
	}
	return nil
}

// delay parks the token on a timer; it resumes from a later frame.
func (w *walker) delay(n *graph.Node, g *group) error {
	v, err := w.input(n, graph.PinDuration)
	if err != nil {
		return w.fail(n, err)
	}
	seconds, ok := value.AsNumber(v)
	if !ok {
		seconds = n.Duration
	}
	rt := w.rt
	if rt.env.Timers == nil {
		return w.fail(n, fmt.Errorf("delay needs a timer service"))
	}
	signal, payload := w.signal, w.payload
	var id timers.ID
	id = rt.env.Timers.After(seconds, func() {
		delete(rt.delays, id)
		rt.resume(n, g, signal, payload)
	})
	rt.delays[id] = struct{}{}
	return nil
}

// forEach runs the body once per item, waiting for each iteration's
// tokens (delays included) before binding the next item.
func (w *walker) forEach(n *graph.Node, g *group) error {
	coll, err := w.input(n, graph.PinCollect)
	if err != nil {
		return w.fail(n, err)
	}
	c := newCursor(coll)
	w.rt.cursors[n.ID] = c
	return w.iterate(n, c, g)
}

func (w *walker) iterate(n *graph.Node, c *cursor, parent *group) error {
	body := w.rt.graph.FlowTargets(n.ID, graph.PinBody)
	for c.index < c.count {
		if c.index > 0 {
			if err := w.step(n); err != nil {
				return err
			}
		}
		c.item = c.at(c.index)
		if err := w.bindItem(n, c); err != nil {
			return w.fail(n, err)
		}
		if len(body) == 0 {
			c.index++
			continue
		}
		sub := &group{pending: len(body), onDone: func(w *walker) error {
			c.index++
			return w.iterate(n, c, parent)
		}}
		for i := len(body) - 1; i >= 0; i-- {
			w.stack = append(w.stack, task{node: body[i].To, group: sub})
		}
		return nil
	}
	if w.rt.cursors[n.ID] == c {
		delete(w.rt.cursors, n.ID)
	}
	return w.follow(n, graph.PinCompleted, parent)
}

func (w *walker) bindItem(n *graph.Node, c *cursor) error {
	vars := w.rt.env.Vars
	if vars == nil {
		return nil
	}
	if _, err := vars.Set(n.ItemVariable, variables.ScopeLocal, c.item, w.rt.entity, variables.SourceGraph); err != nil {
		return err
	}
	_, err := vars.Set(n.ItemVariable+"Index", variables.ScopeLocal, value.Number(c.index), w.rt.entity, variables.SourceGraph)
	return err
}

// parallel forks one token per branch edge, each in its own group. The
// node's own token continues along "completed" once all branches (join
// all) or the first branch (join any) have ended.
func (w *walker) parallel(n *graph.Node, parent *group) error {
	var edges []graph.Edge
	for i := 0; i < n.Count; i++ {
		edges = append(edges, w.rt.graph.FlowTargets(n.ID, graph.BranchPin(i))...)
	}
	if len(edges) == 0 {
		return w.follow(n, graph.PinCompleted, parent)
	}
	remaining := len(edges)
	joined := false
	branchDone := func(w *walker) error {
		remaining--
		if joined {
			return nil
		}
		if n.Join == graph.JoinAny || remaining == 0 {
			joined = true
			return w.follow(n, graph.PinCompleted, parent)
		}
		return nil
	}
	for i := len(edges) - 1; i >= 0; i-- {
		w.stack = append(w.stack, task{node: edges[i].To, group: &group{pending: 1, onDone: branchDone}})
	}
	return nil
}

func (w *walker) condition(n *graph.Node) (bool, error) {
	if _, wired := w.rt.graph.DataSource(n.ID, graph.PinCondition); wired {
		v, err := w.input(n, graph.PinCondition)
		if err != nil {
			return false, err
		}
		return value.Truthy(v), nil
	}
	if n.Expr != "" {
		return EvalCondition(n.Expr, w.lookup), nil
	}
	return value.Truthy(n.Condition), nil
}

// lookup resolves names in branch expressions: payload paths, the signal
// name, then variables.
func (w *walker) lookup(name string) (value.Value, bool) {
	if name == "payload" || strings.HasPrefix(name, "payload.") {
		v := w.payload
		for _, part := range strings.Split(name, ".")[1:] {
			obj, ok := v.(value.Object)
			if !ok {
				return value.Null{}, false
			}
			if v, ok = obj[part]; !ok {
				return value.Null{}, false
			}
		}
		return v, true
	}
	vars := w.rt.env.Vars
	if vars != nil {
		if v, ok := vars.Get(name, variables.ScopeLocal, w.rt.entity); ok {
			return v, true
		}
		if v, _, ok := vars.Resolve(name, w.rt.entity); ok {
			return v, true
		}
	}
	if name == "signal" || name == "event" {
		return value.String(w.signal), true
	}
	return value.Null{}, false
}

// input resolves one value input: the wired data edge, pulled now, or the
// node's static value.
func (w *walker) input(n *graph.Node, pin string) (value.Value, error) {
	if e, ok := w.rt.graph.DataSource(n.ID, pin); ok {
		return w.pull(e.From, e.FromPin)
	}
	return staticInput(n, pin), nil
}

func staticInput(n *graph.Node, pin string) value.Value {
	var v value.Value
	switch n.Kind {
	case graph.KindAction:
		v = n.Inputs[pin]
	case graph.KindBranch:
		v = n.Condition
	case graph.KindFlow:
		switch n.Flow {
		case graph.FlowDelay:
			v = value.Number(n.Duration)
		case graph.FlowForEach:
			v = n.Collection
		}
	case graph.KindVariable:
		v = n.Value
	}
	if v == nil {
		return value.Null{}
	}
	return value.Clone(v)
}

// pull evaluates nodeID's output pin. Nodes without an incoming flow edge
// are evaluated on every pull; the rest report their last outputs.
func (w *walker) pull(nodeID, pin string) (value.Value, error) {
	n, ok := w.rt.graph.Node(nodeID)
	if !ok {
		return value.Null{}, fmt.Errorf("unknown node %q", nodeID)
	}
	if w.pulling[nodeID] {
		return value.Null{}, w.fail(n, ErrDataCycle)
	}

	switch n.Kind {
	case graph.KindAction:
		if !w.rt.graph.Pulled(nodeID) {
			return w.last(nodeID, pin), nil
		}
		if err := w.step(n); err != nil {
			return value.Null{}, err
		}
		w.pulling[nodeID] = true
		out, err := w.invoke(n)
		delete(w.pulling, nodeID)
		if err != nil {
			return value.Null{}, w.fail(n, err)
		}
		return value.Or(out[pin], value.Null{}), nil

	case graph.KindVariable:
		switch n.Op {
		case graph.OpConstant:
			return staticInput(n, graph.PinValue), nil
		case graph.OpGet:
			return w.rt.getVariable(n), nil
		default:
			if out, ok := w.rt.outputs[nodeID]; ok {
				return value.Clone(value.Or(out[pin], value.Null{})), nil
			}
			return w.rt.getVariable(n), nil
		}

	case graph.KindFlow:
		c, ok := w.rt.cursors[nodeID]
		if !ok {
			return value.Null{}, nil
		}
		if pin == graph.PinIndex {
			return value.Number(c.index), nil
		}
		return value.Clone(c.item), nil
	}
	return w.last(nodeID, pin), nil
}

func (w *walker) last(nodeID, pin string) value.Value {
	out, ok := w.rt.outputs[nodeID]
	if !ok {
		return value.Null{}
	}
	return value.Clone(value.Or(out[pin], value.Null{}))
}

// invoke resolves an action's inputs and calls its handler. A handler panic
// becomes an error.
func (w *walker) invoke(n *graph.Node) (out value.Object, err error) {
	if w.rt.env.Registry == nil {
		return nil, &UnknownActionError{Component: n.Component, Method: n.Method}
	}
	h, err := w.rt.env.Registry.Lookup(n.Component, n.Method)
	if err != nil {
		return nil, err
	}
	inputs := make(value.Object)
	for _, pin := range n.ValueIn() {
		v, err := w.input(n, pin)
		if err != nil {
			return nil, err
		}
		inputs[pin] = v
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("action %s.%s panicked: %v", n.Component, n.Method, r)
		}
	}()
	out, err = h(&Call{
		Ctx:     w.ctx,
		Env:     w.rt.env,
		Entity:  w.rt.entity,
		GraphID: w.rt.graph.ID,
		NodeID:  n.ID,
		Inputs:  inputs,
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = value.Object{}
	}
	return out, nil
}
