package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/AaronLay10/SentientPlay/internal/bus"
	"github.com/AaronLay10/SentientPlay/internal/engine"
	"github.com/AaronLay10/SentientPlay/internal/events"
	"github.com/AaronLay10/SentientPlay/internal/scene"
	"github.com/AaronLay10/SentientPlay/internal/scheduler"
	"github.com/AaronLay10/SentientPlay/internal/value"
	"github.com/AaronLay10/SentientPlay/internal/variables"
)

// bind creates the runtime for id's behavior and subscribes it, on id, to
// every signal its graph listens for. It reports whether id is bound.
func (o *Orchestrator) bind(id string) bool {
	if _, ok := o.bindings[id]; ok {
		return true
	}
	e, ok := o.env.Scene.Get(id)
	if !ok || e.Behavior == "" {
		return false
	}
	g, ok := o.graphs[e.Behavior]
	if !ok {
		o.behaviorError(id, e.Behavior, "", fmt.Errorf("entity %s: %w %q", id, ErrUnknownGraph, e.Behavior))
		return false
	}
	rt, err := engine.New(id, g, o.env)
	if err != nil {
		o.behaviorError(id, g.ID, "", err)
		return false
	}
	for _, w := range rt.Warnings() {
		o.emit(events.LevelWarn, "graph.warning", w.Msg, map[string]interface{}{
			"graph":  g.ID,
			"entity": id,
			"kind":   w.Kind,
			"node":   w.NodeID,
		})
	}

	b := &binding{rt: rt}
	for _, sig := range g.Signals() {
		b.unsubs = append(b.unsubs, o.env.Bus.Subscribe(sig, bus.PhaseExecute, func(evt *bus.Event) error {
			return o.deliver(rt, evt)
		}, bus.SubscribeOptions{OwnerID: id}))
	}
	o.bindings[id] = b
	o.order = append(o.order, id)
	o.emit(events.LevelDebug, "behavior.bound", "", map[string]interface{}{"entity": id, "graph": g.ID})
	return true
}

func (o *Orchestrator) unbind(id string) {
	b, ok := o.bindings[id]
	if !ok {
		return
	}
	for _, fn := range b.unsubs {
		fn()
	}
	b.rt.Dispose()
	delete(o.bindings, id)
	o.order = slices.DeleteFunc(o.order, func(x string) bool { return x == id })
	o.emit(events.LevelDebug, "behavior.unbound", "", map[string]interface{}{"entity": id, "graph": b.rt.Graph().ID})
}

// deliver runs one activation. The returned error lands on evt.Err; it
// never reaches other bindings.
func (o *Orchestrator) deliver(rt *engine.Runtime, evt *bus.Event) error {
	ctx := o.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	err := rt.TriggerSignal(ctx, evt.Type, evt.Data())
	if err != nil && !errors.Is(err, context.Canceled) {
		o.behaviorError(rt.Entity(), rt.Graph().ID, evt.Type, err)
	}
	return err
}

// signal sends name to id's binding through its own local-routed event.
func (o *Orchestrator) signal(id, name string, payload value.Value) *bus.Event {
	evt := bus.NewEvent(name, id, payload)
	evt.Routing = bus.RouteLocal
	evt.Bubbles = false
	return o.env.Bus.EmitSync(evt)
}

// broadcast signals every binding that listens for name, in bind order.
func (o *Orchestrator) broadcast(name string, payload value.Value) {
	for _, id := range slices.Clone(o.order) {
		b, ok := o.bindings[id]
		if !ok || !b.rt.Listens(name) {
			continue
		}
		o.signal(id, name, value.Clone(payload))
	}
}

func (o *Orchestrator) checkpoint(name string, payload value.Value) {
	evt := bus.NewEvent(name, "", payload)
	evt.Routing = bus.RouteBus
	evt.Bubbles = false
	evt.Cancelable = false
	o.env.Bus.EmitSync(evt)
}

func (o *Orchestrator) behaviorError(entity, graphID, signal string, err error) {
	o.behaviorErrors++
	fields := map[string]interface{}{
		"entity": entity,
		"graph":  graphID,
		"error":  err.Error(),
	}
	if signal != "" {
		fields["signal"] = signal
	}
	var ee *engine.ExecutionError
	if errors.As(err, &ee) && ee.NodeID != "" {
		fields["node"] = ee.NodeID
	}
	o.logger.Error("behavior error", "entity", entity, "graph", graphID, "signal", signal, "error", err)
	o.emit(events.LevelError, "behavior.error", "", fields)
}

// asyncError handles failures reported after a delay resumed.
func (o *Orchestrator) asyncError(err error) {
	var ee *engine.ExecutionError
	if errors.As(err, &ee) {
		o.behaviorError(ee.EntityID, ee.GraphID, "", err)
		return
	}
	o.behaviorError("", "", "", err)
}

func (o *Orchestrator) sceneChanged(c scene.Change) {
	switch c.Kind {
	case scene.ChangeSpawned:
		if c.Parent != "" {
			if err := o.env.Bus.SetParent(c.ID, c.Parent); err != nil {
				o.logger.Warn("bus hierarchy", "entity", c.ID, "error", err)
			}
		}
		if o.state == StateStopped || o.restoring {
			return
		}
		o.emit(events.LevelDebug, "entity.spawned", "", map[string]interface{}{"entity": c.ID, "parent": c.Parent})
		if o.bind(c.ID) {
			o.signal(c.ID, engine.SignalInit, value.Null{})
		}
	case scene.ChangeDestroyed:
		o.unbind(c.ID)
		o.env.Bus.RemoveEntity(c.ID)
		if o.env.Tweens != nil {
			o.env.Tweens.Cancel(c.ID)
		}
		if o.state == StateStopped || o.restoring {
			return
		}
		o.env.Vars.ClearOwner(c.ID)
		o.emit(events.LevelDebug, "entity.destroyed", "", map[string]interface{}{"entity": c.ID})
	case scene.ChangeReparented:
		if err := o.env.Bus.SetParent(c.ID, c.Parent); err != nil {
			o.logger.Warn("bus hierarchy", "entity", c.ID, "error", err)
		}
	}
}

func framePayload(f *scheduler.Frame, dt float64) value.Object {
	return value.Object{
		"delta":   value.Number(dt),
		"frame":   value.Number(f.Number),
		"elapsed": value.Number(f.Elapsed),
	}
}

func (o *Orchestrator) beginFrame(f *scheduler.Frame) {
	if o.env.Transforms != nil {
		o.env.Transforms.BeginFrame()
	}
	for _, e := range f.Input.Edges {
		sig := engine.SignalKeyUp
		if e.Down {
			sig = engine.SignalKeyDown
		}
		o.broadcast(sig, value.Object{"key": value.String(e.Key)})
	}
}

func (o *Orchestrator) fixedUpdate(f *scheduler.Frame, dt float64) {
	if o.env.Timers != nil {
		o.env.Timers.Update(dt)
	}
	if o.env.Tweens != nil {
		o.env.Tweens.Update(dt)
	}
	payload := framePayload(f, dt)
	o.checkpoint(CheckpointFixedUpdate, payload)
	o.broadcast(engine.SignalFixedUpdate, payload)
}

func (o *Orchestrator) update(f *scheduler.Frame) {
	payload := framePayload(f, f.Delta)
	o.checkpoint(CheckpointUpdate, payload)
	o.broadcast(engine.SignalUpdate, payload)
}

func (o *Orchestrator) lateUpdate(f *scheduler.Frame) {
	payload := framePayload(f, f.Delta)
	o.checkpoint(CheckpointLateUpdate, payload)
	o.broadcast(engine.SignalLateUpdate, payload)
}

// endFrame sends Destroy to bound entities queued for deferred destruction,
// applies the queue and notifies frame listeners.
func (o *Orchestrator) endFrame(f *scheduler.Frame) {
	for _, id := range o.env.Scene.PendingDestroy() {
		if _, ok := o.bindings[id]; ok {
			o.signal(id, engine.SignalDestroy, value.Null{})
		}
	}
	o.env.Scene.FlushDestroyed()

	o.lastFrame = *f
	for _, l := range slices.Clone(o.frameListeners) {
		l.fn(*f)
	}
}

// ownedVariables returns the node-scope values owned by id.
func (o *Orchestrator) ownedVariables(id string) []Variable {
	var out []Variable
	for _, e := range o.env.Vars.ExportScope(variables.ScopeNode) {
		if e.Owner == id {
			out = append(out, o.variable(e))
		}
	}
	return out
}
