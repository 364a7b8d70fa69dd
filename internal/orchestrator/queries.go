package orchestrator

import (
	"time"

	"github.com/AaronLay10/SentientPlay/internal/engine"
	"github.com/AaronLay10/SentientPlay/internal/events"
	"github.com/AaronLay10/SentientPlay/internal/graph"
	"github.com/AaronLay10/SentientPlay/internal/scene"
	"github.com/AaronLay10/SentientPlay/internal/scheduler"
	"github.com/AaronLay10/SentientPlay/internal/transform"
	"github.com/AaronLay10/SentientPlay/internal/value"
	"github.com/AaronLay10/SentientPlay/internal/variables"
)

// Status is the play-mode summary.
type Status struct {
	State        State     `json:"state"`
	Session      string    `json:"session,omitempty"`
	StartedAt    time.Time `json:"startedAt,omitzero"`
	Uptime       float64   `json:"uptimeSeconds"`
	Frame        uint64    `json:"frame"`
	PendingSteps int       `json:"pendingSteps"`
	Behaviors    int       `json:"behaviors"`
	Manual       bool      `json:"manual"`
}

// EntityInfo is one row of the entity listing.
type EntityInfo struct {
	ID       string     `json:"id"`
	Name     string     `json:"name,omitempty"`
	Parent   string     `json:"parent,omitempty"`
	Behavior string     `json:"behavior,omitempty"`
	Tags     []string   `json:"tags,omitempty"`
	X        float64    `json:"x"`
	Y        float64    `json:"y"`
	World    value.Vec2 `json:"world"`
	Bound    bool       `json:"bound"`
}

// EntityDetail adds the entity's properties, children, node variables and
// behavior state.
type EntityDetail struct {
	EntityInfo
	Children  []string        `json:"children,omitempty"`
	Props     value.Object    `json:"props,omitempty"`
	Variables []Variable      `json:"variables,omitempty"`
	Runtime   *engine.Stats   `json:"runtime,omitempty"`
	Warnings  []graph.Warning `json:"warnings,omitempty"`
}

// Variable is one stored or declared value.
type Variable struct {
	Name     string          `json:"name"`
	Scope    variables.Scope `json:"scope"`
	Owner    string          `json:"owner,omitempty"`
	Type     variables.Type  `json:"type,omitempty"`
	Readonly bool            `json:"readonly,omitempty"`
	Value    value.Box       `json:"value"`
}

// Stats are the frame and runtime counters.
type Stats struct {
	FPS            float64         `json:"fps"`
	FrameTime      float64         `json:"frameTimeMs"`
	FrameCount     uint64          `json:"frameCount"`
	Elapsed        float64         `json:"elapsed"`
	FixedSteps     uint64          `json:"fixedSteps"`
	EntityCount    int             `json:"entityCount"`
	BehaviorCount  int             `json:"behaviorCount"`
	BusEvents      uint64          `json:"busEvents"`
	BusFailures    uint64          `json:"busFailures"`
	BehaviorErrors uint64          `json:"behaviorErrors"`
	Timers         int             `json:"timers"`
	Tweens         int             `json:"tweens"`
	Transforms     transform.Stats `json:"transforms"`
}

// Status reports the current state and session.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.unlock()
	st := Status{
		State:        o.state,
		Session:      o.session,
		Frame:        o.sched.Stats().FrameCount,
		PendingSteps: o.sched.PendingSteps(),
		Behaviors:    len(o.bindings),
		Manual:       o.manual,
	}
	if o.state != StateStopped {
		st.StartedAt = o.started
		st.Uptime = o.now().Sub(o.started).Seconds()
	}
	return st
}

// Entities lists the scene in tree order.
func (o *Orchestrator) Entities() []EntityInfo {
	o.mu.Lock()
	defer o.unlock()
	var out []EntityInfo
	o.env.Scene.Walk(func(e scene.Entity) bool {
		out = append(out, o.info(e))
		return true
	})
	return out
}

// Entity returns one entity's detail.
func (o *Orchestrator) Entity(id string) (EntityDetail, bool) {
	o.mu.Lock()
	defer o.unlock()
	e, ok := o.env.Scene.Get(id)
	if !ok {
		return EntityDetail{}, false
	}
	d := EntityDetail{
		EntityInfo: o.info(e),
		Children:   e.Children,
		Props:      e.Props,
		Variables:  o.ownedVariables(id),
	}
	if b, ok := o.bindings[id]; ok {
		st := b.rt.Stats()
		d.Runtime = &st
		d.Warnings = b.rt.Warnings()
	}
	return d, true
}

func (o *Orchestrator) info(e scene.Entity) EntityInfo {
	info := EntityInfo{
		ID:       e.ID,
		Name:     e.Name,
		Parent:   e.Parent,
		Behavior: e.Behavior,
		Tags:     e.Tags,
		X:        e.X,
		Y:        e.Y,
	}
	if o.env.Transforms != nil {
		info.World, _ = o.env.Transforms.GetWorldPosition(e.ID)
	}
	_, info.Bound = o.bindings[e.ID]
	return info
}

// Stats returns frame counters plus entity and behavior counts.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.unlock()
	ss := o.sched.Stats()
	st := Stats{
		FPS:            ss.FPS,
		FrameTime:      ss.FrameTime,
		FrameCount:     ss.FrameCount,
		Elapsed:        ss.Elapsed,
		FixedSteps:     ss.FixedSteps,
		EntityCount:    o.env.Scene.Len(),
		BehaviorCount:  len(o.bindings),
		BusEvents:      o.busEvents,
		BusFailures:    o.busFailures,
		BehaviorErrors: o.behaviorErrors,
	}
	if o.env.Timers != nil {
		st.Timers = o.env.Timers.Len()
	}
	if o.env.Tweens != nil {
		st.Tweens = o.env.Tweens.Len()
	}
	if o.env.Transforms != nil {
		st.Transforms = o.env.Transforms.Stats()
	}
	return st
}

// Variables lists every stored value plus declared defaults, sorted by
// scope, owner and name.
func (o *Orchestrator) Variables() []Variable {
	o.mu.Lock()
	defer o.unlock()
	entries := o.env.Vars.Entries()
	out := make([]Variable, 0, len(entries))
	for _, e := range entries {
		out = append(out, o.variable(e))
	}
	return out
}

func (o *Orchestrator) variable(e variables.Entry) Variable {
	v := Variable{Name: e.Name, Scope: e.Scope, Owner: e.Owner, Value: value.Box{V: e.Value}}
	if def, ok := o.env.Vars.Definition(e.Name, e.Scope); ok {
		v.Type = def.Type
		v.Readonly = def.Readonly
	}
	return v
}

// RecentEvents returns the last n journal events.
func (o *Orchestrator) RecentEvents(n int) []events.Event {
	return o.journal.Recent(n)
}

// LastFrame returns the most recently completed frame.
func (o *Orchestrator) LastFrame() scheduler.Frame {
	o.mu.Lock()
	defer o.unlock()
	return o.lastFrame
}
