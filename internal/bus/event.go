package bus

import (
	"time"

	"github.com/AaronLay10/SentientPlay/internal/value"
)

// Phase is the stage of an emission. Phases only move forward.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseBefore  Phase = "before"
	PhaseExecute Phase = "execute"
	PhaseAfter   Phase = "after"
)

func (p Phase) rank() int {
	switch p {
	case PhaseBefore:
		return 1
	case PhaseExecute:
		return 2
	case PhaseAfter:
		return 3
	}
	return 0
}

// Routing selects which handlers an event reaches.
type Routing string

const (
	// RouteLocal reaches the source's handlers and global handlers.
	RouteLocal Routing = "local"
	// RouteBubble reaches the source, then its ancestors nearest first, then
	// global handlers.
	RouteBubble Routing = "bubble"
	// RouteBus reaches every handler of the event type.
	RouteBus Routing = "bus"
	// RouteCapture reaches the root first and walks down to the source.
	RouteCapture Routing = "capture"
	// RouteBroadcast reaches the source and its descendants depth first.
	RouteBroadcast Routing = "broadcast"
	// RouteDirect reaches only the source's own handlers.
	RouteDirect Routing = "direct"
)

// Valid reports whether r is a known routing.
func (r Routing) Valid() bool {
	switch r {
	case RouteLocal, RouteBubble, RouteBus, RouteCapture, RouteBroadcast, RouteDirect:
		return true
	}
	return false
}

// Event is one emission travelling through the bus. The bus owns the phase;
// handlers use the methods below, which report whether they took effect.
type Event struct {
	Type       string
	ID         string
	Timestamp  time.Time
	Source     string
	Bubbles    bool
	Cancelable bool
	Routing    Routing

	// Err holds the first execute-phase failure.
	Err error

	data           value.Value
	phase          Phase
	cancelled      bool
	stopped        bool
	immediate      bool
	immediatePhase Phase
}

// NewEvent returns a bubbling, cancelable event from source.
func NewEvent(eventType, source string, data value.Value) *Event {
	return &Event{
		Type:       eventType,
		Source:     source,
		Bubbles:    true,
		Cancelable: true,
		Routing:    RouteBubble,
		data:       value.Or(data, value.Null{}),
		phase:      PhaseIdle,
	}
}

// Data returns the event payload.
func (e *Event) Data() value.Value {
	if e.data == nil {
		return value.Null{}
	}
	return e.data
}

// SetData replaces the payload. Only allowed before emission and during the
// before phase.
func (e *Event) SetData(v value.Value) bool {
	if e.phase != PhaseIdle && e.phase != PhaseBefore {
		return false
	}
	e.data = value.Or(v, value.Null{})
	return true
}

// Phase returns the current phase.
func (e *Event) Phase() Phase {
	if e.phase == "" {
		return PhaseIdle
	}
	return e.phase
}

// Cancel marks the event cancelled. It only takes effect for cancelable
// events during the before phase.
func (e *Event) Cancel() bool {
	if !e.Cancelable || e.phase != PhaseBefore {
		return false
	}
	e.cancelled = true
	return true
}

// Cancelled reports whether Cancel took effect.
func (e *Event) Cancelled() bool { return e.cancelled }

// StopPropagation stops traversal once the current level's handlers finish.
func (e *Event) StopPropagation() { e.stopped = true }

// StopImmediatePropagation also skips the remaining handlers at the current
// level in the current phase.
func (e *Event) StopImmediatePropagation() {
	e.stopped = true
	if !e.immediate {
		e.immediate = true
		e.immediatePhase = e.phase
	}
}

// PropagationStopped reports whether StopPropagation was called.
func (e *Event) PropagationStopped() bool { return e.stopped }

// ImmediatePropagationStopped reports whether StopImmediatePropagation was called.
func (e *Event) ImmediatePropagationStopped() bool { return e.immediate }

func (e *Event) advance(p Phase) bool {
	if p.rank() <= e.Phase().rank() {
		return false
	}
	e.phase = p
	return true
}
