// Package bus is the triple-phase event bus. Every emission runs before,
// execute and after phases over the handlers its routing selects. The after
// phase always runs, even when the event was cancelled or execute failed.
//
// A Bus is not safe for concurrent use; it is driven from the frame thread.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadyEmitted is returned when an event is emitted twice.
var ErrAlreadyEmitted = errors.New("event already emitted")

// Handler runs synchronously. A returned error is recorded on the event
// during the execute phase and logged otherwise.
type Handler func(*Event) error

// Pending completes an async handler. It yields one error (or nil) or is
// closed. Producers should buffer it so an unobserved result never blocks.
type Pending <-chan error

// AsyncHandler may hand back a Pending result for Emit to await.
type AsyncHandler func(*Event) Pending

// SubscribeOptions binds a handler to an entity and orders it.
type SubscribeOptions struct {
	// OwnerID is the entity the handler listens on. Empty means global.
	OwnerID string
	// Priority orders handlers within a phase, highest first.
	Priority int
}

type tap struct {
	id int
	fn func(*Event)
}

type handlerKey struct {
	eventType string
	phase     Phase
}

type registration struct {
	id       int
	owner    string
	priority int
	sync     Handler
	async    AsyncHandler
	removed  bool
}

// Bus dispatches events to subscribed handlers.
type Bus struct {
	handlers map[handlerKey][]*registration
	parent   map[string]string
	children map[string][]string
	taps     []tap
	nextID   int

	logger *slog.Logger
	newID  func() string
	now    func() time.Time
}

// New creates an empty bus. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[handlerKey][]*registration),
		parent:   make(map[string]string),
		children: make(map[string][]string),
		logger:   logger,
		newID:    newEventID,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// SetIDGenerator replaces the event id source. Used by tests for stable ids.
func (b *Bus) SetIDGenerator(fn func() string) {
	if fn != nil {
		b.newID = fn
	}
}

// SetClock replaces the timestamp source.
func (b *Bus) SetClock(fn func() time.Time) {
	if fn != nil {
		b.now = fn
	}
}

// Subscribe registers a synchronous handler and returns its unsubscribe func.
func (b *Bus) Subscribe(eventType string, phase Phase, h Handler, opts SubscribeOptions) func() {
	return b.add(eventType, phase, &registration{owner: opts.OwnerID, priority: opts.Priority, sync: h})
}

// SubscribeAsync registers a handler whose result Emit awaits before moving on.
func (b *Bus) SubscribeAsync(eventType string, phase Phase, h AsyncHandler, opts SubscribeOptions) func() {
	return b.add(eventType, phase, &registration{owner: opts.OwnerID, priority: opts.Priority, async: h})
}

func (b *Bus) add(eventType string, phase Phase, reg *registration) func() {
	b.nextID++
	reg.id = b.nextID
	key := handlerKey{eventType, phase}
	list := append(b.handlers[key], reg)
	sort.SliceStable(list, func(i, j int) bool { return list[i].priority > list[j].priority })
	b.handlers[key] = list

	return func() {
		if reg.removed {
			return
		}
		reg.removed = true
		b.handlers[key] = removeRegistration(b.handlers[key], reg)
	}
}

func removeRegistration(list []*registration, reg *registration) []*registration {
	for i, r := range list {
		if r == reg {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

// Tap registers an observer called once after every emission completes.
func (b *Bus) Tap(fn func(*Event)) func() {
	b.nextID++
	id := b.nextID
	b.taps = append(b.taps, tap{id: id, fn: fn})
	return func() {
		for i, t := range b.taps {
			if t.id == id {
				b.taps = append(b.taps[:i:i], b.taps[i+1:]...)
				return
			}
		}
	}
}

// HandlerCount returns the number of live registrations.
func (b *Bus) HandlerCount() int {
	n := 0
	for _, list := range b.handlers {
		n += len(list)
	}
	return n
}

// Emit runs all three phases and waits for pending async handlers in order.
// Handler failures are reported on evt.Err; the returned error is only set
// when the event cannot be emitted or ctx ends while waiting. The after phase
// runs even then, without waiting.
func (b *Bus) Emit(ctx context.Context, evt *Event) (*Event, error) {
	if evt.Phase() != PhaseIdle {
		return evt, fmt.Errorf("%w: %s %s", ErrAlreadyEmitted, evt.Type, evt.ID)
	}
	d := &dispatch{bus: b, ctx: ctx, await: true}
	d.run(evt)
	return evt, d.ctxErr
}

// EmitSync runs all three phases without waiting. A handler that returns a
// pending result is logged and its result drained in the background.
func (b *Bus) EmitSync(evt *Event) *Event {
	if evt.Phase() != PhaseIdle {
		b.logger.Warn("event already emitted", "event_type", evt.Type, "event_id", evt.ID)
		return evt
	}
	d := &dispatch{bus: b, ctx: context.Background()}
	d.run(evt)
	return evt
}

type level struct {
	owner  string
	global bool
	all    bool
}

type dispatch struct {
	bus    *Bus
	ctx    context.Context
	await  bool
	ctxErr error
}

func (d *dispatch) run(evt *Event) {
	b := d.bus
	if evt.ID == "" {
		evt.ID = b.newID()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = b.now()
	}
	if evt.Routing == "" {
		evt.Routing = RouteBubble
	}

	levels := b.levels(evt)
	limit := len(levels)

	evt.advance(PhaseBefore)
	limit = d.phase(evt, levels[:limit])

	if !evt.cancelled {
		evt.advance(PhaseExecute)
		limit = d.phase(evt, levels[:limit])
	}

	evt.advance(PhaseAfter)
	d.phase(evt, levels[:limit])

	for _, t := range append([]tap(nil), b.taps...) {
		t.fn(evt)
	}
}

// phase runs one phase over levels and returns how many levels later phases
// may visit. Only stopPropagation narrows that reach.
func (d *dispatch) phase(evt *Event, levels []level) int {
	for i, lvl := range levels {
		for _, reg := range d.bus.matching(evt.Type, evt.phase, lvl) {
			if reg.removed {
				continue
			}
			if evt.immediate && evt.immediatePhase == evt.phase {
				break
			}
			err := d.call(evt, reg)
			if err == nil {
				continue
			}
			if evt.phase == PhaseExecute {
				if evt.Err == nil {
					evt.Err = err
				}
				// A failed execute ends the phase but leaves the after
				// phase the same reach as before.
				if evt.stopped {
					return i + 1
				}
				return len(levels)
			}
			d.bus.logger.Warn("event handler failed",
				"event_type", evt.Type, "event_id", evt.ID, "phase", string(evt.phase), "error", err)
		}
		if evt.stopped {
			return i + 1
		}
	}
	return len(levels)
}

func (d *dispatch) call(evt *Event, reg *registration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	if reg.sync != nil {
		return reg.sync(evt)
	}
	p := reg.async(evt)
	if p == nil {
		return nil
	}
	if !d.await || d.ctxErr != nil {
		d.bus.logger.Warn("async handler result not awaited",
			"event_type", evt.Type, "event_id", evt.ID, "phase", string(evt.phase))
		go drain(p)
		return nil
	}
	select {
	case err := <-p:
		return err
	case <-d.ctx.Done():
		d.ctxErr = d.ctx.Err()
		go drain(p)
		return nil
	}
}

func drain(p Pending) {
	for range p {
	}
}

// matching returns a snapshot of the handlers for one level.
func (b *Bus) matching(eventType string, phase Phase, lvl level) []*registration {
	list := b.handlers[handlerKey{eventType, phase}]
	if lvl.all {
		return append([]*registration(nil), list...)
	}
	var out []*registration
	for _, r := range list {
		if (lvl.global && r.owner == "") || (!lvl.global && r.owner == lvl.owner) {
			out = append(out, r)
		}
	}
	return out
}

// levels lists the traversal order for evt's routing.
func (b *Bus) levels(evt *Event) []level {
	global := level{global: true}
	if evt.Routing == RouteBus {
		return []level{{all: true}}
	}
	if evt.Source == "" {
		return []level{global}
	}
	src := level{owner: evt.Source}

	switch evt.Routing {
	case RouteDirect:
		return []level{src}
	case RouteLocal:
		return []level{src, global}
	case RouteCapture:
		chain := b.Ancestors(evt.Source)
		out := make([]level, 0, len(chain)+2)
		for i := len(chain) - 1; i >= 0; i-- {
			out = append(out, level{owner: chain[i]})
		}
		return append(out, src, global)
	case RouteBroadcast:
		var out []level
		b.walk(evt.Source, func(id string) { out = append(out, level{owner: id}) })
		return append(out, global)
	default:
		if !evt.Bubbles {
			return []level{src, global}
		}
		out := []level{src}
		for _, id := range b.Ancestors(evt.Source) {
			out = append(out, level{owner: id})
		}
		return append(out, global)
	}
}

func (b *Bus) walk(id string, fn func(string)) {
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(cur)
		kids := b.children[cur]
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
}

// SetParent links child under parent for bubbling. An empty parent detaches.
func (b *Bus) SetParent(child, parent string) error {
	if child == "" {
		return fmt.Errorf("set parent: empty child id")
	}
	if parent == child {
		return fmt.Errorf("set parent: %s cannot be its own parent", child)
	}
	for _, id := range b.Ancestors(parent) {
		if id == child {
			return fmt.Errorf("set parent: %s is an ancestor of %s", child, parent)
		}
	}
	b.detach(child)
	if parent != "" {
		b.parent[child] = parent
		b.children[parent] = append(b.children[parent], child)
	}
	return nil
}

func (b *Bus) detach(child string) {
	old, ok := b.parent[child]
	if !ok {
		return
	}
	delete(b.parent, child)
	kids := b.children[old]
	for i, k := range kids {
		if k == child {
			b.children[old] = append(kids[:i:i], kids[i+1:]...)
			break
		}
	}
	if len(b.children[old]) == 0 {
		delete(b.children, old)
	}
}

// Parent returns the bubbling parent of id.
func (b *Bus) Parent(id string) (string, bool) {
	p, ok := b.parent[id]
	return p, ok
}

// Ancestors returns id's ancestors, nearest first. id itself is excluded.
func (b *Bus) Ancestors(id string) []string {
	var out []string
	seen := map[string]bool{id: true}
	for {
		p, ok := b.parent[id]
		if !ok || seen[p] {
			return out
		}
		seen[p] = true
		out = append(out, p)
		id = p
	}
}

// RemoveEntity drops id's handlers and hierarchy links. Its children become roots.
func (b *Bus) RemoveEntity(id string) {
	for key, list := range b.handlers {
		kept := list[:0:0]
		for _, r := range list {
			if r.owner == id {
				r.removed = true
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(b.handlers, key)
		} else {
			b.handlers[key] = kept
		}
	}
	b.detach(id)
	for _, kid := range b.children[id] {
		delete(b.parent, kid)
	}
	delete(b.children, id)
}

// Clear removes every handler, tap and hierarchy link.
func (b *Bus) Clear() {
	for _, list := range b.handlers {
		for _, r := range list {
			r.removed = true
		}
	}
	b.handlers = make(map[handlerKey][]*registration)
	b.parent = make(map[string]string)
	b.children = make(map[string][]string)
	b.taps = nil
}
