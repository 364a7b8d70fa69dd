// Package input holds host-fed input state. Hosts report key and pointer
// changes from any goroutine; the frame scheduler samples the state once per
// frame so a whole frame sees one consistent view.
package input

import (
	"sort"
	"sync"

	"github.com/AaronLay10/SentientPlay/internal/value"
)

// Edge is one key transition reported since the previous sample.
type Edge struct {
	Key  string `json:"key"`
	Down bool   `json:"down"`
}

// Frame is the sampled input for one frame.
type Frame struct {
	Held    []string   `json:"held"`
	Edges   []Edge     `json:"edges,omitempty"`
	Pointer value.Vec2 `json:"pointer"`
	Buttons []int      `json:"buttons,omitempty"`
}

// Keys returns the held keys as a Value array.
func (f Frame) Keys() value.Array {
	out := make(value.Array, len(f.Held))
	for i, k := range f.Held {
		out[i] = value.String(k)
	}
	return out
}

// Pressed returns the keys that went down during the frame, in order.
func (f Frame) Pressed() []string { return f.filter(true) }

// Released returns the keys that went up during the frame, in order.
func (f Frame) Released() []string { return f.filter(false) }

func (f Frame) filter(down bool) []string {
	var out []string
	for _, e := range f.Edges {
		if e.Down == down {
			out = append(out, e.Key)
		}
	}
	return out
}

// State accumulates host input between samples.
type State struct {
	mu      sync.Mutex
	held    map[string]bool
	edges   []Edge
	pointer value.Vec2
	buttons map[int]bool
}

// New returns an empty state.
func New() *State {
	return &State{held: make(map[string]bool), buttons: make(map[int]bool)}
}

// KeyDown records a press. Repeats while held are ignored.
func (s *State) KeyDown(key string) {
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held[key] {
		return
	}
	s.held[key] = true
	s.edges = append(s.edges, Edge{Key: key, Down: true})
}

// KeyUp records a release of a held key.
func (s *State) KeyUp(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.held[key] {
		return
	}
	delete(s.held, key)
	s.edges = append(s.edges, Edge{Key: key, Down: false})
}

// SetPointer records the pointer position in scene coordinates.
func (s *State) SetPointer(x, y float64) {
	s.mu.Lock()
	s.pointer = value.Vec2{X: x, Y: y}
	s.mu.Unlock()
}

// SetButton records a pointer button state; 0 is the primary button.
func (s *State) SetButton(button int, down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if down {
		s.buttons[button] = true
	} else {
		delete(s.buttons, button)
	}
}

// IsDown reports whether key is currently held.
func (s *State) IsDown(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held[key]
}

// Sample returns the current state and the edges since the last sample,
// then clears the edges.
func (s *State) Sample() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := Frame{Pointer: s.pointer, Edges: s.edges}
	s.edges = nil
	for k := range s.held {
		f.Held = append(f.Held, k)
	}
	sort.Strings(f.Held)
	for b := range s.buttons {
		f.Buttons = append(f.Buttons, b)
	}
	sort.Ints(f.Buttons)
	return f
}

// Reset releases everything without reporting edges.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held = make(map[string]bool)
	s.buttons = make(map[int]bool)
	s.edges = nil
	s.pointer = value.Vec2{}
}
