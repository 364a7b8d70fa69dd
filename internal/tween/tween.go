// Package tween animates entity positions over frames. Each entity has at
// most one position tween; starting another replaces it.
package tween

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

var easings = map[string]ease.TweenFunc{
	"linear":     ease.Linear,
	"inquad":     ease.InQuad,
	"outquad":    ease.OutQuad,
	"inoutquad":  ease.InOutQuad,
	"incubic":    ease.InCubic,
	"outcubic":   ease.OutCubic,
	"inoutcubic": ease.InOutCubic,
	"inoutsine":  ease.InOutSine,
	"outbounce":  ease.OutBounce,
	"outelastic": ease.OutElastic,
}

// Ease looks up an easing by name, case-insensitively. The empty name is linear.
func Ease(name string) (ease.TweenFunc, bool) {
	if name == "" {
		return ease.Linear, true
	}
	fn, ok := easings[strings.ToLower(name)]
	return fn, ok
}

// Target receives tweened positions. *scene.Directory implements it.
type Target interface {
	Move(id string, x, y float64) error
	Exists(id string) bool
}

type group struct {
	seq    uint64
	id     string
	x, y   *gween.Tween
	onDone func()
}

// Manager advances position tweens once per frame.
type Manager struct {
	target Target
	groups map[string]*group
	seq    uint64
}

// NewManager returns a manager writing into target.
func NewManager(target Target) *Manager {
	return &Manager{target: target, groups: make(map[string]*group)}
}

// MoveTo starts a tween of id from (fromX, fromY) to (toX, toY). onDone, if
// set, runs once after the final position is written. A cancelled or
// replaced tween never calls onDone.
func (m *Manager) MoveTo(id string, fromX, fromY, toX, toY, seconds float64, easing string, onDone func()) error {
	fn, ok := Ease(easing)
	if !ok {
		return fmt.Errorf("unknown easing %q", easing)
	}
	if !m.target.Exists(id) {
		return fmt.Errorf("tween target %s not found", id)
	}
	if seconds <= 0 {
		delete(m.groups, id)
		if err := m.target.Move(id, toX, toY); err != nil {
			return err
		}
		if onDone != nil {
			onDone()
		}
		return nil
	}
	m.seq++
	m.groups[id] = &group{
		seq:    m.seq,
		id:     id,
		x:      gween.New(float32(fromX), float32(toX), float32(seconds), fn),
		y:      gween.New(float32(fromY), float32(toY), float32(seconds), fn),
		onDone: onDone,
	}
	return nil
}

// Update advances every tween by dt seconds in start order. Tweens whose
// entity is gone are dropped silently.
func (m *Manager) Update(dt float64) {
	if len(m.groups) == 0 {
		return
	}
	active := make([]*group, 0, len(m.groups))
	for _, g := range m.groups {
		active = append(active, g)
	}
	sort.Slice(active, func(i, j int) bool { return active[i].seq < active[j].seq })

	for _, g := range active {
		if m.groups[g.id] != g {
			continue
		}
		if !m.target.Exists(g.id) {
			delete(m.groups, g.id)
			continue
		}
		x, doneX := g.x.Update(float32(dt))
		y, doneY := g.y.Update(float32(dt))
		_ = m.target.Move(g.id, float64(x), float64(y))
		if doneX && doneY {
			delete(m.groups, g.id)
			if g.onDone != nil {
				g.onDone()
			}
		}
	}
}

// Cancel stops the tween on id, leaving the entity where it is.
func (m *Manager) Cancel(id string) bool {
	if _, ok := m.groups[id]; !ok {
		return false
	}
	delete(m.groups, id)
	return true
}

// Active reports whether id has a running tween.
func (m *Manager) Active(id string) bool {
	_, ok := m.groups[id]
	return ok
}

// Len returns the number of running tweens.
func (m *Manager) Len() int { return len(m.groups) }

// Clear stops every tween.
func (m *Manager) Clear() {
	m.groups = make(map[string]*group)
}
