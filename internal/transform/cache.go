// Package transform caches world positions over the scene hierarchy.
//
// An entry is valid only for the frame it was computed in and only while its
// entity is not dirty. MarkDirty flags the entity and every descendant at
// mutation time; a lookup recomputes from the nearest valid ancestor down,
// caching each level on the way.
package transform

import (
	"github.com/AaronLay10/SentientPlay/internal/scene"
	"github.com/AaronLay10/SentientPlay/internal/value"
)

// Source is the hierarchy the cache reads. *scene.Directory implements it.
type Source interface {
	Layout(id string) (scene.Layout, bool)
	Children(id string) []string
}

type entry struct {
	pos    value.Vec2
	width  float64
	height float64
	frame  uint64
}

// Stats counts cache traffic since the last Reset.
type Stats struct {
	Hits       uint64 `json:"hits"`
	Recomputes uint64 `json:"recomputes"`
	Entries    int    `json:"entries"`
	Dirty      int    `json:"dirty"`
}

// Cache is a derived, rebuildable view; dropping it never loses state.
type Cache struct {
	src     Source
	frame   uint64
	entries map[string]entry
	dirty   map[string]struct{}
	stats   Stats
}

// NewCache returns an empty cache over src.
func NewCache(src Source) *Cache {
	return &Cache{
		src:     src,
		frame:   1,
		entries: make(map[string]entry),
		dirty:   make(map[string]struct{}),
	}
}

// BeginFrame advances the frame version, invalidating every entry.
func (c *Cache) BeginFrame() {
	c.frame++
}

// Frame returns the current frame version.
func (c *Cache) Frame() uint64 { return c.frame }

func (c *Cache) valid(id string) (entry, bool) {
	e, ok := c.entries[id]
	if !ok || e.frame != c.frame {
		return entry{}, false
	}
	if _, dirty := c.dirty[id]; dirty {
		return entry{}, false
	}
	return e, true
}

// GetWorldPosition returns id's world position. ok is false when id, or one
// of its ancestors, is missing.
func (c *Cache) GetWorldPosition(id string) (value.Vec2, bool) {
	if e, ok := c.valid(id); ok {
		c.stats.Hits++
		return e.pos, true
	}

	// Collect the chain up to the nearest valid ancestor.
	var chain []string
	var layouts []scene.Layout
	var base entry
	cur := id
	for cur != "" {
		if e, ok := c.valid(cur); ok {
			base = e
			break
		}
		l, ok := c.src.Layout(cur)
		if !ok {
			return value.Vec2{}, false
		}
		chain = append(chain, cur)
		layouts = append(layouts, l)
		cur = l.Parent
	}

	parent := base
	for i := len(chain) - 1; i >= 0; i-- {
		l := layouts[i]
		e := entry{
			pos: value.Vec2{
				X: parent.pos.X + l.AnchorX*parent.width - l.PivotX*l.Width + l.X,
				Y: parent.pos.Y + l.AnchorY*parent.height - l.PivotY*l.Height + l.Y,
			},
			width:  l.Width,
			height: l.Height,
			frame:  c.frame,
		}
		c.entries[chain[i]] = e
		delete(c.dirty, chain[i])
		c.stats.Recomputes++
		parent = e
	}
	return parent.pos, true
}

// MarkDirty flags id and all of its descendants.
func (c *Cache) MarkDirty(id string) {
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		c.dirty[cur] = struct{}{}
		stack = append(stack, c.src.Children(cur)...)
	}
}

// IsDirty reports whether id is flagged.
func (c *Cache) IsDirty(id string) bool {
	_, ok := c.dirty[id]
	return ok
}

// Forget drops id's entry, used when an entity is destroyed.
func (c *Cache) Forget(id string) {
	delete(c.entries, id)
	delete(c.dirty, id)
}

// Reset drops every entry and counter.
func (c *Cache) Reset() {
	c.entries = make(map[string]entry)
	c.dirty = make(map[string]struct{})
	c.stats = Stats{}
}

// Stats returns the cache counters.
func (c *Cache) Stats() Stats {
	s := c.stats
	s.Entries = len(c.entries)
	s.Dirty = len(c.dirty)
	return s
}

// Apply keeps the cache coherent with a scene change. Wire it with
// scene.Directory.OnChange.
func (c *Cache) Apply(ch scene.Change) {
	switch ch.Kind {
	case scene.ChangeMoved, scene.ChangeReparented, scene.ChangeSpawned:
		c.MarkDirty(ch.ID)
	case scene.ChangeDestroyed:
		c.Forget(ch.ID)
	case scene.ChangeRestored:
		c.Reset()
	}
}
