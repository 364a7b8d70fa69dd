// Package scene is the entity directory: an arena of entities keyed by id,
// each holding its parent id and ordered child ids. Graphs and actions refer
// to entities only by id.
package scene

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/AaronLay10/SentientPlay/internal/value"
)

var (
	// ErrNotFound is returned for an unknown entity id.
	ErrNotFound = errors.New("entity not found")
	// ErrDuplicateID is returned when adding an id that already exists.
	ErrDuplicateID = errors.New("duplicate entity id")
)

// Directory owns the scene's entities.
type Directory struct {
	entities  map[string]*Entity
	roots     []string
	tags      map[string]map[string]struct{}
	pending   []string
	seq       uint64
	newID     func() string
	listeners []func(Change)
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		entities: make(map[string]*Entity),
		tags:     make(map[string]map[string]struct{}),
		newID:    uuid.NewString,
	}
}

// SetIDGenerator replaces the id source used by Spawn.
func (d *Directory) SetIDGenerator(fn func() string) {
	if fn != nil {
		d.newID = fn
	}
}

// OnChange registers a listener for structural and position changes.
func (d *Directory) OnChange(fn func(Change)) func() {
	d.listeners = append(d.listeners, fn)
	idx := len(d.listeners) - 1
	return func() {
		if idx < len(d.listeners) {
			d.listeners[idx] = nil
		}
	}
}

func (d *Directory) notify(c Change) {
	for _, fn := range d.listeners {
		if fn != nil {
			fn(c)
		}
	}
}

// Len returns the number of entities.
func (d *Directory) Len() int { return len(d.entities) }

// Add inserts e. The parent, when set, must already exist. Children listed on
// e are ignored; they attach themselves through their own Parent field.
func (d *Directory) Add(e Entity) error {
	if e.ID == "" {
		return fmt.Errorf("add entity: empty id")
	}
	if _, ok := d.entities[e.ID]; ok {
		return fmt.Errorf("add entity %s: %w", e.ID, ErrDuplicateID)
	}
	if e.Parent != "" {
		if _, ok := d.entities[e.Parent]; !ok {
			return fmt.Errorf("add entity %s: parent %s: %w", e.ID, e.Parent, ErrNotFound)
		}
	}

	ent := e.clone()
	ent.Children = nil
	d.seq++
	ent.seq = d.seq
	d.entities[ent.ID] = ent
	d.link(ent.ID, ent.Parent)
	for _, tag := range ent.Tags {
		d.indexTag(tag, ent.ID)
	}
	d.notify(Change{Kind: ChangeSpawned, ID: ent.ID, Parent: ent.Parent})
	return nil
}

// Spawn adds a copy of template under parent with a fresh id and returns it.
func (d *Directory) Spawn(template Entity, parent string) (string, error) {
	template.ID = d.newID()
	template.Parent = parent
	if err := d.Add(template); err != nil {
		return "", err
	}
	return template.ID, nil
}

func (d *Directory) link(id, parent string) {
	if parent == "" {
		d.roots = append(d.roots, id)
		return
	}
	p := d.entities[parent]
	p.Children = append(p.Children, id)
}

func (d *Directory) unlink(id, parent string) {
	if parent == "" {
		d.roots = removeID(d.roots, id)
		return
	}
	if p, ok := d.entities[parent]; ok {
		p.Children = removeID(p.Children, id)
	}
}

func removeID(ids []string, id string) []string {
	for i, x := range ids {
		if x == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

func (d *Directory) indexTag(tag, id string) {
	set, ok := d.tags[tag]
	if !ok {
		set = make(map[string]struct{})
		d.tags[tag] = set
	}
	set[id] = struct{}{}
}

// Get returns a copy of the entity.
func (d *Directory) Get(id string) (Entity, bool) {
	e, ok := d.entities[id]
	if !ok {
		return Entity{}, false
	}
	return *e.clone(), true
}

// Exists reports whether id is present.
func (d *Directory) Exists(id string) bool {
	_, ok := d.entities[id]
	return ok
}

// Layout returns the position fields of id without copying slices.
func (d *Directory) Layout(id string) (Layout, bool) {
	e, ok := d.entities[id]
	if !ok {
		return Layout{}, false
	}
	return Layout{
		Parent: e.Parent, X: e.X, Y: e.Y,
		AnchorX: e.AnchorX, AnchorY: e.AnchorY,
		PivotX: e.PivotX, PivotY: e.PivotY,
		Width: e.Width, Height: e.Height,
	}, true
}

// Root returns the first top-level entity.
func (d *Directory) Root() (string, bool) {
	if len(d.roots) == 0 {
		return "", false
	}
	return d.roots[0], true
}

// Roots returns every top-level entity in insertion order.
func (d *Directory) Roots() []string {
	return append([]string(nil), d.roots...)
}

// Children returns the ordered child ids of id.
func (d *Directory) Children(id string) []string {
	e, ok := d.entities[id]
	if !ok {
		return nil
	}
	return append([]string(nil), e.Children...)
}

// FindByName returns the earliest added entity named name.
func (d *Directory) FindByName(name string) (string, bool) {
	var best *Entity
	for _, e := range d.entities {
		if e.Name == name && (best == nil || e.seq < best.seq) {
			best = e
		}
	}
	if best == nil {
		return "", false
	}
	return best.ID, true
}

// FindByTag returns every entity carrying tag in insertion order.
func (d *Directory) FindByTag(tag string) []string {
	set := d.tags[tag]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return d.entities[out[i]].seq < d.entities[out[j]].seq
	})
	return out
}

// Walk visits every entity depth first, parents before children. Returning
// false from fn skips that entity's subtree.
func (d *Directory) Walk(fn func(Entity) bool) {
	for _, root := range d.Roots() {
		d.WalkFrom(root, fn)
	}
}

// WalkFrom walks the subtree rooted at id.
func (d *Directory) WalkFrom(id string, fn func(Entity) bool) {
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		e, ok := d.entities[cur]
		if !ok {
			continue
		}
		if !fn(*e.clone()) {
			continue
		}
		for i := len(e.Children) - 1; i >= 0; i-- {
			stack = append(stack, e.Children[i])
		}
	}
}

// IDs returns every entity id in walk order.
func (d *Directory) IDs() []string {
	out := make([]string, 0, len(d.entities))
	d.Walk(func(e Entity) bool {
		out = append(out, e.ID)
		return true
	})
	return out
}

// Move sets the local position of id.
func (d *Directory) Move(id string, x, y float64) error {
	e, ok := d.entities[id]
	if !ok {
		return fmt.Errorf("move %s: %w", id, ErrNotFound)
	}
	if e.X == x && e.Y == y {
		return nil
	}
	e.X, e.Y = x, y
	d.notify(Change{Kind: ChangeMoved, ID: id, Parent: e.Parent})
	return nil
}

// Translate offsets the local position of id.
func (d *Directory) Translate(id string, dx, dy float64) error {
	e, ok := d.entities[id]
	if !ok {
		return fmt.Errorf("translate %s: %w", id, ErrNotFound)
	}
	return d.Move(id, e.X+dx, e.Y+dy)
}

// SetProp writes one free-form property.
func (d *Directory) SetProp(id, key string, v value.Value) error {
	e, ok := d.entities[id]
	if !ok {
		return fmt.Errorf("set prop %s: %w", id, ErrNotFound)
	}
	if e.Props == nil {
		e.Props = value.Object{}
	}
	e.Props[key] = value.Clone(v)
	return nil
}

// SetParent moves id under parent, keeping its local offset. An empty parent
// makes it top-level.
func (d *Directory) SetParent(id, parent string) error {
	e, ok := d.entities[id]
	if !ok {
		return fmt.Errorf("set parent %s: %w", id, ErrNotFound)
	}
	if parent != "" {
		if _, ok := d.entities[parent]; !ok {
			return fmt.Errorf("set parent %s: parent %s: %w", id, parent, ErrNotFound)
		}
		for cur := parent; cur != ""; cur = d.entities[cur].Parent {
			if cur == id {
				return fmt.Errorf("set parent %s: %s is a descendant", id, parent)
			}
		}
	}
	if e.Parent == parent {
		return nil
	}
	old := e.Parent
	d.unlink(id, old)
	e.Parent = parent
	d.link(id, parent)
	d.notify(Change{Kind: ChangeReparented, ID: id, Parent: parent, OldParent: old})
	return nil
}

// Destroy removes id and its descendants and returns the removed ids,
// children before parents.
func (d *Directory) Destroy(id string) ([]string, error) {
	e, ok := d.entities[id]
	if !ok {
		return nil, fmt.Errorf("destroy %s: %w", id, ErrNotFound)
	}

	var order []string
	d.WalkFrom(id, func(x Entity) bool {
		order = append(order, x.ID)
		return true
	})
	d.unlink(id, e.Parent)

	removed := make([]string, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		cur := d.entities[order[i]]
		for _, tag := range cur.Tags {
			if set, ok := d.tags[tag]; ok {
				delete(set, cur.ID)
				if len(set) == 0 {
					delete(d.tags, tag)
				}
			}
		}
		delete(d.entities, cur.ID)
		removed = append(removed, cur.ID)
		d.notify(Change{Kind: ChangeDestroyed, ID: cur.ID, Parent: cur.Parent})
	}
	return removed, nil
}

// DestroyDeferred queues id for removal at FlushDestroyed.
func (d *Directory) DestroyDeferred(id string) bool {
	if _, ok := d.entities[id]; !ok {
		return false
	}
	for _, p := range d.pending {
		if p == id {
			return true
		}
	}
	d.pending = append(d.pending, id)
	return true
}

// PendingDestroy returns the ids queued by DestroyDeferred.
func (d *Directory) PendingDestroy() []string {
	return append([]string(nil), d.pending...)
}

// FlushDestroyed destroys every queued entity still present.
func (d *Directory) FlushDestroyed() []string {
	queue := d.pending
	d.pending = nil
	var removed []string
	for _, id := range queue {
		if !d.Exists(id) {
			continue
		}
		ids, _ := d.Destroy(id)
		removed = append(removed, ids...)
	}
	return removed
}

// Clone deep-copies the directory. Listeners are not copied.
func (d *Directory) Clone() *Directory {
	cp := &Directory{
		entities: make(map[string]*Entity, len(d.entities)),
		roots:    append([]string(nil), d.roots...),
		tags:     make(map[string]map[string]struct{}, len(d.tags)),
		pending:  append([]string(nil), d.pending...),
		seq:      d.seq,
		newID:    d.newID,
	}
	for id, e := range d.entities {
		c := e.clone()
		c.seq = e.seq
		cp.entities[id] = c
	}
	for tag, set := range d.tags {
		s := make(map[string]struct{}, len(set))
		for id := range set {
			s[id] = struct{}{}
		}
		cp.tags[tag] = s
	}
	return cp
}

// Restore replaces the directory's contents with a copy of snap. Listeners
// are kept and receive a single ChangeRestored.
func (d *Directory) Restore(snap *Directory) {
	cp := snap.Clone()
	d.entities = cp.entities
	d.roots = cp.roots
	d.tags = cp.tags
	d.pending = nil
	d.seq = cp.seq
	d.notify(Change{Kind: ChangeRestored})
}
