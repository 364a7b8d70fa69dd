package scene

import (
	"slices"

	"github.com/AaronLay10/SentientPlay/internal/value"
)

// Entity is one node of the scene tree. Hierarchy fields are owned by the
// Directory; change them through SetParent.
type Entity struct {
	ID       string       `json:"id"`
	Name     string       `json:"name,omitempty"`
	Parent   string       `json:"parent,omitempty"`
	Children []string     `json:"children,omitempty"`
	Tags     []string     `json:"tags,omitempty"`
	X        float64      `json:"x"`
	Y        float64      `json:"y"`
	AnchorX  float64      `json:"anchorX"`
	AnchorY  float64      `json:"anchorY"`
	PivotX   float64      `json:"pivotX"`
	PivotY   float64      `json:"pivotY"`
	Width    float64      `json:"width"`
	Height   float64      `json:"height"`
	Behavior string       `json:"behavior,omitempty"`
	Props    value.Object `json:"props,omitempty"`

	seq uint64
}

// HasTag reports whether the entity carries tag.
func (e *Entity) HasTag(tag string) bool {
	return slices.Contains(e.Tags, tag)
}

func (e *Entity) clone() *Entity {
	cp := *e
	cp.Children = slices.Clone(e.Children)
	cp.Tags = slices.Clone(e.Tags)
	if e.Props != nil {
		cp.Props = value.Clone(e.Props).(value.Object)
	}
	return &cp
}

// Layout is the position-bearing part of an entity.
type Layout struct {
	Parent  string
	X, Y    float64
	AnchorX float64
	AnchorY float64
	PivotX  float64
	PivotY  float64
	Width   float64
	Height  float64
}

// ChangeKind names a structural change.
type ChangeKind string

const (
	ChangeSpawned    ChangeKind = "spawned"
	ChangeDestroyed  ChangeKind = "destroyed"
	ChangeMoved      ChangeKind = "moved"
	ChangeReparented ChangeKind = "reparented"
	ChangeRestored   ChangeKind = "restored"
)

// Change is delivered to listeners after the directory has been updated.
// For ChangeRestored the ID is empty and the whole tree was replaced.
type Change struct {
	Kind      ChangeKind
	ID        string
	Parent    string
	OldParent string
}
