package actions

import (
	"fmt"

	"github.com/AaronLay10/SentientPlay/internal/engine"
	"github.com/AaronLay10/SentientPlay/internal/scene"
	"github.com/AaronLay10/SentientPlay/internal/value"
)

// spawn creates an entity. A "template" input names an existing entity to
// copy; explicit inputs override its fields.
func spawn(c *engine.Call) (value.Object, error) {
	dir := c.Env.Scene
	var tmpl scene.Entity
	if name := c.String("template", ""); name != "" {
		id, ok := dir.FindByName(name)
		if !ok {
			return nil, fmt.Errorf("spawn: template %q: %w", name, scene.ErrNotFound)
		}
		tmpl, _ = dir.Get(id)
		tmpl.Children = nil
	}
	tmpl.Name = c.String("name", tmpl.Name)
	tmpl.Behavior = c.String("behavior", tmpl.Behavior)
	tmpl.X = c.Number("x", tmpl.X)
	tmpl.Y = c.Number("y", tmpl.Y)
	tmpl.Width = c.Number("width", tmpl.Width)
	tmpl.Height = c.Number("height", tmpl.Height)
	if tags, ok := c.Input("tags").(value.Array); ok {
		tmpl.Tags = tmpl.Tags[:0:0]
		for _, t := range tags {
			tmpl.Tags = append(tmpl.Tags, value.ToString(t))
		}
	}
	if props, ok := c.Input("props").(value.Object); ok {
		tmpl.Props = props
	}

	parent := tmpl.Parent
	switch p := c.Input("parent").(type) {
	case value.EntityRef:
		parent = string(p)
	case value.String:
		parent = string(p)
	}
	id, err := dir.Spawn(tmpl, parent)
	if err != nil {
		return nil, err
	}
	return value.Object{"entity": value.EntityRef(id)}, nil
}

// destroy marks the target for removal at the end of the frame.
func destroy(c *engine.Call) (value.Object, error) {
	ok := c.Env.Scene.DestroyDeferred(c.Target())
	return value.Object{"destroyed": value.Bool(ok)}, nil
}

func find(c *engine.Call) (value.Object, error) {
	name, err := required(c, "name")
	if err != nil {
		return nil, err
	}
	id, ok := c.Env.Scene.FindByName(name)
	if !ok {
		return value.Object{"entity": value.Null{}, "found": value.Bool(false)}, nil
	}
	return value.Object{"entity": value.EntityRef(id), "found": value.Bool(true)}, nil
}

func findByTag(c *engine.Call) (value.Object, error) {
	tag, err := required(c, "tag")
	if err != nil {
		return nil, err
	}
	ids := c.Env.Scene.FindByTag(tag)
	refs := make(value.Array, len(ids))
	for i, id := range ids {
		refs[i] = value.EntityRef(id)
	}
	return value.Object{"entities": refs, "count": value.Number(len(ids))}, nil
}

func setProperty(c *engine.Call) (value.Object, error) {
	key, err := required(c, "key")
	if err != nil {
		return nil, err
	}
	return nil, ignoreMissing(c.Env.Scene.SetProp(c.Target(), key, c.Input("value")))
}

func getProperty(c *engine.Call) (value.Object, error) {
	key, err := required(c, "key")
	if err != nil {
		return nil, err
	}
	e, ok := c.Env.Scene.Get(c.Target())
	if !ok {
		return value.Object{"value": value.Null{}}, nil
	}
	return value.Object{"value": value.Or(e.Props[key], value.Null{})}, nil
}
