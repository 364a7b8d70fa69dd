package actions

import (
	"github.com/AaronLay10/SentientPlay/internal/engine"
	"github.com/AaronLay10/SentientPlay/internal/value"
)

func translate(c *engine.Call) (value.Object, error) {
	err := c.Env.Scene.Translate(c.Target(), c.Number("dx", 0), c.Number("dy", 0))
	return nil, ignoreMissing(err)
}

func setPosition(c *engine.Call) (value.Object, error) {
	id := c.Target()
	e, ok := c.Env.Scene.Get(id)
	if !ok {
		return nil, nil
	}
	x, y := e.X, e.Y
	if p, ok := c.Input("position").(value.Vec2); ok {
		x, y = p.X, p.Y
	}
	return nil, ignoreMissing(c.Env.Scene.Move(id, c.Number("x", x), c.Number("y", y)))
}

// getPosition reports the local position and, through the transform cache,
// the world position.
func getPosition(c *engine.Call) (value.Object, error) {
	id := c.Target()
	e, ok := c.Env.Scene.Get(id)
	if !ok {
		return value.Object{"x": value.Null{}, "y": value.Null{}, "position": value.Null{}, "world": value.Null{}}, nil
	}
	out := value.Object{
		"x":        value.Number(e.X),
		"y":        value.Number(e.Y),
		"position": value.Vec2{X: e.X, Y: e.Y},
		"world":    value.Null{},
	}
	if c.Env.Transforms != nil {
		if w, ok := c.Env.Transforms.GetWorldPosition(id); ok {
			out["world"] = w
		}
	}
	return out, nil
}

// tweenTo eases the target toward (x, y) over duration seconds and sends it
// TweenComplete when it arrives.
func (b *builtins) tweenTo(c *engine.Call) (value.Object, error) {
	id := c.Target()
	e, ok := c.Env.Scene.Get(id)
	if !ok || c.Env.Tweens == nil {
		return nil, nil
	}
	toX, toY := c.Number("x", e.X), c.Number("y", e.Y)
	env := c.Env
	done := func() {
		deliver(env, id, engine.SignalTweenComplete, value.Object{
			"x": value.Number(toX),
			"y": value.Number(toY),
		})
	}
	err := c.Env.Tweens.MoveTo(id, e.X, e.Y, toX, toY, c.Number("duration", 0), c.String("easing", ""), done)
	return nil, err
}
