package actions

import (
	"github.com/AaronLay10/SentientPlay/internal/engine"
	"github.com/AaronLay10/SentientPlay/internal/value"
)

// timerName scopes timer names to the entity so graphs on different
// entities can reuse a name.
func timerName(entity, name string) string {
	return entity + "/" + name
}

// startTimer (re)starts a named timer that sends the entity a Timer signal
// carrying {name} when it expires.
func startTimer(c *engine.Call) (value.Object, error) {
	name, err := required(c, "name")
	if err != nil {
		return nil, err
	}
	if c.Env.Timers == nil {
		return nil, nil
	}
	entity, env := c.Target(), c.Env
	repeat := value.Truthy(c.Input("repeat"))
	env.Timers.Start(timerName(entity, name), c.Number("duration", 0), repeat, func() {
		deliver(env, entity, engine.SignalTimer, value.Object{"name": value.String(name)})
	})
	return nil, nil
}

func cancelTimer(c *engine.Call) (value.Object, error) {
	name, err := required(c, "name")
	if err != nil {
		return nil, err
	}
	if c.Env.Timers == nil {
		return value.Object{"cancelled": value.Bool(false)}, nil
	}
	ok := c.Env.Timers.Cancel(timerName(c.Target(), name))
	return value.Object{"cancelled": value.Bool(ok)}, nil
}
