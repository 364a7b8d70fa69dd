package actions

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/AaronLay10/SentientPlay/internal/bus"
	"github.com/AaronLay10/SentientPlay/internal/engine"
	"github.com/AaronLay10/SentientPlay/internal/value"
)

// emit sends a custom event from the target entity. Graph bindings listening
// for the event type receive it as a signal along the chosen routing.
func (b *builtins) emit(c *engine.Call) (value.Object, error) {
	eventType, err := required(c, "type")
	if err != nil {
		return nil, err
	}
	routing := bus.Routing(c.String("routing", string(bus.RouteBubble)))
	if !routing.Valid() {
		return nil, fmt.Errorf("emit %s: unknown routing %q", eventType, routing)
	}
	if b.emitDepth >= maxEmitDepth {
		return nil, fmt.Errorf("emit %s: nested emits exceed %d", eventType, maxEmitDepth)
	}
	if c.Env.Bus == nil {
		return value.Object{"cancelled": value.Bool(false)}, nil
	}

	evt := bus.NewEvent(eventType, c.Target(), c.Input("data"))
	evt.Routing = routing
	b.emitDepth++
	c.Env.Bus.EmitSync(evt)
	b.emitDepth--

	out := value.Object{"cancelled": value.Bool(evt.Cancelled())}
	if evt.Err != nil {
		out["error"] = value.String(evt.Err.Error())
	}
	return out, nil
}

func debugLog(c *engine.Call) (value.Object, error) {
	msg := c.String("message", "")
	level := slog.LevelInfo
	switch strings.ToLower(c.String("level", "info")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	attrs := []any{}
	if v := c.Input("value"); !value.IsNull(v) {
		attrs = append(attrs, "value", value.ToString(v))
	}
	c.Logger().Log(c.Ctx, level, msg, attrs...)
	return nil, nil
}
