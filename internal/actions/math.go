package actions

import (
	"errors"

	"github.com/AaronLay10/SentientPlay/internal/engine"
	"github.com/AaronLay10/SentientPlay/internal/value"
)

var errDivideByZero = errors.New("divide by zero")

func result(v value.Value) value.Object {
	return value.Object{"value": v}
}

// random returns a number in [min, max).
func random(c *engine.Call) (value.Object, error) {
	lo, hi := c.Number("min", 0), c.Number("max", 1)
	if hi < lo {
		lo, hi = hi, lo
	}
	return result(value.Number(lo + c.Env.Float()*(hi-lo))), nil
}

func arithmetic(op func(a, b float64) float64) engine.Handler {
	return func(c *engine.Call) (value.Object, error) {
		return result(value.Number(op(c.Number("a", 0), c.Number("b", 0)))), nil
	}
}

func divide(c *engine.Call) (value.Object, error) {
	b := c.Number("b", 0)
	if b == 0 {
		return nil, errDivideByZero
	}
	return result(value.Number(c.Number("a", 0) / b)), nil
}

func clampNumber(c *engine.Call) (value.Object, error) {
	v := c.Number("value", 0)
	lo, hi := c.Number("min", v), c.Number("max", v)
	return result(value.Number(min(max(v, lo), hi))), nil
}

func comparison(op func(a, b float64) bool) engine.Handler {
	return func(c *engine.Call) (value.Object, error) {
		return result(value.Bool(op(c.Number("a", 0), c.Number("b", 0)))), nil
	}
}

func equals(c *engine.Call) (value.Object, error) {
	return result(value.Bool(value.Equal(c.Input("a"), c.Input("b")))), nil
}

func not(c *engine.Call) (value.Object, error) {
	return result(value.Bool(!value.Truthy(c.Input("value")))), nil
}

func logical(op func(a, b bool) bool) engine.Handler {
	return func(c *engine.Call) (value.Object, error) {
		return result(value.Bool(op(value.Truthy(c.Input("a")), value.Truthy(c.Input("b"))))), nil
	}
}
