package engine

import (
	"errors"
	"fmt"
)

// ErrStepLimit is wrapped by an ExecutionError when one activation executes
// more nodes than Env.MaxSteps allows.
var ErrStepLimit = errors.New("step limit exceeded")

// ErrDataCycle is wrapped by an ExecutionError when a data pull revisits a
// node that is still being evaluated.
var ErrDataCycle = errors.New("data edge cycle")

// UnknownActionError is returned when an action node names a
// (component, method) pair with no registered handler.
type UnknownActionError struct {
	Component string
	Method    string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %s.%s", e.Component, e.Method)
}

// ExecutionError reports a failure inside one activation. The activation
// halts; other bindings and later activations are unaffected.
type ExecutionError struct {
	GraphID  string
	EntityID string
	NodeID   string
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.EntityID != "" {
		return fmt.Sprintf("graph %s (entity %s) node %s: %v", e.GraphID, e.EntityID, e.NodeID, e.Err)
	}
	return fmt.Sprintf("graph %s node %s: %v", e.GraphID, e.NodeID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
