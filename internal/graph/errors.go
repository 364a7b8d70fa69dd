package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for errors.Is checks.
var (
	// ErrLoad indicates malformed graph JSON or missing required fields.
	ErrLoad = errors.New("graph load error")

	// ErrValidation indicates a hard structural violation found before execution.
	ErrValidation = errors.New("graph validation error")
)

// LoadError is fatal to one graph's load. Other graphs are unaffected.
type LoadError struct {
	GraphID string // empty when the id itself could not be read
	Path    string // source file, when loaded from disk
	Msg     string
	Err     error
}

func (e *LoadError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(ErrLoad.Error())
	if e.Path != "" {
		fmt.Fprintf(&b, ": %s", e.Path)
	}
	if e.GraphID != "" {
		fmt.Fprintf(&b, ": graph %q", e.GraphID)
	}
	if e.Msg != "" {
		fmt.Fprintf(&b, ": %s", e.Msg)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *LoadError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrLoad, e.Err}
	}
	return []error{ErrLoad}
}

// Issue kinds reported by Validate.
const (
	IssueDanglingEdge  = "dangling_edge"
	IssueUnknownPin    = "unknown_pin"
	IssueEdgeKind      = "edge_kind"
	IssueNoSignal      = "no_signal"
	IssueDuplicateNode = "duplicate_node"
	IssueOrphan        = "orphan_node"
	IssueCycle         = "flow_cycle"
	IssueFanOut        = "flow_fan_out"
	IssueDataInputs    = "data_input_fan_in"
)

// Warning is a non-fatal validation finding. The graph still loads.
type Warning struct {
	Kind   string `json:"kind"`
	NodeID string `json:"nodeId,omitempty"`
	Msg    string `json:"msg"`
}

func (w Warning) String() string {
	if w.NodeID != "" {
		return fmt.Sprintf("%s: node %q: %s", w.Kind, w.NodeID, w.Msg)
	}
	return fmt.Sprintf("%s: %s", w.Kind, w.Msg)
}

// ValidationError collects every hard violation of one graph.
type ValidationError struct {
	GraphID string
	Issues  []Warning
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Issues) == 0 {
		return fmt.Sprintf("%s: graph %q", ErrValidation.Error(), e.GraphID)
	}
	msgs := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		msgs[i] = is.String()
	}
	return fmt.Sprintf("%s: graph %q: %s", ErrValidation.Error(), e.GraphID, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
