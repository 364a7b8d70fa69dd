// Package graph describes behavior graphs: typed nodes joined by flow edges
// (the control token) and data edges (lazily pulled values). It loads the
// JSON-shaped document and validates it before any execution.
package graph

import (
	"github.com/AaronLay10/SentientPlay/internal/value"
	"github.com/AaronLay10/SentientPlay/internal/variables"
)

// NodeKind is the closed set of node variants.
type NodeKind string

const (
	KindSignal   NodeKind = "signal"
	KindAction   NodeKind = "action"
	KindBranch   NodeKind = "branch"
	KindFlow     NodeKind = "flow"
	KindVariable NodeKind = "variable"
)

// FlowKind selects a flow combinator.
type FlowKind string

const (
	FlowSequence FlowKind = "sequence"
	FlowDelay    FlowKind = "delay"
	FlowForEach  FlowKind = "forEach"
	FlowParallel FlowKind = "parallel"
)

// JoinPolicy decides when a parallel node continues along "completed".
type JoinPolicy string

const (
	JoinAll JoinPolicy = "all"
	JoinAny JoinPolicy = "any"
)

// VariableOp is the operation of a variable node.
type VariableOp string

const (
	OpGet      VariableOp = "get"
	OpSet      VariableOp = "set"
	OpConstant VariableOp = "constant"
)

// EdgeKind distinguishes control from data edges.
type EdgeKind string

const (
	EdgeFlow EdgeKind = "flow"
	EdgeData EdgeKind = "data"
)

// Graph is one behavior graph.
type Graph struct {
	ID        string
	Version   int
	Variables []VariableDecl
	Nodes     []Node
	Edges     []Edge

	index   map[string]int
	flowOut map[pinKey][]Edge
	dataIn  map[pinKey]Edge
	flowIn  map[string]bool
}

type pinKey struct {
	node string
	pin  string
}

// VariableDecl declares a variable the graph uses.
type VariableDecl struct {
	Name        string
	Type        variables.Type
	Scope       variables.Scope
	Default     value.Value
	Min         *float64
	Max         *float64
	Step        *float64
	Readonly    bool
	Description string
}

// Definition converts the declaration for the variable store.
func (d VariableDecl) Definition() variables.Definition {
	return variables.Definition{
		Name:        d.Name,
		Type:        d.Type,
		Scope:       d.Scope,
		Default:     d.Default,
		Min:         d.Min,
		Max:         d.Max,
		Step:        d.Step,
		Readonly:    d.Readonly,
		Description: d.Description,
	}
}

// Node is a flat record of every variant; Kind says which fields apply.
type Node struct {
	ID    string
	Kind  NodeKind
	Label string

	// signal
	Signal string

	// action
	Component string
	Method    string
	Inputs    value.Object
	Params    []string
	Outputs   []string
	Continue  bool

	// branch: Expr wins over the literal Condition.
	Condition value.Value
	Expr      string

	// flow
	Flow         FlowKind
	Count        int
	Duration     float64
	Collection   value.Value
	ItemVariable string
	Join         JoinPolicy

	// variable
	Op    VariableOp
	Name  string
	Scope variables.Scope
	Value value.Value
}

// Edge connects a source pin to a target pin.
type Edge struct {
	Kind    EdgeKind
	From    string
	FromPin string
	To      string
	ToPin   string
}

// Node returns the node with id.
func (g *Graph) Node(id string) (*Node, bool) {
	if g.index == nil {
		g.reindex()
	}
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return &g.Nodes[i], true
}

// Reindex rebuilds lookup tables. Call it after editing Nodes or Edges.
func (g *Graph) Reindex() { g.reindex() }

func (g *Graph) reindex() {
	g.index = make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		if _, dup := g.index[n.ID]; !dup {
			g.index[n.ID] = i
		}
	}
	g.flowOut = make(map[pinKey][]Edge)
	g.dataIn = make(map[pinKey]Edge)
	g.flowIn = make(map[string]bool)
	for _, e := range g.Edges {
		switch e.Kind {
		case EdgeFlow:
			g.flowIn[e.To] = true
			k := pinKey{e.From, e.FromPin}
			g.flowOut[k] = append(g.flowOut[k], e)
		case EdgeData:
			k := pinKey{e.To, e.ToPin}
			if _, dup := g.dataIn[k]; !dup {
				g.dataIn[k] = e
			}
		}
	}
}

// SignalNodes returns the signal nodes bound to name, in node order.
func (g *Graph) SignalNodes(name string) []*Node {
	var out []*Node
	for i := range g.Nodes {
		if g.Nodes[i].Kind == KindSignal && g.Nodes[i].Signal == name {
			out = append(out, &g.Nodes[i])
		}
	}
	return out
}

// Signals returns the distinct signal names the graph listens to.
func (g *Graph) Signals() []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range g.Nodes {
		if n.Kind == KindSignal && !seen[n.Signal] {
			seen[n.Signal] = true
			out = append(out, n.Signal)
		}
	}
	return out
}

// FlowTargets returns the flow edges leaving nodeID's pin, in edge order.
func (g *Graph) FlowTargets(nodeID, pin string) []Edge {
	if g.index == nil {
		g.reindex()
	}
	return g.flowOut[pinKey{nodeID, pin}]
}

// DataSource returns the data edge feeding nodeID's input pin.
func (g *Graph) DataSource(nodeID, pin string) (Edge, bool) {
	if g.index == nil {
		g.reindex()
	}
	e, ok := g.dataIn[pinKey{nodeID, pin}]
	return e, ok
}

// Pulled reports whether nodeID is evaluated on demand by data pulls: it has
// no incoming flow edge, so nothing ever executes it through control flow.
// Such nodes are re-evaluated on every pull.
func (g *Graph) Pulled(nodeID string) bool {
	if g.index == nil {
		g.reindex()
	}
	return !g.flowIn[nodeID]
}
