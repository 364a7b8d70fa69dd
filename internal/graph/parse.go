package graph

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/AaronLay10/SentientPlay/internal/value"
	"github.com/AaronLay10/SentientPlay/internal/variables"
)

type wireGraph struct {
	ID        string         `json:"id"`
	GraphID   string         `json:"graphId"`
	Version   int            `json:"version"`
	Variables []wireVariable `json:"variables"`
	Nodes     []wireNode     `json:"nodes"`
	Edges     []wireEdge     `json:"edges"`
}

type wireVariable struct {
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Scope       string    `json:"scope"`
	Default     value.Box `json:"default"`
	Min         *float64  `json:"min"`
	Max         *float64  `json:"max"`
	Step        *float64  `json:"step"`
	Readonly    bool      `json:"readonly"`
	Description string    `json:"description"`
}

type wireNode struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Label string `json:"label"`

	Signal string `json:"signal"`

	Component string       `json:"component"`
	Method    string       `json:"method"`
	Inputs    value.Object `json:"inputs"`
	Params    []string     `json:"params"`
	Outputs   []string     `json:"outputs"`
	Continue  *bool        `json:"continue"`

	Condition json.RawMessage `json:"condition"`

	Flow         string    `json:"flow"`
	Count        int       `json:"count"`
	Duration     float64   `json:"duration"`
	Collection   value.Box `json:"collection"`
	ItemVariable string    `json:"itemVariable"`
	Join         string    `json:"join"`

	Op    string    `json:"op"`
	Name  string    `json:"name"`
	Scope string    `json:"scope"`
	Value value.Box `json:"value"`
}

type wireEdge struct {
	Kind    string `json:"kind"`
	From    string `json:"from"`
	FromPin string `json:"fromPin"`
	To      string `json:"to"`
	ToPin   string `json:"toPin"`
}

// Parse decodes a graph document. Unknown fields and missing required fields
// are load errors. Parse does not validate edges; see Validate.
func Parse(data []byte) (*Graph, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var w wireGraph
	if err := dec.Decode(&w); err != nil {
		return nil, &LoadError{Msg: "malformed graph JSON", Err: err}
	}

	id := w.ID
	if id == "" {
		id = w.GraphID
	}
	if id == "" {
		return nil, &LoadError{Msg: "missing required field: id"}
	}
	if w.ID != "" && w.GraphID != "" && w.ID != w.GraphID {
		return nil, &LoadError{GraphID: w.ID, Msg: fmt.Sprintf("id %q and graphId %q disagree", w.ID, w.GraphID)}
	}
	fail := func(format string, args ...any) error {
		return &LoadError{GraphID: id, Msg: fmt.Sprintf(format, args...)}
	}

	g := &Graph{ID: id, Version: w.Version}
	if g.Version == 0 {
		g.Version = 1
	}
	if g.Version < 0 {
		return nil, fail("invalid version: %d", w.Version)
	}

	for i, wv := range w.Variables {
		decl, err := parseVariable(wv)
		if err != nil {
			return nil, fail("variables[%d]: %v", i, err)
		}
		g.Variables = append(g.Variables, decl)
	}

	for i, wn := range w.Nodes {
		n, err := parseNode(wn)
		if err != nil {
			if wn.ID != "" {
				return nil, fail("node %q: %v", wn.ID, err)
			}
			return nil, fail("nodes[%d]: %v", i, err)
		}
		g.Nodes = append(g.Nodes, n)
	}

	for i, we := range w.Edges {
		e, err := parseEdge(we)
		if err != nil {
			return nil, fail("edges[%d]: %v", i, err)
		}
		g.Edges = append(g.Edges, e)
	}

	inferCounts(g)
	g.reindex()
	return g, nil
}

func parseVariable(wv wireVariable) (VariableDecl, error) {
	if wv.Name == "" {
		return VariableDecl{}, errors.New("missing required field: name")
	}
	d := VariableDecl{
		Name:        wv.Name,
		Type:        variables.Type(wv.Type),
		Scope:       variables.Scope(wv.Scope),
		Default:     wv.Default.Get(),
		Min:         wv.Min,
		Max:         wv.Max,
		Step:        wv.Step,
		Readonly:    wv.Readonly,
		Description: wv.Description,
	}
	if d.Type == "" {
		d.Type = variables.TypeAny
	}
	if !d.Type.Valid() {
		return VariableDecl{}, fmt.Errorf("variable %q: unknown type %q", d.Name, wv.Type)
	}
	if d.Scope == "" {
		d.Scope = variables.ScopeNode
	}
	if !d.Scope.Valid() {
		return VariableDecl{}, fmt.Errorf("variable %q: unknown scope %q", d.Name, wv.Scope)
	}
	return d, nil
}

func parseNode(wn wireNode) (Node, error) {
	if wn.ID == "" {
		return Node{}, errors.New("missing required field: id")
	}
	n := Node{
		ID:           wn.ID,
		Kind:         NodeKind(wn.Kind),
		Label:        wn.Label,
		Signal:       wn.Signal,
		Component:    wn.Component,
		Method:       wn.Method,
		Inputs:       wn.Inputs,
		Params:       wn.Params,
		Outputs:      wn.Outputs,
		Continue:     true,
		Flow:         FlowKind(wn.Flow),
		Count:        wn.Count,
		Duration:     wn.Duration,
		Collection:   wn.Collection.Get(),
		ItemVariable: wn.ItemVariable,
		Join:         JoinPolicy(wn.Join),
		Op:           VariableOp(wn.Op),
		Name:         wn.Name,
		Scope:        variables.Scope(wn.Scope),
		Value:        wn.Value.Get(),
	}
	if n.Inputs == nil {
		n.Inputs = value.Object{}
	}
	if wn.Continue != nil {
		n.Continue = *wn.Continue
	}
	if n.Count < 0 {
		return Node{}, fmt.Errorf("negative count %d", n.Count)
	}

	switch n.Kind {
	case KindSignal:
		if n.Signal == "" {
			return Node{}, errors.New("signal node: missing required field: signal")
		}
	case KindAction:
		if n.Component == "" || n.Method == "" {
			return Node{}, errors.New("action node: component and method are required")
		}
	case KindBranch:
		if err := parseCondition(&n, wn.Condition); err != nil {
			return Node{}, err
		}
		if n.Expr == "" && n.Name != "" {
			n.Expr = n.Name
		}
	case KindFlow:
		switch n.Flow {
		case FlowSequence, FlowDelay, FlowForEach:
		case FlowParallel:
			if n.Join == "" {
				n.Join = JoinAll
			}
			if n.Join != JoinAll && n.Join != JoinAny {
				return Node{}, fmt.Errorf("parallel node: unknown join %q", wn.Join)
			}
		case "":
			return Node{}, errors.New("flow node: missing required field: flow")
		default:
			return Node{}, fmt.Errorf("flow node: unknown flow %q", wn.Flow)
		}
		if n.Flow == FlowDelay && n.Duration < 0 {
			return Node{}, fmt.Errorf("delay node: negative duration %v", n.Duration)
		}
		if n.Flow == FlowForEach && n.ItemVariable == "" {
			n.ItemVariable = PinItem
		}
	case KindVariable:
		switch n.Op {
		case OpGet, OpSet:
			if n.Name == "" {
				return Node{}, fmt.Errorf("variable %s node: missing required field: name", n.Op)
			}
		case OpConstant:
		case "":
			return Node{}, errors.New("variable node: missing required field: op")
		default:
			return Node{}, fmt.Errorf("variable node: unknown op %q", wn.Op)
		}
		if n.Scope != "" && !n.Scope.Valid() {
			return Node{}, fmt.Errorf("variable node: unknown scope %q", wn.Scope)
		}
	case "":
		return Node{}, errors.New("missing required field: kind")
	default:
		return Node{}, fmt.Errorf("unknown kind %q", wn.Kind)
	}
	return n, nil
}

// parseCondition reads a branch condition: a JSON string is an expression,
// anything else is a literal.
func parseCondition(n *Node, raw json.RawMessage) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		n.Condition = value.Null{}
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("branch condition: %w", err)
		}
		n.Expr = s
		n.Condition = value.Null{}
		return nil
	}
	v, err := value.Unmarshal(raw)
	if err != nil {
		return fmt.Errorf("branch condition: %w", err)
	}
	n.Condition = v
	return nil
}

func parseEdge(we wireEdge) (Edge, error) {
	e := Edge{Kind: EdgeKind(we.Kind), From: we.From, FromPin: we.FromPin, To: we.To, ToPin: we.ToPin}
	if e.Kind == "" {
		e.Kind = EdgeFlow
	}
	if e.From == "" || e.To == "" {
		return Edge{}, errors.New("from and to are required")
	}
	switch e.Kind {
	case EdgeFlow:
		if e.FromPin == "" {
			e.FromPin = PinOut
		}
		if e.ToPin == "" {
			e.ToPin = PinIn
		}
	case EdgeData:
		if e.FromPin == "" {
			e.FromPin = PinValue
		}
		if e.ToPin == "" {
			return Edge{}, errors.New("data edge: missing required field: toPin")
		}
	default:
		return Edge{}, fmt.Errorf("unknown edge kind %q", we.Kind)
	}
	return e, nil
}

// inferCounts sizes sequence and parallel nodes that omit count from the
// highest numbered pin their edges use.
func inferCounts(g *Graph) {
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.Kind != KindFlow || n.Count > 0 {
			continue
		}
		var prefix string
		switch n.Flow {
		case FlowSequence:
			prefix = "then"
		case FlowParallel:
			prefix = "branch"
		default:
			continue
		}
		for _, e := range g.Edges {
			if e.Kind != EdgeFlow || e.From != n.ID || !strings.HasPrefix(e.FromPin, prefix) {
				continue
			}
			if k, err := strconv.Atoi(strings.TrimPrefix(e.FromPin, prefix)); err == nil && k >= 0 && k+1 > n.Count {
				n.Count = k + 1
			}
		}
	}
}

// LoadFile reads and parses one graph file.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Msg: "failed to read graph file", Err: err}
	}
	g, err := Parse(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Path = path
		}
		return nil, err
	}
	return g, nil
}

// LoadDir loads every *.json file in dir, in name order. A file that fails
// to load is reported in errs and skipped; the others still load.
func LoadDir(dir string) (graphs []*Graph, errs []error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, []error{&LoadError{Path: dir, Msg: "failed to list graph directory", Err: err}}
	}
	sort.Strings(matches)

	seen := make(map[string]string)
	for _, path := range matches {
		g, err := LoadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if prev, dup := seen[g.ID]; dup {
			errs = append(errs, &LoadError{Path: path, GraphID: g.ID, Msg: "duplicate graph id, first loaded from " + prev})
			continue
		}
		seen[g.ID] = path
		graphs = append(graphs, g)
	}
	return graphs, errs
}
