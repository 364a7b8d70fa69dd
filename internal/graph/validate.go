package graph

import (
	"fmt"
	"sort"
)

// Validate checks g before execution. Hard violations (duplicate node ids,
// edges to unknown nodes or undeclared pins, no signal node) are returned as
// a *ValidationError. Orphan nodes, flow cycles, fan-out on one flow pin and
// duplicate data inputs are returned as warnings; the graph still runs.
func Validate(g *Graph) ([]Warning, error) {
	var issues, warnings []Warning

	ids := make(map[string]bool, len(g.Nodes))
	signals := 0
	for _, n := range g.Nodes {
		if ids[n.ID] {
			issues = append(issues, Warning{Kind: IssueDuplicateNode, NodeID: n.ID, Msg: "duplicate node id"})
			continue
		}
		ids[n.ID] = true
		if n.Kind == KindSignal {
			signals++
		}
	}
	if signals == 0 {
		issues = append(issues, Warning{Kind: IssueNoSignal, Msg: "graph has no signal node"})
	}
	g.reindex()

	touched := make(map[string]bool)
	flowOutUse := make(map[pinKey]int)
	dataInUse := make(map[pinKey]int)
	adjacency := make(map[string][]string)

	for _, e := range g.Edges {
		from, okFrom := g.Node(e.From)
		to, okTo := g.Node(e.To)
		if !okFrom {
			issues = append(issues, Warning{Kind: IssueDanglingEdge, NodeID: e.From, Msg: fmt.Sprintf("edge references unknown node %q", e.From)})
		}
		if !okTo {
			issues = append(issues, Warning{Kind: IssueDanglingEdge, NodeID: e.To, Msg: fmt.Sprintf("edge references unknown node %q", e.To)})
		}
		if !okFrom || !okTo {
			continue
		}
		touched[e.From] = true
		touched[e.To] = true

		switch e.Kind {
		case EdgeFlow:
			if !hasPin(from.FlowOut(), e.FromPin) {
				issues = append(issues, pinIssue(from, "flow output", e.FromPin))
				continue
			}
			if !hasPin(to.FlowIn(), e.ToPin) {
				issues = append(issues, pinIssue(to, "flow input", e.ToPin))
				continue
			}
			flowOutUse[pinKey{e.From, e.FromPin}]++
			adjacency[e.From] = append(adjacency[e.From], e.To)
		case EdgeData:
			if !hasPin(from.ValueOut(), e.FromPin) {
				issues = append(issues, pinIssue(from, "value output", e.FromPin))
				continue
			}
			if !hasPin(to.ValueIn(), e.ToPin) {
				issues = append(issues, pinIssue(to, "value input", e.ToPin))
				continue
			}
			dataInUse[pinKey{e.To, e.ToPin}]++
		default:
			issues = append(issues, Warning{Kind: IssueEdgeKind, Msg: fmt.Sprintf("unknown edge kind %q", e.Kind)})
		}
	}

	if len(issues) > 0 {
		return nil, &ValidationError{GraphID: g.ID, Issues: issues}
	}

	for _, n := range g.Nodes {
		if !touched[n.ID] && n.Kind != KindSignal {
			warnings = append(warnings, Warning{Kind: IssueOrphan, NodeID: n.ID, Msg: "node has no edges"})
		}
	}
	for _, k := range sortedKeys(flowOutUse) {
		if flowOutUse[k] > 1 {
			warnings = append(warnings, Warning{
				Kind: IssueFanOut, NodeID: k.node,
				Msg: fmt.Sprintf("flow pin %q has %d edges; they run in edge order", k.pin, flowOutUse[k]),
			})
		}
	}
	for _, k := range sortedKeys(dataInUse) {
		if dataInUse[k] > 1 {
			warnings = append(warnings, Warning{
				Kind: IssueDataInputs, NodeID: k.node,
				Msg: fmt.Sprintf("value pin %q has %d edges; the first is used", k.pin, dataInUse[k]),
			})
		}
	}
	warnings = append(warnings, findCycles(g, adjacency)...)
	return warnings, nil
}

func pinIssue(n *Node, what, pin string) Warning {
	return Warning{Kind: IssueUnknownPin, NodeID: n.ID, Msg: fmt.Sprintf("%s node has no %s pin %q", n.Kind, what, pin)}
}

func sortedKeys(m map[pinKey]int) []pinKey {
	keys := make([]pinKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].node != keys[j].node {
			return keys[i].node < keys[j].node
		}
		return keys[i].pin < keys[j].pin
	})
	return keys
}

// findCycles runs a depth-first search with a recursion stack over flow
// edges and reports each back edge once, with the cycle path.
func findCycles(g *Graph, adjacency map[string][]string) []Warning {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(g.Nodes))
	var path []string
	var out []Warning

	var dfs func(id string)
	dfs = func(id string) {
		color[id] = gray
		path = append(path, id)

		next := append([]string(nil), adjacency[id]...)
		sort.Strings(next)
		for _, nb := range next {
			switch color[nb] {
			case gray:
				start := 0
				for i, p := range path {
					if p == nb {
						start = i
						break
					}
				}
				cycle := append(append([]string(nil), path[start:]...), nb)
				out = append(out, Warning{
					Kind: IssueCycle, NodeID: nb,
					Msg: fmt.Sprintf("flow cycle detected: %v", cycle),
				})
			case white:
				dfs(nb)
			}
		}

		path = path[:len(path)-1]
		color[id] = black
	}

	ids := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		ids = append(ids, n.ID)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if color[id] == white {
			dfs(id)
		}
	}
	return out
}
