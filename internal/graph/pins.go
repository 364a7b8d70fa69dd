package graph

import (
	"fmt"
	"slices"
	"sort"
)

// Pin names shared by several node kinds.
const (
	PinIn        = "in"
	PinOut       = "out"
	PinTrue      = "true"
	PinFalse     = "false"
	PinBody      = "body"
	PinCompleted = "completed"
	PinPayload   = "payload"
	PinCondition = "condition"
	PinDuration  = "duration"
	PinItem      = "item"
	PinIndex     = "index"
	PinValue     = "value"
	PinCollect   = "collection"
)

// ThenPin names the i-th output of a sequence.
func ThenPin(i int) string { return fmt.Sprintf("then%d", i) }

// BranchPin names the i-th fork of a parallel.
func BranchPin(i int) string { return fmt.Sprintf("branch%d", i) }

// FlowIn returns the node's flow input pins.
func (n *Node) FlowIn() []string {
	switch n.Kind {
	case KindSignal:
		return nil
	case KindVariable:
		if n.Op == OpSet {
			return []string{PinIn}
		}
		return nil
	default:
		return []string{PinIn}
	}
}

// FlowOut returns the node's flow output pins.
func (n *Node) FlowOut() []string {
	switch n.Kind {
	case KindSignal:
		return []string{PinOut}
	case KindAction:
		if n.Continue {
			return []string{PinOut}
		}
		return nil
	case KindBranch:
		return []string{PinTrue, PinFalse}
	case KindFlow:
		switch n.Flow {
		case FlowSequence:
			out := make([]string, n.Count)
			for i := range out {
				out[i] = ThenPin(i)
			}
			return out
		case FlowDelay:
			return []string{PinOut}
		case FlowForEach:
			return []string{PinBody, PinCompleted}
		case FlowParallel:
			out := make([]string, 0, n.Count+1)
			for i := 0; i < n.Count; i++ {
				out = append(out, BranchPin(i))
			}
			return append(out, PinCompleted)
		}
	case KindVariable:
		if n.Op == OpSet {
			return []string{PinOut}
		}
	}
	return nil
}

// ValueIn returns the node's value input pins.
func (n *Node) ValueIn() []string {
	switch n.Kind {
	case KindAction:
		pins := make([]string, 0, len(n.Inputs)+len(n.Params))
		pins = append(pins, n.Inputs.Keys()...)
		for _, p := range n.Params {
			if _, ok := n.Inputs[p]; !ok {
				pins = append(pins, p)
			}
		}
		sort.Strings(pins)
		return pins
	case KindBranch:
		return []string{PinCondition}
	case KindFlow:
		switch n.Flow {
		case FlowDelay:
			return []string{PinDuration}
		case FlowForEach:
			return []string{PinCollect}
		}
	case KindVariable:
		if n.Op == OpSet {
			return []string{PinValue}
		}
	}
	return nil
}

// ValueOut returns the node's value output pins.
func (n *Node) ValueOut() []string {
	switch n.Kind {
	case KindSignal:
		return []string{PinPayload}
	case KindAction:
		return slices.Clone(n.Outputs)
	case KindFlow:
		if n.Flow == FlowForEach {
			return []string{PinItem, PinIndex}
		}
	case KindVariable:
		return []string{PinValue}
	}
	return nil
}

func hasPin(pins []string, pin string) bool {
	return slices.Contains(pins, pin)
}
