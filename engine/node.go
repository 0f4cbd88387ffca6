package engine

import (
	"context"

	"github.com/samuelarogbonlo/paraclete/types"
)

// Node is a symbolic state of the router state machine.
type Node string

const (
	NodePlanner      Node = "planner"
	NodeCoder        Node = "coder"
	NodeReviewer     Node = "reviewer"
	NodeResearcher   Node = "researcher"
	NodeDesigner     Node = "designer"
	NodeParallel     Node = "parallel_dispatch"
	NodeAggregator   Node = "aggregator"
	NodeApproval     Node = "approval"
	NodeErrorHandler Node = "error_handler"
	NodeTerminal     Node = "terminal"
)

// Decision is the routing outcome a node returns alongside its state delta.
// Suspend means the instance yields control instead of transitioning; the
// checkpoint records the current node so resume re-enters it.
type Decision struct {
	Next    Node
	Suspend bool
}

// Worker is a pluggable node. Run reads the state and returns a delta plus a
// routing decision; it must never mutate the state directly. Workers must be
// idempotent with respect to re-invocation after a crash before the
// checkpoint write (at-least-once execution).
type Worker interface {
	Name() Node
	Run(ctx context.Context, state *types.WorkflowState) (*types.StateDelta, Decision, error)
}

// transitions is the router's allowed-edge table. Terminal is absorbing:
// it has no outgoing edges.
var transitions = map[Node][]Node{
	NodePlanner:      {NodeCoder, NodeReviewer, NodeResearcher, NodeDesigner, NodeParallel, NodeErrorHandler},
	NodeCoder:        {NodeReviewer, NodeApproval, NodeAggregator, NodeTerminal, NodeErrorHandler},
	NodeReviewer:     {NodeApproval, NodeAggregator, NodeTerminal, NodeErrorHandler},
	NodeResearcher:   {NodeReviewer, NodeApproval, NodeAggregator, NodeTerminal, NodeErrorHandler},
	NodeDesigner:     {NodeReviewer, NodeApproval, NodeAggregator, NodeTerminal, NodeErrorHandler},
	NodeParallel:     {NodeAggregator, NodeErrorHandler},
	NodeAggregator:   {NodeApproval, NodeErrorHandler, NodeTerminal},
	NodeApproval:     {NodeCoder, NodePlanner, NodeTerminal, NodeErrorHandler},
	NodeErrorHandler: {NodePlanner, NodeTerminal},
	NodeTerminal:     {},
}

// ValidTransition reports whether the router allows moving from one node to
// another.
func ValidTransition(from, to Node) bool {
	for _, n := range transitions[from] {
		if n == to {
			return true
		}
	}
	return false
}

// CategoryRole maps a task category to the specialist node that handles it.
func CategoryRole(category types.TaskCategory) Node {
	switch category {
	case types.TaskCodeGeneration, types.TaskDebugging, types.TaskRefactor:
		return NodeCoder
	case types.TaskCodeReview:
		return NodeReviewer
	case types.TaskDesign:
		return NodeDesigner
	case types.TaskResearch, types.TaskGeneral:
		return NodeResearcher
	default:
		return NodeResearcher
	}
}
