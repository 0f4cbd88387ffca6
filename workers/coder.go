package workers

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/samuelarogbonlo/paraclete/engine"
	"github.com/samuelarogbonlo/paraclete/resolver"
	"github.com/samuelarogbonlo/paraclete/types"
)

// Coder proposes file changes for code-generation, debugging, and refactor
// tasks. It never writes anything itself: changes accumulate in the state as
// pending mutations until an approval is granted, at which point a second
// coder pass applies them and clears the queue.
type Coder struct {
	resolver *resolver.Resolver
	logger   *zap.Logger
}

// NewCoder creates the coder node.
func NewCoder(res *resolver.Resolver, logger *zap.Logger) *Coder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coder{
		resolver: res,
		logger:   logger.With(zap.String("component", "coder")),
	}
}

func (c *Coder) Name() engine.Node { return engine.NodeCoder }

func (c *Coder) Run(ctx context.Context, state *types.WorkflowState) (*types.StateDelta, engine.Decision, error) {
	if approved := lastGrantedApproval(state); approved != nil && len(state.PendingFileChanges) > 0 {
		return c.applyApproved(state, approved)
	}
	return c.propose(state)
}

// propose drafts the change set for the task.
func (c *Coder) propose(state *types.WorkflowState) (*types.StateDelta, engine.Decision, error) {
	task := state.TaskDescription
	if task == "" {
		task = state.LatestUserMessage()
	}
	backend := resolveBackend(c.resolver, types.RoleCoder, state)

	change := types.FileChange{
		Path:  fmt.Sprintf("src/%s.go", slug(task)),
		Op:    types.FileCreate,
		After: fmt.Sprintf("// Implementation for: %s\n", task),
		Diff:  fmt.Sprintf("+ // Implementation for: %s", task),
	}
	notes := fmt.Sprintf("Drafted 1 file change for: %s", task)

	c.logger.Info("change set proposed",
		zap.String("thread_id", state.ThreadID),
		zap.String("path", change.Path),
		zap.String("backend", backend),
	)

	delta := &types.StateDelta{
		PendingFileChanges: []types.FileChange{change},
		WorkerOutputs: []types.WorkerOutput{
			output(types.RoleCoder, &types.WorkerResult{
				Role: types.RoleCoder,
				Code: &types.CoderResult{
					Files: []types.FileChange{change},
					Notes: notes,
				},
			}, backend),
		},
		Messages: []types.Message{
			types.NewAssistantMessage(fmt.Sprintf("Proposed change: %s %s", change.Op, change.Path)),
		},
	}

	next := engine.NodeReviewer
	if state.RequiresApproval {
		next = engine.NodeApproval
	}
	return delta, engine.Decision{Next: next}, nil
}

// applyApproved runs after an approval grant: the pending changes are
// considered committed and cleared from the queue.
func (c *Coder) applyApproved(state *types.WorkflowState, req *types.ApprovalRequest) (*types.StateDelta, engine.Decision, error) {
	backend := resolveBackend(c.resolver, types.RoleCoder, state)

	var b strings.Builder
	fmt.Fprintf(&b, "Applied %d approved change(s):\n", len(state.PendingFileChanges))
	applied := make([]types.FileChange, len(state.PendingFileChanges))
	copy(applied, state.PendingFileChanges)
	for _, fc := range applied {
		fmt.Fprintf(&b, "  - %s %s\n", fc.Op, fc.Path)
	}

	c.logger.Info("approved changes applied",
		zap.String("thread_id", state.ThreadID),
		zap.String("request_id", req.ID),
		zap.Int("changes", len(applied)),
	)

	delta := &types.StateDelta{
		DiscardFileChanges: true,
		WorkerOutputs: []types.WorkerOutput{
			output(types.RoleCoder, &types.WorkerResult{
				Role: types.RoleCoder,
				Code: &types.CoderResult{
					Files: applied,
					Notes: fmt.Sprintf("Applied under approval %s", req.ID),
				},
			}, backend),
		},
		Messages: []types.Message{types.NewAssistantMessage(b.String())},
	}
	return delta, engine.Decision{Next: engine.NodeTerminal}, nil
}

// lastGrantedApproval returns the most recent granted request, or nil.
func lastGrantedApproval(state *types.WorkflowState) *types.ApprovalRequest {
	for i := len(state.ApprovalRequests) - 1; i >= 0; i-- {
		if state.ApprovalRequests[i].Granted() {
			return &state.ApprovalRequests[i]
		}
	}
	return nil
}
