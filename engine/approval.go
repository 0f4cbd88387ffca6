package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/samuelarogbonlo/paraclete/classify"
	"github.com/samuelarogbonlo/paraclete/internal/metrics"
	"github.com/samuelarogbonlo/paraclete/types"
)

// ApprovalGate suspends the instance until an external actor decides. It
// never blocks a goroutine: suspension is a checkpoint recording this node
// plus an outstanding request; resume re-enters here after Engine.Decide
// applies the resolution.
type ApprovalGate struct {
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewApprovalGate creates the approval gate node.
func NewApprovalGate(logger *zap.Logger, collector *metrics.Collector) *ApprovalGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalGate{
		logger:  logger.With(zap.String("component", "approval")),
		metrics: collector,
	}
}

func (g *ApprovalGate) Name() Node { return NodeApproval }

// Run either constructs a new request and suspends, stays suspended on an
// outstanding request, or routes the post-decision continuation.
func (g *ApprovalGate) Run(ctx context.Context, state *types.WorkflowState) (*types.StateDelta, Decision, error) {
	if req := state.PendingApproval(); req != nil {
		// Still waiting; nothing to add.
		return nil, Decision{Suspend: true}, nil
	}

	if last := lastApproval(state); last != nil && state.RequiresApproval {
		return g.resume(state, last)
	}

	return g.request(state)
}

// request builds a typed approval record from the pending file changes and
// any critical review findings, appends it, and suspends.
func (g *ApprovalGate) request(state *types.WorkflowState) (*types.StateDelta, Decision, error) {
	kind := approvalKind(state)
	description := approvalMessage(state, kind)

	req := types.ApprovalRequest{
		ID:          uuid.NewString(),
		Kind:        kind,
		Description: description,
		Details: map[string]any{
			"task":              state.TaskDescription,
			"file_changes":      len(state.PendingFileChanges),
			"critical_findings": len(criticalFindings(state)),
		},
		RequestedAt: time.Now(),
	}

	g.metrics.RecordApprovalRequested(string(kind))
	g.logger.Info("approval requested",
		zap.String("thread_id", state.ThreadID),
		zap.String("request_id", req.ID),
		zap.String("kind", string(kind)),
	)

	requires := true
	delta := &types.StateDelta{
		Messages:         []types.Message{types.NewAssistantMessage(description)},
		RequiresApproval: &requires,
		ApprovalRequests: []types.ApprovalRequest{req},
		WorkerStatus: map[string]types.WorkerStatus{
			string(NodeApproval): types.StatusInterrupted,
		},
	}
	return delta, Decision{Suspend: true}, nil
}

// resume consumes the freshly decided request and emits the post-approval
// routing: granted with pending file changes goes back to the coder to apply
// them, granted without goes to the planner to re-plan with the human input,
// rejected terminates with nothing applied.
func (g *ApprovalGate) resume(state *types.WorkflowState, req *types.ApprovalRequest) (*types.StateDelta, Decision, error) {
	requires := false
	delta := &types.StateDelta{
		RequiresApproval: &requires,
		WorkerStatus: map[string]types.WorkerStatus{
			string(NodeApproval): types.StatusCompleted,
		},
	}

	if !req.Granted() {
		delta.Messages = []types.Message{
			types.NewAssistantMessage(fmt.Sprintf("Approval %s was rejected by %s. No changes were applied.", req.ID, req.DecidedBy)),
		}
		delta.DiscardFileChanges = true
		g.logger.Info("approval rejected, terminating",
			zap.String("thread_id", state.ThreadID),
			zap.String("request_id", req.ID),
		)
		return delta, Decision{Next: NodeTerminal}, nil
	}

	g.logger.Info("approval granted",
		zap.String("thread_id", state.ThreadID),
		zap.String("request_id", req.ID),
	)
	if len(state.PendingFileChanges) > 0 {
		delta.Messages = []types.Message{
			types.NewAssistantMessage(fmt.Sprintf("Approval %s granted by %s. Applying %d pending change(s).", req.ID, req.DecidedBy, len(state.PendingFileChanges))),
		}
		return delta, Decision{Next: NodeCoder}, nil
	}
	delta.Messages = []types.Message{
		types.NewAssistantMessage(fmt.Sprintf("Approval %s granted by %s. Re-planning with the new input.", req.ID, req.DecidedBy)),
	}
	return delta, Decision{Next: NodePlanner}, nil
}

// lastApproval returns the most recently appended request, or nil.
func lastApproval(state *types.WorkflowState) *types.ApprovalRequest {
	if n := len(state.ApprovalRequests); n > 0 {
		return &state.ApprovalRequests[n-1]
	}
	return nil
}

// approvalKind picks the request type from the task text and accumulated
// state, most sensitive cue first.
func approvalKind(state *types.WorkflowState) types.ApprovalKind {
	lower := strings.ToLower(state.TaskDescription)
	switch {
	case strings.Contains(lower, "deploy"):
		return types.ApprovalDeployment
	case strings.Contains(lower, "database") || strings.Contains(lower, "migration"):
		return types.ApprovalDatabaseChange
	case classify.HasApprovalCues(state.TaskDescription):
		return types.ApprovalGitPush
	case len(state.PendingFileChanges) > 0:
		return types.ApprovalFileWrite
	default:
		return types.ApprovalCommandExec
	}
}

// approvalMessage renders the human-readable request description.
func approvalMessage(state *types.WorkflowState, kind types.ApprovalKind) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Approval required (%s) for: %s\n", kind, state.TaskDescription)

	if len(state.PendingFileChanges) > 0 {
		fmt.Fprintf(&b, "\nPending file changes (%d):\n", len(state.PendingFileChanges))
		for _, fc := range state.PendingFileChanges {
			fmt.Fprintf(&b, "  - %s %s\n", fc.Op, fc.Path)
		}
	}

	if findings := criticalFindings(state); len(findings) > 0 {
		fmt.Fprintf(&b, "\nCritical review findings (%d):\n", len(findings))
		for _, f := range findings {
			fmt.Fprintf(&b, "  - [%s] %s\n", f.Category, f.Description)
		}
	}

	b.WriteString("\nReply with a decision to continue.")
	return b.String()
}

// criticalFindings collects critical-severity findings from every review in
// the audit trail.
func criticalFindings(state *types.WorkflowState) []types.Finding {
	var out []types.Finding
	for _, wo := range state.WorkerOutputs {
		if wo.Result == nil || wo.Result.Review == nil {
			continue
		}
		for _, f := range wo.Result.Review.Findings {
			if f.Severity == types.SeverityCritical {
				out = append(out, f)
			}
		}
	}
	return out
}
