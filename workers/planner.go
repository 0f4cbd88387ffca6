package workers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/samuelarogbonlo/paraclete/classify"
	"github.com/samuelarogbonlo/paraclete/engine"
	"github.com/samuelarogbonlo/paraclete/resolver"
	"github.com/samuelarogbonlo/paraclete/types"
)

// Planner classifies the task and picks the route: a single specialist, or a
// fan-out when the sub-tasks are independently dispatchable. It also flags
// the instance for human approval when the task text touches git or
// deployment operations.
type Planner struct {
	resolver *resolver.Resolver
	logger   *zap.Logger
}

// NewPlanner creates the planner node.
func NewPlanner(res *resolver.Resolver, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		resolver: res,
		logger:   logger.With(zap.String("component", "planner")),
	}
}

func (p *Planner) Name() engine.Node { return engine.NodePlanner }

func (p *Planner) Run(ctx context.Context, state *types.WorkflowState) (*types.StateDelta, engine.Decision, error) {
	task := state.LatestUserMessage()
	if task == "" {
		task = state.TaskDescription
	}
	if task == "" {
		return nil, engine.Decision{}, types.NewError(types.ErrInvalidRequest, "no task text to plan from").WithWorker(string(engine.NodePlanner))
	}

	result := classify.Classify(task)
	backend := resolveBackend(p.resolver, types.RolePlanner, state)

	fanOut := result.Parallelizable && len(result.SubTasks) >= 2
	target := engine.CategoryRole(result.Category)
	next := target
	if fanOut {
		next = engine.NodeParallel
	}

	// Approval cues flag the instance once; a request that was already
	// decided must not re-arm the gate on a re-plan.
	requiresApproval := state.RequiresApproval
	if classify.HasApprovalCues(task) && !hasDecidedApproval(state) {
		requiresApproval = true
	}

	p.logger.Info("task planned",
		zap.String("thread_id", state.ThreadID),
		zap.String("category", string(result.Category)),
		zap.Int("sub_tasks", len(result.SubTasks)),
		zap.Bool("fan_out", fanOut),
		zap.Bool("requires_approval", requiresApproval),
	)

	category := result.Category
	delta := &types.StateDelta{
		TaskDescription:  &task,
		TaskCategory:     &category,
		RequiresApproval: &requiresApproval,
		WorkerOutputs: []types.WorkerOutput{
			output(types.RolePlanner, &types.WorkerResult{
				Role: types.RolePlanner,
				Plan: &types.PlanResult{
					Category:       result.Category,
					SubTasks:       result.SubTasks,
					Parallelizable: result.Parallelizable,
					TargetWorker:   string(next),
				},
			}, backend),
		},
		Messages: []types.Message{
			types.NewAssistantMessage(planMessage(result, next)),
		},
	}
	if fanOut {
		delta.SubTasks = result.SubTasks
	}

	return delta, engine.Decision{Next: next}, nil
}

func planMessage(result classify.Result, next engine.Node) string {
	if next == engine.NodeParallel {
		return fmt.Sprintf("Classified task as %s; dispatching %d independent sub-tasks in parallel.", result.Category, len(result.SubTasks))
	}
	return fmt.Sprintf("Classified task as %s; routing to %s.", result.Category, next)
}

func hasDecidedApproval(state *types.WorkflowState) bool {
	for i := range state.ApprovalRequests {
		if !state.ApprovalRequests[i].Pending() {
			return true
		}
	}
	return false
}
