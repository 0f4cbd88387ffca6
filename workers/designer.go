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

// Designer produces architecture decisions and component breakdowns for
// design tasks.
type Designer struct {
	resolver *resolver.Resolver
	logger   *zap.Logger
}

// NewDesigner creates the designer node.
func NewDesigner(res *resolver.Resolver, logger *zap.Logger) *Designer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Designer{
		resolver: res,
		logger:   logger.With(zap.String("component", "designer")),
	}
}

func (d *Designer) Name() engine.Node { return engine.NodeDesigner }

func (d *Designer) Run(ctx context.Context, state *types.WorkflowState) (*types.StateDelta, engine.Decision, error) {
	task := state.TaskDescription
	if task == "" {
		task = state.LatestUserMessage()
	}
	backend := resolveBackend(d.resolver, types.RoleDesigner, state)

	result := &types.DesignResult{
		Decisions:  []string{fmt.Sprintf("Scoped design for: %s", task)},
		Components: designComponents(task),
		Patterns:   []string{"layered architecture"},
	}

	d.logger.Info("design complete",
		zap.String("thread_id", state.ThreadID),
		zap.Int("components", len(result.Components)),
	)

	delta := &types.StateDelta{
		WorkerOutputs: []types.WorkerOutput{
			output(types.RoleDesigner, &types.WorkerResult{
				Role:   types.RoleDesigner,
				Design: result,
			}, backend),
		},
		Messages: []types.Message{
			types.NewAssistantMessage(fmt.Sprintf("Design drafted with %d component(s).", len(result.Components))),
		},
	}

	switch {
	case outstandingSubTasks(state):
		return delta, engine.Decision{Next: engine.NodeAggregator}, nil
	case state.RequiresApproval:
		return delta, engine.Decision{Next: engine.NodeApproval}, nil
	default:
		return delta, engine.Decision{Next: engine.NodeTerminal}, nil
	}
}

// designComponents derives a coarse component list from the task wording.
func designComponents(task string) []string {
	lower := strings.ToLower(task)
	var components []string
	for _, c := range []string{"api", "database", "ui", "service", "pipeline", "cache"} {
		if strings.Contains(lower, c) {
			components = append(components, c)
		}
	}
	if len(components) == 0 {
		components = []string{"core"}
	}
	return components
}
