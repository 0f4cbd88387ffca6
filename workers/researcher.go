package workers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/samuelarogbonlo/paraclete/engine"
	"github.com/samuelarogbonlo/paraclete/resolver"
	"github.com/samuelarogbonlo/paraclete/types"
)

// Researcher handles research and general tasks: it summarizes what was
// asked and records the sources it would consult. It also serves as the
// default role for tasks no other specialist claims.
type Researcher struct {
	resolver *resolver.Resolver
	logger   *zap.Logger
}

// NewResearcher creates the researcher node.
func NewResearcher(res *resolver.Resolver, logger *zap.Logger) *Researcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Researcher{
		resolver: res,
		logger:   logger.With(zap.String("component", "researcher")),
	}
}

func (r *Researcher) Name() engine.Node { return engine.NodeResearcher }

func (r *Researcher) Run(ctx context.Context, state *types.WorkflowState) (*types.StateDelta, engine.Decision, error) {
	task := state.TaskDescription
	if task == "" {
		task = state.LatestUserMessage()
	}
	backend := resolveBackend(r.resolver, types.RoleResearcher, state)

	result := &types.ResearchResult{
		Summary: fmt.Sprintf("Research notes for: %s", task),
		Sources: []string{"project documentation", "prior conversation context"},
	}

	r.logger.Info("research complete",
		zap.String("thread_id", state.ThreadID),
		zap.String("backend", backend),
	)

	delta := &types.StateDelta{
		WorkerOutputs: []types.WorkerOutput{
			output(types.RoleResearcher, &types.WorkerResult{
				Role:     types.RoleResearcher,
				Research: result,
			}, backend),
		},
		Messages: []types.Message{types.NewAssistantMessage(result.Summary)},
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
