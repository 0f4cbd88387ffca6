package workers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/samuelarogbonlo/paraclete/engine"
	"github.com/samuelarogbonlo/paraclete/resolver"
	"github.com/samuelarogbonlo/paraclete/types"
)

// Aggregator fans branch results back in after a parallel dispatch. It
// summarizes the round, then routes to approval when the instance is
// flagged, to the error handler when any branch failed, and to terminal
// otherwise.
type Aggregator struct {
	resolver *resolver.Resolver
	logger   *zap.Logger
}

// NewAggregator creates the aggregator node.
func NewAggregator(res *resolver.Resolver, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		resolver: res,
		logger:   logger.With(zap.String("component", "aggregator")),
	}
}

func (a *Aggregator) Name() engine.Node { return engine.NodeAggregator }

func (a *Aggregator) Run(ctx context.Context, state *types.WorkflowState) (*types.StateDelta, engine.Decision, error) {
	backend := resolveBackend(a.resolver, types.RoleAggregator, state)

	branches := len(state.SubTasks)
	succeeded := 0
	for i := range state.SubTasks {
		if state.SubTaskCompleted(engine.SubTaskID(i)) {
			succeeded++
		}
	}
	failed := branches - succeeded

	summary := fmt.Sprintf("Aggregated %d branch(es): %d succeeded, %d failed.", branches, succeeded, failed)
	a.logger.Info("branches aggregated",
		zap.String("thread_id", state.ThreadID),
		zap.Int("branches", branches),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
	)

	delta := &types.StateDelta{
		WorkerOutputs: []types.WorkerOutput{
			output(types.RoleAggregator, &types.WorkerResult{
				Role: types.RoleAggregator,
				Aggregate: &types.AggregateResult{
					Branches:  branches,
					Succeeded: succeeded,
					Failed:    failed,
				},
			}, backend),
		},
		Messages: []types.Message{types.NewAssistantMessage(summary)},
	}

	switch {
	case state.RequiresApproval:
		return delta, engine.Decision{Next: engine.NodeApproval}, nil
	case failed > 0:
		return delta, engine.Decision{Next: engine.NodeErrorHandler}, nil
	default:
		return delta, engine.Decision{Next: engine.NodeTerminal}, nil
	}
}
