package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/samuelarogbonlo/paraclete/classify"
	"github.com/samuelarogbonlo/paraclete/internal/metrics"
	"github.com/samuelarogbonlo/paraclete/types"
)

// Dispatcher runs the fan-out/fan-in step. Each sub-task is classified
// independently, mapped to its specialist node, and executed against an
// isolated branch state: branches share no mutable data while running, so
// no locking is needed until the merge.
type Dispatcher struct {
	workers       map[Node]Worker
	branchTimeout time.Duration
	limiter       *rate.Limiter
	maxParallel   int
	logger        *zap.Logger
	metrics       *metrics.Collector
}

// branchOutcome is one branch's result slot. Exactly one outcome exists per
// sub-task; the merge never drops or duplicates a slot.
type branchOutcome struct {
	subTaskID string
	role      Node
	outputs   []types.WorkerOutput
	err       error
}

// NewDispatcher creates a dispatcher over the given worker registry.
func NewDispatcher(workers map[Node]Worker, branchTimeout time.Duration, maxParallel int, branchesPerSecond float64, logger *zap.Logger, collector *metrics.Collector) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if branchTimeout <= 0 {
		branchTimeout = 300 * time.Second
	}
	if maxParallel <= 0 {
		maxParallel = 4
	}
	limit := rate.Inf
	if branchesPerSecond > 0 {
		limit = rate.Limit(branchesPerSecond)
	}
	return &Dispatcher{
		workers:       workers,
		branchTimeout: branchTimeout,
		limiter:       rate.NewLimiter(limit, maxParallel),
		maxParallel:   maxParallel,
		logger:        logger.With(zap.String("component", "dispatcher")),
		metrics:       collector,
	}
}

// Dispatch fans the state's sub-tasks out to concurrent branches and merges
// their outcomes into a single delta. A branch failure never aborts its
// siblings; the aggregator decides what a partial result means. The returned
// decision is always the aggregator.
func (d *Dispatcher) Dispatch(ctx context.Context, state *types.WorkflowState) (*types.StateDelta, Decision, error) {
	if len(state.SubTasks) == 0 {
		return nil, Decision{}, types.NewError(types.ErrInvalidRequest, "dispatch requires at least one sub-task")
	}

	outcomes := make([]branchOutcome, len(state.SubTasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.maxParallel)
	for i, desc := range state.SubTasks {
		i, desc := i, desc
		g.Go(func() error {
			if err := d.limiter.Wait(gctx); err != nil {
				outcomes[i] = branchOutcome{
					subTaskID: SubTaskID(i),
					err:       err,
				}
				return nil
			}
			outcomes[i] = d.runBranch(gctx, state, i, desc)
			// Branch errors are recorded in the slot, never returned:
			// returning one would cancel the sibling branches.
			return nil
		})
	}
	_ = g.Wait()

	return d.merge(state, outcomes), Decision{Next: NodeAggregator}, nil
}

// runBranch executes one sub-task against an isolated sub-state carrying
// only the identifiers, the description, and the assigned role.
func (d *Dispatcher) runBranch(ctx context.Context, parent *types.WorkflowState, index int, description string) branchOutcome {
	id := SubTaskID(index)
	category := classify.Category(description)
	role := CategoryRole(category)

	outcome := branchOutcome{subTaskID: id, role: role}

	worker, ok := d.workers[role]
	if !ok {
		outcome.err = types.NewError(types.ErrWorkerNotFound, fmt.Sprintf("no worker registered for %s", role))
		return outcome
	}

	branchCtx, cancel := context.WithTimeout(ctx, d.branchTimeout)
	defer cancel()

	branch := types.NewWorkflowState(
		parent.ThreadID+"#"+id,
		parent.SessionID,
		parent.UserID,
		[]types.Message{types.NewUserMessage(description)},
	)
	branch.TaskDescription = description
	branch.TaskCategory = category
	branch.ActiveWorker = string(role)

	start := time.Now()
	delta, _, err := worker.Run(branchCtx, branch)
	d.logger.Debug("branch finished",
		zap.String("thread_id", parent.ThreadID),
		zap.String("sub_task", id),
		zap.String("role", string(role)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err),
	)

	if err == nil {
		err = branchCtx.Err()
		if err != nil {
			err = types.NewError(types.ErrBranchTimeout, "branch deadline exceeded").WithCause(branchCtx.Err()).WithWorker(string(role))
		}
	}
	if err != nil {
		outcome.err = err
		return outcome
	}

	if delta != nil {
		for _, out := range delta.WorkerOutputs {
			out.SubTaskID = id
			outcome.outputs = append(outcome.outputs, out)
		}
	}
	return outcome
}

// merge folds exactly one outcome per branch into the parent delta:
// worker outputs and completed sub-tasks for successes, error records for
// failures. Branch timeouts count as failures; retries happen only at the
// whole-workflow level.
func (d *Dispatcher) merge(state *types.WorkflowState, outcomes []branchOutcome) *types.StateDelta {
	delta := &types.StateDelta{}
	for _, o := range outcomes {
		if o.err != nil {
			d.metrics.RecordBranch("failure")
			worker := string(o.role)
			if worker == "" {
				worker = string(NodeParallel)
			}
			delta.Errors = append(delta.Errors, types.ErrorRecord{
				Worker:    worker,
				Message:   fmt.Sprintf("sub-task %s: %v", o.subTaskID, o.err),
				Timestamp: time.Now(),
			})
			delta.WorkerOutputs = append(delta.WorkerOutputs, types.WorkerOutput{
				Worker:    worker,
				Timestamp: time.Now(),
				Error:     o.err.Error(),
				SubTaskID: o.subTaskID,
			})
			continue
		}
		d.metrics.RecordBranch("success")
		delta.WorkerOutputs = append(delta.WorkerOutputs, o.outputs...)
		delta.CompletedSubTasks = append(delta.CompletedSubTasks, o.subTaskID)
	}
	d.logger.Info("fan-out complete",
		zap.String("thread_id", state.ThreadID),
		zap.Int("branches", len(outcomes)),
		zap.Int("completed", len(delta.CompletedSubTasks)),
		zap.Int("failed", len(outcomes)-len(delta.CompletedSubTasks)),
	)
	return delta
}

// SubTaskID names a branch by its position in the plan. Position-based ids
// keep CompletedSubTasks meaningful even when two sub-tasks share text.
func SubTaskID(index int) string {
	return fmt.Sprintf("subtask-%d", index+1)
}
