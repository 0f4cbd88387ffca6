package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/samuelarogbonlo/paraclete/checkpoint"
	"github.com/samuelarogbonlo/paraclete/internal/metrics"
	"github.com/samuelarogbonlo/paraclete/types"
)

// Options configures the engine.
type Options struct {
	// RetryLimit bounds whole-workflow retries through the error handler.
	RetryLimit int
	// BranchTimeout caps a single fan-out branch.
	BranchTimeout time.Duration
	// BranchConcurrency caps branches running at once.
	BranchConcurrency int
	// BranchesPerSecond rate-limits branch launches; <= 0 disables the limit.
	BranchesPerSecond float64
	// MaxTransitions is a hard cap on transitions per run, guarding against
	// routing cycles.
	MaxTransitions int
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		RetryLimit:        types.DefaultRetryLimit,
		BranchTimeout:     300 * time.Second,
		BranchConcurrency: 4,
		BranchesPerSecond: 0,
		MaxTransitions:    64,
	}
}

// Status is the external view of one instance.
type Status struct {
	ThreadID          string                        `json:"thread_id"`
	ActiveWorker      string                        `json:"active_worker,omitempty"`
	WorkerStatus      map[string]types.WorkerStatus `json:"worker_status,omitempty"`
	RequiresApproval  bool                          `json:"requires_approval"`
	PendingApprovalID string                        `json:"pending_approval_id,omitempty"`
	Errors            []types.ErrorRecord           `json:"errors,omitempty"`
	RetryCount        int                           `json:"retry_count"`
	RetryLimit        int                           `json:"retry_limit"`
	Suspended         bool                          `json:"suspended"`
	Terminal          bool                          `json:"terminal"`
	CheckpointID      int64                         `json:"checkpoint_id"`
}

// Engine drives workflow instances through the router state machine. All
// state mutation happens here: a node's delta and routing decision are
// applied to a clone of the committed state and checkpointed together; only
// a successful checkpoint write adopts the clone, so a crash or write
// failure leaves the instance at its last good checkpoint.
type Engine struct {
	store      checkpoint.Store
	workers    map[Node]Worker
	dispatcher *Dispatcher
	opts       Options

	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer

	locks *threadLocks

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// New creates an engine over the given checkpoint store and worker set. The
// approval gate and error handler are built in and must not be supplied.
// A planner worker is required.
func New(store checkpoint.Store, workers []Worker, opts Options, logger *zap.Logger, collector *metrics.Collector) (*Engine, error) {
	if store == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "checkpoint store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RetryLimit <= 0 {
		opts.RetryLimit = types.DefaultRetryLimit
	}
	if opts.MaxTransitions <= 0 {
		opts.MaxTransitions = DefaultOptions().MaxTransitions
	}

	registry := make(map[Node]Worker, len(workers)+2)
	for _, w := range workers {
		if w == nil {
			continue
		}
		name := w.Name()
		if _, dup := registry[name]; dup {
			return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("duplicate worker %s", name))
		}
		registry[name] = w
	}
	registry[NodeApproval] = NewApprovalGate(logger, collector)
	registry[NodeErrorHandler] = NewErrorHandler(logger, collector)

	if _, ok := registry[NodePlanner]; !ok {
		return nil, types.NewError(types.ErrWorkerNotFound, "planner worker is required")
	}

	return &Engine{
		store:      store,
		workers:    registry,
		dispatcher: NewDispatcher(registry, opts.BranchTimeout, opts.BranchConcurrency, opts.BranchesPerSecond, logger, collector),
		opts:       opts,
		logger:     logger.With(zap.String("component", "engine")),
		metrics:    collector,
		tracer:     otel.Tracer("github.com/samuelarogbonlo/paraclete/engine"),
		locks:      newThreadLocks(),
		running:    make(map[string]context.CancelFunc),
	}, nil
}

// Submit starts a new instance and runs it until it terminates or suspends
// at the approval gate. A thread that already has a checkpoint is rejected;
// callers resume via Decide instead.
func (e *Engine) Submit(ctx context.Context, threadID, sessionID, userID string, messages []types.Message) error {
	if threadID == "" {
		return types.NewError(types.ErrInvalidRequest, "thread id is required")
	}
	if len(messages) == 0 {
		return types.NewError(types.ErrInvalidRequest, "initial messages are required")
	}

	unlock := e.locks.Lock(threadID)
	defer unlock()

	_, err := e.store.Latest(ctx, threadID)
	if err == nil {
		return types.NewError(types.ErrThreadExists, fmt.Sprintf("thread %s already has checkpoints", threadID))
	}
	if !errors.Is(err, checkpoint.ErrNotFound) {
		return types.NewError(types.ErrCheckpointFailed, "probe existing checkpoints").WithCause(err)
	}

	state := types.NewWorkflowState(threadID, sessionID, userID, messages)
	state.RetryLimit = e.opts.RetryLimit
	state.TaskDescription = state.LatestUserMessage()
	state.ActiveWorker = string(NodePlanner)

	if err := e.saveCheckpoint(ctx, state, NodePlanner); err != nil {
		return err
	}
	e.logger.Info("instance submitted",
		zap.String("thread_id", threadID),
		zap.String("session_id", sessionID),
	)

	return e.runLocked(ctx, threadID, state, NodePlanner)
}

// Decide applies an external approval decision and resumes the instance.
// Deciding an already-decided request is rejected with no state change.
func (e *Engine) Decide(ctx context.Context, threadID, requestID string, granted bool, decidedBy, feedback string) error {
	unlock := e.locks.Lock(threadID)
	defer unlock()

	state, _, err := e.latestState(ctx, threadID)
	if err != nil {
		return err
	}
	if state.CompletedAt != nil {
		return types.NewError(types.ErrInstanceTerminal, fmt.Sprintf("thread %s already terminated", threadID))
	}

	req := state.FindApproval(requestID)
	if req == nil {
		return types.NewError(types.ErrApprovalNotFound, fmt.Sprintf("no approval request %s on thread %s", requestID, threadID))
	}
	if !req.Pending() {
		return types.NewError(types.ErrApprovalDecided, fmt.Sprintf("approval request %s already decided", requestID))
	}

	delta := &types.StateDelta{
		ResolveApproval: &types.ApprovalResolution{
			RequestID: requestID,
			Granted:   granted,
			DecidedBy: decidedBy,
			DecidedAt: time.Now(),
			Feedback:  feedback,
		},
	}
	if feedback != "" {
		delta.Messages = []types.Message{types.NewUserMessage(feedback)}
	}

	clone := state.Clone()
	clone.Apply(delta)
	if err := e.saveCheckpoint(ctx, clone, NodeApproval); err != nil {
		return err
	}

	e.metrics.RecordApprovalDecided(granted)
	e.logger.Info("approval decided",
		zap.String("thread_id", threadID),
		zap.String("request_id", requestID),
		zap.Bool("granted", granted),
		zap.String("decided_by", decidedBy),
	)

	return e.runLocked(ctx, threadID, clone, NodeApproval)
}

// Cancel marks the instance terminal, bypassing the error handler's retry
// logic. It is safe mid-node, mid-fan-out, and while suspended: a running
// step is interrupted through its context and any in-flight branches are
// abandoned, not awaited.
func (e *Engine) Cancel(ctx context.Context, threadID, reason string) error {
	e.mu.Lock()
	if cancel, ok := e.running[threadID]; ok {
		cancel()
	}
	e.mu.Unlock()

	unlock := e.locks.Lock(threadID)
	defer unlock()

	state, _, err := e.latestState(ctx, threadID)
	if err != nil {
		return err
	}
	if state.CompletedAt != nil {
		return types.NewError(types.ErrInstanceTerminal, fmt.Sprintf("thread %s already terminated", threadID))
	}

	msg := "Workflow cancelled."
	if reason != "" {
		msg = fmt.Sprintf("Workflow cancelled: %s", reason)
	}
	delta := &types.StateDelta{
		Messages: []types.Message{types.NewAssistantMessage(msg)},
	}
	if state.ActiveWorker != "" && state.ActiveWorker != string(NodeTerminal) {
		delta.WorkerStatus = map[string]types.WorkerStatus{
			state.ActiveWorker: types.StatusInterrupted,
		}
	}

	clone := state.Clone()
	clone.Apply(delta)
	now := time.Now()
	clone.CompletedAt = &now
	clone.ActiveWorker = ""

	if err := e.saveCheckpoint(ctx, clone, NodeTerminal); err != nil {
		return err
	}
	e.logger.Info("instance cancelled",
		zap.String("thread_id", threadID),
		zap.String("reason", reason),
	)
	return nil
}

// Status reports the instance's externally visible state from its latest
// checkpoint.
func (e *Engine) Status(ctx context.Context, threadID string) (*Status, error) {
	state, cp, err := e.latestState(ctx, threadID)
	if err != nil {
		return nil, err
	}

	st := &Status{
		ThreadID:         threadID,
		ActiveWorker:     state.ActiveWorker,
		WorkerStatus:     state.WorkerStatus,
		RequiresApproval: state.RequiresApproval,
		Errors:           state.Errors,
		RetryCount:       state.RetryCount,
		RetryLimit:       state.RetryLimit,
		Terminal:         state.CompletedAt != nil || Node(cp.NextNode) == NodeTerminal,
		CheckpointID:     cp.ID,
	}
	if req := state.PendingApproval(); req != nil {
		st.Suspended = true
		st.PendingApprovalID = req.ID
	}
	return st, nil
}

// Resume re-enters a non-terminal instance at its latest checkpoint's
// recorded node, e.g. after a process restart.
func (e *Engine) Resume(ctx context.Context, threadID string) error {
	unlock := e.locks.Lock(threadID)
	defer unlock()

	state, cp, err := e.latestState(ctx, threadID)
	if err != nil {
		return err
	}
	next := Node(cp.NextNode)
	if state.CompletedAt != nil || next == NodeTerminal {
		return types.NewError(types.ErrInstanceTerminal, fmt.Sprintf("thread %s already terminated", threadID))
	}
	return e.runLocked(ctx, threadID, state, next)
}

func (e *Engine) latestState(ctx context.Context, threadID string) (*types.WorkflowState, *checkpoint.Checkpoint, error) {
	cp, err := e.store.Latest(ctx, threadID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, nil, types.NewError(types.ErrThreadNotFound, fmt.Sprintf("no checkpoints for thread %s", threadID))
	}
	if err != nil {
		return nil, nil, types.NewError(types.ErrCheckpointFailed, "load latest checkpoint").WithCause(err)
	}
	return cp.State, cp, nil
}

// runLocked drives the instance until terminal, suspension, cancellation, or
// an unrecoverable engine error. The caller holds the thread lock.
func (e *Engine) runLocked(ctx context.Context, threadID string, state *types.WorkflowState, next Node) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.running[threadID] = cancel
	e.mu.Unlock()
	defer func() {
		cancel()
		e.mu.Lock()
		delete(e.running, threadID)
		e.mu.Unlock()
	}()

	for steps := 0; ; steps++ {
		if next == NodeTerminal {
			e.logger.Info("instance terminal", zap.String("thread_id", threadID))
			return nil
		}
		if req := state.PendingApproval(); req != nil {
			e.logger.Info("instance suspended awaiting approval",
				zap.String("thread_id", threadID),
				zap.String("request_id", req.ID),
			)
			return nil
		}
		if steps >= e.opts.MaxTransitions {
			return types.NewError(types.ErrInternalError, fmt.Sprintf("transition limit reached after %d steps", steps))
		}
		if err := runCtx.Err(); err != nil {
			// Cancelled mid-run: no checkpoint is written, the instance
			// stays at its last committed transition.
			return err
		}

		var err error
		state, next, err = e.step(runCtx, state, next)
		if err != nil {
			return err
		}
	}
}

// step executes one node and commits its transition: worker delta applied to
// a clone, engine bookkeeping folded in, checkpoint written, clone adopted.
// Atomicity holds because the committed state is only replaced after the
// checkpoint write succeeds.
func (e *Engine) step(ctx context.Context, state *types.WorkflowState, node Node) (*types.WorkflowState, Node, error) {
	ctx, span := e.tracer.Start(ctx, "engine.step", trace.WithAttributes(
		attribute.String("thread_id", state.ThreadID),
		attribute.String("node", string(node)),
	))
	defer span.End()

	var (
		delta    *types.StateDelta
		decision Decision
		err      error
	)

	start := time.Now()
	if node == NodeParallel {
		delta, decision, err = e.dispatcher.Dispatch(ctx, state)
	} else {
		worker, ok := e.workers[node]
		if !ok {
			return nil, "", types.NewError(types.ErrWorkerNotFound, fmt.Sprintf("no worker registered for node %s", node))
		}
		delta, decision, err = worker.Run(ctx, state)
	}
	e.metrics.RecordNodeDuration(string(node), time.Since(start))

	if err != nil {
		if node == NodeErrorHandler {
			// The error handler itself failing is unrecoverable.
			return nil, "", types.NewError(types.ErrWorkerFailed, "error handler failed").WithCause(err).WithWorker(string(node))
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		e.logger.Warn("node failed",
			zap.String("thread_id", state.ThreadID),
			zap.String("node", string(node)),
			zap.Error(err),
		)
		span.RecordError(err)
		delta = &types.StateDelta{
			Errors: []types.ErrorRecord{{
				Worker:    string(node),
				Message:   err.Error(),
				Timestamp: time.Now(),
			}},
			WorkerStatus: map[string]types.WorkerStatus{
				string(node): types.StatusFailed,
			},
		}
		decision = Decision{Next: NodeErrorHandler}
	}

	nextNode := node
	if !decision.Suspend {
		nextNode = decision.Next
		if !ValidTransition(node, nextNode) {
			return nil, "", types.NewError(types.ErrInvalidTransition, fmt.Sprintf("%s -> %s", node, nextNode))
		}
	}

	clone := state.Clone()
	clone.Apply(delta)

	// Engine bookkeeping: single active worker, completion stamps.
	if delta == nil || delta.WorkerStatus == nil || delta.WorkerStatus[string(node)] == "" {
		if err == nil && !decision.Suspend {
			clone.WorkerStatus[string(node)] = types.StatusCompleted
		}
	}
	switch {
	case nextNode == NodeTerminal:
		clone.ActiveWorker = ""
		if clone.CompletedAt == nil {
			now := time.Now()
			clone.CompletedAt = &now
		}
	default:
		clone.ActiveWorker = string(nextNode)
	}

	if err := e.saveCheckpoint(ctx, clone, nextNode); err != nil {
		span.RecordError(err)
		return nil, "", err
	}

	e.metrics.RecordTransition(string(node), string(nextNode))
	e.logger.Debug("transition committed",
		zap.String("thread_id", state.ThreadID),
		zap.String("from", string(node)),
		zap.String("to", string(nextNode)),
		zap.Bool("suspended", decision.Suspend),
	)
	return clone, nextNode, nil
}

// saveCheckpoint persists the state with its re-entry node. A failed write
// is fatal to the transition: the caller must not adopt the new state.
func (e *Engine) saveCheckpoint(ctx context.Context, state *types.WorkflowState, next Node) error {
	start := time.Now()
	_, err := e.store.Save(ctx, state.ThreadID, state, string(next))
	e.metrics.RecordCheckpoint(err == nil, time.Since(start))
	if err != nil {
		return types.NewError(types.ErrCheckpointFailed, "persist transition").WithCause(err)
	}
	return nil
}
