package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelarogbonlo/paraclete/checkpoint"
	"github.com/samuelarogbonlo/paraclete/types"
)

// stubWorker lets tests script node behavior.
type stubWorker struct {
	name Node
	run  func(ctx context.Context, state *types.WorkflowState) (*types.StateDelta, Decision, error)
}

func (w *stubWorker) Name() Node { return w.name }

func (w *stubWorker) Run(ctx context.Context, state *types.WorkflowState) (*types.StateDelta, Decision, error) {
	return w.run(ctx, state)
}

func routeTo(name, next Node) *stubWorker {
	return &stubWorker{
		name: name,
		run: func(ctx context.Context, state *types.WorkflowState) (*types.StateDelta, Decision, error) {
			return nil, Decision{Next: next}, nil
		},
	}
}

func newTestEngine(t *testing.T, store checkpoint.Store, workers ...Worker) *Engine {
	t.Helper()
	e, err := New(store, workers, DefaultOptions(), nil, nil)
	require.NoError(t, err)
	return e
}

func submitMessages() []types.Message {
	return []types.Message{types.NewUserMessage("do the thing")}
}

func TestNew_RequiresPlanner(t *testing.T) {
	_, err := New(checkpoint.NewMemoryStore(), []Worker{routeTo(NodeCoder, NodeTerminal)}, DefaultOptions(), nil, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrWorkerNotFound, types.GetErrorCode(err))
}

func TestSubmit_RunsToTerminal(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	e := newTestEngine(t, store,
		routeTo(NodePlanner, NodeCoder),
		routeTo(NodeCoder, NodeTerminal),
	)

	require.NoError(t, e.Submit(context.Background(), "t1", "s1", "u1", submitMessages()))

	st, err := e.Status(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, st.Terminal)
	assert.Empty(t, st.ActiveWorker)
	assert.Equal(t, types.StatusCompleted, st.WorkerStatus[string(NodePlanner)])
	assert.Equal(t, types.StatusCompleted, st.WorkerStatus[string(NodeCoder)])

	// One checkpoint at submit plus one per transition.
	metas, err := store.List(context.Background(), "t1", 0)
	require.NoError(t, err)
	assert.Len(t, metas, 3)
	assert.Equal(t, string(NodeTerminal), metas[0].NextNode)
}

func TestSubmit_RejectsExistingThread(t *testing.T) {
	e := newTestEngine(t, checkpoint.NewMemoryStore(),
		routeTo(NodePlanner, NodeCoder),
		routeTo(NodeCoder, NodeTerminal),
	)
	ctx := context.Background()

	require.NoError(t, e.Submit(ctx, "t1", "s1", "u1", submitMessages()))

	err := e.Submit(ctx, "t1", "s1", "u1", submitMessages())
	require.Error(t, err)
	assert.Equal(t, types.ErrThreadExists, types.GetErrorCode(err))
}

func TestSubmit_InvalidInput(t *testing.T) {
	e := newTestEngine(t, checkpoint.NewMemoryStore(), routeTo(NodePlanner, NodeCoder), routeTo(NodeCoder, NodeTerminal))
	ctx := context.Background()

	err := e.Submit(ctx, "", "s1", "u1", submitMessages())
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	err = e.Submit(ctx, "t1", "s1", "u1", nil)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestRun_RejectsInvalidTransition(t *testing.T) {
	// The router forbids planner -> terminal directly.
	e := newTestEngine(t, checkpoint.NewMemoryStore(), routeTo(NodePlanner, NodeTerminal))

	err := e.Submit(context.Background(), "t1", "s1", "u1", submitMessages())
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidTransition, types.GetErrorCode(err))
}

func TestRun_RetryBound(t *testing.T) {
	// A planner that always fails: the error handler must bound the loop at
	// the retry limit and surface every recorded error.
	failing := &stubWorker{
		name: NodePlanner,
		run: func(ctx context.Context, state *types.WorkflowState) (*types.StateDelta, Decision, error) {
			return nil, Decision{}, errors.New("planner exploded")
		},
	}
	e := newTestEngine(t, checkpoint.NewMemoryStore(), failing)
	ctx := context.Background()

	require.NoError(t, e.Submit(ctx, "t1", "s1", "u1", submitMessages()))

	st, err := e.Status(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, st.Terminal)
	assert.Equal(t, st.RetryLimit, st.RetryCount, "retry count stops exactly at the limit")
	assert.Len(t, st.Errors, 3)
	for _, rec := range st.Errors {
		assert.Equal(t, string(NodePlanner), rec.Worker)
		assert.Contains(t, rec.Message, "planner exploded")
	}
}

func TestRun_SuspendsOnApproval(t *testing.T) {
	// Planner flags approval and routes to the coder, which asks for the
	// gate; the built-in gate creates a request and suspends.
	planner := &stubWorker{
		name: NodePlanner,
		run: func(ctx context.Context, state *types.WorkflowState) (*types.StateDelta, Decision, error) {
			requires := true
			task := "commit the result"
			return &types.StateDelta{TaskDescription: &task, RequiresApproval: &requires}, Decision{Next: NodeCoder}, nil
		},
	}
	coder := routeTo(NodeCoder, NodeApproval)

	e := newTestEngine(t, checkpoint.NewMemoryStore(), planner, coder)
	ctx := context.Background()

	require.NoError(t, e.Submit(ctx, "t1", "s1", "u1", submitMessages()))

	st, err := e.Status(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, st.Suspended)
	assert.False(t, st.Terminal)
	assert.True(t, st.RequiresApproval)
	assert.NotEmpty(t, st.PendingApprovalID)
	assert.Equal(t, types.StatusInterrupted, st.WorkerStatus[string(NodeApproval)])
}

func TestDecide_RejectThenIdempotent(t *testing.T) {
	planner := &stubWorker{
		name: NodePlanner,
		run: func(ctx context.Context, state *types.WorkflowState) (*types.StateDelta, Decision, error) {
			requires := true
			task := "push to main"
			return &types.StateDelta{TaskDescription: &task, RequiresApproval: &requires}, Decision{Next: NodeCoder}, nil
		},
	}
	e := newTestEngine(t, checkpoint.NewMemoryStore(), planner, routeTo(NodeCoder, NodeApproval))
	ctx := context.Background()

	require.NoError(t, e.Submit(ctx, "t1", "s1", "u1", submitMessages()))
	st, err := e.Status(ctx, "t1")
	require.NoError(t, err)
	require.True(t, st.Suspended)

	require.NoError(t, e.Decide(ctx, "t1", st.PendingApprovalID, false, "alice", "not like this"))

	after, err := e.Status(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, after.Terminal)
	assert.False(t, after.RequiresApproval)

	// Second decision on the same request: rejected, no state change.
	beforeID := after.CheckpointID
	err = e.Decide(ctx, "t1", st.PendingApprovalID, true, "bob", "")
	require.Error(t, err)
	assert.Equal(t, types.ErrInstanceTerminal, types.GetErrorCode(err))

	again, err := e.Status(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, beforeID, again.CheckpointID)
}

func TestDecide_AlreadyDecidedRequest(t *testing.T) {
	// Grant path: approval resolves back into the flow, then a duplicate
	// decision must be rejected without touching state.
	planner := &stubWorker{
		name: NodePlanner,
		run: func(ctx context.Context, state *types.WorkflowState) (*types.StateDelta, Decision, error) {
			requires := true
			task := "push it"
			return &types.StateDelta{TaskDescription: &task, RequiresApproval: &requires}, Decision{Next: NodeCoder}, nil
		},
	}
	coder := &stubWorker{
		name: NodeCoder,
		run: func(ctx context.Context, state *types.WorkflowState) (*types.StateDelta, Decision, error) {
			if state.RequiresApproval {
				return &types.StateDelta{
					PendingFileChanges: []types.FileChange{{Path: "main.go", Op: types.FileModify}},
				}, Decision{Next: NodeApproval}, nil
			}
			return &types.StateDelta{DiscardFileChanges: true}, Decision{Next: NodeTerminal}, nil
		},
	}
	e := newTestEngine(t, checkpoint.NewMemoryStore(), planner, coder)
	ctx := context.Background()

	require.NoError(t, e.Submit(ctx, "t1", "s1", "u1", submitMessages()))
	st, err := e.Status(ctx, "t1")
	require.NoError(t, err)
	require.True(t, st.Suspended)

	require.NoError(t, e.Decide(ctx, "t1", st.PendingApprovalID, true, "alice", ""))

	after, err := e.Status(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, after.Terminal)

	err = e.Decide(ctx, "t1", st.PendingApprovalID, false, "bob", "")
	require.Error(t, err)
}

func TestDecide_UnknownRequest(t *testing.T) {
	planner := &stubWorker{
		name: NodePlanner,
		run: func(ctx context.Context, state *types.WorkflowState) (*types.StateDelta, Decision, error) {
			requires := true
			return &types.StateDelta{RequiresApproval: &requires}, Decision{Next: NodeCoder}, nil
		},
	}
	e := newTestEngine(t, checkpoint.NewMemoryStore(), planner, routeTo(NodeCoder, NodeApproval))
	ctx := context.Background()

	require.NoError(t, e.Submit(ctx, "t1", "s1", "u1", submitMessages()))

	err := e.Decide(ctx, "t1", "no-such-request", true, "alice", "")
	require.Error(t, err)
	assert.Equal(t, types.ErrApprovalNotFound, types.GetErrorCode(err))

	err = e.Decide(ctx, "missing-thread", "x", true, "alice", "")
	assert.Equal(t, types.ErrThreadNotFound, types.GetErrorCode(err))
}

func TestCancel_SuspendedInstance(t *testing.T) {
	planner := &stubWorker{
		name: NodePlanner,
		run: func(ctx context.Context, state *types.WorkflowState) (*types.StateDelta, Decision, error) {
			requires := true
			return &types.StateDelta{RequiresApproval: &requires}, Decision{Next: NodeCoder}, nil
		},
	}
	e := newTestEngine(t, checkpoint.NewMemoryStore(), planner, routeTo(NodeCoder, NodeApproval))
	ctx := context.Background()

	require.NoError(t, e.Submit(ctx, "t1", "s1", "u1", submitMessages()))

	require.NoError(t, e.Cancel(ctx, "t1", "operator gave up"))

	st, err := e.Status(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, st.Terminal)

	// Cancelling twice is rejected.
	err = e.Cancel(ctx, "t1", "")
	assert.Equal(t, types.ErrInstanceTerminal, types.GetErrorCode(err))
}

// flakyStore fails Save after a set number of successful writes, simulating
// a crash between a node returning and its checkpoint landing.
type flakyStore struct {
	checkpoint.Store
	allowed int
	saves   int
}

func (s *flakyStore) Save(ctx context.Context, threadID string, state *types.WorkflowState, nextNode string) (*checkpoint.Checkpoint, error) {
	if s.saves >= s.allowed {
		return nil, errors.New("simulated write failure")
	}
	s.saves++
	return s.Store.Save(ctx, threadID, state, nextNode)
}

func TestCrashBeforeCheckpoint_ResumesFromPreNodeState(t *testing.T) {
	inner := checkpoint.NewMemoryStore()
	flaky := &flakyStore{Store: inner, allowed: 2}

	planner := &stubWorker{
		name: NodePlanner,
		run: func(ctx context.Context, state *types.WorkflowState) (*types.StateDelta, Decision, error) {
			return &types.StateDelta{
				WorkerOutputs: []types.WorkerOutput{{Worker: "planner"}},
			}, Decision{Next: NodeCoder}, nil
		},
	}
	coder := &stubWorker{
		name: NodeCoder,
		run: func(ctx context.Context, state *types.WorkflowState) (*types.StateDelta, Decision, error) {
			return &types.StateDelta{
				WorkerOutputs: []types.WorkerOutput{{Worker: "coder"}},
			}, Decision{Next: NodeTerminal}, nil
		},
	}

	e := newTestEngine(t, flaky, planner, coder)
	ctx := context.Background()

	// Submit checkpoint and the planner transition land; the coder's
	// checkpoint write fails, so its delta must not be committed.
	err := e.Submit(ctx, "t1", "s1", "u1", submitMessages())
	require.Error(t, err)
	assert.Equal(t, types.ErrCheckpointFailed, types.GetErrorCode(err))

	cp, err := inner.Latest(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, string(NodeCoder), cp.NextNode)
	require.Len(t, cp.State.WorkerOutputs, 1)
	assert.Equal(t, "planner", cp.State.WorkerOutputs[0].Worker)

	// Recovery: the store works again and the run re-enters at the coder.
	flaky.allowed = 100
	require.NoError(t, e.Resume(ctx, "t1"))

	final, err := inner.Latest(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, string(NodeTerminal), final.NextNode)
	require.Len(t, final.State.WorkerOutputs, 2)
	assert.Equal(t, "coder", final.State.WorkerOutputs[1].Worker)
}

func TestValidTransition_Table(t *testing.T) {
	assert.True(t, ValidTransition(NodePlanner, NodeCoder))
	assert.True(t, ValidTransition(NodePlanner, NodeParallel))
	assert.True(t, ValidTransition(NodeParallel, NodeAggregator))
	assert.True(t, ValidTransition(NodeApproval, NodePlanner))
	assert.True(t, ValidTransition(NodeErrorHandler, NodeTerminal))

	assert.False(t, ValidTransition(NodePlanner, NodeTerminal))
	assert.False(t, ValidTransition(NodeTerminal, NodePlanner), "terminal is absorbing")
	assert.False(t, ValidTransition(NodeParallel, NodeCoder))
}

func TestCategoryRole(t *testing.T) {
	assert.Equal(t, NodeCoder, CategoryRole(types.TaskCodeGeneration))
	assert.Equal(t, NodeCoder, CategoryRole(types.TaskDebugging))
	assert.Equal(t, NodeCoder, CategoryRole(types.TaskRefactor))
	assert.Equal(t, NodeReviewer, CategoryRole(types.TaskCodeReview))
	assert.Equal(t, NodeDesigner, CategoryRole(types.TaskDesign))
	assert.Equal(t, NodeResearcher, CategoryRole(types.TaskResearch))
	assert.Equal(t, NodeResearcher, CategoryRole(types.TaskGeneral))
}
