package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/samuelarogbonlo/paraclete/internal/metrics"
	"github.com/samuelarogbonlo/paraclete/types"
)

// ErrorHandler bounds whole-workflow retries. Each entry increments the
// retry count and routes back to the planner until the limit is reached, at
// which point it emits a terminal summary carrying every recorded error.
// There is no backoff here: callers re-plan, they do not immediately
// re-invoke the failing node.
type ErrorHandler struct {
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewErrorHandler creates the error handler node.
func NewErrorHandler(logger *zap.Logger, collector *metrics.Collector) *ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorHandler{
		logger:  logger.With(zap.String("component", "error_handler")),
		metrics: collector,
	}
}

func (h *ErrorHandler) Name() Node { return NodeErrorHandler }

// Run decides between one more retry and giving up. The retry count never
// exceeds the limit: once count+1 reaches it, the instance goes terminal.
func (h *ErrorHandler) Run(ctx context.Context, state *types.WorkflowState) (*types.StateDelta, Decision, error) {
	if state.RetryCount >= state.RetryLimit {
		// Already at the bound; do not increment past it.
		return h.giveUp(state, 0), Decision{Next: NodeTerminal}, nil
	}

	newCount := state.RetryCount + 1
	if newCount >= state.RetryLimit {
		return h.giveUp(state, 1), Decision{Next: NodeTerminal}, nil
	}

	h.metrics.RecordRetry()
	h.logger.Warn("retrying workflow",
		zap.String("thread_id", state.ThreadID),
		zap.Int("retry_count", newCount),
		zap.Int("retry_limit", state.RetryLimit),
	)
	delta := &types.StateDelta{
		RetryCountDelta: 1,
		Messages: []types.Message{
			types.NewAssistantMessage(fmt.Sprintf("Attempt failed; retrying (%d/%d).", newCount, state.RetryLimit)),
		},
	}
	return delta, Decision{Next: NodePlanner}, nil
}

// giveUp builds the terminal failure delta. Every recorded error is carried
// into the summary; nothing is silently swallowed.
func (h *ErrorHandler) giveUp(state *types.WorkflowState, increment int) *types.StateDelta {
	var b strings.Builder
	fmt.Fprintf(&b, "Workflow failed after %d attempt(s). Recorded errors:\n", state.RetryCount+increment)
	for i, e := range state.Errors {
		fmt.Fprintf(&b, "  %d. [%s] %s\n", i+1, e.Worker, e.Message)
	}

	h.logger.Error("retry limit reached, terminating",
		zap.String("thread_id", state.ThreadID),
		zap.Int("retry_limit", state.RetryLimit),
		zap.Int("errors", len(state.Errors)),
	)

	return &types.StateDelta{
		RetryCountDelta: increment,
		Messages:        []types.Message{types.NewAssistantMessage(b.String())},
	}
}
