package workers

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/samuelarogbonlo/paraclete/engine"
	"github.com/samuelarogbonlo/paraclete/resolver"
	"github.com/samuelarogbonlo/paraclete/types"
)

// All builds the full worker set for the engine.
func All(res *resolver.Resolver, logger *zap.Logger) []engine.Worker {
	return []engine.Worker{
		NewPlanner(res, logger),
		NewCoder(res, logger),
		NewReviewer(res, logger),
		NewResearcher(res, logger),
		NewDesigner(res, logger),
		NewAggregator(res, logger),
	}
}

// resolveBackend picks the backend for a role, sized to the message log.
// Resolution never fails the worker: an unknown role degrades to an empty
// backend id recorded as-is in the audit trail.
func resolveBackend(res *resolver.Resolver, role types.WorkerRole, state *types.WorkflowState) string {
	if res == nil {
		return ""
	}
	backend, _, err := res.Resolve(role, resolver.Constraints{
		MinContext: resolver.EstimateContext(state.Messages),
	})
	if err != nil {
		return ""
	}
	return backend
}

// output stamps one audit-trail entry.
func output(role types.WorkerRole, result *types.WorkerResult, backend string) types.WorkerOutput {
	return types.WorkerOutput{
		Worker:    string(role),
		Timestamp: time.Now(),
		Result:    result,
		Backend:   backend,
	}
}

// outstandingSubTasks reports whether the plan has branches not yet
// completed.
func outstandingSubTasks(state *types.WorkflowState) bool {
	if len(state.SubTasks) == 0 {
		return false
	}
	for i := range state.SubTasks {
		if !state.SubTaskCompleted(engine.SubTaskID(i)) {
			return true
		}
	}
	return false
}

// slug converts free text to a short file-name-safe identifier.
func slug(text string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
		if b.Len() >= 40 {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}
