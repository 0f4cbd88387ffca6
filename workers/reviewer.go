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

// riskPattern maps a content pattern to the finding it produces.
type riskPattern struct {
	substr      string
	category    types.FindingCategory
	severity    types.Severity
	description string
}

var riskPatterns = []riskPattern{
	{"password", types.FindingSecurity, types.SeverityCritical, "hardcoded credential material"},
	{"secret", types.FindingSecurity, types.SeverityCritical, "hardcoded credential material"},
	{"api_key", types.FindingSecurity, types.SeverityCritical, "hardcoded credential material"},
	{"rm -rf", types.FindingSecurity, types.SeverityCritical, "destructive shell invocation"},
	{"eval(", types.FindingSecurity, types.SeverityHigh, "dynamic code evaluation"},
	{"select *", types.FindingPerformance, types.SeverityMedium, "unbounded column selection"},
	{"todo", types.FindingQuality, types.SeverityLow, "unfinished work marker"},
}

// Reviewer scans the proposed change set for risk patterns. A critical
// finding forces the workflow through the approval gate before anything can
// be applied.
type Reviewer struct {
	resolver *resolver.Resolver
	logger   *zap.Logger
}

// NewReviewer creates the reviewer node.
func NewReviewer(res *resolver.Resolver, logger *zap.Logger) *Reviewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reviewer{
		resolver: res,
		logger:   logger.With(zap.String("component", "reviewer")),
	}
}

func (r *Reviewer) Name() engine.Node { return engine.NodeReviewer }

func (r *Reviewer) Run(ctx context.Context, state *types.WorkflowState) (*types.StateDelta, engine.Decision, error) {
	backend := resolveBackend(r.resolver, types.RoleReviewer, state)

	review := &types.ReviewResult{}
	for _, fc := range state.PendingFileChanges {
		review.Findings = append(review.Findings, scanChange(fc)...)
	}
	review.Summary = reviewSummary(review, len(state.PendingFileChanges))

	r.logger.Info("review complete",
		zap.String("thread_id", state.ThreadID),
		zap.Int("changes", len(state.PendingFileChanges)),
		zap.Int("findings", len(review.Findings)),
		zap.Bool("critical", review.HasCritical()),
	)

	delta := &types.StateDelta{
		WorkerOutputs: []types.WorkerOutput{
			output(types.RoleReviewer, &types.WorkerResult{
				Role:   types.RoleReviewer,
				Review: review,
			}, backend),
		},
		Messages: []types.Message{types.NewAssistantMessage(review.Summary)},
	}

	switch {
	case review.HasCritical():
		return delta, engine.Decision{Next: engine.NodeApproval}, nil
	case outstandingSubTasks(state):
		return delta, engine.Decision{Next: engine.NodeAggregator}, nil
	case state.RequiresApproval:
		return delta, engine.Decision{Next: engine.NodeApproval}, nil
	default:
		return delta, engine.Decision{Next: engine.NodeTerminal}, nil
	}
}

func scanChange(fc types.FileChange) []types.Finding {
	content := strings.ToLower(fc.After + "\n" + fc.Diff)
	var findings []types.Finding
	for _, rp := range riskPatterns {
		if strings.Contains(content, rp.substr) {
			findings = append(findings, types.Finding{
				Category:    rp.category,
				Severity:    rp.severity,
				Description: fmt.Sprintf("%s in %s", rp.description, fc.Path),
				Path:        fc.Path,
			})
		}
	}
	return findings
}

func reviewSummary(review *types.ReviewResult, changes int) string {
	if len(review.Findings) == 0 {
		return fmt.Sprintf("Reviewed %d change(s): no findings.", changes)
	}
	critical := 0
	for _, f := range review.Findings {
		if f.Severity == types.SeverityCritical {
			critical++
		}
	}
	return fmt.Sprintf("Reviewed %d change(s): %d finding(s), %d critical.", changes, len(review.Findings), critical)
}
