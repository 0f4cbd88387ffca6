package types

// WorkerRole identifies which specialist produced a result. The result union
// is tagged by role so each consumer of the audit log gets a typed shape.
type WorkerRole string

const (
	RolePlanner    WorkerRole = "planner"
	RoleCoder      WorkerRole = "coder"
	RoleReviewer   WorkerRole = "reviewer"
	RoleResearcher WorkerRole = "researcher"
	RoleDesigner   WorkerRole = "designer"
	RoleAggregator WorkerRole = "aggregator"
)

// Severity ranks review findings. Critical findings force an approval stop.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// FindingCategory groups review findings.
type FindingCategory string

const (
	FindingSecurity    FindingCategory = "security"
	FindingPerformance FindingCategory = "performance"
	FindingQuality     FindingCategory = "quality"
)

// Finding is one review observation.
type Finding struct {
	Category    FindingCategory `json:"category"`
	Severity    Severity        `json:"severity"`
	Description string          `json:"description"`
	Path        string          `json:"path,omitempty"`
	Line        int             `json:"line,omitempty"`
	Suggestion  string          `json:"suggestion,omitempty"`
}

// PlanResult is the planner's classification outcome.
type PlanResult struct {
	Category       TaskCategory `json:"category"`
	SubTasks       []string     `json:"sub_tasks,omitempty"`
	Parallelizable bool         `json:"parallelizable"`
	TargetWorker   string       `json:"target_worker"`
}

// CoderResult carries proposed file changes and implementation notes.
type CoderResult struct {
	Files []FileChange `json:"files,omitempty"`
	Notes string       `json:"notes,omitempty"`
}

// ReviewResult carries review findings.
type ReviewResult struct {
	Findings []Finding `json:"findings,omitempty"`
	Summary  string    `json:"summary,omitempty"`
}

// HasCritical reports whether any finding is critical severity.
func (r *ReviewResult) HasCritical() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// ResearchResult carries a research summary and its sources.
type ResearchResult struct {
	Summary string   `json:"summary,omitempty"`
	Sources []string `json:"sources,omitempty"`
}

// DesignResult carries architecture decisions and identified components.
type DesignResult struct {
	Decisions  []string `json:"decisions,omitempty"`
	Components []string `json:"components,omitempty"`
	Patterns   []string `json:"patterns,omitempty"`
}

// AggregateResult summarizes a fan-out round.
type AggregateResult struct {
	Branches  int `json:"branches"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// WorkerResult is a tagged union keyed by worker role. Exactly the field
// matching Role is populated.
type WorkerResult struct {
	Role WorkerRole `json:"role"`

	Plan      *PlanResult      `json:"plan,omitempty"`
	Code      *CoderResult     `json:"code,omitempty"`
	Review    *ReviewResult    `json:"review,omitempty"`
	Research  *ResearchResult  `json:"research,omitempty"`
	Design    *DesignResult    `json:"design,omitempty"`
	Aggregate *AggregateResult `json:"aggregate,omitempty"`
}
