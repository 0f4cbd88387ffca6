package types

import "time"

// StateSchemaVersion is stamped into every WorkflowState and checkpoint.
// Bump when adding fields; absent fields must decode to their zero value so
// old checkpoints keep loading.
const StateSchemaVersion = 1

// DefaultRetryLimit bounds whole-workflow retries through the error handler.
const DefaultRetryLimit = 3

// TaskCategory is the closed set of task classifications.
type TaskCategory string

const (
	TaskCodeGeneration TaskCategory = "code_generation"
	TaskCodeReview     TaskCategory = "code_review"
	TaskResearch       TaskCategory = "research"
	TaskDesign         TaskCategory = "design"
	TaskDebugging      TaskCategory = "debugging"
	TaskRefactor       TaskCategory = "refactor"
	TaskGeneral        TaskCategory = "general"
)

// WorkerStatus tracks the lifecycle of a single worker within an instance.
type WorkerStatus string

const (
	StatusPending     WorkerStatus = "pending"
	StatusRunning     WorkerStatus = "running"
	StatusCompleted   WorkerStatus = "completed"
	StatusFailed      WorkerStatus = "failed"
	StatusInterrupted WorkerStatus = "interrupted"
)

// FileOp is the kind of a proposed file mutation.
type FileOp string

const (
	FileCreate FileOp = "create"
	FileModify FileOp = "modify"
	FileDelete FileOp = "delete"
)

// FileChange is a proposed file mutation accumulated by workers. Changes are
// never silently dropped: they stay in the state until an approval is granted
// or the owning worker explicitly discards them.
type FileChange struct {
	Path   string `json:"path"`
	Op     FileOp `json:"op"`
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
	Diff   string `json:"diff,omitempty"`
}

// ApprovalKind identifies the sensitive operation a request covers.
type ApprovalKind string

const (
	ApprovalGitPush        ApprovalKind = "git_push"
	ApprovalFileWrite      ApprovalKind = "file_write"
	ApprovalCommandExec    ApprovalKind = "command_execution"
	ApprovalAPICall        ApprovalKind = "api_call"
	ApprovalDeployment     ApprovalKind = "deployment"
	ApprovalDatabaseChange ApprovalKind = "database_change"
)

// ApprovalRequest records one human decision point. Decided is nil while the
// request is outstanding; an outstanding request suspends the instance.
type ApprovalRequest struct {
	ID          string         `json:"id"`
	Kind        ApprovalKind   `json:"kind"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
	RequestedAt time.Time      `json:"requested_at"`
	Decided     *bool          `json:"decided,omitempty"`
	DecidedBy   string         `json:"decided_by,omitempty"`
	DecidedAt   *time.Time     `json:"decided_at,omitempty"`
	Feedback    string         `json:"feedback,omitempty"`
}

// Pending reports whether the request still awaits a decision.
func (r *ApprovalRequest) Pending() bool {
	return r.Decided == nil
}

// Granted reports whether the request was decided and approved.
func (r *ApprovalRequest) Granted() bool {
	return r.Decided != nil && *r.Decided
}

// WorkerOutput is one entry in the append-only audit trail. Entries are never
// mutated once appended.
type WorkerOutput struct {
	Worker    string        `json:"worker"`
	Timestamp time.Time     `json:"timestamp"`
	Result    *WorkerResult `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	Backend   string        `json:"backend,omitempty"`
	SubTaskID string        `json:"sub_task_id,omitempty"`
}

// ErrorRecord captures a worker execution failure.
type ErrorRecord struct {
	Worker    string    `json:"worker"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkflowState is the single mutable record threaded through every node of
// a workflow instance, keyed by thread ID. It is mutated exclusively through
// node-returned deltas (Apply) and checkpointed after every transition.
type WorkflowState struct {
	SchemaVersion int    `json:"schema_version"`
	ThreadID      string `json:"thread_id"`
	SessionID     string `json:"session_id"`
	UserID        string `json:"user_id"`

	Messages []Message `json:"messages"`

	TaskDescription   string       `json:"task_description"`
	TaskCategory      TaskCategory `json:"task_category,omitempty"`
	SubTasks          []string     `json:"sub_tasks,omitempty"`
	CompletedSubTasks []string     `json:"completed_sub_tasks,omitempty"`

	ActiveWorker  string                  `json:"active_worker,omitempty"`
	WorkerStatus  map[string]WorkerStatus `json:"worker_status,omitempty"`
	WorkerOutputs []WorkerOutput          `json:"worker_outputs,omitempty"`

	PendingFileChanges []FileChange `json:"pending_file_changes,omitempty"`

	RequiresApproval bool              `json:"requires_approval"`
	ApprovalRequests []ApprovalRequest `json:"approval_requests,omitempty"`

	Errors     []ErrorRecord `json:"errors,omitempty"`
	RetryCount int           `json:"retry_count"`
	RetryLimit int           `json:"retry_limit"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewWorkflowState creates the initial state for a submitted task.
func NewWorkflowState(threadID, sessionID, userID string, messages []Message) *WorkflowState {
	return &WorkflowState{
		SchemaVersion: StateSchemaVersion,
		ThreadID:      threadID,
		SessionID:     sessionID,
		UserID:        userID,
		Messages:      append([]Message(nil), messages...),
		WorkerStatus:  make(map[string]WorkerStatus),
		RetryLimit:    DefaultRetryLimit,
		StartedAt:     time.Now(),
	}
}

// PendingApproval returns the outstanding approval request, or nil. The
// engine guarantees at most one request is outstanding at a time.
func (s *WorkflowState) PendingApproval() *ApprovalRequest {
	for i := range s.ApprovalRequests {
		if s.ApprovalRequests[i].Pending() {
			return &s.ApprovalRequests[i]
		}
	}
	return nil
}

// FindApproval returns the request with the given id, or nil.
func (s *WorkflowState) FindApproval(id string) *ApprovalRequest {
	for i := range s.ApprovalRequests {
		if s.ApprovalRequests[i].ID == id {
			return &s.ApprovalRequests[i]
		}
	}
	return nil
}

// SubTaskCompleted reports whether the given sub-task id is already recorded
// as finished.
func (s *WorkflowState) SubTaskCompleted(id string) bool {
	for _, done := range s.CompletedSubTasks {
		if done == id {
			return true
		}
	}
	return false
}

// LatestUserMessage returns the content of the most recent user message, or
// the most recent message of any role when no user message exists.
func (s *WorkflowState) LatestUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	if n := len(s.Messages); n > 0 {
		return s.Messages[n-1].Content
	}
	return ""
}

// Clone returns a deep copy of the state. The engine applies deltas to a
// clone and only adopts it after the checkpoint write succeeds, so a failed
// write leaves the committed state untouched.
func (s *WorkflowState) Clone() *WorkflowState {
	cp := *s

	cp.Messages = append([]Message(nil), s.Messages...)
	cp.SubTasks = append([]string(nil), s.SubTasks...)
	cp.CompletedSubTasks = append([]string(nil), s.CompletedSubTasks...)
	cp.WorkerOutputs = append([]WorkerOutput(nil), s.WorkerOutputs...)
	cp.PendingFileChanges = append([]FileChange(nil), s.PendingFileChanges...)
	cp.Errors = append([]ErrorRecord(nil), s.Errors...)

	cp.WorkerStatus = make(map[string]WorkerStatus, len(s.WorkerStatus))
	for k, v := range s.WorkerStatus {
		cp.WorkerStatus[k] = v
	}

	cp.ApprovalRequests = make([]ApprovalRequest, len(s.ApprovalRequests))
	for i, r := range s.ApprovalRequests {
		cp.ApprovalRequests[i] = r
		if r.Decided != nil {
			d := *r.Decided
			cp.ApprovalRequests[i].Decided = &d
		}
		if r.DecidedAt != nil {
			t := *r.DecidedAt
			cp.ApprovalRequests[i].DecidedAt = &t
		}
	}

	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}

	return &cp
}
