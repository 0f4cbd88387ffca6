package types

import "time"

// ApprovalResolution records the outcome of an external decision against an
// outstanding approval request.
type ApprovalResolution struct {
	RequestID string    `json:"request_id"`
	Granted   bool      `json:"granted"`
	DecidedBy string    `json:"decided_by"`
	DecidedAt time.Time `json:"decided_at"`
	Feedback  string    `json:"feedback,omitempty"`
}

// StateDelta is the only way a node mutates workflow state. List fields are
// appended, map fields merged, pointer fields replace when non-nil. The
// reducer semantics keep the audit-trail fields append-only.
type StateDelta struct {
	Messages []Message `json:"messages,omitempty"`

	TaskDescription *string       `json:"task_description,omitempty"`
	TaskCategory    *TaskCategory `json:"task_category,omitempty"`

	// SubTasks replaces the list wholesale when non-nil (only the planner
	// sets it); CompletedSubTasks appends with set semantics.
	SubTasks          []string `json:"sub_tasks,omitempty"`
	CompletedSubTasks []string `json:"completed_sub_tasks,omitempty"`

	ActiveWorker *string                 `json:"active_worker,omitempty"`
	WorkerStatus map[string]WorkerStatus `json:"worker_status,omitempty"`

	WorkerOutputs []WorkerOutput `json:"worker_outputs,omitempty"`

	PendingFileChanges []FileChange `json:"pending_file_changes,omitempty"`
	// DiscardFileChanges clears accumulated changes; set only by the owning
	// worker on explicit discard or after an approval outcome is applied.
	DiscardFileChanges bool `json:"discard_file_changes,omitempty"`

	RequiresApproval *bool             `json:"requires_approval,omitempty"`
	ApprovalRequests []ApprovalRequest `json:"approval_requests,omitempty"`
	// ResolveApproval marks the matching outstanding request as decided.
	ResolveApproval *ApprovalResolution `json:"resolve_approval,omitempty"`

	Errors          []ErrorRecord `json:"errors,omitempty"`
	RetryCountDelta int           `json:"retry_count_delta,omitempty"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Apply merges a delta into the state. Append-only fields grow monotonically;
// nothing is removed except pending file changes on explicit discard.
func (s *WorkflowState) Apply(d *StateDelta) {
	if d == nil {
		return
	}

	s.Messages = append(s.Messages, d.Messages...)

	if d.TaskDescription != nil {
		s.TaskDescription = *d.TaskDescription
	}
	if d.TaskCategory != nil {
		s.TaskCategory = *d.TaskCategory
	}
	if d.SubTasks != nil {
		s.SubTasks = append([]string(nil), d.SubTasks...)
	}
	for _, id := range d.CompletedSubTasks {
		if !s.SubTaskCompleted(id) {
			s.CompletedSubTasks = append(s.CompletedSubTasks, id)
		}
	}

	if d.ActiveWorker != nil {
		s.ActiveWorker = *d.ActiveWorker
	}
	if len(d.WorkerStatus) > 0 && s.WorkerStatus == nil {
		s.WorkerStatus = make(map[string]WorkerStatus, len(d.WorkerStatus))
	}
	for k, v := range d.WorkerStatus {
		s.WorkerStatus[k] = v
	}

	s.WorkerOutputs = append(s.WorkerOutputs, d.WorkerOutputs...)

	if d.DiscardFileChanges {
		s.PendingFileChanges = nil
	}
	s.PendingFileChanges = append(s.PendingFileChanges, d.PendingFileChanges...)

	if d.RequiresApproval != nil {
		s.RequiresApproval = *d.RequiresApproval
	}
	s.ApprovalRequests = append(s.ApprovalRequests, d.ApprovalRequests...)
	if res := d.ResolveApproval; res != nil {
		if req := s.FindApproval(res.RequestID); req != nil && req.Pending() {
			granted := res.Granted
			decidedAt := res.DecidedAt
			req.Decided = &granted
			req.DecidedBy = res.DecidedBy
			req.DecidedAt = &decidedAt
			req.Feedback = res.Feedback
		}
	}

	s.Errors = append(s.Errors, d.Errors...)
	s.RetryCount += d.RetryCountDelta

	if d.CompletedAt != nil {
		t := *d.CompletedAt
		s.CompletedAt = &t
	}
}
