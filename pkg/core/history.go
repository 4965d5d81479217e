package core

import "time"

// HistoryKind classifies a history entry.
type HistoryKind string

// History kinds.
const (
	HistoryImport         HistoryKind = "import"
	HistoryWorkspaceLoad  HistoryKind = "workspace.load"
	HistoryWorkspaceSave  HistoryKind = "workspace.save"
	HistoryWorkspaceClose HistoryKind = "workspace.close"
)

// HistoryStatus is the outcome of a recorded action.
type HistoryStatus string

// History statuses.
const (
	HistoryRunning   HistoryStatus = "running"
	HistorySucceeded HistoryStatus = "succeeded"
	HistoryFailed    HistoryStatus = "failed"
)

// HistoryEntry records one import run or workspace action.
type HistoryEntry struct {
	ID          string        `json:"id"`
	Kind        HistoryKind   `json:"kind"`
	Target      string        `json:"target"`
	Source      string        `json:"source,omitempty"`
	Status      HistoryStatus `json:"status"`
	FailedStep  string        `json:"failed_step,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// HistoryStore persists HistoryEntry records.
type HistoryStore interface {
	Begin(kind HistoryKind, target, source string) (*HistoryEntry, error)
	Finish(id string, status HistoryStatus, failedStep, errMsg string) error
	Get(id string) (*HistoryEntry, error)
	List(limit int) ([]*HistoryEntry, error)
	Close() error
}
