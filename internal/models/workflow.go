package models

import "time"

// WorkflowStatus is the processing state of a source URL
type WorkflowStatus string

const (
	WorkflowPending    WorkflowStatus = "pending"
	WorkflowInProgress WorkflowStatus = "in_progress"
	WorkflowError      WorkflowStatus = "error"
	WorkflowDone       WorkflowStatus = "done"
)

// WorkflowStatuses lists every status in lifecycle order
var WorkflowStatuses = []WorkflowStatus{WorkflowPending, WorkflowInProgress, WorkflowError, WorkflowDone}

// Valid reports whether s is one of the four known statuses
func (s WorkflowStatus) Valid() bool {
	for _, v := range WorkflowStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// WorkflowEntry is the durable processing record for one source URL.
// URL is also the storage key. Fields carry no secondary indexes: a shared
// index key would make writes to distinct entries conflict.
type WorkflowEntry struct {
	URL       string         `json:"url"`
	SourceID  string         `json:"source_id"`
	Status    WorkflowStatus `json:"status"`
	Note      string         `json:"note,omitempty"`
	Attempts  int            `json:"attempts"`
	ClaimedAt *time.Time     `json:"claimed_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewPendingEntry creates a fresh pending entry for a URL
func NewPendingEntry(url, sourceID string) *WorkflowEntry {
	now := time.Now()
	return &WorkflowEntry{
		URL:       url,
		SourceID:  sourceID,
		Status:    WorkflowPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// WorkflowFilter narrows workflow listings; zero fields match everything
type WorkflowFilter struct {
	SourceID string
	Status   WorkflowStatus
}

// Matches reports whether e passes the filter
func (f WorkflowFilter) Matches(e *WorkflowEntry) bool {
	if f.SourceID != "" && e.SourceID != f.SourceID {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	return true
}
