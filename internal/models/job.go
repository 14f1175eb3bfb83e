package models

import "time"

type JobStatus string

const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether a record in status s may be rewritten with
// status next. Rewriting the same non-terminal status is allowed so progress
// checkpoints can be recorded.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusWaiting:
		return next == JobStatusWaiting || next == JobStatusActive
	case JobStatusActive:
		return next == JobStatusActive || next.Terminal()
	default:
		return false
	}
}

// JobRecord is the persisted status envelope of an asynchronous run. Result is
// set only when completed and Error only when failed.
type JobRecord struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"userId,omitempty"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Attempt   int       `json:"attempt,omitempty"`
	Result    *Plan     `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Job is the unit of work handed to the queue.
type Job struct {
	ID          string      `json:"id"`
	OwnerID     string      `json:"userId"`
	Preferences Preferences `json:"preferences"`
	Timestamp   time.Time   `json:"timestamp"`
}

// HistoryItem is appended to an owner's history when a job completes.
type HistoryItem struct {
	ID          string      `json:"id"`
	Preferences Preferences `json:"preferences"`
	Result      *Plan       `json:"result"`
	CreatedAt   time.Time   `json:"createdAt"`
}
