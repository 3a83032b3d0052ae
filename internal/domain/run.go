package domain

import "time"

// RunStatus represents the processing state of a dispatch run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusAborted   RunStatus = "ABORTED"
)

func (s RunStatus) String() string { return string(s) }

func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusAborted:
		return true
	}
	return false
}

// DispatchRun is the persisted record of one dispatcher invocation that passed preflight.
type DispatchRun struct {
	ID         string
	Status     RunStatus
	Total      int
	Succeeded  int
	Failed     int
	Exhausted  int
	Skipped    int
	StartedAt  time.Time
	FinishedAt *time.Time
}
