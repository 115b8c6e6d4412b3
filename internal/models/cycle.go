package models

import "time"

// RunStatus is the outcome of a source run or a whole cycle.
type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusPartial RunStatus = "partial"
	StatusFailed  RunStatus = "failed"
)

// SourceRun records one source adapter's contribution to a cycle.
type SourceRun struct {
	Source        string        `json:"source"`
	Status        RunStatus     `json:"status"`
	ItemsIngested int           `json:"items_ingested"`
	Entities      int           `json:"entities"`
	Error         string        `json:"error,omitempty"`
	Duration      time.Duration `json:"duration"`
	StartedAt     time.Time     `json:"started_at"`
}

// Cycle is one complete observation pass across all sources.
type Cycle struct {
	ID          string      `json:"id"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at"`
	Status      RunStatus   `json:"status"`
	EntityCount int         `json:"entity_count"`
	Runs        []SourceRun `json:"runs"`
}

// StatusFromRuns derives the cycle status: success when every run succeeded,
// failed when none did, partial otherwise. No runs counts as failed.
func StatusFromRuns(runs []SourceRun) RunStatus {
	if len(runs) == 0 {
		return StatusFailed
	}
	ok := 0
	for i := range runs {
		if runs[i].Status == StatusSuccess {
			ok++
		}
	}
	switch ok {
	case len(runs):
		return StatusSuccess
	case 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}
