package model

import "time"

// RunStatus represents the current state of a tracking run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status is one of the three terminal states.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusPartial, RunStatusFailed:
		return true
	}
	return false
}

// JobCounts aggregates per-job outcomes for a run. Retried counts retry
// attempts beyond the first try, not jobs.
type JobCounts struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
	Cancelled int `json:"cancelled"`
}

// Run is one tracking invocation: the batch execution of
// (variant x engine) jobs for a cluster.
type Run struct {
	ID            string     `json:"id"`
	ClusterID     string     `json:"cluster_id"`
	Engines       []string   `json:"engines,omitempty"` // empty = all registered
	VariantSample int        `json:"variant_sample"`
	Status        RunStatus  `json:"status"`
	Counts        JobCounts  `json:"counts"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}
