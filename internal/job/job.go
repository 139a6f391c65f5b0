// Package job tracks ephemeral pipeline runs in memory. Jobs exist to feed
// progress streams and expire shortly after completion; durable results live
// in the store.
package job

import (
	"encoding/json"
	"time"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
	// StatusDegraded marks a run that finished with at least one stage
	// falling back to defaults.
	StatusDegraded Status = "degraded"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusDegraded
}

// StageStatus is one pipeline stage's state.
type StageStatus string

const (
	StageIdle    StageStatus = "idle"
	StageRunning StageStatus = "running"
	StageDone    StageStatus = "done"
	// StageWarn means the stage finished on fallback data.
	StageWarn StageStatus = "warn"
	StageFail StageStatus = "fail"
)

// Event is one progress update on a job's stream.
type Event struct {
	JobID   string      `json:"job_id"`
	Stage   string      `json:"stage,omitempty"`
	Status  StageStatus `json:"status,omitempty"`
	Message string      `json:"message,omitempty"`
	// Final carries the job's terminal status on the last event.
	Final Status    `json:"final,omitempty"`
	At    time.Time `json:"at"`
}

// Job is a point-in-time snapshot of one run.
type Job struct {
	ID     string                 `json:"id"`
	Status Status                 `json:"status"`
	Stages map[string]StageStatus `json:"stages"`
	Result json.RawMessage        `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
