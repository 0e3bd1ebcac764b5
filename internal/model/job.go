package model

import "time"

// JobStatus represents the current state of a pipeline job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusStopped   JobStatus = "stopped"
)

// StageStatus represents the current state of a single pipeline stage.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
	StageStatusSkipped   StageStatus = "skipped"
)

// StageResult holds the outcome of one stage within a job.
type StageResult struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Status      StageStatus    `json:"status"`
	Error       string         `json:"error,omitempty"`
	DurationMS  int64          `json:"duration_ms,omitempty"`
	Processed   int            `json:"processed,omitempty"`
	Updated     int            `json:"updated,omitempty"`
	Skipped     int            `json:"skipped,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Job represents one pipeline run over a chain's record store.
type Job struct {
	ID           string        `json:"id"`
	Chain        string        `json:"chain"`
	StorePath    string        `json:"store_path"`
	Status       JobStatus     `json:"status"`
	Stages       []StageResult `json:"stages"`
	CurrentStage string        `json:"current_stage,omitempty"`
	Error        string        `json:"error,omitempty"`
	BackupPath   string        `json:"backup_path,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Terminal reports whether the job can no longer change state.
func (j *Job) Terminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusStopped:
		return true
	}
	return false
}
