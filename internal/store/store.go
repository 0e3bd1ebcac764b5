package store

import (
	"context"

	"github.com/stablewatch/ecosystem-cli/internal/model"
)

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status model.JobStatus `json:"status,omitempty"`
	Chain  string          `json:"chain,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for pipeline jobs. The record
// table itself lives in CSV files; the store only tracks runs over it.
type Store interface {
	CreateJob(ctx context.Context, chain, storePath string) (*model.Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus) error
	SetCurrentStage(ctx context.Context, jobID, stage string) error
	SetBackupPath(ctx context.Context, jobID, path string) error
	FailJob(ctx context.Context, jobID, message string) error
	AppendStageResult(ctx context.Context, jobID string, result model.StageResult) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
