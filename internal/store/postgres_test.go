package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablewatch/ecosystem-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_CreateJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(pgxmock.AnyArg(), "aptos", "/data/aptos.csv",
			string(model.JobStatusPending), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	job, err := s.CreateJob(context.Background(), "aptos", "/data/aptos.csv")
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateJobStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE jobs SET status`).
		WithArgs(string(model.JobStatusRunning), pgxmock.AnyArg(), "nope").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateJobStatus(context.Background(), "nope", model.JobStatusRunning)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendStageResult(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO job_stages`).
		WithArgs(pgxmock.AnyArg(), "job-1", "grid-match", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.AppendStageResult(context.Background(), "job-1", model.StageResult{
		Name:      "grid-match",
		Status:    model.StageStatusCompleted,
		Processed: 42,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	stage := "grid-match"

	mock.ExpectQuery(`SELECT id, chain, store_path, status, current_stage, error, backup_path, created_at, updated_at`).
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "chain", "store_path", "status",
			"current_stage", "error", "backup_path", "created_at", "updated_at",
		}).AddRow("job-1", "aptos", "/data/aptos.csv", model.JobStatus("running"),
			&stage, (*string)(nil), (*string)(nil), now, now))

	mock.ExpectQuery(`SELECT result FROM job_stages`).
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"result"}).
			AddRow([]byte(`{"name":"dedup","status":"completed","processed":5}`)))

	job, err := s.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, job.Status)
	assert.Equal(t, "grid-match", job.CurrentStage)
	require.Len(t, job.Stages, 1)
	assert.Equal(t, "dedup", job.Stages[0].Name)
	assert.Equal(t, 5, job.Stages[0].Processed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetJob_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, chain, store_path`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetJob(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListJobs_Filtered(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, chain, store_path, status, current_stage, error, backup_path, created_at, updated_at`).
		WithArgs(string(model.JobStatusCompleted), "aptos", 100).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "chain", "store_path", "status",
			"current_stage", "error", "backup_path", "created_at", "updated_at",
		}).AddRow("job-1", "aptos", "/data/aptos.csv", model.JobStatus("completed"),
			(*string)(nil), (*string)(nil), (*string)(nil), now, now))

	jobs, err := s.ListJobs(context.Background(), JobFilter{
		Status: model.JobStatusCompleted,
		Chain:  "aptos",
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-1", jobs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
