package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/stablewatch/ecosystem-cli/internal/db"
	"github.com/stablewatch/ecosystem-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_job":        `INSERT INTO jobs (id, chain, store_path, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"update_job_status": `UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3`,
	"set_current_stage": `UPDATE jobs SET current_stage = $1, updated_at = $2 WHERE id = $3`,
	"get_job":           `SELECT id, chain, store_path, status, current_stage, error, backup_path, created_at, updated_at FROM jobs WHERE id = $1`,
	"insert_job_stage":  `INSERT INTO job_stages (id, job_id, seq, name, result, created_at) VALUES ($1, $2, (SELECT COALESCE(MAX(seq), 0) + 1 FROM job_stages WHERE job_id = $2), $3, $4, $5)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	chain         TEXT NOT NULL,
	store_path    TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	current_stage TEXT,
	error         TEXT,
	backup_path   TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS job_stages (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	job_id     TEXT NOT NULL REFERENCES jobs(id),
	seq        INTEGER NOT NULL,
	name       TEXT NOT NULL,
	result     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_chain ON jobs(chain);
CREATE INDEX IF NOT EXISTS idx_job_stages_job_id ON job_stages(job_id, seq);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, chain, storePath string) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, chain, store_path, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, chain, storePath, string(model.JobStatusPending), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}

	return &model.Job{
		ID:        id,
		Chain:     chain,
		StorePath: storePath,
		Status:    model.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job status %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) SetCurrentStage(ctx context.Context, jobID, stage string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET current_stage = $1, updated_at = $2 WHERE id = $3`,
		stage, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set current stage %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) SetBackupPath(ctx context.Context, jobID, path string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET backup_path = $1, updated_at = $2 WHERE id = $3`,
		path, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set backup path %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, jobID, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(model.JobStatusFailed), message, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) AppendStageResult(ctx context.Context, jobID string, result model.StageResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stage result")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO job_stages (id, job_id, seq, name, result, created_at)
		 VALUES ($1, $2, (SELECT COALESCE(MAX(seq), 0) + 1 FROM job_stages WHERE job_id = $2), $3, $4, $5)`,
		uuid.New().String(), jobID, result.Name, resultJSON, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: append stage result for job %s", jobID)
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	var j model.Job
	var currentStage, errMsg, backupPath *string

	err := s.pool.QueryRow(ctx,
		`SELECT id, chain, store_path, status, current_stage, error, backup_path, created_at, updated_at
		 FROM jobs WHERE id = $1`,
		jobID,
	).Scan(&j.ID, &j.Chain, &j.StorePath, &j.Status,
		&currentStage, &errMsg, &backupPath, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("job not found: %s", jobID)
		}
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	if currentStage != nil {
		j.CurrentStage = *currentStage
	}
	if errMsg != nil {
		j.Error = *errMsg
	}
	if backupPath != nil {
		j.BackupPath = *backupPath
	}

	rows, err := s.pool.Query(ctx,
		`SELECT result FROM job_stages WHERE job_id = $1 ORDER BY seq`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job stages %s", jobID)
	}
	defer rows.Close()

	for rows.Next() {
		var resultJSON []byte
		if err := rows.Scan(&resultJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage result")
		}
		var sr model.StageResult
		if err := json.Unmarshal(resultJSON, &sr); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal stage result")
		}
		j.Stages = append(j.Stages, sr)
	}
	return &j, eris.Wrap(rows.Err(), "postgres: get job stages iterate")
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT id, chain, store_path, status, current_stage, error, backup_path, created_at, updated_at
	          FROM jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Chain != "" {
		query += fmt.Sprintf(` AND chain = $%d`, argIdx)
		args = append(args, filter.Chain)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var j model.Job
		var currentStage, errMsg, backupPath *string

		if err := rows.Scan(&j.ID, &j.Chain, &j.StorePath, &j.Status,
			&currentStage, &errMsg, &backupPath, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		if currentStage != nil {
			j.CurrentStage = *currentStage
		}
		if errMsg != nil {
			j.Error = *errMsg
		}
		if backupPath != nil {
			j.BackupPath = *backupPath
		}
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}
