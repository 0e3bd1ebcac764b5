package pipeline

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/internal/store"
)

// Manager runs pipelines in the background and tracks them by job id, for
// the serve command's start/status/stop API.
type Manager struct {
	pipeline *Pipeline
	store    store.Store

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates a Manager over the given pipeline and run store.
func NewManager(p *Pipeline, st store.Store) *Manager {
	return &Manager{
		pipeline: p,
		store:    st,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start creates a job and runs the pipeline in the background, returning
// immediately. Progress is observable through Status.
func (m *Manager) Start(ctx context.Context, opts Options) (*model.Job, error) {
	// Reject bad stage selections up front instead of as a failed job.
	if _, err := m.pipeline.selectStages(opts); err != nil {
		return nil, err
	}

	job, err := m.store.CreateJob(ctx, opts.Chain, opts.StorePath)
	if err != nil {
		return nil, eris.Wrap(err, "manager: create job")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancels[job.ID] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.cancels, job.ID)
			m.mu.Unlock()
			cancel()
		}()

		if err := m.pipeline.execute(runCtx, job, opts); err != nil {
			zap.L().Warn("manager: job finished with error",
				zap.String("job", job.ID), zap.Error(err))
		}
	}()

	return job, nil
}

// Status returns the persisted state of a job.
func (m *Manager) Status(ctx context.Context, jobID string) (*model.Job, error) {
	return m.store.GetJob(ctx, jobID)
}

// Stop cancels a running job. The pipeline notices between stages; the
// record store keeps the output of the last completed stage.
func (m *Manager) Stop(ctx context.Context, jobID string) error {
	m.mu.Lock()
	cancel, ok := m.cancels[jobID]
	m.mu.Unlock()

	if ok {
		cancel()
		return nil
	}

	// Not in flight here. Distinguish "already finished" from "never existed".
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Terminal() {
		return eris.Errorf("manager: job %s already %s", jobID, job.Status)
	}
	return eris.Errorf("manager: job %s is not running in this process", jobID)
}

// Wait blocks until every background job has finished. Used on shutdown.
func (m *Manager) Wait() {
	m.wg.Wait()
}
