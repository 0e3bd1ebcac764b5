// Package pipeline orchestrates enrichment stages over a CSV record store:
// stage selection, prerequisite validation, backups, checkpointing and
// persistence of per-stage results to the run store.
package pipeline

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/stablewatch/ecosystem-cli/internal/enrich"
	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/internal/records"
	"github.com/stablewatch/ecosystem-cli/internal/store"
)

// DefaultStages returns the standard stage order. The airesearch stage is
// deliberately absent; it costs money per row and runs only on request.
func DefaultStages() []enrich.Stage {
	return []enrich.Stage{
		&enrich.DedupStage{},
		&enrich.GridExpandStage{},
		&enrich.GridMatchStage{},
		&enrich.DefiLlamaStage{},
		&enrich.CoinGeckoStage{},
		&enrich.WebScanStage{},
		&enrich.PromoteStage{},
		&enrich.HealthCheckStage{},
		&enrich.NotesStage{},
		&enrich.SourcesStage{},
	}
}

// Options configures one pipeline run.
type Options struct {
	// StorePath is the CSV record store to run over.
	StorePath string

	// Chain labels the job and feeds Deps.Chain when that is unset.
	Chain string

	// Only restricts the run to the named stages; Skip removes stages.
	// Both keep the default order and reject unknown names.
	Only []string
	Skip []string

	// Rollback restores the pre-run backup when a stage fails, discarding
	// every change the run made, completed stages included. Without it the
	// store keeps the output of the last completed stage.
	Rollback bool

	// LockPath overrides the lock file location. Defaults to StorePath + ".lock".
	LockPath string
}

// Pipeline runs enrichment stages over a record store.
type Pipeline struct {
	deps   *enrich.Deps
	store  store.Store
	stages []enrich.Stage
}

// New creates a Pipeline. With no stages given the default order applies.
func New(deps *enrich.Deps, st store.Store, stages ...enrich.Stage) *Pipeline {
	if len(stages) == 0 {
		stages = DefaultStages()
	}
	return &Pipeline{deps: deps, store: st, stages: stages}
}

// Run executes the pipeline synchronously and returns the finished job.
// The job record is also persisted to the run store, failures included.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*model.Job, error) {
	job, err := p.store.CreateJob(ctx, opts.Chain, opts.StorePath)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create job")
	}
	if err := p.execute(ctx, job, opts); err != nil {
		return job, err
	}
	return p.store.GetJob(ctx, job.ID)
}

// selectStages applies Only/Skip to the configured stage order.
func (p *Pipeline) selectStages(opts Options) ([]enrich.Stage, error) {
	known := make(map[string]bool, len(p.stages))
	for _, s := range p.stages {
		known[s.Name()] = true
	}
	for _, name := range append(append([]string{}, opts.Only...), opts.Skip...) {
		if !known[name] {
			return nil, eris.Errorf("pipeline: unknown stage %q", name)
		}
	}

	only := make(map[string]bool, len(opts.Only))
	for _, name := range opts.Only {
		only[name] = true
	}
	skip := make(map[string]bool, len(opts.Skip))
	for _, name := range opts.Skip {
		skip[name] = true
	}

	var selected []enrich.Stage
	for _, s := range p.stages {
		if len(only) > 0 && !only[s.Name()] {
			continue
		}
		if skip[s.Name()] {
			continue
		}
		selected = append(selected, s)
	}
	if len(selected) == 0 {
		return nil, eris.New("pipeline: no stages selected")
	}
	return selected, nil
}

// validatePrerequisites checks every selected stage against the wired deps
// before any work starts, so a misconfigured run fails fast and clean.
func validatePrerequisites(deps *enrich.Deps, stages []enrich.Stage) error {
	present := map[string]bool{
		"Registry":   deps.Registry != nil,
		"Index":      deps.Index != nil,
		"DefiLlama":  deps.DefiLlama != nil,
		"CoinGecko":  deps.CoinGecko != nil,
		"Scanner":    deps.Scanner != nil,
		"Researcher": deps.Researcher != nil,
		"Ref":        deps.Ref != nil,
	}

	var missing []string
	for _, s := range stages {
		for _, req := range s.Prerequisites() {
			if !present[req] {
				missing = append(missing, s.Name()+" needs "+req)
			}
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("pipeline: unmet prerequisites: %s", strings.Join(missing, "; "))
	}
	return nil
}

func (p *Pipeline) execute(ctx context.Context, job *model.Job, opts Options) error {
	log := zap.L().With(zap.String("job", job.ID), zap.String("store", opts.StorePath))

	fail := func(err error) error {
		if ferr := p.store.FailJob(ctx, job.ID, err.Error()); ferr != nil {
			log.Warn("pipeline: failed to record job failure", zap.Error(ferr))
		}
		return err
	}

	stages, err := p.selectStages(opts)
	if err != nil {
		return fail(err)
	}
	if err := validatePrerequisites(p.deps, stages); err != nil {
		return fail(err)
	}

	// One run per store at a time. A stale lock from a crashed run has to
	// be removed by hand, which is the safe default for a hand-edited table.
	lockPath := opts.LockPath
	if lockPath == "" {
		lockPath = opts.StorePath + ".lock"
	}
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return fail(eris.Wrap(err, "pipeline: acquire lock"))
	}
	if !locked {
		return fail(eris.Errorf("pipeline: another run holds %s", lockPath))
	}
	defer fl.Unlock()

	recs, err := records.Load(opts.StorePath)
	if err != nil {
		return fail(err)
	}

	backupPath, err := records.Backup(opts.StorePath, "prerun")
	if err != nil {
		return fail(err)
	}
	if err := p.store.SetBackupPath(ctx, job.ID, backupPath); err != nil {
		log.Warn("pipeline: failed to record backup path", zap.Error(err))
	}
	if err := p.store.UpdateJobStatus(ctx, job.ID, model.JobStatusRunning); err != nil {
		log.Warn("pipeline: failed to update status", zap.Error(err))
	}

	log.Info("pipeline: starting",
		zap.Int("records", len(recs)),
		zap.Int("stages", len(stages)),
		zap.String("backup", backupPath))

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return p.finishStopped(ctx, job, log)
		}

		if err := p.store.SetCurrentStage(ctx, job.ID, stage.Name()); err != nil {
			log.Warn("pipeline: failed to set current stage", zap.Error(err))
		}

		checkpoint, err := records.Backup(opts.StorePath, "checkpoint-"+stage.Name())
		if err != nil {
			return fail(err)
		}

		start := time.Now()
		out, res, runErr := stage.Run(ctx, p.deps, recs)
		sr := model.StageResult{
			Name:        stage.Name(),
			Description: stage.Description(),
			DurationMS:  time.Since(start).Milliseconds(),
			Processed:   res.Processed,
			Updated:     res.Updated,
			Skipped:     res.Skipped,
		}

		if runErr != nil {
			sr.Status = model.StageStatusFailed
			sr.Error = runErr.Error()
			if err := p.store.AppendStageResult(ctx, job.ID, sr); err != nil {
				log.Warn("pipeline: failed to append stage result", zap.Error(err))
			}
			log.Error("pipeline: stage failed",
				zap.String("stage", stage.Name()), zap.Error(runErr))

			if errors.Is(runErr, context.Canceled) {
				return p.finishStopped(ctx, job, log)
			}
			if opts.Rollback {
				if rerr := records.Restore(backupPath, opts.StorePath); rerr != nil {
					log.Error("pipeline: rollback failed", zap.Error(rerr))
				} else {
					log.Info("pipeline: rolled back to pre-run backup",
						zap.String("backup", backupPath))
				}
			}
			return fail(eris.Wrapf(runErr, "pipeline: stage %s", stage.Name()))
		}

		recs = out
		if err := records.Write(opts.StorePath, recs); err != nil {
			return fail(err)
		}

		sr.Status = model.StageStatusCompleted
		if err := p.store.AppendStageResult(ctx, job.ID, sr); err != nil {
			log.Warn("pipeline: failed to append stage result", zap.Error(err))
		}
		if err := os.Remove(checkpoint); err != nil {
			log.Warn("pipeline: failed to remove checkpoint", zap.Error(err))
		}

		log.Info("pipeline: stage complete",
			zap.String("stage", stage.Name()),
			zap.Int("processed", res.Processed),
			zap.Int("updated", res.Updated),
			zap.Int("skipped", res.Skipped))
	}

	// Only a full pass marks rows processed, so partial runs and full runs
	// stay distinguishable in the table itself.
	if len(opts.Only) == 0 && len(opts.Skip) == 0 {
		for _, rec := range recs {
			rec.Processed = model.FlagTrue
		}
		if err := records.Write(opts.StorePath, recs); err != nil {
			return fail(err)
		}
	}

	if err := p.store.SetCurrentStage(ctx, job.ID, ""); err != nil {
		log.Warn("pipeline: failed to clear current stage", zap.Error(err))
	}
	if err := p.store.UpdateJobStatus(ctx, job.ID, model.JobStatusCompleted); err != nil {
		log.Warn("pipeline: failed to update status", zap.Error(err))
	}
	log.Info("pipeline: completed", zap.Int("records", len(recs)))
	return nil
}

// finishStopped marks a cancelled job. The store keeps the output of the
// last completed stage; the prerun backup stays on disk.
func (p *Pipeline) finishStopped(ctx context.Context, job *model.Job, log *zap.Logger) error {
	// The run context is cancelled; the store update must still go through.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.store.UpdateJobStatus(sctx, job.ID, model.JobStatusStopped); err != nil {
		log.Warn("pipeline: failed to mark job stopped", zap.Error(err))
	}
	log.Info("pipeline: stopped")
	return context.Canceled
}
