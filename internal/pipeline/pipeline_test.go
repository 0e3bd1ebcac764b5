package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablewatch/ecosystem-cli/internal/enrich"
	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/internal/records"
	"github.com/stablewatch/ecosystem-cli/internal/store"
)

// fakeStage lets tests script stage behavior.
type fakeStage struct {
	name    string
	prereqs []string
	run     func(ctx context.Context, deps *enrich.Deps, recs []*model.Record) ([]*model.Record, enrich.Result, error)
}

func (s *fakeStage) Name() string            { return s.name }
func (s *fakeStage) Description() string     { return s.name }
func (s *fakeStage) Prerequisites() []string { return s.prereqs }

func (s *fakeStage) Run(ctx context.Context, deps *enrich.Deps, recs []*model.Record) ([]*model.Record, enrich.Result, error) {
	return s.run(ctx, deps, recs)
}

// noteStage appends a note to every record.
func noteStage(name string) *fakeStage {
	return &fakeStage{name: name, run: func(_ context.Context, _ *enrich.Deps, recs []*model.Record) ([]*model.Record, enrich.Result, error) {
		for _, rec := range recs {
			rec.AppendNote(name)
		}
		return recs, enrich.Result{Processed: len(recs), Updated: len(recs)}, nil
	}}
}

func writeTestStore(t *testing.T, recs []*model.Record) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.csv")
	require.NoError(t, records.Write(path, recs))
	return path
}

func newTestRunStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPipelineRunsStagesInOrder(t *testing.T) {
	path := writeTestStore(t, []*model.Record{{Name: "Thala"}, {Name: "Aurora"}})
	st := newTestRunStore(t)

	p := New(&enrich.Deps{}, st, noteStage("first"), noteStage("second"))
	job, err := p.Run(context.Background(), Options{StorePath: path, Chain: "aptos"})
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	require.Len(t, job.Stages, 2)
	assert.Equal(t, "first", job.Stages[0].Name)
	assert.Equal(t, "second", job.Stages[1].Name)
	assert.Equal(t, model.StageStatusCompleted, job.Stages[0].Status)
	assert.Equal(t, 2, job.Stages[0].Processed)
	assert.NotEmpty(t, job.BackupPath)

	recs, err := records.Load(path)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "first | second", recs[0].Notes, "stages ran in order")
	assert.Equal(t, model.FlagTrue, recs[0].Processed, "full pass marks rows processed")
}

func TestPipelineStopsOnError(t *testing.T) {
	path := writeTestStore(t, []*model.Record{{Name: "Thala"}})
	st := newTestRunStore(t)

	thirdRan := false
	boom := &fakeStage{name: "boom", run: func(_ context.Context, _ *enrich.Deps, recs []*model.Record) ([]*model.Record, enrich.Result, error) {
		return recs, enrich.Result{}, assert.AnError
	}}
	third := &fakeStage{name: "third", run: func(_ context.Context, _ *enrich.Deps, recs []*model.Record) ([]*model.Record, enrich.Result, error) {
		thirdRan = true
		return recs, enrich.Result{}, nil
	}}

	p := New(&enrich.Deps{}, st, noteStage("first"), boom, third)
	job, err := p.Run(context.Background(), Options{StorePath: path, Chain: "aptos"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage boom")
	assert.False(t, thirdRan, "stages after a failure never run")

	got, err := st.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	require.Len(t, got.Stages, 2)
	assert.Equal(t, model.StageStatusCompleted, got.Stages[0].Status)
	assert.Equal(t, model.StageStatusFailed, got.Stages[1].Status)
	assert.NotEmpty(t, got.Stages[1].Error)

	recs, err := records.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "first", recs[0].Notes, "the last completed stage's output survives")
	assert.Empty(t, string(recs[0].Processed), "a failed run never marks rows processed")
}

func TestPipelineRollbackRestoresPreRunBackup(t *testing.T) {
	path := writeTestStore(t, []*model.Record{{Name: "Thala", Notes: "hand-written"}})
	st := newTestRunStore(t)

	boom := &fakeStage{name: "boom", run: func(_ context.Context, _ *enrich.Deps, recs []*model.Record) ([]*model.Record, enrich.Result, error) {
		return recs, enrich.Result{}, assert.AnError
	}}

	p := New(&enrich.Deps{}, st, noteStage("first"), boom)
	job, err := p.Run(context.Background(), Options{StorePath: path, Rollback: true})
	require.Error(t, err)

	got, err := st.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)

	recs, err := records.Load(path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "hand-written", recs[0].Notes,
		"rollback discards the completed stage's changes too")
}

func TestPipelineChecksPrerequisites(t *testing.T) {
	path := writeTestStore(t, []*model.Record{{Name: "Thala"}})
	st := newTestRunStore(t)

	// The real matcher stage without a registry client must refuse to start.
	p := New(&enrich.Deps{}, st, &enrich.GridMatchStage{})
	_, err := p.Run(context.Background(), Options{StorePath: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grid-match needs Registry")
}

func TestPipelineStageSelection(t *testing.T) {
	path := writeTestStore(t, []*model.Record{{Name: "Thala"}})
	st := newTestRunStore(t)

	p := New(&enrich.Deps{}, st, noteStage("first"), noteStage("second"), noteStage("third"))

	job, err := p.Run(context.Background(), Options{StorePath: path, Only: []string{"second"}})
	require.NoError(t, err)
	require.Len(t, job.Stages, 1)
	assert.Equal(t, "second", job.Stages[0].Name)

	recs, err := records.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "second", recs[0].Notes)
	assert.Empty(t, string(recs[0].Processed), "partial runs never mark rows processed")

	_, err = p.Run(context.Background(), Options{StorePath: path, Only: []string{"nonsense"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown stage "nonsense"`)

	job, err = p.Run(context.Background(), Options{StorePath: path, Skip: []string{"first", "third"}})
	require.NoError(t, err)
	require.Len(t, job.Stages, 1)
	assert.Equal(t, "second", job.Stages[0].Name)
}

func TestPipelineLockExcludesConcurrentRuns(t *testing.T) {
	path := writeTestStore(t, []*model.Record{{Name: "Thala"}})
	st := newTestRunStore(t)

	fl := flock.New(path + ".lock")
	locked, err := fl.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer fl.Unlock()

	p := New(&enrich.Deps{}, st, noteStage("first"))
	job, err := p.Run(context.Background(), Options{StorePath: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another run holds")

	got, err := st.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
}

func TestPipelineCleansUpCheckpoints(t *testing.T) {
	path := writeTestStore(t, []*model.Record{{Name: "Thala"}})
	st := newTestRunStore(t)

	p := New(&enrich.Deps{}, st, noteStage("first"), noteStage("second"))
	_, err := p.Run(context.Background(), Options{StorePath: path})
	require.NoError(t, err)

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*checkpoint*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "checkpoints are removed after each successful stage")

	backups, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*prerun*"))
	require.NoError(t, err)
	assert.Len(t, backups, 1, "the prerun backup stays")
}

func TestPipelineDedupShrinksStore(t *testing.T) {
	path := writeTestStore(t, []*model.Record{
		{Name: "Thala", Website: "https://thala.fi"},
		{Name: "Thala Labs", Website: "https://thala.fi"},
	})
	st := newTestRunStore(t)

	p := New(&enrich.Deps{}, st, &enrich.DedupStage{})
	job, err := p.Run(context.Background(), Options{StorePath: path, Only: []string{"dedup"}})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)

	recs, err := records.Load(path)
	require.NoError(t, err)
	assert.Len(t, recs, 1, "merged rows are gone from the persisted store")
}
