package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablewatch/ecosystem-cli/internal/enrich"
	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/internal/store"
)

func TestManagerRunsJobInBackground(t *testing.T) {
	path := writeTestStore(t, []*model.Record{{Name: "Thala"}})
	st := newTestRunStore(t)

	m := NewManager(New(&enrich.Deps{}, st, noteStage("first")), st)
	job, err := m.Start(context.Background(), Options{StorePath: path, Chain: "aptos"})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	m.Wait()

	got, err := m.Status(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	require.Len(t, got.Stages, 1)
	assert.Equal(t, "first", got.Stages[0].Name)
}

func TestManagerStopCancelsRunningJob(t *testing.T) {
	path := writeTestStore(t, []*model.Record{{Name: "Thala"}})
	st := newTestRunStore(t)

	started := make(chan struct{})
	blocking := &fakeStage{name: "blocking", run: func(ctx context.Context, _ *enrich.Deps, recs []*model.Record) ([]*model.Record, enrich.Result, error) {
		close(started)
		<-ctx.Done()
		return recs, enrich.Result{}, ctx.Err()
	}}

	m := NewManager(New(&enrich.Deps{}, st, blocking), st)
	job, err := m.Start(context.Background(), Options{StorePath: path})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("stage never started")
	}

	require.NoError(t, m.Stop(context.Background(), job.ID))
	m.Wait()

	got, err := m.Status(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusStopped, got.Status)
}

func TestManagerStartRejectsUnknownStage(t *testing.T) {
	st := newTestRunStore(t)
	m := NewManager(New(&enrich.Deps{}, st, noteStage("first")), st)

	_, err := m.Start(context.Background(), Options{StorePath: "x.csv", Only: []string{"nope"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage")

	jobs, err := st.ListJobs(context.Background(), store.JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, jobs, "a rejected start leaves no job row")
}

func TestManagerStopUnknownJob(t *testing.T) {
	st := newTestRunStore(t)
	m := NewManager(New(&enrich.Deps{}, st), st)

	err := m.Stop(context.Background(), "nope")
	require.Error(t, err)
}

func TestManagerStopFinishedJob(t *testing.T) {
	path := writeTestStore(t, []*model.Record{{Name: "Thala"}})
	st := newTestRunStore(t)

	m := NewManager(New(&enrich.Deps{}, st, noteStage("first")), st)
	job, err := m.Start(context.Background(), Options{StorePath: path})
	require.NoError(t, err)
	m.Wait()

	err = m.Stop(context.Background(), job.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already completed")
}
