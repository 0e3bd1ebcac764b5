package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/pkg/webscan"
)

func TestHealthCheckStageAnnotates(t *testing.T) {
	sc := &fakeScanner{
		status: map[string]webscan.Status{
			"https://alive.example": webscan.StatusAlive,
			"https://dead.example":  webscan.StatusDead,
			"https://slow.example":  webscan.StatusTimeout,
		},
		codes: map[string]int{
			"https://alive.example": 200,
			"https://dead.example":  404,
		},
	}
	recs := []*model.Record{
		{Name: "Alive", Website: "https://alive.example"},
		{Name: "Dead", Website: "https://dead.example"},
		{Name: "Slow", Website: "https://slow.example"},
	}

	_, res, err := (&HealthCheckStage{}).Run(context.Background(), &Deps{Scanner: sc, Concurrency: 1}, recs)
	require.NoError(t, err)

	assert.Contains(t, recs[0].Notes, "health-check: alive (HTTP 200)")
	assert.Contains(t, recs[1].Notes, "health-check: dead (HTTP 404)")
	assert.Contains(t, recs[2].Notes, "health-check: timeout")
	assert.NotContains(t, recs[2].Notes, "HTTP", "no status code when the probe never got one")
	assert.Equal(t, 3, res.Updated)
}

func TestHealthCheckStageSkipsCheckedAndWebsiteless(t *testing.T) {
	recs := []*model.Record{
		{Name: "No Site"},
		{Name: "Checked", Website: "https://x.example", Notes: HealthPrefix + " alive (HTTP 200)"},
	}

	_, res, err := (&HealthCheckStage{}).Run(context.Background(), &Deps{Scanner: &fakeScanner{}, Concurrency: 1}, recs)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Zero(t, res.Processed)
}

func TestHealthCheckStageKeepsDeadRows(t *testing.T) {
	sc := &fakeScanner{
		status: map[string]webscan.Status{"https://gone.example": webscan.StatusDNSFail},
	}
	rec := &model.Record{Name: "Gone", Website: "https://gone.example", Notes: "researched 2024"}

	_, _, err := (&HealthCheckStage{}).Run(context.Background(), &Deps{Scanner: sc, Concurrency: 1}, []*model.Record{rec})
	require.NoError(t, err)

	assert.Contains(t, rec.Notes, "researched 2024", "history survives a dead probe")
	assert.Contains(t, rec.Notes, "health-check: dns_fail")
}
