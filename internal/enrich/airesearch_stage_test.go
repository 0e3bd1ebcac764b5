package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/pkg/airesearch"
)

func TestAIResearchStageAnnotates(t *testing.T) {
	researcher := &fakeResearcher{assessments: map[string]*airesearch.Assessment{
		"Mystery": {
			Summary:       "Defunct NFT marketplace, no stablecoin angle",
			LikelyDefunct: true,
			Confidence:    "medium",
		},
	}}
	rec := &model.Record{Name: "Mystery", Chain: "aptos"}

	_, res, err := (&AIResearchStage{}).Run(context.Background(), &Deps{Researcher: researcher, Concurrency: 1}, []*model.Record{rec})
	require.NoError(t, err)

	assert.Contains(t, rec.Notes,
		"["+AIMarker+"] Defunct NFT marketplace, no stablecoin angle (stablecoin: false, defunct: true, confidence: medium)")
	assert.Empty(t, string(rec.SuspectUSDT), "model output is a note, never a flag")
	assert.Empty(t, rec.Evidence)
	assert.Equal(t, 1, res.Updated)
}

func TestAIResearchStageOnlyTargetsUnresolvedRows(t *testing.T) {
	recs := []*model.Record{
		{Name: "Matched", GridStatus: model.GridStatusMatched},
		{Name: "Flagged", SuspectUSDT: model.FlagTrue},
		{Name: "Asked", Notes: "[" + AIMarker + "] already reviewed"},
	}

	_, res, err := (&AIResearchStage{}).Run(context.Background(), &Deps{Researcher: &fakeResearcher{}, Concurrency: 1}, recs)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Skipped)
	assert.Zero(t, res.Processed)
}

func TestAIResearchStageFailureIsNotFatal(t *testing.T) {
	researcher := &fakeResearcher{err: errors.New("overloaded")}
	rec := &model.Record{Name: "Mystery"}

	_, res, err := (&AIResearchStage{}).Run(context.Background(), &Deps{Researcher: researcher, Concurrency: 1}, []*model.Record{rec})
	require.NoError(t, err)
	assert.Empty(t, rec.Notes)
	assert.Equal(t, 1, res.Processed)
	assert.Zero(t, res.Updated)
}
