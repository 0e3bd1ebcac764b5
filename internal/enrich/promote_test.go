package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/internal/refdata"
)

func promoteDeps() *Deps {
	return &Deps{Ref: refdata.Default(), Asset: "USDT"}
}

func TestPromoteStageAssetHint(t *testing.T) {
	rec := &model.Record{
		Name:  "Thala",
		Notes: UnverifiedPrefix + " mentions usdt",
	}

	_, res, err := (&PromoteStage{}).Run(context.Background(), promoteDeps(), []*model.Record{rec})
	require.NoError(t, err)

	assert.Equal(t, model.FlagTrue, rec.SuspectUSDT)
	assert.Contains(t, rec.Notes, PromotedNote)
	assert.True(t, rec.HasEvidenceMarker(PromotedEvidence))
	assert.Equal(t, 1, res.Updated)
}

func TestPromoteStageGenericHint(t *testing.T) {
	rec := &model.Record{
		Name:  "Aurora",
		Notes: UnverifiedPrefix + " mentions generic stablecoin term 'stablecoin'",
	}

	_, _, err := (&PromoteStage{}).Run(context.Background(), promoteDeps(), []*model.Record{rec})
	require.NoError(t, err)

	assert.Empty(t, string(rec.SuspectUSDT))
	assert.Equal(t, model.FlagTrue, rec.GeneralStablecoin)
}

func TestPromoteStageWeb3OnlyHint(t *testing.T) {
	rec := &model.Record{
		Name:  "SomeDex",
		Notes: UnverifiedPrefix + " web3 term 'liquidity'",
	}

	_, _, err := (&PromoteStage{}).Run(context.Background(), promoteDeps(), []*model.Record{rec})
	require.NoError(t, err)

	assert.Equal(t, model.FlagTrue, rec.Web3NoStablecoin)
	assert.Empty(t, string(rec.SuspectUSDT))
	assert.Empty(t, string(rec.GeneralStablecoin))
}

func TestPromoteStageWeb3HintYieldsToStablecoinHint(t *testing.T) {
	rec := &model.Record{
		Name: "Thala",
		Notes: UnverifiedPrefix + " mentions usdt | " +
			UnverifiedPrefix + " web3 term 'swap'",
	}

	_, _, err := (&PromoteStage{}).Run(context.Background(), promoteDeps(), []*model.Record{rec})
	require.NoError(t, err)

	assert.Equal(t, model.FlagTrue, rec.SuspectUSDT)
	assert.Empty(t, string(rec.Web3NoStablecoin),
		"web3-but-no-stablecoin only applies when no stablecoin hint exists")
}

func TestPromoteStageIsIdempotent(t *testing.T) {
	rec := &model.Record{Name: "Thala", Notes: UnverifiedPrefix + " mentions usdt"}
	deps := promoteDeps()
	stage := &PromoteStage{}

	_, _, err := stage.Run(context.Background(), deps, []*model.Record{rec})
	require.NoError(t, err)
	first := rec.Clone()

	_, res, err := stage.Run(context.Background(), deps, []*model.Record{rec})
	require.NoError(t, err)
	assert.Equal(t, first, rec)
	assert.Zero(t, res.Updated)
}

func TestPromoteStageIgnoresPlainNotes(t *testing.T) {
	rec := &model.Record{Name: "Thala", Notes: "researcher says: uses usdt heavily"}

	_, res, err := (&PromoteStage{}).Run(context.Background(), promoteDeps(), []*model.Record{rec})
	require.NoError(t, err)
	assert.Empty(t, string(rec.SuspectUSDT), "only scan hints are promotable")
	assert.Zero(t, res.Processed)
}
