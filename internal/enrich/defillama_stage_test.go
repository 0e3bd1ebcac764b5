package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/internal/refdata"
	"github.com/stablewatch/ecosystem-cli/pkg/defillama"
)

func llamaDeps(llama *fakeLlama) *Deps {
	return &Deps{DefiLlama: llama, Ref: refdata.Default(), Asset: "USDT", Concurrency: 1}
}

func snapshot(tokens map[string]float64) []defillama.TokenSnapshot {
	return []defillama.TokenSnapshot{{Date: 1700000000, Tokens: tokens}}
}

func TestDefiLlamaStageFlagsTargetAsset(t *testing.T) {
	llama := &fakeLlama{
		summaries: []defillama.ProtocolSummary{
			{Name: "Thala", Slug: "thala", URL: "https://thala.fi"},
		},
		protocols: map[string]*defillama.Protocol{
			"thala": {Name: "Thala", TokensInUSD: snapshot(map[string]float64{"USDT": 50000, "APT": 1000})},
		},
	}

	rec := &model.Record{Name: "Thala", Website: "https://thala.fi"}
	_, res, err := (&DefiLlamaStage{}).Run(context.Background(), llamaDeps(llama), []*model.Record{rec})
	require.NoError(t, err)

	assert.Equal(t, model.FlagTrue, rec.SuspectUSDT)
	assert.Contains(t, rec.Evidence, "https://defillama.com/protocol/thala")
	assert.Contains(t, rec.Notes, "DefiLlama TVL holds USDT")
	assert.Equal(t, 1, res.Updated)
}

func TestDefiLlamaStageUSDCOnlyDistinction(t *testing.T) {
	llama := &fakeLlama{
		summaries: []defillama.ProtocolSummary{
			{Name: "Aries Markets", Slug: "aries", URL: "https://ariesmarkets.xyz"},
		},
		protocols: map[string]*defillama.Protocol{
			"aries": {Name: "Aries Markets", TokensInUSD: snapshot(map[string]float64{"USDC": 80000, "APT": 500})},
		},
	}

	rec := &model.Record{Name: "Aries Markets", Website: "https://ariesmarkets.xyz"}
	_, _, err := (&DefiLlamaStage{}).Run(context.Background(), llamaDeps(llama), []*model.Record{rec})
	require.NoError(t, err)

	assert.Empty(t, string(rec.SuspectUSDT), "USDC holdings never imply USDT")
	assert.Equal(t, model.FlagTrue, rec.GeneralStablecoin)
	assert.Contains(t, rec.Notes, "Supports USDC only (no USDT)")
}

func TestDefiLlamaStageBridgedAliasCounts(t *testing.T) {
	llama := &fakeLlama{
		summaries: []defillama.ProtocolSummary{
			{Name: "Cellana", Slug: "cellana", URL: "https://cellana.finance"},
		},
		protocols: map[string]*defillama.Protocol{
			"cellana": {Name: "Cellana", TokensInUSD: snapshot(map[string]float64{"axlUSDT": 12000})},
		},
	}

	rec := &model.Record{Name: "Cellana", Website: "https://cellana.finance"}
	_, _, err := (&DefiLlamaStage{}).Run(context.Background(), llamaDeps(llama), []*model.Record{rec})
	require.NoError(t, err)
	assert.Equal(t, model.FlagTrue, rec.SuspectUSDT)
}

func TestDefiLlamaStageDustIgnored(t *testing.T) {
	llama := &fakeLlama{
		summaries: []defillama.ProtocolSummary{
			{Name: "Thala", Slug: "thala", URL: "https://thala.fi"},
		},
		protocols: map[string]*defillama.Protocol{
			"thala": {Name: "Thala", TokensInUSD: snapshot(map[string]float64{"USDT": 3})},
		},
	}

	rec := &model.Record{Name: "Thala", Website: "https://thala.fi"}
	_, _, err := (&DefiLlamaStage{}).Run(context.Background(), llamaDeps(llama), []*model.Record{rec})
	require.NoError(t, err)
	assert.Empty(t, string(rec.SuspectUSDT))
	assert.Contains(t, rec.Notes, "no USDT/USDC holdings")
}

func TestDefiLlamaStageUnlistedProjectUntouched(t *testing.T) {
	llama := &fakeLlama{}
	rec := &model.Record{Name: "Obscure Thing"}

	_, res, err := (&DefiLlamaStage{}).Run(context.Background(), llamaDeps(llama), []*model.Record{rec})
	require.NoError(t, err)
	assert.Empty(t, rec.Notes)
	assert.Zero(t, res.Updated)
}

func TestDefiLlamaStageDomainConflictRejected(t *testing.T) {
	// Same normalized name but DefiLlama lists a different website.
	llama := &fakeLlama{
		summaries: []defillama.ProtocolSummary{
			{Name: "Flux", Slug: "flux-other", URL: "https://flux-other.example"},
		},
		protocols: map[string]*defillama.Protocol{
			"flux-other": {Name: "Flux", TokensInUSD: snapshot(map[string]float64{"USDT": 9999})},
		},
	}

	rec := &model.Record{Name: "Flux", Website: "https://flux.xyz"}
	_, _, err := (&DefiLlamaStage{}).Run(context.Background(), llamaDeps(llama), []*model.Record{rec})
	require.NoError(t, err)
	assert.Empty(t, string(rec.SuspectUSDT))
}

func TestDefiLlamaStageAlreadyFlaggedSkipped(t *testing.T) {
	llama := &fakeLlama{
		summaries: []defillama.ProtocolSummary{
			{Name: "Thala", Slug: "thala", URL: "https://thala.fi"},
		},
	}

	rec := &model.Record{Name: "Thala", Website: "https://thala.fi", SuspectUSDT: model.FlagTrue}
	_, res, err := (&DefiLlamaStage{}).Run(context.Background(), llamaDeps(llama), []*model.Record{rec})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Processed)
}
