package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/pkg/coingecko"
)

func geckoDeps(g *fakeGecko) *Deps {
	return &Deps{CoinGecko: g, Chain: "aptos", Concurrency: 1}
}

func geckoCoin(id string, homepage string, platforms map[string]string) *coingecko.Coin {
	c := &coingecko.Coin{ID: id, Platforms: platforms}
	c.Links.Homepage = []string{homepage}
	return c
}

func TestCoinGeckoStageBackfillsWebsiteAndChain(t *testing.T) {
	gecko := &fakeGecko{
		hits: map[string][]coingecko.CoinSummary{
			"Thala": {{ID: "thala", Name: "Thala"}},
		},
		coins: map[string]*coingecko.Coin{
			"thala": geckoCoin("thala", "https://thala.fi", map[string]string{"aptos": "0xabc"}),
		},
	}
	rec := &model.Record{Name: "Thala"}

	_, res, err := (&CoinGeckoStage{}).Run(context.Background(), geckoDeps(gecko), []*model.Record{rec})
	require.NoError(t, err)

	assert.Equal(t, "https://thala.fi", rec.Website)
	assert.Contains(t, rec.Evidence, "https://www.coingecko.com/en/coins/thala")
	assert.Contains(t, rec.Notes, "CoinGecko lists a contract on aptos")
	assert.Equal(t, 1, res.Updated)
}

func TestCoinGeckoStageNoChainPresence(t *testing.T) {
	gecko := &fakeGecko{
		hits: map[string][]coingecko.CoinSummary{
			"Tortuga": {{ID: "tortuga", Name: "Tortuga"}},
		},
		coins: map[string]*coingecko.Coin{
			"tortuga": geckoCoin("tortuga", "https://tortuga.finance", map[string]string{"solana": "0xdef"}),
		},
	}
	rec := &model.Record{Name: "Tortuga"}

	_, _, err := (&CoinGeckoStage{}).Run(context.Background(), geckoDeps(gecko), []*model.Record{rec})
	require.NoError(t, err)

	assert.Equal(t, "https://tortuga.finance", rec.Website, "homepage is useful even off-chain")
	assert.Empty(t, rec.Evidence, "no contract on our chain means no evidence link")
}

func TestCoinGeckoStageRejectsSoundAlike(t *testing.T) {
	gecko := &fakeGecko{
		hits: map[string][]coingecko.CoinSummary{
			"Aurora": {{ID: "aurora-token", Name: "Aurora"}},
		},
		coins: map[string]*coingecko.Coin{
			"aurora-token": geckoCoin("aurora-token", "https://auroratoken.example", map[string]string{"aptos": "0x1"}),
		},
	}
	// Eligible because Evidence is blank, but the homepage disagrees with
	// the website the row already has.
	rec := &model.Record{Name: "Aurora", Website: "https://aurora.dev"}

	_, res, err := (&CoinGeckoStage{}).Run(context.Background(), geckoDeps(gecko), []*model.Record{rec})
	require.NoError(t, err)

	assert.Equal(t, "https://aurora.dev", rec.Website)
	assert.Empty(t, rec.Evidence)
	assert.Zero(t, res.Updated)
}

func TestCoinGeckoStageIgnoresDifferentNames(t *testing.T) {
	gecko := &fakeGecko{
		hits: map[string][]coingecko.CoinSummary{
			"Thala": {{ID: "tortuga", Name: "Tortuga"}},
		},
	}
	rec := &model.Record{Name: "Thala"}

	_, res, err := (&CoinGeckoStage{}).Run(context.Background(), geckoDeps(gecko), []*model.Record{rec})
	require.NoError(t, err)
	assert.Empty(t, rec.Website)
	assert.Zero(t, res.Updated)
}

func TestCoinGeckoStageLookupFailureContinues(t *testing.T) {
	gecko := &fakeGecko{
		hits: map[string][]coingecko.CoinSummary{
			"Thala": {{ID: "thala", Name: "Thala"}},
		},
		coins: map[string]*coingecko.Coin{
			"thala": geckoCoin("thala", "https://thala.fi", map[string]string{"aptos": "0xabc"}),
		},
		searchErr: map[string]error{
			"Aurora": errors.New("coingecko: unexpected status 500 for /search"),
		},
	}
	recs := []*model.Record{{Name: "Aurora"}, {Name: "Thala"}}

	_, res, err := (&CoinGeckoStage{}).Run(context.Background(), geckoDeps(gecko), recs)
	require.NoError(t, err, "a failed lookup never aborts the batch")

	assert.Empty(t, recs[0].Website, "the failed row is left unenriched")
	assert.Equal(t, "https://thala.fi", recs[1].Website, "the rest of the batch still runs")
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Updated)
}

func TestCoinGeckoStageSkipsCompleteRows(t *testing.T) {
	rec := &model.Record{
		Name:     "Done",
		Website:  "https://done.example",
		Evidence: "https://done.example/docs",
	}

	_, res, err := (&CoinGeckoStage{}).Run(context.Background(), geckoDeps(&fakeGecko{}), []*model.Record{rec})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Processed)
}
