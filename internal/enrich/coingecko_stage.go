package enrich

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/internal/normalize"
)

// CoinGeckoStage backfills websites and chain presence from CoinGecko
// listings. A listing only counts when its name or homepage agrees with the
// record; CoinGecko search is loose and full of sound-alike tokens.
type CoinGeckoStage struct{}

func (s *CoinGeckoStage) Name() string        { return "coingecko" }
func (s *CoinGeckoStage) Description() string { return "backfill website and chain from CoinGecko" }

func (s *CoinGeckoStage) Prerequisites() []string { return []string{"CoinGecko"} }

func (s *CoinGeckoStage) Run(ctx context.Context, deps *Deps, recs []*model.Record) ([]*model.Record, Result, error) {
	eligible := func(rec *model.Record) bool {
		// Only rows that still miss a website or have no evidence at all
		// are worth a lookup.
		return strings.TrimSpace(rec.Website) == "" || strings.TrimSpace(rec.Evidence) == ""
	}

	res, err := forEachParallel(ctx, deps, recs, eligible, func(ctx context.Context, rec *model.Record) (bool, error) {
		hits, err := deps.CoinGecko.Search(ctx, rec.Name)
		if err != nil {
			// A failed lookup leaves the row unenriched and the batch running.
			zap.L().Warn("coingecko: search failed",
				zap.String("record", rec.Name), zap.Error(err))
			return false, nil
		}

		recKey := normalize.Name(rec.Name)
		if recKey == "" {
			recKey = normalize.Alnum(rec.Name)
		}
		recDomain := normalize.Domain(rec.Website)

		for _, hit := range hits {
			hitKey := normalize.Name(hit.Name)
			if hitKey == "" {
				hitKey = normalize.Alnum(hit.Name)
			}
			if hitKey != recKey {
				continue
			}

			coin, err := deps.CoinGecko.Coin(ctx, hit.ID)
			if err != nil {
				zap.L().Warn("coingecko: coin fetch failed",
					zap.String("id", hit.ID), zap.Error(err))
				continue
			}

			homeDomain := normalize.Domain(coin.Homepage())
			if recDomain != "" && homeDomain != "" && recDomain != homeDomain {
				// Same name, different site: a sound-alike, not our project.
				continue
			}

			updated := false
			if coin.Homepage() != "" && rec.FillField("Website", coin.Homepage()) {
				updated = true
			}
			if deps.Chain != "" && coin.OnPlatform(deps.Chain) {
				rec.AppendEvidence("https://www.coingecko.com/en/coins/" + coin.ID)
				rec.AppendNote("CoinGecko lists a contract on " + deps.Chain)
				updated = true
			}
			return updated, nil
		}
		return false, nil
	})
	return recs, res, err
}
