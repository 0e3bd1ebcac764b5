package enrich

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/internal/normalize"
	"github.com/stablewatch/ecosystem-cli/pkg/defillama"
)

// minHoldingUSD is the floor below which a token balance is dust, not
// adoption.
const minHoldingUSD = 100

// DefiLlamaStage checks each record's protocol against DefiLlama's TVL
// token breakdown. Holding the target asset sets the suspect flag; holding
// USDC but not USDT is recorded as a distinct finding because it answers
// the research question in the negative.
type DefiLlamaStage struct {
	index     map[string]defillama.ProtocolSummary // normalized name -> summary
	byDomain  map[string]defillama.ProtocolSummary
	indexOnce sync.Once
	indexErr  error
}

func (s *DefiLlamaStage) Name() string        { return "defillama" }
func (s *DefiLlamaStage) Description() string { return "check TVL token holdings on DefiLlama" }

func (s *DefiLlamaStage) Prerequisites() []string { return []string{"DefiLlama", "Ref"} }

func (s *DefiLlamaStage) buildIndex(ctx context.Context, deps *Deps) error {
	s.indexOnce.Do(func() {
		protocols, err := deps.DefiLlama.Protocols(ctx)
		if err != nil {
			s.indexErr = err
			return
		}
		s.index = make(map[string]defillama.ProtocolSummary, len(protocols))
		s.byDomain = make(map[string]defillama.ProtocolSummary)
		for _, p := range protocols {
			key := normalize.Name(p.Name)
			if key == "" {
				key = normalize.Alnum(p.Name)
			}
			if key != "" {
				if _, dup := s.index[key]; !dup {
					s.index[key] = p
				}
			}
			if d := normalize.Domain(p.URL); d != "" {
				if _, dup := s.byDomain[d]; !dup {
					s.byDomain[d] = p
				}
			}
		}
		zap.L().Info("defillama: protocol index built", zap.Int("protocols", len(protocols)))
	})
	return s.indexErr
}

// lookup finds the DefiLlama protocol for a record, name first, domain as
// the tiebreaker.
func (s *DefiLlamaStage) lookup(rec *model.Record) (defillama.ProtocolSummary, bool) {
	key := normalize.Name(rec.Name)
	if key == "" {
		key = normalize.Alnum(rec.Name)
	}
	if p, ok := s.index[key]; ok {
		if d := normalize.Domain(rec.Website); d == "" || normalize.Domain(p.URL) == "" || normalize.Domain(p.URL) == d {
			return p, true
		}
	}
	if d := normalize.Domain(rec.Website); d != "" {
		if p, ok := s.byDomain[d]; ok {
			return p, true
		}
	}
	return defillama.ProtocolSummary{}, false
}

func (s *DefiLlamaStage) Run(ctx context.Context, deps *Deps, recs []*model.Record) ([]*model.Record, Result, error) {
	if err := s.buildIndex(ctx, deps); err != nil {
		return recs, Result{}, err
	}

	asset := deps.Asset
	if asset == "" {
		asset = "USDT"
	}
	targetAliases := deps.Ref.AliasSet(asset)
	usdcAliases := deps.Ref.AliasSet("USDC")

	eligible := func(rec *model.Record) bool {
		// Already flagged rows need no second confirmation.
		return !rec.SuspectUSDT.True()
	}

	res, err := forEachParallel(ctx, deps, recs, eligible, func(ctx context.Context, rec *model.Record) (bool, error) {
		summary, ok := s.lookup(rec)
		if !ok {
			return false, nil
		}

		protocol, err := deps.DefiLlama.Protocol(ctx, summary.Slug)
		if err != nil {
			// A protocol listed in the index but missing on detail fetch is
			// a data gap on their side, not a reason to stop the run.
			zap.L().Warn("defillama: protocol fetch failed",
				zap.String("slug", summary.Slug), zap.Error(err))
			return false, nil
		}

		evidenceURL := "https://defillama.com/protocol/" + summary.Slug

		switch {
		case protocol.HoldsAny(targetAliases, minHoldingUSD):
			rec.SuspectUSDT = model.FlagTrue
			rec.AppendEvidence(evidenceURL)
			rec.AppendNote("DefiLlama TVL holds " + asset)
		case protocol.HoldsAny(usdcAliases, minHoldingUSD):
			rec.GeneralStablecoin = model.FlagTrue
			rec.AppendEvidence(evidenceURL)
			rec.AppendNote("Supports USDC only (no " + asset + ")")
		default:
			// Listed but holds neither: still worth the breadcrumb.
			rec.AppendNote("DefiLlama: no " + asset + "/USDC holdings")
			return true, nil
		}
		return true, nil
	})
	return recs, res, err
}
