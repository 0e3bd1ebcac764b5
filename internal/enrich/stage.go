// Package enrich holds the pipeline stages that annotate project records
// from external sources. Every stage follows the same discipline: backfill
// empty fields, only ever set flags to TRUE, and mark its work with a
// note or evidence marker so re-runs skip finished rows.
package enrich

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/stablewatch/ecosystem-cli/internal/match"
	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/internal/refdata"
	"github.com/stablewatch/ecosystem-cli/pkg/airesearch"
	"github.com/stablewatch/ecosystem-cli/pkg/coingecko"
	"github.com/stablewatch/ecosystem-cli/pkg/defillama"
	"github.com/stablewatch/ecosystem-cli/pkg/thegrid"
	"github.com/stablewatch/ecosystem-cli/pkg/webscan"
)

// Markers written into Notes and Evidence. They are load-bearing: stages
// check them to decide whether a row was already handled.
const (
	ScanMarker       = "website-scan"
	ExpandMarker     = "expanded-grid"
	UnverifiedPrefix = "[UNVERIFIED website-scan]"
	PromotedNote     = "[PROMOTED from website-scan]"
	PromotedEvidence = "promoted: website-scan"
	HealthPrefix     = "health-check:"
	AIMarker         = "ai-research"
)

// Deps bundles the external clients and policy a stage may need. Stages
// tolerate nil clients they do not use; the pipeline validates prerequisites
// before running.
type Deps struct {
	Registry   thegrid.Client
	Index      *match.Index
	DefiLlama  defillama.Client
	CoinGecko  coingecko.Client
	Scanner    webscan.Scanner
	Researcher airesearch.Researcher

	Ref         *refdata.Set
	MatchConfig match.Config

	// Asset is the target asset ticker, e.g. "USDT". Chain is the target
	// chain id in DefiLlama/CoinGecko vocabulary, e.g. "aptos".
	Asset string
	Chain string

	// Concurrency bounds parallel record processing in network stages.
	Concurrency int
}

func (d *Deps) concurrency() int {
	if d.Concurrency <= 0 {
		return 4
	}
	return d.Concurrency
}

// Result summarizes one stage run.
type Result struct {
	Processed int
	Updated   int
	Skipped   int
}

// Stage is one pipeline step. Run may return a different record slice (the
// dedup stage shrinks it); all other mutations happen in place.
type Stage interface {
	Name() string
	Description() string

	// Prerequisites names the Deps fields the stage needs, for validation
	// before the pipeline starts.
	Prerequisites() []string

	Run(ctx context.Context, deps *Deps, recs []*model.Record) ([]*model.Record, Result, error)
}

// skipRecord reports whether a record is excluded from enrichment entirely.
func skipRecord(rec *model.Record) bool {
	return rec.Skip.True()
}

// forEachParallel runs fn over the eligible records with bounded
// parallelism. Each goroutine owns exactly one record, so in-place record
// mutation needs no locking; the shared Result is merged afterwards.
func forEachParallel(ctx context.Context, deps *Deps, recs []*model.Record,
	eligible func(*model.Record) bool, fn func(ctx context.Context, rec *model.Record) (updated bool, err error),
) (Result, error) {
	var res Result

	type outcome struct {
		processed bool
		updated   bool
	}
	outcomes := make([]outcome, len(recs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deps.concurrency())

	for i, rec := range recs {
		if skipRecord(rec) || !eligible(rec) {
			res.Skipped++
			continue
		}
		g.Go(func() error {
			updated, err := fn(gctx, rec)
			if err != nil {
				return err
			}
			outcomes[i] = outcome{processed: true, updated: updated}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return res, err
	}
	for _, o := range outcomes {
		if o.processed {
			res.Processed++
		}
		if o.updated {
			res.Updated++
		}
	}
	return res, nil
}
