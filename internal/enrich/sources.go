package enrich

import (
	"context"
	"strings"

	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/internal/normalize"
)

// genericSource is the placeholder historic imports wrote when the actual
// source page was not recorded.
const genericSource = "Generic Scraper"

// SourcesStage replaces placeholder Source values with the real origin:
// the per-chain source registry first, the record's own website domain as
// the fallback.
type SourcesStage struct{}

func (s *SourcesStage) Name() string        { return "sources" }
func (s *SourcesStage) Description() string { return "resolve placeholder source attributions" }

func (s *SourcesStage) Prerequisites() []string { return []string{"Ref"} }

func (s *SourcesStage) Run(_ context.Context, deps *Deps, recs []*model.Record) ([]*model.Record, Result, error) {
	var res Result
	for _, rec := range recs {
		src := strings.TrimSpace(rec.Source)
		if src != "" && src != genericSource {
			res.Skipped++
			continue
		}
		res.Processed++

		chain := strings.ToLower(strings.TrimSpace(rec.Chain))
		if chain == "" {
			chain = strings.ToLower(deps.Chain)
		}

		// "Generic Scraper" rows were scraped from the chain's ecosystem
		// page; blank rows most plausibly came from the project site itself.
		var replacement string
		if src == genericSource {
			replacement = deps.Ref.GenericSourceByChain[chain]
			if replacement == "" {
				replacement = normalize.Domain(rec.Website)
			}
		} else {
			replacement = normalize.Domain(rec.Website)
			if replacement == "" {
				replacement = deps.Ref.GenericSourceByChain[chain]
			}
		}
		if replacement == "" {
			continue
		}
		rec.Source = replacement
		res.Updated++
	}
	return recs, res, nil
}
