package enrich

import (
	"context"

	"github.com/stablewatch/ecosystem-cli/internal/dedup"
	"github.com/stablewatch/ecosystem-cli/internal/model"
)

// DedupStage collapses duplicate rows before any network stage spends
// requests on them.
type DedupStage struct {
	Options dedup.Options
}

func (s *DedupStage) Name() string        { return "dedup" }
func (s *DedupStage) Description() string { return "merge duplicate project rows" }

func (s *DedupStage) Prerequisites() []string { return nil }

func (s *DedupStage) Run(_ context.Context, _ *Deps, recs []*model.Record) ([]*model.Record, Result, error) {
	out, dr := dedup.Run(recs, s.Options)
	return out, Result{Processed: dr.In, Updated: dr.Removed}, nil
}
