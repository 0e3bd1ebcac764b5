package enrich

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/pkg/airesearch"
)

// AIResearchStage asks a model about records the deterministic stages left
// unresolved: unmatched, unflagged, nothing to show. Its answers are notes
// with a confidence tag, never flags or evidence; a researcher decides what
// to do with them. The stage is not in the default pipeline order and only
// runs when requested.
type AIResearchStage struct{}

func (s *AIResearchStage) Name() string        { return "airesearch" }
func (s *AIResearchStage) Description() string { return "model-written notes for unresolved rows" }

func (s *AIResearchStage) Prerequisites() []string { return []string{"Researcher"} }

func (s *AIResearchStage) Run(ctx context.Context, deps *Deps, recs []*model.Record) ([]*model.Record, Result, error) {
	eligible := func(rec *model.Record) bool {
		if rec.Matched() || rec.HasNoteMarker(AIMarker) {
			return false
		}
		return !rec.SuspectUSDT.True() && !rec.GeneralStablecoin.True() && !rec.Web3NoStablecoin.True()
	}

	res, err := forEachParallel(ctx, deps, recs, eligible, func(ctx context.Context, rec *model.Record) (bool, error) {
		assessment, err := deps.Researcher.Assess(ctx, airesearch.Brief{
			Name:     rec.Name,
			Website:  rec.Website,
			Chain:    rec.Chain,
			Category: rec.Category,
			Notes:    rec.Notes,
		})
		if err != nil {
			// One refusal or parse failure should not sink the batch.
			zap.L().Warn("airesearch: assessment failed",
				zap.String("record", rec.Name), zap.Error(err))
			return false, nil
		}

		rec.AppendNote(fmt.Sprintf("[%s] %s (stablecoin: %v, defunct: %v, confidence: %s)",
			AIMarker,
			strings.TrimSpace(assessment.Summary),
			assessment.LikelyStablecoin,
			assessment.LikelyDefunct,
			assessment.Confidence))
		return true, nil
	})
	return recs, res, err
}
