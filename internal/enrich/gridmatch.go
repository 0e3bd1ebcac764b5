package enrich

import (
	"context"

	"go.uber.org/zap"

	"github.com/stablewatch/ecosystem-cli/internal/match"
	"github.com/stablewatch/ecosystem-cli/internal/model"
)

// GridMatchStage links unmatched records to the registry. With an offline
// index in Deps it matches locally; otherwise it queries the live API per
// record.
type GridMatchStage struct{}

func (s *GridMatchStage) Name() string        { return "grid-match" }
func (s *GridMatchStage) Description() string { return "link records to registry entries" }

func (s *GridMatchStage) Prerequisites() []string { return []string{"Registry", "Ref"} }

func (s *GridMatchStage) Run(ctx context.Context, deps *Deps, recs []*model.Record) ([]*model.Record, Result, error) {
	var offline *match.OfflineMatcher
	if deps.Index != nil {
		offline = match.NewOffline(deps.Index, deps.Ref, deps.MatchConfig)
	}
	online := match.New(deps.Registry, deps.Ref, deps.MatchConfig)

	eligible := func(rec *model.Record) bool {
		// Blank status means never tried. "Not Found" and "Error" rows are
		// retried: the registry grows and outages pass between runs.
		return !rec.Matched()
	}

	res, err := forEachParallel(ctx, deps, recs, eligible, func(ctx context.Context, rec *model.Record) (bool, error) {
		var out match.Outcome
		if offline != nil {
			out = offline.Match(rec)
		} else {
			var err error
			out, err = online.Match(ctx, rec)
			if err != nil {
				// One dead lookup must not sink the batch. The error status
				// keeps the row eligible on the next run.
				zap.L().Warn("grid-match: lookup failed",
					zap.String("record", rec.Name), zap.Error(err))
				changed := rec.GridStatus != model.GridStatusError
				rec.GridStatus = model.GridStatusError
				return changed, nil
			}
		}

		if !out.Found {
			changed := rec.GridStatus != model.GridStatusNotFound
			rec.GridStatus = model.GridStatusNotFound
			if out.Reason != "" {
				zap.L().Debug("grid-match: no match",
					zap.String("record", rec.Name),
					zap.String("reason", out.Reason))
			}
			return changed, nil
		}

		rec.GridStatus = model.GridStatusMatched
		rec.FillField("Profile Name", out.ProfileName)
		rec.FillField("Root ID", out.RootID)
		rec.FillField("Matched URL", out.MatchedURL)
		rec.FillField("Matched via", out.Via)
		return true, nil
	})
	if err != nil {
		return recs, res, err
	}

	zap.L().Info("grid-match: stage complete",
		zap.Int("processed", res.Processed),
		zap.Int("matched_or_changed", res.Updated))
	return recs, res, nil
}
