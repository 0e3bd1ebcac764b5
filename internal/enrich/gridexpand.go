package enrich

import (
	"context"

	"go.uber.org/zap"

	"github.com/stablewatch/ecosystem-cli/internal/match"
	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/internal/normalize"
)

// GridExpandStage backfills registry detail onto rows that already carry a
// root id, typically pasted by a researcher as an admin link before the
// matcher ever ran. Expanded rows are marked so the work happens once.
type GridExpandStage struct{}

func (s *GridExpandStage) Name() string        { return "grid-expand" }
func (s *GridExpandStage) Description() string { return "backfill registry detail for known roots" }

func (s *GridExpandStage) Prerequisites() []string { return []string{"Registry"} }

func (s *GridExpandStage) Run(ctx context.Context, deps *Deps, recs []*model.Record) ([]*model.Record, Result, error) {
	eligible := func(rec *model.Record) bool {
		if rec.HasNoteMarker(ExpandMarker) {
			return false
		}
		return rec.RootID != "" || normalize.Domain(rec.Website) == "admin.thegrid.id"
	}

	res, err := forEachParallel(ctx, deps, recs, eligible, func(ctx context.Context, rec *model.Record) (bool, error) {
		rootID := rec.RootID
		if rootID == "" {
			rootID = match.ExtractRootID(rec.Website)
			if rootID == "" {
				return false, nil
			}
		}

		root, err := deps.Registry.RootByID(ctx, rootID)
		if err != nil {
			// No marker is written, so the row is retried on the next run.
			zap.L().Warn("grid-expand: root lookup failed",
				zap.String("record", rec.Name), zap.String("root", rootID), zap.Error(err))
			return false, nil
		}
		if root == nil {
			rec.AppendNote("registry root " + rootID + " no longer exists")
			return true, nil
		}

		updated := rec.FillField("Root ID", root.ID)
		if rec.FillField("Slug", root.Slug) {
			updated = true
		}
		if rec.GridStatus == "" {
			rec.GridStatus = model.GridStatusMatched
			rec.FillField("Matched via", "admin-url")
			updated = true
		}

		profiles, err := deps.Registry.SearchProfiles(ctx, rec.Name)
		if err != nil {
			zap.L().Warn("grid-expand: profile search failed",
				zap.String("record", rec.Name), zap.Error(err))
			return updated, nil
		}
		for i := range profiles {
			p := &profiles[i]
			if p.Root == nil || p.Root.ID != root.ID {
				continue
			}
			if rec.FillField("Profile Name", p.Name) {
				updated = true
			}
			if rec.FillField("Matched URL", p.MainURL()) {
				updated = true
			}
			break
		}

		rec.AppendNote(ExpandMarker)
		return updated, nil
	})
	return recs, res, err
}
