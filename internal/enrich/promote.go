package enrich

import (
	"context"
	"strings"

	"github.com/stablewatch/ecosystem-cli/internal/model"
)

// PromoteStage converts webscan hints into flags. Promotion is explicit and
// audited: every flag it sets is accompanied by a note and an evidence
// marker naming the scan as the source.
type PromoteStage struct{}

func (s *PromoteStage) Name() string        { return "promote" }
func (s *PromoteStage) Description() string { return "promote webscan hints to flags" }

func (s *PromoteStage) Prerequisites() []string { return []string{"Ref"} }

func (s *PromoteStage) Run(_ context.Context, deps *Deps, recs []*model.Record) ([]*model.Record, Result, error) {
	asset := deps.Asset
	if asset == "" {
		asset = "USDT"
	}
	assetKeywords := deps.Ref.StablecoinKeywords[asset]

	var res Result
	for _, rec := range recs {
		if skipRecord(rec) || !rec.HasNoteMarker(UnverifiedPrefix) {
			res.Skipped++
			continue
		}
		res.Processed++

		updated := false
		hasAssetHint := hasHint(rec, assetKeywords)
		hasGenericHint := rec.HasNoteMarker("generic stablecoin term")
		hasWeb3Hint := rec.HasNoteMarker("web3 term")

		if hasAssetHint && !rec.SuspectUSDT.True() {
			rec.SuspectUSDT = model.FlagTrue
			rec.AppendNote(PromotedNote + " " + asset + " mention")
			rec.AppendEvidence(PromotedEvidence)
			updated = true
		}
		if hasGenericHint && !rec.GeneralStablecoin.True() {
			rec.GeneralStablecoin = model.FlagTrue
			rec.AppendNote(PromotedNote + " generic stablecoin mention")
			rec.AppendEvidence(PromotedEvidence)
			updated = true
		}
		if hasWeb3Hint && !hasAssetHint && !hasGenericHint && !rec.Web3NoStablecoin.True() {
			rec.Web3NoStablecoin = model.FlagTrue
			rec.AppendNote(PromotedNote + " web3 activity, no stablecoin mention")
			rec.AppendEvidence(PromotedEvidence)
			updated = true
		}

		if updated {
			res.Updated++
		}
	}
	return recs, res, nil
}

// hasHint reports whether any unverified scan note mentions one of the
// asset keywords.
func hasHint(rec *model.Record, keywords []string) bool {
	for _, seg := range strings.Split(rec.Notes, " | ") {
		if !strings.HasPrefix(strings.TrimSpace(seg), UnverifiedPrefix) {
			continue
		}
		lower := strings.ToLower(seg)
		for _, kw := range keywords {
			if kw != "" && strings.Contains(lower, "mentions "+kw) {
				return true
			}
		}
	}
	return false
}
