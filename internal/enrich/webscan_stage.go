package enrich

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/stablewatch/ecosystem-cli/internal/model"
)

// WebScanStage fetches each record's homepage and records keyword hints.
// Scan findings are hints, never conclusions: they land in Notes with the
// UNVERIFIED prefix and a later stage decides what to promote.
type WebScanStage struct{}

func (s *WebScanStage) Name() string        { return "webscan" }
func (s *WebScanStage) Description() string { return "scan homepages for keyword hints" }

func (s *WebScanStage) Prerequisites() []string { return []string{"Scanner", "Ref"} }

func (s *WebScanStage) Run(ctx context.Context, deps *Deps, recs []*model.Record) ([]*model.Record, Result, error) {
	asset := deps.Asset
	if asset == "" {
		asset = "USDT"
	}
	assetKeywords := deps.Ref.StablecoinKeywords[asset]
	chainKeywords := deps.Ref.ChainKeywords[strings.ToUpper(deps.Chain)]

	eligible := func(rec *model.Record) bool {
		if strings.TrimSpace(rec.Website) == "" {
			return false
		}
		// The evidence marker says this site was already scanned.
		return !rec.HasEvidenceMarker(ScanMarker)
	}

	res, err := forEachParallel(ctx, deps, recs, eligible, func(ctx context.Context, rec *model.Record) (bool, error) {
		text, err := deps.Scanner.FetchText(ctx, rec.Website)
		if err != nil {
			// Unreachable sites are the healthcheck stage's business.
			zap.L().Debug("webscan: fetch failed",
				zap.String("record", rec.Name), zap.Error(err))
			return false, nil
		}

		var hints []string
		if kw := firstKeyword(text, assetKeywords); kw != "" {
			hints = append(hints, "mentions "+kw)
		}
		if kw := firstKeyword(text, deps.Ref.GenericStablecoinKeywords); kw != "" {
			hints = append(hints, "mentions generic stablecoin term '"+kw+"'")
		}
		if kw := firstKeyword(text, chainKeywords); kw != "" {
			hints = append(hints, "mentions chain '"+kw+"'")
		}
		if kw := firstKeyword(text, deps.Ref.Web3Keywords); kw != "" {
			hints = append(hints, "web3 term '"+kw+"'")
		}

		for _, hint := range hints {
			rec.AppendNote(UnverifiedPrefix + " " + hint)
		}
		rec.AppendEvidence(ScanMarker)
		return len(hints) > 0, nil
	})
	return recs, res, err
}

// firstKeyword returns the first keyword present in text as a substring.
// Text arrives lowercased from the scanner; keywords are stored lowercase.
func firstKeyword(text string, keywords []string) string {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return kw
		}
	}
	return ""
}
