package match

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/internal/normalize"
	"github.com/stablewatch/ecosystem-cli/internal/refdata"
	"github.com/stablewatch/ecosystem-cli/pkg/thegrid"
)

// indexBatchSize is the page size used when bulk-downloading the registry.
const indexBatchSize = 500

// Entry is one registry identity in the offline index.
type Entry struct {
	Name   string
	RootID string
	URL    string
	Kind   string // "profile" or "product"
}

// Index is a full offline snapshot of the registry, keyed for the two
// lookups matching needs. Building it costs a few dozen paged requests and
// then every record matches locally.
type Index struct {
	byName   map[string][]Entry
	byDomain map[string][]Entry
}

// BuildIndex downloads every profile and product into an offline index.
func BuildIndex(ctx context.Context, client thegrid.Client) (*Index, error) {
	ix := &Index{
		byName:   make(map[string][]Entry),
		byDomain: make(map[string][]Entry),
	}

	for offset := 0; ; offset += indexBatchSize {
		profiles, err := client.ListProfiles(ctx, indexBatchSize, offset)
		if err != nil {
			return nil, eris.Wrap(err, "match: list profiles for index")
		}
		for i := range profiles {
			p := &profiles[i]
			rid := ""
			if p.Root != nil {
				rid = p.Root.ID
			}
			ix.add(Entry{Name: p.Name, RootID: rid, URL: p.MainURL(), Kind: "profile"})
		}
		if len(profiles) < indexBatchSize {
			break
		}
	}

	for offset := 0; ; offset += indexBatchSize {
		products, err := client.ListProducts(ctx, indexBatchSize, offset)
		if err != nil {
			return nil, eris.Wrap(err, "match: list products for index")
		}
		for i := range products {
			p := &products[i]
			rid := ""
			if p.Root != nil {
				rid = p.Root.ID
			}
			ix.add(Entry{Name: p.Name, RootID: rid, URL: p.URLMain, Kind: "product"})
		}
		if len(products) < indexBatchSize {
			break
		}
	}

	zap.L().Info("match: offline index built",
		zap.Int("names", len(ix.byName)),
		zap.Int("domains", len(ix.byDomain)))
	return ix, nil
}

func (ix *Index) add(e Entry) {
	key := normalize.Name(e.Name)
	if key == "" {
		key = normalize.Alnum(e.Name)
	}
	if key != "" {
		ix.byName[key] = append(ix.byName[key], e)
	}
	if d := normalize.Domain(e.URL); d != "" {
		ix.byDomain[d] = append(ix.byDomain[d], e)
	}
}

// ByName returns entries whose normalized name equals key.
func (ix *Index) ByName(key string) []Entry {
	return ix.byName[key]
}

// ByDomain returns entries whose main URL resolves to domain.
func (ix *Index) ByDomain(domain string) []Entry {
	return ix.byDomain[domain]
}

// OfflineMatcher matches records against a prebuilt index with the same
// guards as the online path but a higher confidence bar.
type OfflineMatcher struct {
	index *Index
	ref   *refdata.Set
	cfg   Config
}

// NewOffline creates an offline matcher over index.
func NewOffline(index *Index, ref *refdata.Set, cfg Config) *OfflineMatcher {
	return &OfflineMatcher{index: index, ref: ref, cfg: cfg.withDefaults()}
}

// Match links one record against the index. Exact normalized-name hits win;
// otherwise a fuzzy scan over index keys applies the offline threshold. The
// website domain is the fallback, exact-equality only.
func (m *OfflineMatcher) Match(rec *model.Record) Outcome {
	if out := m.matchName(rec); out.Found || out.Reason != "" {
		return out
	}
	return m.matchDomain(rec)
}

func (m *OfflineMatcher) matchName(rec *model.Record) Outcome {
	key := normalize.Name(rec.Name)
	if key == "" {
		key = normalize.Alnum(rec.Name)
	}
	if len(key) < m.cfg.MinNormalizedLen {
		return Outcome{Reason: "name too short for reliable matching"}
	}
	if m.ref.Denied(key) {
		return Outcome{Reason: "name is on the generic-name denylist"}
	}

	if entries := m.index.byName[key]; len(entries) > 0 {
		out, ok := m.acceptEntries(rec, entries, 1.0)
		if ok || out.Reason != "" {
			return out
		}
	}

	// Fuzzy scan. The index holds tens of thousands of keys; a linear scan
	// per record is still cheap next to any network round trip.
	var best Outcome
	for candKey, entries := range m.index.byName {
		if len(candKey) < m.cfg.MinNormalizedLen {
			continue
		}
		sim := normalize.Similarity(key, candKey)
		if sim < m.cfg.OfflineThreshold || sim <= best.Score {
			continue
		}
		if out, ok := m.acceptEntries(rec, entries, sim); ok {
			best = out
		}
	}
	if best.Found {
		return best
	}
	return Outcome{}
}

// acceptEntries applies the shared guards to the entries under one key and
// returns the first survivor. Distinct roots under the same key are
// ambiguous and rejected.
func (m *OfflineMatcher) acceptEntries(rec *model.Record, entries []Entry, score float64) (Outcome, bool) {
	roots := make(map[string]struct{})
	for _, e := range entries {
		if e.RootID != "" {
			roots[e.RootID] = struct{}{}
		}
	}
	if len(roots) > 1 {
		return Outcome{Reason: "ambiguous: multiple roots share this name"}, false
	}

	for _, e := range entries {
		if m.ref.Denied(normalize.Name(e.Name)) {
			continue
		}
		if score < 1.0 && normalize.TokenOverlap(rec.Name, e.Name) == 0 &&
			!containsEitherWay(normalize.Name(rec.Name), normalize.Name(e.Name)) {
			continue
		}
		recDomain := normalize.Domain(rec.Website)
		candDomain := normalize.Domain(e.URL)
		if recDomain != "" && candDomain != "" && recDomain != candDomain {
			if normalize.Similarity(rec.Name, e.Name) < m.cfg.URLCrossCheckSim {
				continue
			}
		}
		return Outcome{
			Found:       true,
			ProfileName: e.Name,
			RootID:      e.RootID,
			MatchedURL:  e.URL,
			Via:         "offline-name",
			Score:       score,
		}, true
	}
	return Outcome{}, false
}

func (m *OfflineMatcher) matchDomain(rec *model.Record) Outcome {
	domain := normalize.Domain(rec.Website)
	if domain == "" {
		return Outcome{}
	}
	if m.ref.DomainExcluded(domain) {
		return Outcome{Reason: "website domain is excluded from URL matching"}
	}

	entries := m.index.byDomain[domain]
	if len(entries) == 0 {
		return Outcome{}
	}
	roots := make(map[string]struct{})
	for _, e := range entries {
		if e.RootID != "" {
			roots[e.RootID] = struct{}{}
		}
	}
	if len(roots) > 1 {
		return Outcome{Reason: "ambiguous: multiple roots share this domain"}
	}

	e := entries[0]
	return Outcome{
		Found:       true,
		ProfileName: e.Name,
		RootID:      e.RootID,
		MatchedURL:  e.URL,
		Via:         "offline-url",
		Score:       1.0,
	}
}
