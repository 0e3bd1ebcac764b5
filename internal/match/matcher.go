// Package match links project records to registry entries. Matching is
// deliberately conservative: a wrong link poisons every later enrichment
// stage, so ambiguous candidates are rejected rather than guessed at.
package match

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/internal/normalize"
	"github.com/stablewatch/ecosystem-cli/internal/refdata"
	"github.com/stablewatch/ecosystem-cli/pkg/thegrid"
)

// Config tunes acceptance. Thresholds are policy, reviewed when the false
// match rate moves, so they live in configuration rather than constants.
type Config struct {
	// Threshold is the minimum name score for an online match. Default 0.8.
	Threshold float64

	// OfflineThreshold applies to offline index matches, which skip the
	// interactive search ranking and need a higher bar. Default 0.85.
	OfflineThreshold float64

	// MinNormalizedLen rejects name matching for names whose normalized
	// form is shorter than this. Default 4.
	MinNormalizedLen int

	// URLCrossCheckSim is the raw-name similarity required to accept a
	// candidate whose website disagrees with the record's. Default 0.90.
	URLCrossCheckSim float64
}

// DefaultConfig returns the acceptance policy used in production runs.
func DefaultConfig() Config {
	return Config{
		Threshold:        0.8,
		OfflineThreshold: 0.85,
		MinNormalizedLen: 4,
		URLCrossCheckSim: 0.90,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Threshold == 0 {
		c.Threshold = d.Threshold
	}
	if c.OfflineThreshold == 0 {
		c.OfflineThreshold = d.OfflineThreshold
	}
	if c.MinNormalizedLen == 0 {
		c.MinNormalizedLen = d.MinNormalizedLen
	}
	if c.URLCrossCheckSim == 0 {
		c.URLCrossCheckSim = d.URLCrossCheckSim
	}
	return c
}

// Outcome is the result of matching one record.
type Outcome struct {
	Found       bool
	ProfileName string
	RootID      string
	MatchedURL  string
	Via         string
	Score       float64

	// Reason explains a rejection or miss for the run log.
	Reason string
}

// Matcher links records against the live registry.
type Matcher struct {
	client thegrid.Client
	ref    *refdata.Set
	cfg    Config
}

// New creates a matcher.
func New(client thegrid.Client, ref *refdata.Set, cfg Config) *Matcher {
	return &Matcher{client: client, ref: ref, cfg: cfg.withDefaults()}
}

// adminRootIDRe pulls a root id out of a registry admin link pasted into a
// record's website or notes.
var adminRootIDRe = regexp.MustCompile(`admin\.thegrid\.id/\?rootId=([A-Za-z0-9-]+)`)

// ExtractRootID returns the root id embedded in a registry admin URL, or "".
func ExtractRootID(s string) string {
	m := adminRootIDRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

// Match links one record. Name search runs first; when it yields nothing
// acceptable the website domain is tried as an exact URL match.
func (m *Matcher) Match(ctx context.Context, rec *model.Record) (Outcome, error) {
	// An admin link pasted by a researcher is authoritative.
	if id := ExtractRootID(rec.Website); id != "" {
		root, err := m.client.RootByID(ctx, id)
		if err != nil {
			return Outcome{}, err
		}
		if root != nil {
			return Outcome{Found: true, RootID: root.ID, ProfileName: rec.Name, Via: "admin-url", Score: 1.0}, nil
		}
	}

	outcome, err := m.matchByName(ctx, rec)
	if err != nil {
		return Outcome{}, err
	}
	if outcome.Found {
		return outcome, nil
	}

	urlOutcome, err := m.matchByURL(ctx, rec)
	if err != nil {
		return Outcome{}, err
	}
	if urlOutcome.Found {
		return urlOutcome, nil
	}
	if urlOutcome.Reason != "" {
		return urlOutcome, nil
	}
	return outcome, nil
}

func (m *Matcher) matchByName(ctx context.Context, rec *model.Record) (Outcome, error) {
	normalized := normalize.Name(rec.Name)
	if normalized == "" {
		normalized = normalize.Alnum(rec.Name)
	}
	if len(normalized) < m.cfg.MinNormalizedLen {
		return Outcome{Reason: "name too short for reliable matching"}, nil
	}
	if m.ref.Denied(normalized) {
		return Outcome{Reason: "name is on the generic-name denylist"}, nil
	}

	profiles, err := m.client.SearchProfiles(ctx, rec.Name)
	if err != nil {
		return Outcome{}, err
	}
	if len(profiles) == 0 {
		return Outcome{Reason: "no name candidates"}, nil
	}

	best, second := m.rankProfiles(rec, profiles)
	if best.profile == nil || best.score < m.cfg.Threshold {
		return Outcome{Reason: "no candidate cleared the threshold"}, nil
	}

	// Two distinct roots tied at the top is ambiguity, not a match.
	if second.profile != nil && second.score == best.score &&
		rootID(second.profile) != rootID(best.profile) {
		zap.L().Info("match: ambiguous name candidates rejected",
			zap.String("record", rec.Name),
			zap.String("first", best.profile.Name),
			zap.String("second", second.profile.Name))
		return Outcome{Reason: "ambiguous: multiple candidates tied"}, nil
	}

	return Outcome{
		Found:       true,
		ProfileName: best.profile.Name,
		RootID:      rootID(best.profile),
		MatchedURL:  best.profile.MainURL(),
		Via:         "name",
		Score:       best.score,
	}, nil
}

type ranked struct {
	profile *thegrid.Profile
	score   float64
}

func (m *Matcher) rankProfiles(rec *model.Record, profiles []thegrid.Profile) (best, second ranked) {
	for i := range profiles {
		p := &profiles[i]
		score, reason := m.acceptName(rec, p.Name, p.MainURL())
		if score == 0 {
			if reason != "" {
				zap.L().Debug("match: candidate rejected",
					zap.String("record", rec.Name),
					zap.String("candidate", p.Name),
					zap.String("reason", reason))
			}
			continue
		}
		switch {
		case score > best.score:
			second = best
			best = ranked{profile: p, score: score}
		case score > second.score:
			second = ranked{profile: p, score: score}
		}
	}
	return best, second
}

// acceptName scores a candidate name against the record and applies the
// guards. Returns (0, reason) for rejections.
func (m *Matcher) acceptName(rec *model.Record, candidate, candidateURL string) (float64, string) {
	if m.ref.Denied(normalize.Name(candidate)) {
		return 0, "candidate on denylist"
	}

	score := ScoreName(rec.Name, candidate)
	if score < m.cfg.Threshold {
		return 0, ""
	}

	// Fuzzy acceptances must share at least one meaningful word.
	if score < 1.0 && normalize.TokenOverlap(rec.Name, candidate) == 0 &&
		!containsEitherWay(normalize.Name(rec.Name), normalize.Name(candidate)) {
		return 0, "no token overlap"
	}

	// When both sides have a website and they disagree, only near-identical
	// names survive.
	recDomain := normalize.Domain(rec.Website)
	candDomain := normalize.Domain(candidateURL)
	if recDomain != "" && candDomain != "" && recDomain != candDomain {
		rawSim := normalize.Similarity(strings.ToLower(rec.Name), strings.ToLower(candidate))
		if rawSim < m.cfg.URLCrossCheckSim {
			return 0, "website mismatch"
		}
	}

	return score, ""
}

func (m *Matcher) matchByURL(ctx context.Context, rec *model.Record) (Outcome, error) {
	domain := normalize.Domain(rec.Website)
	if domain == "" {
		return Outcome{}, nil
	}
	if m.ref.DomainExcluded(domain) {
		return Outcome{Reason: "website domain is excluded from URL matching"}, nil
	}

	profiles, products, err := m.client.SearchByURL(ctx, domain)
	if err != nil {
		return Outcome{}, err
	}

	// URL matching accepts exact domain equality only. A substring hit on
	// a different registrable domain means nothing.
	for i := range profiles {
		p := &profiles[i]
		if normalize.Domain(p.MainURL()) == domain {
			return Outcome{
				Found:       true,
				ProfileName: p.Name,
				RootID:      rootID(p),
				MatchedURL:  p.MainURL(),
				Via:         "url",
				Score:       1.0,
			}, nil
		}
	}
	for i := range products {
		prod := &products[i]
		if normalize.Domain(prod.URLMain) == domain && prod.Root != nil {
			return Outcome{
				Found:       true,
				ProfileName: prod.Name,
				RootID:      prod.Root.ID,
				MatchedURL:  prod.URLMain,
				Via:         "url",
				Score:       1.0,
			}, nil
		}
	}
	return Outcome{}, nil
}

func rootID(p *thegrid.Profile) string {
	if p.Root == nil {
		return ""
	}
	return p.Root.ID
}

func containsEitherWay(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// leadingWord reports whether s starts with prefix followed by a word
// boundary ("aurora" leads "aurora plus" but not "auroraswap").
func leadingWord(s, prefix string) bool {
	if !strings.HasPrefix(s, prefix) {
		return false
	}
	rest := s[len(prefix):]
	return rest == "" || !isWordChar(rune(rest[0]))
}

func isWordChar(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// ScoreName scores how well a candidate registry name matches a record
// name. Exact match after normalization scores 1.0; a leading whole-word
// match 0.9 (or 0.85 reversed); a bare shared prefix 0.8; a substring
// anywhere else only 0.6, below the default acceptance threshold. "Spin"
// inside "Degen Spin" is a substring, not a match.
func ScoreName(query, candidate string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	c := strings.ToLower(strings.TrimSpace(candidate))
	if q == "" || c == "" {
		return 0
	}

	qn := normalize.Name(query)
	cn := normalize.Name(candidate)
	if qn != "" && qn == cn {
		return 1.0
	}
	if q == c {
		return 1.0
	}

	if leadingWord(c, q) {
		return 0.9
	}
	if leadingWord(q, c) {
		return 0.85
	}
	if strings.HasPrefix(c, q) || strings.HasPrefix(q, c) {
		return 0.8
	}
	if strings.Contains(c, q) || strings.Contains(q, c) {
		return 0.6
	}
	return normalize.Similarity(qn, cn)
}
