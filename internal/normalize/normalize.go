// Package normalize canonicalizes project names and domains for comparison.
// One implementation, used everywhere identity equality is tested; never for
// display.
package normalize

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// suffixRe matches trailing corporate/product words removed before
// comparison. "Aptin Finance V2" and "Aptin" must normalize identically;
// the zero-or-more whitespace also catches glued forms like "PancakeSwap".
var suffixRe = regexp.MustCompile(`\s*(protocol|finance|labs|wallet|exchange|markets|market|swap|amm|lsd|cdp|cex|network|dao|bridge|dex|defi|v\d+)$`)

var (
	nonAlnumRe  = regexp.MustCompile(`[^a-z0-9]+`)
	wwwPrefixRe = regexp.MustCompile(`^www\.`)
)

// foldASCII strips diacritics so "Café Swap" and "Cafe Swap" compare equal.
var foldASCII = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Name normalizes a project name for comparison: lowercase, diacritics
// folded, common suffixes stripped repeatedly, punctuation and whitespace
// removed. Total: unparseable input yields a best-effort lowercase string.
func Name(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if folded, _, err := transform.String(foldASCII, s); err == nil {
		s = folded
	}

	// Suffixes stack ("Thala Labs Finance"), so strip until fixpoint.
	for {
		prev := s
		s = suffixRe.ReplaceAllString(s, "")
		if s == prev {
			break
		}
	}

	return nonAlnumRe.ReplaceAllString(s, "")
}

// Alnum lowercases and strips everything but letters and digits, without
// suffix stripping. Used as a secondary comparison key when suffixes carry
// meaning ("Flux Protocol" vs "Flux Finance").
func Alnum(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if folded, _, err := transform.String(foldASCII, s); err == nil {
		s = folded
	}
	return nonAlnumRe.ReplaceAllString(s, "")
}

// Domain extracts the registrable domain from a URL: scheme and www.
// stripped, path/query/port dropped, lowercased. Returns "" for empty or
// hopeless input; never fails.
func Domain(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		// url.Parse puts bare "example.com/path" style input in Path.
		host = strings.ToLower(strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)[0])
	}
	return wwwPrefixRe.ReplaceAllString(host, "")
}

// Similarity returns a [0,1] edit-distance similarity between two strings.
func Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	return levenshtein.Similarity(a, b, nil)
}

// stopWords are ignored when comparing name tokens.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "and": {},
	"for": {}, "on": {}, "in": {}, "by": {}, "is": {},
}

// Tokens splits a name into lowercase meaningful words, dropping stop words.
func Tokens(name string) map[string]struct{} {
	out := make(map[string]struct{})
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			return unicode.ToLower(r)
		}
		return ' '
	}, name)
	for _, w := range strings.Fields(cleaned) {
		if _, stop := stopWords[w]; !stop {
			out[w] = struct{}{}
		}
	}
	return out
}

// TokenOverlap counts meaningful words shared by two names.
func TokenOverlap(a, b string) int {
	ta, tb := Tokens(a), Tokens(b)
	n := 0
	for w := range ta {
		if _, ok := tb[w]; ok {
			n++
		}
	}
	return n
}

// BestMatch finds the closest candidate to name by normalized comparison.
// Score meanings: 1.0 exact after normalization, 0.9 containment, otherwise
// edit-distance similarity above threshold. Returns ("", 0) when nothing
// clears the threshold.
func BestMatch(name string, candidates []string, threshold float64) (string, float64) {
	normalized := Name(name)

	var best string
	var bestScore float64

	for _, candidate := range candidates {
		cn := Name(candidate)
		if normalized == cn && normalized != "" {
			return candidate, 1.0
		}
		if normalized != "" && cn != "" &&
			(strings.Contains(cn, normalized) || strings.Contains(normalized, cn)) {
			if bestScore < 0.9 {
				best, bestScore = candidate, 0.9
			}
			continue
		}
		if sim := Similarity(normalized, cn); sim > threshold && sim > bestScore {
			best, bestScore = candidate, sim
		}
	}

	return best, bestScore
}
