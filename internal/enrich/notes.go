package enrich

import (
	"context"
	"regexp"
	"strings"

	"github.com/stablewatch/ecosystem-cli/internal/model"
)

// NotesStage tidies the free-text columns. The first Notes segment is the
// scraper's original blurb and gets the heavy cleanup: source prefix,
// emoji and trailing punctuation stripped. Later segments are enrichment
// findings and are only trimmed, deduplicated, and dropped once promoted.
type NotesStage struct{}

func (s *NotesStage) Name() string        { return "notes" }
func (s *NotesStage) Description() string { return "normalize notes and evidence columns" }

func (s *NotesStage) Prerequisites() []string { return nil }

// Scraper note prefixes of the form "CATEGORIES from SOURCE - description".
// Categories and source already have their own columns.
var (
	sourcePrefixRE = regexp.MustCompile(`(?i)^.+?\s+from\s+(?:NEARCatalog|AwesomeNEAR|Generic Scraper)\s*-\s*`)
	sourceBareRE   = regexp.MustCompile(`(?i)^.+?\s+from\s+(?:NEARCatalog|AwesomeNEAR|Generic Scraper)\s*$`)
)

func (s *NotesStage) Run(_ context.Context, _ *Deps, recs []*model.Record) ([]*model.Record, Result, error) {
	var res Result
	for _, rec := range recs {
		res.Processed++

		promoted := rec.HasNoteMarker(PromotedNote)
		notes := cleanNotes(rec.Notes, promoted)
		evidence := cleanSegments(rec.Evidence, nil, nil)

		if notes != rec.Notes || evidence != rec.Evidence {
			rec.Notes = notes
			rec.Evidence = evidence
			res.Updated++
		}
	}
	return recs, res, nil
}

// cleanNotes rebuilds the Notes list: scraper cleanup on the first
// segment, trim/dedup on the rest, promoted hints dropped.
func cleanNotes(notes string, promoted bool) string {
	return cleanSegments(notes, cleanScraperNote, func(seg string) bool {
		// Unverified hints that got promoted are redundant now.
		return promoted && strings.HasPrefix(seg, UnverifiedPrefix)
	})
}

// cleanScraperNote strips the "CATEGORIES from SOURCE - " prefix, emoji
// and decoration, and trailing punctuation artifacts from a scraper blurb.
func cleanScraperNote(seg string) string {
	seg = sourcePrefixRE.ReplaceAllString(seg, "")
	if sourceBareRE.MatchString(seg) {
		return ""
	}
	seg = stripSymbols(seg)
	seg = strings.Join(strings.Fields(seg), " ")
	return strings.Trim(seg, " -;|,.")
}

// stripSymbols removes emoji, pictographs and decorative marks.
func stripSymbols(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 0x1F000 && r <= 0x1FAFF, // emoticons, pictographs, transport, extended symbols
			r >= 0x2600 && r <= 0x27BF, // misc symbols and dingbats
			r >= 0x2B00 && r <= 0x2BFF, // arrows, stars, squares
			r >= 0x2190 && r <= 0x21FF, // arrows
			r >= 0xFE00 && r <= 0xFE0F, // variation selectors
			r == 0x200D,                // zero width joiner
			r == 0x203C, r == 0x2049,   // !! and !?
			r == 0x2122,                // trademark
			r == 0x00A9, r == 0x00AE,   // copyright, registered
			r == 0x3030:                // wavy dash
			return -1
		}
		return r
	}, s)
}

// cleanSegments rebuilds a " | " list: trimmed, deduplicated, segments
// matching drop removed, and the first segment run through firstFn.
func cleanSegments(list string, firstFn func(string) string, drop func(string) bool) string {
	if strings.TrimSpace(list) == "" {
		return ""
	}

	seen := make(map[string]struct{})
	var out []string
	for i, seg := range strings.Split(list, " | ") {
		seg = strings.Join(strings.Fields(seg), " ")
		if i == 0 && firstFn != nil {
			seg = firstFn(seg)
		}
		if seg == "" {
			continue
		}
		if drop != nil && drop(seg) {
			continue
		}
		if _, dup := seen[seg]; dup {
			continue
		}
		seen[seg] = struct{}{}
		out = append(out, seg)
	}
	return strings.Join(out, " | ")
}
