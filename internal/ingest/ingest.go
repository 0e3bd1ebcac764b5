// Package ingest merges researcher and scraper batches into the record
// store: delimiter detection, column auto-mapping, duplicate detection
// against the existing table, and field-level merge with accounting.
package ingest

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/stablewatch/ecosystem-cli/internal/match"
	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/internal/normalize"
)

// DefaultThreshold is the fuzzy name similarity above which an incoming
// row counts as a duplicate of an existing one.
const DefaultThreshold = 0.8

// columnAliases maps known incoming header spellings to canonical columns.
// Keys are lowercase.
var columnAliases = map[string]string{
	"project":         "Project Name",
	"name":            "Project Name",
	"url":             "Website",
	"site":            "Website",
	"homepage":        "Website",
	"twitter":         "X Handle",
	"twitter handle":  "X Handle",
	"twitter link":    "X Handle",
	"twitter url":     "X Handle",
	"x":               "X Handle",
	"x link":          "X Handle",
	"tg":              "Telegram",
	"telegram link":   "Telegram",
	"discord link":    "Discord",
	"github link":     "GitHub",
	"tags":            "Category",
	"categories":      "Category",
	"tags/categories": "Category",
	"description":     "Notes",
	"ecosystem":       "Chain",
	"ecosystem/chain": "Chain",
	"status":          "The Grid Status",
	"evidence":        "Evidence & Source URLs",
	"source urls":     "Evidence & Source URLs",
	"sources":         "Evidence & Source URLs",
}

// MappingKind classifies how an incoming column was resolved.
type MappingKind string

const (
	// MappingMatched is an exact header hit; safe to apply unreviewed.
	MappingMatched MappingKind = "matched"
	// MappingSuggested came from the alias table or fuzzy similarity and
	// should be shown to the operator before a merge.
	MappingSuggested MappingKind = "suggested"
	// MappingExtra has no plausible canonical column and is dropped.
	MappingExtra MappingKind = "extra"
)

// Mapping records the resolution of one incoming column.
type Mapping struct {
	Incoming   string
	MappedTo   string
	Confidence string
	Kind       MappingKind
}

// Parse reads CSV or TSV text into headers and row maps. The delimiter is
// detected from the first line: any tab means TSV.
func Parse(content string) ([]string, []map[string]string, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil, nil
	}

	firstLine, _, _ := strings.Cut(content, "\n")
	r := csv.NewReader(strings.NewReader(content))
	if strings.Contains(firstLine, "\t") {
		r.Comma = '\t'
	}
	r.FieldsPerRecord = -1

	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, eris.Wrap(err, "ingest: parse input")
	}
	if len(all) == 0 {
		return nil, nil, nil
	}

	headers := all[0]
	rows := make([]map[string]string, 0, len(all)-1)
	for _, raw := range all[1:] {
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(raw) {
				row[h] = raw[i]
			}
		}
		rows = append(rows, row)
	}
	return headers, rows, nil
}

// AutoMapColumns resolves incoming headers against the canonical schema in
// three tiers: exact (case-insensitive), alias table, fuzzy similarity
// above 0.7. Each canonical column is claimed at most once, first header
// wins.
func AutoMapColumns(headers []string) []Mapping {
	canonical := model.ColumnNames()
	canonicalLower := make(map[string]string, len(canonical))
	for _, c := range canonical {
		canonicalLower[strings.ToLower(c)] = c
	}
	used := make(map[string]bool, len(canonical))

	mappings := make([]Mapping, 0, len(headers))
	for _, incoming := range headers {
		lower := strings.ToLower(strings.TrimSpace(incoming))

		if target, ok := canonicalLower[lower]; ok && !used[target] {
			used[target] = true
			mappings = append(mappings, Mapping{
				Incoming: incoming, MappedTo: target,
				Confidence: "exact", Kind: MappingMatched,
			})
			continue
		}

		if target, ok := columnAliases[lower]; ok && !used[target] {
			used[target] = true
			mappings = append(mappings, Mapping{
				Incoming: incoming, MappedTo: target,
				Confidence: "alias", Kind: MappingSuggested,
			})
			continue
		}

		bestScore := 0.0
		bestTarget := ""
		for _, canon := range canonical {
			if used[canon] {
				continue
			}
			score := normalize.Similarity(lower, strings.ToLower(canon))
			if score > 0.7 && score > bestScore {
				bestScore = score
				bestTarget = canon
			}
		}
		if bestTarget != "" {
			used[bestTarget] = true
			mappings = append(mappings, Mapping{
				Incoming: incoming, MappedTo: bestTarget,
				Confidence: fmt.Sprintf("fuzzy (%.0f%%)", bestScore*100),
				Kind:       MappingSuggested,
			})
			continue
		}

		mappings = append(mappings, Mapping{Incoming: incoming, Kind: MappingExtra})
	}
	return mappings
}

// ApplyMapping converts row maps to records using an incoming→canonical
// column mapping. Unmapped columns are dropped.
func ApplyMapping(rows []map[string]string, mapping map[string]string) []*model.Record {
	recs := make([]*model.Record, 0, len(rows))
	for _, row := range rows {
		rec := &model.Record{}
		for incoming, canonical := range mapping {
			if canonical == "" {
				continue
			}
			rec.SetField(canonical, strings.TrimSpace(row[incoming]))
		}
		recs = append(recs, rec)
	}
	return recs
}

// Duplicate links an incoming record to the existing record it duplicates.
type Duplicate struct {
	Incoming *model.Record
	Existing *model.Record
	Score    float64
	Method   string // "name" or "url"
}

// FindDuplicates splits incoming records into duplicates of existing rows
// and genuinely new rows. Names match fuzzily on the normalized key above
// threshold; websites match on exact registrable domain.
func FindDuplicates(incoming, existing []*model.Record, threshold float64) ([]Duplicate, []*model.Record) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	byDomain := make(map[string]*model.Record, len(existing))
	for _, rec := range existing {
		if d := normalize.Domain(rec.Website); d != "" {
			if _, taken := byDomain[d]; !taken {
				byDomain[d] = rec
			}
		}
	}

	var dups []Duplicate
	var fresh []*model.Record

	for _, in := range incoming {
		inKey := recordKey(in.Name)

		var best *model.Record
		bestScore := 0.0
		if inKey != "" {
			for _, ex := range existing {
				exKey := recordKey(ex.Name)
				if exKey == "" {
					continue
				}
				score := normalize.Similarity(inKey, exKey)
				if score >= threshold && score > bestScore {
					best = ex
					bestScore = score
				}
			}
		}
		if best != nil {
			dups = append(dups, Duplicate{Incoming: in, Existing: best, Score: bestScore, Method: "name"})
			continue
		}

		if d := normalize.Domain(in.Website); d != "" {
			if ex, ok := byDomain[d]; ok {
				dups = append(dups, Duplicate{Incoming: in, Existing: ex, Score: 1.0, Method: "url"})
				continue
			}
		}

		fresh = append(fresh, in)
	}
	return dups, fresh
}

func recordKey(name string) string {
	key := normalize.Name(name)
	if key == "" {
		key = normalize.Alnum(name)
	}
	return key
}

// Strategy resolves a field conflict between an existing and an incoming
// value.
type Strategy string

const (
	// StrategyAppend combines both values with "; ", skipping containment.
	StrategyAppend Strategy = "append"
	// StrategyKeepOurs keeps the existing value unless it is empty.
	StrategyKeepOurs Strategy = "keep_ours"
	// StrategyKeepTheirs takes the incoming value unless it is empty.
	StrategyKeepTheirs Strategy = "keep_theirs"
)

func applyStrategy(ours, theirs string, strategy Strategy) string {
	switch strategy {
	case StrategyKeepTheirs:
		if theirs != "" {
			return theirs
		}
		return ours
	case StrategyKeepOurs:
		if ours != "" {
			return ours
		}
		return theirs
	}
	if ours != "" && theirs != "" && ours != theirs {
		if strings.Contains(ours, theirs) {
			return ours
		}
		return ours + "; " + theirs
	}
	if ours != "" {
		return ours
	}
	return theirs
}

// Summary is the merge accounting surfaced to the operator.
type Summary struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// Merge applies duplicates onto their existing rows field by field and
// appends the fresh rows. Duplicates with no actionable difference are
// counted as skipped. The default strategy for every column is append;
// strategies overrides per column name.
func Merge(existing, fresh []*model.Record, dups []Duplicate, strategies map[string]Strategy) ([]*model.Record, Summary) {
	var sum Summary

	for _, dup := range dups {
		changed := false
		for _, col := range model.Columns {
			ours := strings.TrimSpace(col.Get(dup.Existing))
			theirs := strings.TrimSpace(col.Get(dup.Incoming))
			if ours == theirs || theirs == "" {
				continue
			}

			strategy := StrategyAppend
			if col.Name == "Project Name" {
				// The identity column never gets append-mangled.
				strategy = StrategyKeepOurs
			}
			if s, ok := strategies[col.Name]; ok {
				strategy = s
			}
			resolved := applyStrategy(ours, theirs, strategy)
			if resolved != ours {
				col.Set(dup.Existing, resolved)
				changed = true
			}
		}
		if changed {
			sum.Updated++
		} else {
			sum.Skipped++
		}
	}

	for _, rec := range fresh {
		existing = append(existing, rec)
		sum.Added++
	}

	NormalizeAdminURLs(existing)
	return existing, sum
}

// NormalizeAdminURLs lifts root ids out of pasted admin links into the
// Root ID column where it is still empty. Returns how many rows changed.
func NormalizeAdminURLs(recs []*model.Record) int {
	count := 0
	for _, rec := range recs {
		if strings.TrimSpace(rec.RootID) != "" {
			continue
		}
		id := match.ExtractRootID(rec.MatchedURL)
		if id == "" {
			id = match.ExtractRootID(rec.Website)
		}
		if id != "" {
			rec.RootID = id
			count++
		}
	}
	return count
}

// Result is the outcome of a full import.
type Result struct {
	Records    []*model.Record
	Mappings   []Mapping
	Duplicates int
	Summary    Summary
}

// Import runs the whole flow over raw batch text: parse, auto-map columns,
// detect duplicates against the existing table, merge. Rows without a
// project name after mapping are dropped; identity is non-negotiable.
func Import(content string, existing []*model.Record, threshold float64) (*Result, error) {
	headers, rows, err := Parse(content)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &Result{Records: existing}, nil
	}

	mappings := AutoMapColumns(headers)
	applied := make(map[string]string, len(mappings))
	for _, m := range mappings {
		if m.Kind != MappingExtra {
			applied[m.Incoming] = m.MappedTo
		}
	}
	if _, ok := hasTarget(mappings, "Project Name"); !ok {
		return nil, eris.New("ingest: no column maps to Project Name")
	}

	incoming := ApplyMapping(rows, applied)
	named := incoming[:0]
	for _, rec := range incoming {
		if strings.TrimSpace(rec.Name) != "" {
			named = append(named, rec)
		}
	}

	dups, fresh := FindDuplicates(named, existing, threshold)
	merged, sum := Merge(existing, fresh, dups, nil)

	return &Result{
		Records:    merged,
		Mappings:   mappings,
		Duplicates: len(dups),
		Summary:    sum,
	}, nil
}

func hasTarget(mappings []Mapping, target string) (Mapping, bool) {
	for _, m := range mappings {
		if m.MappedTo == target {
			return m, true
		}
	}
	return Mapping{}, false
}
