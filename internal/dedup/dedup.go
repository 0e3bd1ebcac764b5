// Package dedup collapses duplicate project rows. Rows are grouped by
// normalized name, fuzzy-linked across near-identical names, split again by
// website domain, and merged into the richest surviving row without losing
// any research state.
package dedup

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/internal/normalize"
)

// Options tune the pass. Zero value means defaults.
type Options struct {
	// FuzzyThreshold is the minimum edit-distance similarity between two
	// normalized names for their groups to be linked. Defaults to 0.9.
	FuzzyThreshold float64

	// MinFuzzyLen guards the fuzzy pass: shorter normalized names produce
	// too many accidental near-matches. Defaults to 4.
	MinFuzzyLen int
}

func (o Options) withDefaults() Options {
	if o.FuzzyThreshold == 0 {
		o.FuzzyThreshold = 0.9
	}
	if o.MinFuzzyLen == 0 {
		o.MinFuzzyLen = 4
	}
	return o
}

// Merge records one collapse of two or more rows into a survivor.
type Merge struct {
	Survivor string
	Absorbed []string
}

// Result summarizes a dedup pass.
type Result struct {
	In      int
	Out     int
	Removed int
	Merges  []Merge
}

// groupKey is the identity key rows are grouped under. Names made entirely
// of suffix words ("Swap") normalize to empty, so fall back to the plain
// alphanumeric form rather than lumping unrelated rows together.
func groupKey(name string) string {
	if k := normalize.Name(name); k != "" {
		return k
	}
	return normalize.Alnum(name)
}

type group struct {
	key  string
	rows []*model.Record
}

// Run deduplicates records, preserving first-seen order of survivors.
// Records whose name produces no usable key pass through untouched.
func Run(recs []*model.Record, opts Options) ([]*model.Record, Result) {
	opts = opts.withDefaults()
	res := Result{In: len(recs)}

	byKey := make(map[string]*group)
	var order []*group
	var passthrough []*model.Record

	for _, r := range recs {
		key := groupKey(r.Name)
		if key == "" {
			passthrough = append(passthrough, r)
			continue
		}
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key}
			byKey[key] = g
			order = append(order, g)
		}
		g.rows = append(g.rows, r)
	}

	linkFuzzyGroups(order, byKey, opts)

	position := make(map[*model.Record]int, len(recs))
	for i, r := range recs {
		position[r] = i
	}

	var survivors []*model.Record
	for _, g := range order {
		if g == nil || len(g.rows) == 0 {
			continue
		}
		for _, sub := range splitByDomain(g.rows) {
			merged, m := mergeRows(sub)
			survivors = append(survivors, merged)
			if m != nil {
				res.Merges = append(res.Merges, *m)
			}
		}
	}
	survivors = append(survivors, passthrough...)

	sort.SliceStable(survivors, func(i, j int) bool {
		return position[survivors[i]] < position[survivors[j]]
	})

	res.Out = len(survivors)
	res.Removed = res.In - res.Out
	zap.L().Info("dedup: pass complete",
		zap.Int("in", res.In),
		zap.Int("out", res.Out),
		zap.Int("merges", len(res.Merges)))
	return survivors, res
}

// linkFuzzyGroups folds groups whose keys are near-identical ("thalaswap"
// vs "thalaswaps") into the earlier group. Short keys are exempt.
func linkFuzzyGroups(order []*group, byKey map[string]*group, opts Options) {
	for i, a := range order {
		if a == nil || len(a.key) < opts.MinFuzzyLen {
			continue
		}
		for j := i + 1; j < len(order); j++ {
			b := order[j]
			if b == nil || len(b.key) < opts.MinFuzzyLen {
				continue
			}
			if normalize.Similarity(a.key, b.key) < opts.FuzzyThreshold {
				continue
			}
			if !domainsCompatible(a.rows, b.rows) {
				continue
			}
			a.rows = append(a.rows, b.rows...)
			delete(byKey, b.key)
			order[j] = nil
		}
	}
}

// domainsCompatible rejects a fuzzy link when the two groups carry distinct
// non-empty website domains. Similar names on different sites are different
// projects.
func domainsCompatible(a, b []*model.Record) bool {
	da := groupDomains(a)
	db := groupDomains(b)
	if len(da) == 0 || len(db) == 0 {
		return true
	}
	for d := range da {
		if _, ok := db[d]; ok {
			return true
		}
	}
	return false
}

func groupDomains(rows []*model.Record) map[string]struct{} {
	out := make(map[string]struct{})
	for _, r := range rows {
		if d := normalize.Domain(r.Website); d != "" {
			out[d] = struct{}{}
		}
	}
	return out
}

// splitByDomain partitions one name group by website domain. Rows with
// distinct non-empty domains are distinct projects. Rows without a domain
// are absorbed into the domain subgroup only when exactly one exists;
// otherwise they form their own subgroup.
func splitByDomain(rows []*model.Record) [][]*model.Record {
	byDomain := make(map[string][]*model.Record)
	var domainOrder []string
	var noDomain []*model.Record

	for _, r := range rows {
		d := normalize.Domain(r.Website)
		if d == "" {
			noDomain = append(noDomain, r)
			continue
		}
		if _, ok := byDomain[d]; !ok {
			domainOrder = append(domainOrder, d)
		}
		byDomain[d] = append(byDomain[d], r)
	}

	var out [][]*model.Record
	if len(domainOrder) == 1 && len(noDomain) > 0 {
		out = append(out, append(byDomain[domainOrder[0]], noDomain...))
		return out
	}
	for _, d := range domainOrder {
		out = append(out, byDomain[d])
	}
	if len(noDomain) > 0 {
		out = append(out, noDomain)
	}
	return out
}

// fieldWeights rank how much research state a row carries. Registry match
// state and contact links outweigh descriptive fields.
var fieldWeights = map[string]int{
	"Website":                     5,
	"The Grid Status":             4,
	"Root ID":                     4,
	"Profile Name":                3,
	"Matched URL":                 3,
	"X Handle":                    2,
	"Telegram":                    2,
	"Discord":                     2,
	"GitHub":                      2,
	"Slug":                        2,
	"Notes":                       1,
	"Evidence & Source URLs":      1,
	"Category":                    1,
	"Chain":                       1,
	"Source":                      1,
	"Matched via":                 1,
	"Suspect USDT support?":       1,
	"Skip":                        1,
	"Added":                       1,
	"Web3 but no stablecoin":      1,
	"General Stablecoin Adoption": 1,
	"Processed?":                  1,
}

func richness(r *model.Record) int {
	score := 0
	for col, w := range fieldWeights {
		if v, _ := r.Field(col); strings.TrimSpace(v) != "" {
			score += w
		}
	}
	return score
}

// mergeRows collapses a subgroup into its richest row. Scalar fields
// backfill from the remaining rows in richness order, flags are TRUE-wins,
// notes and evidence are unioned segment-wise. A losing scalar value that
// conflicts with the survivor's is recorded in Notes rather than dropped
// without a trace. Returns the merge record when more than one row was
// collapsed.
func mergeRows(rows []*model.Record) (*model.Record, *Merge) {
	if len(rows) == 1 {
		return rows[0], nil
	}

	sorted := make([]*model.Record, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return richness(sorted[i]) > richness(sorted[j])
	})

	base := sorted[0]
	var absorbedNames []string
	exactDups := 0

	for _, other := range sorted[1:] {
		for _, c := range model.Columns {
			switch c.Name {
			case "Notes":
				for _, seg := range splitSegments(other.Notes) {
					base.AppendNote(seg)
				}
			case "Evidence & Source URLs":
				for _, seg := range splitSegments(other.Evidence) {
					base.AppendEvidence(seg)
				}
			default:
				v := strings.TrimSpace(c.Get(other))
				if v == "" || base.FillField(c.Name, v) {
					continue
				}
				// Name differences are covered by the merge marker below;
				// flags only ever hold TRUE, so they cannot conflict.
				if c.Name != "Project Name" && strings.TrimSpace(c.Get(base)) != v {
					base.AppendNote(fmt.Sprintf("(dedup: dropped %s %q from %s)",
						c.Name, v, other.Name))
				}
			}
		}
		if other.Name != base.Name {
			absorbedNames = append(absorbedNames, other.Name)
		} else {
			exactDups++
		}
	}

	if len(absorbedNames) > 0 {
		base.AppendNote(fmt.Sprintf("(fuzzy dedup: merged from %s)",
			strings.Join(absorbedNames, "; ")))
	}
	if exactDups > 0 {
		label := "rows"
		if exactDups == 1 {
			label = "row"
		}
		base.AppendNote(fmt.Sprintf("(dedup: merged %d duplicate %s)", exactDups, label))
	}

	m := &Merge{Survivor: base.Name}
	for _, other := range sorted[1:] {
		m.Absorbed = append(m.Absorbed, other.Name)
	}
	return base, m
}

func splitSegments(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	parts := strings.Split(list, " | ")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
