package model

import "strings"

// Flag is a tri-state research column. "TRUE" records explicit positive
// evidence, the empty string means "not yet determined". FALSE is never
// written explicitly: absence of evidence is not evidence of absence.
type Flag string

// FlagTrue is the only value ever written to a Flag column.
const FlagTrue Flag = "TRUE"

// True reports whether the flag carries explicit positive evidence.
func (f Flag) True() bool {
	return strings.EqualFold(strings.TrimSpace(string(f)), string(FlagTrue))
}

// Record is one project row in the research table. Field order mirrors the
// column order contract in Columns; consumers appending columns must never
// reorder or delete existing ones.
type Record struct {
	Name     string `json:"name"`
	Slug     string `json:"slug,omitempty"`
	Website  string `json:"website,omitempty"`
	XHandle  string `json:"x_handle,omitempty"`
	Telegram string `json:"telegram,omitempty"`
	Discord  string `json:"discord,omitempty"`
	GitHub   string `json:"github,omitempty"`
	Category string `json:"category,omitempty"`
	Chain    string `json:"chain,omitempty"`
	Source   string `json:"source,omitempty"`

	SuspectUSDT       Flag `json:"suspect_usdt,omitempty"`
	Skip              Flag `json:"skip,omitempty"`
	Added             Flag `json:"added,omitempty"`
	Web3NoStablecoin  Flag `json:"web3_no_stablecoin,omitempty"`
	GeneralStablecoin Flag `json:"general_stablecoin,omitempty"`
	Processed         Flag `json:"processed,omitempty"`

	GridStatus  string `json:"grid_status,omitempty"`
	ProfileName string `json:"profile_name,omitempty"`
	RootID      string `json:"root_id,omitempty"`
	MatchedURL  string `json:"matched_url,omitempty"`
	MatchedVia  string `json:"matched_via,omitempty"`

	Notes    string `json:"notes,omitempty"`
	Evidence string `json:"evidence,omitempty"`
}

// Column binds a header name to its accessors on Record.
type Column struct {
	Name string
	Get  func(*Record) string
	Set  func(*Record, string)
}

func flagCol(name string, get func(*Record) *Flag) Column {
	return Column{
		Name: name,
		Get:  func(r *Record) string { return string(*get(r)) },
		Set: func(r *Record, v string) {
			if Flag(v).True() {
				*get(r) = FlagTrue
			} else {
				*get(r) = ""
			}
		},
	}
}

func strCol(name string, get func(*Record) *string) Column {
	return Column{
		Name: name,
		Get:  func(r *Record) string { return *get(r) },
		Set:  func(r *Record, v string) { *get(r) = v },
	}
}

// Columns is the canonical ordered column schema of the record store.
// The order is a standing invariant across every stage and export.
var Columns = []Column{
	strCol("Project Name", func(r *Record) *string { return &r.Name }),
	strCol("Slug", func(r *Record) *string { return &r.Slug }),
	strCol("Website", func(r *Record) *string { return &r.Website }),
	strCol("X Handle", func(r *Record) *string { return &r.XHandle }),
	strCol("Telegram", func(r *Record) *string { return &r.Telegram }),
	strCol("Discord", func(r *Record) *string { return &r.Discord }),
	strCol("GitHub", func(r *Record) *string { return &r.GitHub }),
	strCol("Category", func(r *Record) *string { return &r.Category }),
	strCol("Chain", func(r *Record) *string { return &r.Chain }),
	strCol("Source", func(r *Record) *string { return &r.Source }),
	flagCol("Suspect USDT support?", func(r *Record) *Flag { return &r.SuspectUSDT }),
	flagCol("Skip", func(r *Record) *Flag { return &r.Skip }),
	flagCol("Added", func(r *Record) *Flag { return &r.Added }),
	flagCol("Web3 but no stablecoin", func(r *Record) *Flag { return &r.Web3NoStablecoin }),
	flagCol("General Stablecoin Adoption", func(r *Record) *Flag { return &r.GeneralStablecoin }),
	flagCol("Processed?", func(r *Record) *Flag { return &r.Processed }),
	strCol("The Grid Status", func(r *Record) *string { return &r.GridStatus }),
	strCol("Profile Name", func(r *Record) *string { return &r.ProfileName }),
	strCol("Root ID", func(r *Record) *string { return &r.RootID }),
	strCol("Matched URL", func(r *Record) *string { return &r.MatchedURL }),
	strCol("Matched via", func(r *Record) *string { return &r.MatchedVia }),
	strCol("Notes", func(r *Record) *string { return &r.Notes }),
	strCol("Evidence & Source URLs", func(r *Record) *string { return &r.Evidence }),
}

// ColumnNames returns the header row in canonical order.
func ColumnNames() []string {
	names := make([]string, len(Columns))
	for i, c := range Columns {
		names[i] = c.Name
	}
	return names
}

// columnIndex is lazily keyed by header name for Field/SetField lookups.
var columnIndex = func() map[string]Column {
	m := make(map[string]Column, len(Columns))
	for _, c := range Columns {
		m[c.Name] = c
	}
	return m
}()

// Field returns the value of the named column and whether the column exists.
func (r *Record) Field(column string) (string, bool) {
	c, ok := columnIndex[column]
	if !ok {
		return "", false
	}
	return c.Get(r), true
}

// SetField assigns the named column unconditionally. Unknown columns are
// ignored and reported as false.
func (r *Record) SetField(column, value string) bool {
	c, ok := columnIndex[column]
	if !ok {
		return false
	}
	c.Set(r, value)
	return true
}

// FillField assigns the named column only when it is currently empty.
// This is the backfill discipline every enrichment stage must follow.
func (r *Record) FillField(column, value string) bool {
	c, ok := columnIndex[column]
	if !ok {
		return false
	}
	if strings.TrimSpace(c.Get(r)) != "" {
		return false
	}
	c.Set(r, value)
	return true
}

// segmentSeparator joins note and evidence segments, matching the workbook
// convention researchers edit by hand.
const segmentSeparator = " | "

// appendSegment appends seg to a separator-joined list, skipping segments
// already present verbatim. Appending twice is a no-op.
func appendSegment(list, seg string) string {
	seg = strings.TrimSpace(seg)
	if seg == "" {
		return list
	}
	if list == "" {
		return seg
	}
	for _, existing := range strings.Split(list, segmentSeparator) {
		if strings.TrimSpace(existing) == seg {
			return list
		}
	}
	return list + segmentSeparator + seg
}

// hasSegmentMarker reports whether any segment of list contains marker.
func hasSegmentMarker(list, marker string) bool {
	return strings.Contains(list, marker)
}

// AppendNote adds a note segment, deduplicating exact repeats.
func (r *Record) AppendNote(note string) {
	r.Notes = appendSegment(r.Notes, note)
}

// AppendEvidence adds an evidence segment, deduplicating exact repeats.
func (r *Record) AppendEvidence(evidence string) {
	r.Evidence = appendSegment(r.Evidence, evidence)
}

// HasNoteMarker reports whether the Notes column contains marker.
func (r *Record) HasNoteMarker(marker string) bool {
	return hasSegmentMarker(r.Notes, marker)
}

// HasEvidenceMarker reports whether the Evidence column contains marker.
func (r *Record) HasEvidenceMarker(marker string) bool {
	return hasSegmentMarker(r.Evidence, marker)
}

// Matched reports whether the record already carries a positive registry
// match. Matched records are never re-queried; "Not Found" and "Error" rows
// stay eligible.
func (r *Record) Matched() bool {
	s := strings.TrimSpace(r.GridStatus)
	return s != "" && s != GridStatusNotFound && s != GridStatusError
}

// Registry status values. Blank means never tried; "Not Found" means the
// registry was queried and produced no acceptable match; "Error" means the
// lookup itself failed and should be retried. All three keep the row
// eligible, so re-runs target the right rows.
const (
	GridStatusMatched  = "Matched"
	GridStatusNotFound = "Not Found"
	GridStatusError    = "Error"
)

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	cp := *r
	return &cp
}
