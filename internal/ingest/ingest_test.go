package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablewatch/ecosystem-cli/internal/model"
)

func TestParseDetectsDelimiter(t *testing.T) {
	headers, rows, err := Parse("Project Name,Website\nThala,https://thala.fi\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"Project Name", "Website"}, headers)
	require.Len(t, rows, 1)
	assert.Equal(t, "Thala", rows[0]["Project Name"])

	headers, rows, err = Parse("Project Name\tWebsite\nThala\thttps://thala.fi\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"Project Name", "Website"}, headers)
	require.Len(t, rows, 1)
	assert.Equal(t, "https://thala.fi", rows[0]["Website"])
}

func TestParseEmptyInput(t *testing.T) {
	headers, rows, err := Parse("   \n")
	require.NoError(t, err)
	assert.Nil(t, headers)
	assert.Nil(t, rows)
}

func TestAutoMapColumnsThreeTiers(t *testing.T) {
	mappings := AutoMapColumns([]string{
		"Project Name",   // exact
		"Twitter Handle", // alias
		"Web site",       // fuzzy
		"Random Junk",    // extra
	})
	require.Len(t, mappings, 4)

	assert.Equal(t, "Project Name", mappings[0].MappedTo)
	assert.Equal(t, MappingMatched, mappings[0].Kind)

	assert.Equal(t, "X Handle", mappings[1].MappedTo)
	assert.Equal(t, MappingSuggested, mappings[1].Kind)
	assert.Equal(t, "alias", mappings[1].Confidence)

	assert.Equal(t, "Website", mappings[2].MappedTo)
	assert.Equal(t, MappingSuggested, mappings[2].Kind)
	assert.Contains(t, mappings[2].Confidence, "fuzzy")

	assert.Empty(t, mappings[3].MappedTo)
	assert.Equal(t, MappingExtra, mappings[3].Kind)
}

func TestAutoMapColumnsFirstHeaderWins(t *testing.T) {
	mappings := AutoMapColumns([]string{"Name", "Project"})
	assert.Equal(t, "Project Name", mappings[0].MappedTo)
	assert.NotEqual(t, "Project Name", mappings[1].MappedTo,
		"a canonical column is claimed at most once")
}

func TestApplyMapping(t *testing.T) {
	rows := []map[string]string{
		{"Name": " Thala ", "URL": "https://thala.fi", "junk": "x"},
	}
	recs := ApplyMapping(rows, map[string]string{
		"Name": "Project Name",
		"URL":  "Website",
		"junk": "",
	})
	require.Len(t, recs, 1)
	assert.Equal(t, "Thala", recs[0].Name)
	assert.Equal(t, "https://thala.fi", recs[0].Website)
}

func TestFindDuplicates(t *testing.T) {
	existing := []*model.Record{
		{Name: "Thala", Website: "https://thala.fi"},
		{Name: "Aurora", Website: "https://aurora.example"},
	}
	incoming := []*model.Record{
		{Name: "Thala Labs"},
		{Name: "Renamed Project", Website: "http://aurora.example/about"},
		{Name: "Fresh One", Website: "https://fresh.example"},
	}

	dups, fresh := FindDuplicates(incoming, existing, 0)
	require.Len(t, dups, 2)
	assert.Equal(t, "name", dups[0].Method)
	assert.Equal(t, "Thala", dups[0].Existing.Name)
	assert.Equal(t, "url", dups[1].Method)
	assert.Equal(t, "Aurora", dups[1].Existing.Name)

	require.Len(t, fresh, 1)
	assert.Equal(t, "Fresh One", fresh[0].Name)
}

func TestMergeAccounting(t *testing.T) {
	existing := []*model.Record{
		{Name: "Thala", Category: "DeFi"},
		{Name: "Aurora", Website: "https://aurora.example"},
	}
	incoming := []*model.Record{
		{Name: "Thala", Category: "DEX", SuspectUSDT: model.FlagTrue},
		{Name: "Aurora", Website: "https://aurora.example"}, // nothing new
		{Name: "Fresh One"},
	}

	dups, fresh := FindDuplicates(incoming, existing, 0)
	merged, sum := Merge(existing, fresh, dups, nil)

	assert.Equal(t, 1, sum.Added)
	assert.Equal(t, 1, sum.Updated)
	assert.Equal(t, 1, sum.Skipped)
	require.Len(t, merged, 3)

	assert.Equal(t, "DeFi; DEX", merged[0].Category, "append keeps both values")
	assert.Equal(t, model.FlagTrue, merged[0].SuspectUSDT, "TRUE flags carry over")
}

func TestMergeStrategies(t *testing.T) {
	assert.Equal(t, "a; b", applyStrategy("a", "b", StrategyAppend))
	assert.Equal(t, "a and b", applyStrategy("a and b", "b", StrategyAppend), "contained values are not duplicated")
	assert.Equal(t, "a", applyStrategy("a", "b", StrategyKeepOurs))
	assert.Equal(t, "b", applyStrategy("", "b", StrategyKeepOurs))
	assert.Equal(t, "b", applyStrategy("a", "b", StrategyKeepTheirs))
	assert.Equal(t, "a", applyStrategy("a", "", StrategyKeepTheirs))
}

func TestNormalizeAdminURLs(t *testing.T) {
	recs := []*model.Record{
		{Name: "A", MatchedURL: "https://admin.thegrid.id/?rootId=r42"},
		{Name: "B", RootID: "keep", MatchedURL: "https://admin.thegrid.id/?rootId=other"},
		{Name: "C", Website: "https://admin.thegrid.id/?rootId=r7"},
		{Name: "D", Website: "https://plain.example"},
	}

	n := NormalizeAdminURLs(recs)
	assert.Equal(t, 2, n)
	assert.Equal(t, "r42", recs[0].RootID)
	assert.Equal(t, "keep", recs[1].RootID, "existing root ids are never overwritten")
	assert.Equal(t, "r7", recs[2].RootID)
	assert.Empty(t, recs[3].RootID)
}

func TestImportEndToEnd(t *testing.T) {
	existing := []*model.Record{{Name: "Thala", Category: "DeFi"}}

	content := "Project\tURL\tTags\n" +
		"Thala Labs\thttps://thala.fi\tDEX\n" +
		"Fresh One\thttps://fresh.example\tGaming\n" +
		"\t\t\n" // nameless rows are dropped

	res, err := Import(content, existing, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 1, res.Summary.Added)
	assert.Equal(t, 1, res.Summary.Updated)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "Thala", res.Records[0].Name, "the existing name is kept")
	assert.Equal(t, "https://thala.fi", res.Records[0].Website, "duplicate backfills the existing row")
	assert.Equal(t, "Fresh One", res.Records[1].Name)
}

func TestImportRequiresProjectName(t *testing.T) {
	_, err := Import("Color,Size\nred,10\n", nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Project Name")
}
