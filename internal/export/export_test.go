package export

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/stablewatch/ecosystem-cli/internal/model"
)

func TestWorkbookRoundTrip(t *testing.T) {
	recs := []*model.Record{
		{Name: "Thala", Chain: "aptos", Website: "https://thala.fi", GridStatus: model.GridStatusMatched},
		{Name: "Aurora", Chain: "near", SuspectUSDT: model.FlagTrue, Processed: model.FlagTrue},
		{Name: "Orphan"},
	}

	path := filepath.Join(t.TempDir(), "research.xlsx")
	require.NoError(t, Workbook(path, recs))

	file, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	names := make([]string, len(file.Sheets))
	for i, sheet := range file.Sheets {
		names[i] = sheet.Name
	}
	assert.Equal(t, []string{"Summary", "aptos", "near", "unassigned"}, names)

	aptos := file.Sheet["aptos"]
	require.NotNil(t, aptos)
	require.Len(t, aptos.Rows, 2)
	assert.Equal(t, model.ColumnNames(), rowStrings(aptos.Rows[0]))

	row := rowStrings(aptos.Rows[1])
	assert.Equal(t, "Thala", row[0])
	assert.Equal(t, "https://thala.fi", row[2])
}

func TestWorkbookSummaryCounts(t *testing.T) {
	recs := []*model.Record{
		{Name: "Thala", Chain: "aptos", GridStatus: model.GridStatusMatched, Processed: model.FlagTrue},
		{Name: "Liquidswap", Chain: "aptos", GeneralStablecoin: model.FlagTrue},
		{Name: "Aurora", Chain: "near"},
	}

	path := filepath.Join(t.TempDir(), "research.xlsx")
	require.NoError(t, Workbook(path, recs))

	file, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	summary := file.Sheet["Summary"]
	require.NotNil(t, summary)
	require.Len(t, summary.Rows, 3)

	assert.Equal(t, []string{"Chain", "Records", "Matched", "Flagged", "Processed"}, rowStrings(summary.Rows[0]))
	assert.Equal(t, []string{"aptos", "2", "1", "1", "1"}, rowStrings(summary.Rows[1]))
	assert.Equal(t, []string{"near", "1", "0", "0", "0"}, rowStrings(summary.Rows[2]))
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "aptos", sheetName("aptos"))
	assert.Equal(t, "binance-smart-chain", sheetName("binance/smart*chain"))
	assert.Len(t, sheetName("a-chain-with-an-unreasonably-long-identifier"), 31)
}

func rowStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = cell.String()
	}
	return cells
}
