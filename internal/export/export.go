// Package export writes the record store to an xlsx research workbook,
// the format researchers actually review and hand-edit in.
package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/stablewatch/ecosystem-cli/internal/model"
)

// Workbook writes records to path as an xlsx workbook: a summary sheet
// followed by one sheet per chain, each in the canonical column order.
func Workbook(path string, recs []*model.Record) error {
	file := xlsx.NewFile()

	header := xlsx.NewStyle()
	header.Font.Bold = true
	header.ApplyFont = true

	byChain := make(map[string][]*model.Record)
	var chains []string
	for _, rec := range recs {
		chain := strings.TrimSpace(rec.Chain)
		if chain == "" {
			chain = "unassigned"
		}
		if _, seen := byChain[chain]; !seen {
			chains = append(chains, chain)
		}
		byChain[chain] = append(byChain[chain], rec)
	}
	sort.Strings(chains)

	if err := addSummarySheet(file, header, chains, byChain); err != nil {
		return err
	}

	for _, chain := range chains {
		sheet, err := file.AddSheet(sheetName(chain))
		if err != nil {
			return eris.Wrapf(err, "export: add sheet %s", chain)
		}

		row := sheet.AddRow()
		for _, name := range model.ColumnNames() {
			cell := row.AddCell()
			cell.Value = name
			cell.SetStyle(header)
		}

		for _, rec := range byChain[chain] {
			row := sheet.AddRow()
			for _, col := range model.Columns {
				row.AddCell().Value = col.Get(rec)
			}
		}
	}

	return eris.Wrapf(file.Save(path), "export: save %s", path)
}

func addSummarySheet(file *xlsx.File, header *xlsx.Style, chains []string, byChain map[string][]*model.Record) error {
	sheet, err := file.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}

	row := sheet.AddRow()
	for _, name := range []string{"Chain", "Records", "Matched", "Flagged", "Processed"} {
		cell := row.AddCell()
		cell.Value = name
		cell.SetStyle(header)
	}

	for _, chain := range chains {
		var matched, flagged, processed int
		for _, rec := range byChain[chain] {
			if rec.Matched() {
				matched++
			}
			if rec.SuspectUSDT.True() || rec.GeneralStablecoin.True() {
				flagged++
			}
			if rec.Processed.True() {
				processed++
			}
		}

		row := sheet.AddRow()
		row.AddCell().Value = chain
		row.AddCell().Value = fmt.Sprint(len(byChain[chain]))
		row.AddCell().Value = fmt.Sprint(matched)
		row.AddCell().Value = fmt.Sprint(flagged)
		row.AddCell().Value = fmt.Sprint(processed)
	}
	return nil
}

// sheetName fits a chain id into the 31-character sheet name limit and
// strips the characters xlsx forbids.
func sheetName(chain string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '-'
		}
		return r
	}, chain)
	if len(clean) > 31 {
		clean = clean[:31]
	}
	return clean
}
