package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stablewatch/ecosystem-cli/internal/ingest"
	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/internal/records"
)

var (
	importStorePath string
	importThreshold float64
	importDryRun    bool
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Merge a CSV or TSV batch into the record store",
	Long:  "Auto-maps the batch's columns onto the canonical schema, detects duplicates of existing rows by name and domain, and merges field by field. New rows are appended.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}

		storePath := importStorePath
		if storePath == "" {
			storePath = cfg.Records.Path
		}

		existing, err := loadOrEmpty(storePath)
		if err != nil {
			return err
		}

		res, err := ingest.Import(string(content), existing, importThreshold)
		if err != nil {
			return err
		}

		fmt.Println(formatMappings(res.Mappings))
		fmt.Printf("%d duplicates merged, %d added, %d updated, %d skipped\n",
			res.Duplicates, res.Summary.Added, res.Summary.Updated, res.Summary.Skipped)

		if importDryRun {
			fmt.Println("dry run, store not modified")
			return nil
		}

		if _, err := os.Stat(storePath); err == nil {
			if _, err := records.Backup(storePath, "import"); err != nil {
				return err
			}
		}
		if err := records.Write(storePath, res.Records); err != nil {
			return eris.Wrap(err, "write store")
		}

		zap.L().Info("import complete",
			zap.String("store", storePath),
			zap.Int("added", res.Summary.Added),
			zap.Int("updated", res.Summary.Updated))
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importStorePath, "store", "", "record store CSV path (default from config)")
	importCmd.Flags().Float64Var(&importThreshold, "threshold", 0, "fuzzy duplicate similarity (default 0.8)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "report mappings and merges without writing")
	rootCmd.AddCommand(importCmd)
}

// loadOrEmpty reads the record store, treating a missing file as empty so
// the first import can create it.
func loadOrEmpty(path string) ([]*model.Record, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return records.Load(path)
}

// formatMappings renders the column resolution table shown before a merge.
func formatMappings(mappings []ingest.Mapping) string {
	rows := make([][]string, 0, len(mappings))
	for _, m := range mappings {
		target := m.MappedTo
		if m.Kind == ingest.MappingExtra {
			target = "(dropped)"
		}
		rows = append(rows, []string{m.Incoming, target, m.Confidence, string(m.Kind)})
	}
	return renderTable(
		[]string{"INCOMING", "MAPS TO", "CONFIDENCE", "KIND"},
		rows,
		nil,
	)
}
