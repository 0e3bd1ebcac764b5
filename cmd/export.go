package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stablewatch/ecosystem-cli/internal/export"
	"github.com/stablewatch/ecosystem-cli/internal/records"
)

var (
	exportStorePath string
	exportOut       string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the record store to an xlsx research workbook",
	Long:  "Produces a workbook with a per-chain summary sheet and one sheet per chain, in the canonical column order researchers review in.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		storePath := exportStorePath
		if storePath == "" {
			storePath = cfg.Records.Path
		}

		recs, err := records.Load(storePath)
		if err != nil {
			return err
		}

		if err := export.Workbook(exportOut, recs); err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("store", storePath),
			zap.String("out", exportOut),
			zap.Int("records", len(recs)))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportStorePath, "store", "", "record store CSV path (default from config)")
	exportCmd.Flags().StringVar(&exportOut, "out", "research.xlsx", "output workbook path")
	rootCmd.AddCommand(exportCmd)
}
