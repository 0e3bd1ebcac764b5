package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stablewatch/ecosystem-cli/internal/dedup"
	"github.com/stablewatch/ecosystem-cli/internal/records"
)

var (
	dedupStorePath string
	dedupThreshold float64
	dedupDryRun    bool
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Merge duplicate rows in a record store",
	Long:  "Groups rows by normalized name and fuzzy similarity, merges each group into its most complete survivor, and rewrites the store. Use --dry-run to preview the merges.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		storePath := dedupStorePath
		if storePath == "" {
			storePath = cfg.Records.Path
		}

		recs, err := records.Load(storePath)
		if err != nil {
			return err
		}

		threshold := dedupThreshold
		if threshold == 0 {
			threshold = cfg.Dedup.FuzzyThreshold
		}
		merged, res := dedup.Run(recs, dedup.Options{FuzzyThreshold: threshold})

		for _, m := range res.Merges {
			fmt.Printf("merge: %s <- %s\n", m.Survivor, strings.Join(m.Absorbed, ", "))
		}
		fmt.Printf("%d rows in, %d out, %d removed\n", res.In, res.Out, res.Removed)

		if dedupDryRun {
			fmt.Println("dry run, store not modified")
			return nil
		}
		if res.Removed == 0 {
			return nil
		}

		backup, err := records.Backup(storePath, "dedup")
		if err != nil {
			return err
		}
		if err := records.Write(storePath, merged); err != nil {
			return eris.Wrap(err, "write deduped store")
		}

		zap.L().Info("dedup complete",
			zap.String("store", storePath),
			zap.Int("removed", res.Removed),
			zap.String("backup", backup))
		return nil
	},
}

func init() {
	dedupCmd.Flags().StringVar(&dedupStorePath, "store", "", "record store CSV path (default from config)")
	dedupCmd.Flags().Float64Var(&dedupThreshold, "threshold", 0, "fuzzy name similarity for merging (default 0.9)")
	dedupCmd.Flags().BoolVar(&dedupDryRun, "dry-run", false, "report merges without writing")
	rootCmd.AddCommand(dedupCmd)
}
