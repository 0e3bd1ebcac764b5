package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stablewatch/ecosystem-cli/internal/enrich"
	"github.com/stablewatch/ecosystem-cli/internal/match"
	"github.com/stablewatch/ecosystem-cli/internal/records"
)

var (
	matchStorePath string
	matchChain     string
	matchOffline   bool
	matchDryRun    bool
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Link unmatched rows to the registry",
	Long:  "Runs only the registry matching step, without job bookkeeping. Handy for quick passes after an import. With --offline the full registry is indexed up front and rows match locally.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		deps, err := initDeps(matchChain, "")
		if err != nil {
			return err
		}

		if matchOffline {
			index, err := match.BuildIndex(ctx, deps.Registry)
			if err != nil {
				return eris.Wrap(err, "build offline index")
			}
			deps.Index = index
			zap.L().Info("offline registry index built")
		}

		storePath := matchStorePath
		if storePath == "" {
			storePath = cfg.Records.Path
		}
		recs, err := records.Load(storePath)
		if err != nil {
			return err
		}

		stage := &enrich.GridMatchStage{}
		recs, res, err := stage.Run(ctx, deps, recs)
		if err != nil {
			return eris.Wrap(err, "match")
		}

		fmt.Printf("%d rows processed, %d changed, %d skipped\n", res.Processed, res.Updated, res.Skipped)

		if matchDryRun {
			fmt.Println("dry run, store not modified")
			return nil
		}
		return records.Write(storePath, recs)
	},
}

func init() {
	matchCmd.Flags().StringVar(&matchStorePath, "store", "", "record store CSV path (default from config)")
	matchCmd.Flags().StringVar(&matchChain, "chain", "", "target chain id, e.g. aptos")
	matchCmd.Flags().BoolVar(&matchOffline, "offline", false, "index the registry once and match locally")
	matchCmd.Flags().BoolVar(&matchDryRun, "dry-run", false, "report matches without writing")
	rootCmd.AddCommand(matchCmd)
}
