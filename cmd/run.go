package main

import (
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/internal/pipeline"
)

var (
	runStorePath    string
	runChain        string
	runAsset        string
	runOnly         []string
	runSkip         []string
	runRollback     bool
	runOffline      bool
	runWithResearch bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the enrichment pipeline over a record store",
	Long:  "Runs the stage sequence (dedup, registry expand/match, DefiLlama, CoinGecko, website scan, promote, health check, notes, sources) over the record store and persists per-stage results to the run store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, runChain, runAsset, runWithResearch, runOffline)
		if err != nil {
			return err
		}
		defer env.Close()

		storePath := runStorePath
		if storePath == "" {
			storePath = cfg.Records.Path
		}

		job, err := env.Pipeline.Run(ctx, pipeline.Options{
			StorePath: storePath,
			Chain:     runChain,
			Only:      runOnly,
			Skip:      runSkip,
			Rollback:  runRollback,
		})
		if job != nil {
			fmt.Println(formatJob(job))
		}
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("run complete",
			zap.String("job", job.ID),
			zap.String("chain", job.Chain),
			zap.Int("stages", len(job.Stages)))
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runStorePath, "store", "", "record store CSV path (default from config)")
	runCmd.Flags().StringVar(&runChain, "chain", "", "target chain id, e.g. aptos (required)")
	runCmd.Flags().StringVar(&runAsset, "asset", "USDT", "target asset ticker")
	runCmd.Flags().StringSliceVar(&runOnly, "only", nil, "run only the named stages")
	runCmd.Flags().StringSliceVar(&runSkip, "skip", nil, "skip the named stages")
	runCmd.Flags().BoolVar(&runRollback, "rollback", false, "restore the pre-run backup when a stage fails")
	runCmd.Flags().BoolVar(&runOffline, "offline-index", false, "build a full registry index up front and match locally")
	runCmd.Flags().BoolVar(&runWithResearch, "with-research", false, "append the AI research stage (paid API)")
	_ = runCmd.MarkFlagRequired("chain")
	rootCmd.AddCommand(runCmd)
}

// formatJob renders a finished or in-flight job with its stage table.
func formatJob(job *model.Job) string {
	out := fmt.Sprintf("Job %s  chain=%s  status=%s\n", truncateID(job.ID), job.Chain, job.Status)
	if job.Error != "" {
		out += "Error: " + job.Error + "\n"
	}
	if len(job.Stages) == 0 {
		return out
	}

	rows := make([][]string, 0, len(job.Stages))
	for _, sr := range job.Stages {
		dur := (time.Duration(sr.DurationMS) * time.Millisecond).Round(time.Millisecond)
		rows = append(rows, []string{
			sr.Name,
			string(sr.Status),
			strconv.Itoa(sr.Processed),
			strconv.Itoa(sr.Updated),
			strconv.Itoa(sr.Skipped),
			dur.String(),
			sr.Error,
		})
	}
	return out + renderTable(
		[]string{"STAGE", "STATUS", "PROCESSED", "UPDATED", "SKIPPED", "DURATION", "ERROR"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
