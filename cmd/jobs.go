package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect pipeline run history",
	Long:  "Commands for listing and viewing pipeline jobs recorded in the run store.",
}

// -- jobs list --

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pipeline jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		chain, _ := cmd.Flags().GetString("chain")
		limit, _ := cmd.Flags().GetInt("limit")

		jobs, err := st.ListJobs(ctx, store.JobFilter{
			Status: model.JobStatus(status),
			Chain:  chain,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "jobs list")
		}

		if len(jobs) == 0 {
			fmt.Fprintln(os.Stderr, "No jobs found.")
			return nil
		}

		jobPtrs := make([]*model.Job, len(jobs))
		for i := range jobs {
			jobPtrs[i] = &jobs[i]
		}
		fmt.Println(formatJobsList(jobPtrs))
		return nil
	},
}

// -- jobs show --

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show full details of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		job, err := st.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "jobs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

func init() {
	jobsListCmd.Flags().String("status", "", "filter by job status (pending, running, completed, failed, stopped)")
	jobsListCmd.Flags().String("chain", "", "filter by chain id")
	jobsListCmd.Flags().Int("limit", 50, "max number of jobs to display")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	rootCmd.AddCommand(jobsCmd)
}

// formatJobsList renders a compact table of jobs.
func formatJobsList(jobs []*model.Job) string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		dur := j.UpdatedAt.Sub(j.CreatedAt).Round(time.Second).String()
		stage := j.CurrentStage
		if stage == "" && j.Terminal() {
			stage = "-"
		}
		rows = append(rows, []string{
			truncateID(j.ID),
			j.Chain,
			string(j.Status),
			stage,
			j.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		})
	}
	return renderTable(
		[]string{"ID", "CHAIN", "STATUS", "STAGE", "CREATED", "DURATION"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	)
}
