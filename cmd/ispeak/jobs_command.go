package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"ispeak/internal/jobstore"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the local job history",
	}
	cmd.AddCommand(newJobsListCommand(ctx))
	cmd.AddCommand(newJobsShowCommand(ctx))
	cmd.AddCommand(newJobsClearCommand(ctx))
	return cmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submitted jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]jobstore.Status, 0, len(statusFlags))
			for _, raw := range statusFlags {
				status, err := jobstore.ParseStatus(raw)
				if err != nil {
					return err
				}
				statuses = append(statuses, status)
			}
			return ctx.withJobs(func(store *jobstore.Store) error {
				jobs, err := store.List(cmd.Context(), limit, statuses...)
				if err != nil {
					return err
				}
				if jsonOutput {
					if jobs == nil {
						jobs = []*jobstore.Job{}
					}
					return writeJSON(cmd, jobs)
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderJobsTable(jobs))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (active, completed, failed)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output jobs as JSON")
	return cmd
}

func renderJobsTable(jobs []*jobstore.Job) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.JobID,
			job.FileName,
			string(job.Status),
			tokenLabel(job.LastToken),
			strconv.Itoa(job.Progress) + "%",
			strconv.Itoa(len(job.Segments)),
			job.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return renderTable(
		[]string{"Job", "File", "Status", "Last Status", "Progress", "Segments", "Submitted"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one recorded job with its segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(func(store *jobstore.Store) error {
				job, err := store.Get(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, job)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Job "+job.JobID, colorize) {
					fmt.Fprintln(out, line)
				}
				kind := statusInfo
				switch job.Status {
				case jobstore.StatusCompleted:
					kind = statusOK
				case jobstore.StatusFailed:
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine("Status", kind, string(job.Status), colorize))
				fmt.Fprintln(out, renderStatusLine("Last status", statusInfo, fmt.Sprintf("%s (%d%%)", tokenLabel(job.LastToken), job.Progress), colorize))
				fmt.Fprintln(out, renderStatusLine("File", statusInfo, job.FileName, colorize))
				if job.ErrorMessage != "" {
					fmt.Fprintln(out, renderStatusLine("Error", statusError, fmt.Sprintf("%s: %s", job.ErrorCode, job.ErrorMessage), colorize))
				}
				fmt.Fprintln(out, renderSegmentsTable(job.Segments))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the job as JSON")
	return cmd
}

func newJobsClearCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished jobs from the history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(func(store *jobstore.Store) error {
				removed, err := store.Clear(cmd.Context(), all)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job(s)\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Also remove active jobs")
	return cmd
}
