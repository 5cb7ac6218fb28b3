package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ispeak/internal/jobstore"
	"ispeak/internal/segments"
	"ispeak/internal/workflow"
)

func newResumeCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "resume [job-id]",
		Short: "Re-attach to a submitted job and follow it to completion",
		Long: "Re-attach to the status stream of a job that has not finished.\n" +
			"Without a job id the most recent active job is used.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.log()

			lock, err := jobstore.AcquireWatchLock(cfg.WatchLockPath())
			if err != nil {
				return err
			}
			defer lock.Release()

			streams, err := ctx.streamClient()
			if err != nil {
				return err
			}
			defer streams.CloseAll()
			client, err := ctx.analysisClient()
			if err != nil {
				return err
			}

			return ctx.withJobs(func(store *jobstore.Store) error {
				jobID := ""
				if len(args) == 1 {
					jobID = strings.TrimSpace(args[0])
				}
				if jobID == "" {
					latest, err := store.LatestActive(cmd.Context())
					if errors.Is(err, jobstore.ErrNotFound) {
						return fmt.Errorf("no active job to resume")
					}
					if err != nil {
						return err
					}
					jobID = latest.JobID
				}

				opts := []workflow.Option{workflow.WithRecorder(store)}
				var printer *progressPrinter
				if !jsonOutput {
					printer = newProgressPrinter(cmd.OutOrStdout())
					opts = append(opts, workflow.WithObserver(printer.observe))
				}
				orch := workflow.NewOrchestrator(client, workflow.ConnectorFor(streams), segments.NewStore(0), logger, opts...)

				started := time.Now()
				runErr := orch.Resume(cmd.Context(), jobID)
				if runErr == nil {
					if _, err := orch.Wait(cmd.Context()); err != nil {
						return err
					}
				}
				printer.stop()
				state := orch.State()
				fileName := ""
				if job, err := store.Get(cmd.Context(), jobID); err == nil {
					fileName = job.FileName
				}
				ctx.notifyOutcome(cmd.Context(), jobID, fileName, state, time.Since(started))
				return reportJob(cmd, jobID, state, jsonOutput, false, runErr, "")
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the final job state as JSON")
	return cmd
}
