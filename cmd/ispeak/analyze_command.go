package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ispeak/internal/jobstore"
	"ispeak/internal/logging"
	"ispeak/internal/pipeline"
	"ispeak/internal/services"
	"ispeak/internal/workflow"
)

type jobOutput struct {
	JobID string            `json:"job_id"`
	State pipeline.JobState `json:"state"`
	Error *errorOutput      `json:"error,omitempty"`
}

type errorOutput struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func newJobOutput(jobID string, state pipeline.JobState) jobOutput {
	out := jobOutput{JobID: jobID, State: state}
	if state.Error != nil {
		out.Error = &errorOutput{
			Code:    string(state.Error.Code),
			Message: state.Error.Message,
			Fields:  state.Error.Fields,
		}
	}
	return out
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var detach bool
	var retries int
	var adjustValues []string

	cmd := &cobra.Command{
		Use:   "analyze <manifest.toml>",
		Short: "Upload a recording with its segments and follow the analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			userID, err := ctx.userID()
			if err != nil {
				return err
			}
			logger := ctx.log()

			if retries < 0 {
				return errors.New("--retry must be zero or more")
			}
			adjustments, err := parseAdjustments(adjustValues)
			if err != nil {
				return err
			}
			sess, err := loadSession(strings.TrimSpace(args[0]), adjustments, logger)
			if err != nil {
				return err
			}
			file, err := workflow.FileFromPath(sess.manifest.RecordingPath())
			if err != nil {
				return err
			}

			lock, err := jobstore.AcquireWatchLock(cfg.WatchLockPath())
			if err != nil {
				return err
			}
			defer lock.Release()

			client, err := ctx.analysisClient()
			if err != nil {
				return err
			}
			streams, err := ctx.streamClient()
			if err != nil {
				return err
			}
			defer streams.CloseAll()

			return ctx.withJobs(func(store *jobstore.Store) error {
				opts := []workflow.Option{workflow.WithRecorder(store)}
				var printer *progressPrinter
				if !jsonOutput {
					printer = newProgressPrinter(cmd.OutOrStdout())
					opts = append(opts, workflow.WithObserver(printer.observe))
				}
				orch := workflow.NewOrchestrator(client, workflow.ConnectorFor(streams), sess.store, logger, opts...)

				started := time.Now()
				runErr := orch.Start(cmd.Context(), file, sess.manifest.Metadata(userID, sess.duration))
				if runErr == nil && detach {
					if err := ctx.notifier().JobSubmitted(cmd.Context(), orch.JobID(), file.Name); err != nil {
						logger.Debug("submit notification not delivered", logging.Error(err))
					}
				}
				for retry := 1; !detach; retry++ {
					if runErr == nil {
						if _, err := orch.Wait(cmd.Context()); err != nil {
							return err
						}
					}
					failure := orch.State().Error
					if failure == nil || retry > retries || failure.Code == services.CodeValidation || cmd.Context().Err() != nil {
						break
					}
					logger.Info("retrying analysis",
						logging.Int("retry", retry),
						logging.Int("retries", retries),
						logging.String("error_code", string(failure.Code)),
						logging.String("error_message", failure.Message),
					)
					printer.retrying(retry, retries, failure.Message)
					runErr = orch.Retry(cmd.Context())
				}
				printer.stop()
				state := orch.State()
				ctx.notifyOutcome(cmd.Context(), orch.JobID(), file.Name, state, time.Since(started))
				return reportJob(cmd, orch.JobID(), state, jsonOutput, detach, runErr, rerunCommand(args[0], adjustValues))
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the final job state as JSON")
	cmd.Flags().BoolVar(&detach, "detach", false, "Return once the upload is accepted; follow later with resume")
	cmd.Flags().IntVar(&retries, "retry", 0, "Re-run the whole analysis up to N times after a failure")
	cmd.Flags().StringArrayVar(&adjustValues, "adjust", nil, "Move manifest segment N to START-END seconds (repeatable)")
	return cmd
}

// reportJob prints the final state and turns a failed pipeline into a
// command error.
// rerun is the command suggested after a failure, or "" for none.
func reportJob(cmd *cobra.Command, jobID string, state pipeline.JobState, jsonOutput, detached bool, runErr error, rerun string) error {
	if runErr != nil && state.Error == nil {
		return runErr
	}
	if jsonOutput {
		if err := writeJSON(cmd, newJobOutput(jobID, state)); err != nil {
			return err
		}
	} else {
		out := cmd.OutOrStdout()
		colorize := shouldColorize(out)
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Analysis", colorize) {
			fmt.Fprintln(out, line)
		}
		if jobID != "" {
			fmt.Fprintln(out, renderStatusLine("Job", statusInfo, jobID, colorize))
		}
		for _, line := range renderSteps(state, colorize) {
			fmt.Fprintln(out, line)
		}
		switch {
		case state.IsCompleted:
			fmt.Fprintf(out, "\nFetch results with: ispeak results %s\n", jobID)
		case detached && state.Error == nil:
			fmt.Fprintf(out, "\nFollow progress with: ispeak resume %s\n", jobID)
		case state.Error != nil && rerun != "" && state.Error.Code != services.CodeValidation:
			fmt.Fprintf(out, "\nRetry with: %s\n", rerun)
		}
	}
	if state.Error != nil {
		return state.Error
	}
	if runErr != nil && !errors.Is(runErr, workflow.ErrAbandoned) {
		return runErr
	}
	return nil
}

// rerunCommand rebuilds the analyze invocation for a retry hint.
func rerunCommand(manifestPath string, adjustments []string) string {
	parts := []string{"ispeak", "analyze", manifestPath}
	for _, adj := range adjustments {
		parts = append(parts, "--adjust", adj)
	}
	parts = append(parts, "--retry", "1")
	return strings.Join(parts, " ")
}
