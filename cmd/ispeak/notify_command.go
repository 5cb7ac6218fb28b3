package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ispeak/internal/logging"
	"ispeak/internal/pipeline"
)

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification utilities",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Send a test notification to the configured ntfy topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Notifications.NtfyTopic == "" {
				return fmt.Errorf("notifications.ntfy_topic is not set")
			}
			if err := ctx.notifier().Test(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent test notification to %s\n", cfg.Notifications.NtfyTopic)
			return nil
		},
	})
	return cmd
}

// notifyOutcome pushes the terminal state of a followed job. Delivery errors
// are logged only.
func (c *commandContext) notifyOutcome(ctx context.Context, jobID, fileName string, state pipeline.JobState, elapsed time.Duration) {
	var err error
	switch {
	case state.IsCompleted:
		err = c.notifier().JobCompleted(ctx, jobID, fileName, elapsed)
	case state.Error != nil:
		err = c.notifier().JobFailed(ctx, jobID, fileName, state.Error)
	default:
		return
	}
	if err != nil {
		logging.WarnWithContext(c.log(), "notification not delivered", "notify_failed",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}
