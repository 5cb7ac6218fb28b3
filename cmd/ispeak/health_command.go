package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the analysis service is reachable and healthy",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.analysisClient()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			health, err := client.Health(cmd.Context())
			if err != nil {
				fmt.Fprintln(out, renderStatusLine("Analysis service", statusError, client.BaseURL(), colorize))
				return err
			}
			msg := client.BaseURL()
			if health.Message != "" {
				msg = fmt.Sprintf("%s (%s)", msg, health.Message)
			}
			fmt.Fprintln(out, renderStatusLine("Analysis service", statusOK, msg, colorize))
			return nil
		},
	}
}
