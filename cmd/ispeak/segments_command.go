package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ispeak/internal/segments"
	"ispeak/internal/timeline"
)

type segmentsOutput struct {
	Recording string             `json:"recording"`
	Duration  float64            `json:"duration"`
	Segments  []segments.Segment `json:"segments"`
	Regions   []timeline.Region  `json:"regions"`
	Options   segments.Options   `json:"options"`
}

func newSegmentsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var adjustValues []string

	cmd := &cobra.Command{
		Use:   "segments <manifest.toml>",
		Short: "Check a session manifest and show the segments it defines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adjustments, err := parseAdjustments(adjustValues)
			if err != nil {
				return err
			}
			sess, err := loadSession(strings.TrimSpace(args[0]), adjustments, ctx.log())
			if err != nil {
				return err
			}
			list := sess.store.List()
			if err := segments.ValidateForSubmit(list, sess.duration); err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, segmentsOutput{
					Recording: sess.manifest.RecordingPath(),
					Duration:  sess.duration,
					Segments:  list,
					Regions:   sess.layer.Regions(),
					Options:   sess.store.Options(),
				})
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Session", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Recording", statusInfo, sess.manifest.RecordingPath(), colorize))
			fmt.Fprintln(out, renderStatusLine("Duration", statusInfo, segments.FormatTime(sess.duration, true), colorize))
			types := sess.store.Options().AnalysisTypes()
			names := make([]string, 0, len(types))
			for _, t := range types {
				names = append(names, string(t))
			}
			fmt.Fprintln(out, renderStatusLine("Analysis", statusOK, strings.Join(names, ", "), colorize))
			fmt.Fprintln(out, renderSegmentsTable(list))
			fmt.Fprintf(out, "%d region(s) on the timeline\n", len(sess.layer.Regions()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output segments and regions as JSON")
	cmd.Flags().StringArrayVar(&adjustValues, "adjust", nil, "Move manifest segment N to START-END seconds (repeatable)")
	return cmd
}

func renderSegmentsTable(list []segments.Segment) string {
	rows := make([][]string, 0, len(list))
	for _, seg := range list {
		rows = append(rows, []string{
			seg.Name,
			string(seg.Type),
			segments.FormatTime(seg.TimeRange.Start, false),
			segments.FormatTime(seg.TimeRange.End, false),
			referenceSummary(seg.ReferenceData),
		})
	}
	return renderTable(
		[]string{"Name", "Type", "Start", "End", "Reference"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func referenceSummary(ref *segments.ReferenceData) string {
	switch {
	case ref == nil || ref.Empty():
		return "-"
	case len(ref.Sentences) > 0:
		return fmt.Sprintf("%d sentence(s)", len(ref.Sentences))
	default:
		return fmt.Sprintf("%d word(s)", len(ref.Words))
	}
}
