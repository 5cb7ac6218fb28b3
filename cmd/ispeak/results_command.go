package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"ispeak/internal/analysisapi"
)

func newResultsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "results <job-id>",
		Short: "Fetch the stored results of a finished job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := ctx.userID()
			if err != nil {
				return err
			}
			client, err := ctx.analysisClient()
			if err != nil {
				return err
			}
			jobID := strings.TrimSpace(args[0])
			result, err := client.Results(cmd.Context(), userID, jobID)
			if errors.Is(err, analysisapi.ErrResultsNotFound) {
				return fmt.Errorf("no results for job %s yet", jobID)
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, result)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderResult(result))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the result document as JSON")
	return cmd
}

func renderResult(result *analysisapi.Result) string {
	md := result.Metadata
	rows := [][]string{
		{"Job", md.JobID},
		{"Analysis types", strings.Join(md.AnalysisTypes, ", ")},
		{"Duration", fmt.Sprintf("%.2fs", md.Duration)},
		{"Patient", optionalString(md.PatientID)},
		{"Date", optionalString(md.Date)},
	}
	scores := result.IntelligibilityScores
	if scores.TotalWER != nil || scores.WordsWER != nil || scores.SentencesWER != nil {
		rows = append(rows,
			[]string{"Total WER", optionalFloat(scores.TotalWER)},
			[]string{"Words WER", optionalFloat(scores.WordsWER)},
			[]string{"Sentences WER", optionalFloat(scores.SentencesWER)},
		)
	}

	var b strings.Builder
	b.WriteString(renderTable([]string{"Field", "Value"}, rows, nil))
	b.WriteString("\n")

	segmentRows := make([][]string, 0, len(result.AcousticResults)+len(result.IntelligibilityResults))
	for _, id := range sortedKeys(result.AcousticResults) {
		segmentRows = append(segmentRows, []string{id, "acoustic", strconv.Itoa(len(result.AcousticResults[id])) + " bytes"})
	}
	for _, id := range sortedKeys(result.IntelligibilityResults) {
		segmentRows = append(segmentRows, []string{id, "intelligibility", strconv.Itoa(len(result.IntelligibilityResults[id])) + " bytes"})
	}
	if len(segmentRows) > 0 {
		b.WriteString(renderTable([]string{"Segment", "Type", "Payload"}, segmentRows, []columnAlignment{alignLeft, alignLeft, alignRight}))
		b.WriteString("\n")
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func optionalString(v *string) string {
	if v == nil || *v == "" {
		return "-"
	}
	return *v
}

func optionalFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 3, 64)
}
