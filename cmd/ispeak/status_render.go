package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"ispeak/internal/pipeline"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 24
	statusIndent     = "  "
)

var titleCaser = cases.Title(language.Und)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func stepKind(status pipeline.StepStatus) statusKind {
	switch status {
	case pipeline.StatusCompleted:
		return statusOK
	case pipeline.StatusProcessing:
		return statusWarn
	case pipeline.StatusError:
		return statusError
	default:
		return statusInfo
	}
}

// tokenLabel turns a status token such as upload_completed into
// "Upload Completed".
func tokenLabel(token pipeline.Token) string {
	raw := strings.TrimSpace(strings.ReplaceAll(string(token), "_", " "))
	if raw == "" {
		return "Idle"
	}
	return titleCaser.String(raw)
}

// renderSteps draws every step with its status, followed by the overall
// progress line.
func renderSteps(state pipeline.JobState, colorize bool) []string {
	lines := make([]string, 0, len(state.Steps)+2)
	for _, step := range state.Steps {
		lines = append(lines, renderStatusLine(step.Name, stepKind(step.Status), string(step.Status), colorize))
	}
	lines = append(lines, fmt.Sprintf("%sProgress: %d%% (%s)", statusIndent, state.Progress, tokenLabel(state.CurrentStatus)))
	if state.Error != nil {
		lines = append(lines, renderStatusLine("Error", statusError, state.Error.Message, colorize))
	}
	return lines
}
