package main

import (
	"fmt"
	"io"
	"sync"

	"ispeak/internal/pipeline"
)

// progressPrinter writes one line per status change observed by the
// orchestrator. Repeated snapshots with the same token and progress are
// skipped.
type progressPrinter struct {
	mu       sync.Mutex
	out      io.Writer
	colorize bool
	last     pipeline.Token
	percent  int
	started  bool
	stopped  bool
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, colorize: shouldColorize(out)}
}

func (p *progressPrinter) observe(state pipeline.JobState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	if state.CurrentStatus == "" && state.Error == nil {
		return
	}
	if p.started && state.CurrentStatus == p.last && state.Progress == p.percent && state.Error == nil {
		return
	}
	p.started = true
	p.last = state.CurrentStatus
	p.percent = state.Progress

	if state.Error != nil {
		fmt.Fprintln(p.out, renderStatusLine("Failed", statusError, state.Error.Message, p.colorize))
		return
	}
	step := activeStep(state)
	kind := statusWarn
	if state.IsCompleted {
		kind = statusOK
	}
	fmt.Fprintln(p.out, renderStatusLine(step, kind, fmt.Sprintf("%s (%d%%)", tokenLabel(state.CurrentStatus), state.Progress), p.colorize))
}

// retrying announces a new attempt and forgets the last snapshot so the
// restarted pipeline prints from its first step.
func (p *progressPrinter) retrying(retry, limit int, cause string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = false
	fmt.Fprintln(p.out, renderStatusLine("Retry", statusWarn, fmt.Sprintf("attempt %d of %d after: %s", retry, limit, cause), p.colorize))
}

// stop waits for an in-flight line and drops later snapshots so the final
// report is not interleaved with progress output.
func (p *progressPrinter) stop() {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
}

// activeStep names the step currently processing, or the last completed one.
func activeStep(state pipeline.JobState) string {
	name := "Pipeline"
	for _, step := range state.Steps {
		switch step.Status {
		case pipeline.StatusProcessing, pipeline.StatusError:
			return step.Name
		case pipeline.StatusCompleted:
			name = step.Name
		}
	}
	return name
}
