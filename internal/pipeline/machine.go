package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"ispeak/internal/services"
)

// ErrHalted is returned for tokens applied after a terminal token.
var ErrHalted = errors.New("pipeline halted")

// Update is one validated status message.
type Update struct {
	Status  Token
	Message string
	Result  json.RawMessage
}

// DiagnosticKind classifies tokens the machine declined to apply.
type DiagnosticKind string

const (
	DiagnosticUnknownToken DiagnosticKind = "unknown_token"
	DiagnosticRegression   DiagnosticKind = "regression"
	DiagnosticNoStep       DiagnosticKind = "no_step"
)

// Diagnostic describes a token that caused no state change.
type Diagnostic struct {
	Kind   DiagnosticKind
	Token  Token
	Detail string
}

// DiagnosticFunc receives diagnostics synchronously from Apply.
type DiagnosticFunc func(Diagnostic)

// JobState is the user-facing view of a job.
type JobState struct {
	IsProcessing  bool            `json:"isProcessing"`
	IsCompleted   bool            `json:"isCompleted"`
	CurrentStatus Token           `json:"currentStatus,omitempty"`
	Steps         []Step          `json:"processingSteps"`
	Error         *services.Error `json:"-"`
	Progress      int             `json:"progress"`
	Result        json.RawMessage `json:"result,omitempty"`
}

// Clone returns a deep copy.
func (s JobState) Clone() JobState {
	s.Steps = append([]Step(nil), s.Steps...)
	if s.Result != nil {
		s.Result = append(json.RawMessage(nil), s.Result...)
	}
	if s.Error != nil {
		copied := *s.Error
		s.Error = &copied
	}
	return s
}

// Terminal reports whether the job completed or failed.
func (s JobState) Terminal() bool {
	return s.IsCompleted || s.Error != nil
}

// Machine applies status tokens to the step list of one job attempt.
type Machine struct {
	state      JobState
	halted     bool
	diagnostic DiagnosticFunc
}

// NewMachine builds a machine whose step set is derived from opts. The job
// starts in the processing state with every step pending.
func NewMachine(opts Options, diagnostic DiagnosticFunc) *Machine {
	return &Machine{
		state: JobState{
			IsProcessing: true,
			Steps:        BuildSteps(opts),
		},
		diagnostic: diagnostic,
	}
}

// Apply transitions the machine for one update. Unknown tokens and tokens
// that would move a step backwards are ignored and reported as diagnostics.
// After a completed or error token every later update returns ErrHalted.
func (m *Machine) Apply(u Update) error {
	if m.halted {
		return fmt.Errorf("apply %q: %w", u.Status, ErrHalted)
	}
	tr, ok := transitions[u.Status]
	if !ok {
		m.report(DiagnosticUnknownToken, u.Status, "token is not part of the status enumeration")
		return nil
	}
	idx, act, ok := resolve(m.state.Steps, tr)
	if !ok {
		m.report(DiagnosticNoStep, u.Status, fmt.Sprintf("no step at or before %s in this pipeline", tr.step))
		return nil
	}

	switch act {
	case actionCompleteAll:
		for i := range m.state.Steps {
			m.state.Steps[i].Status = StatusCompleted
		}
		m.state.CurrentStatus = u.Status
		m.state.IsProcessing = false
		m.state.IsCompleted = true
		m.state.Progress = 100
		if len(u.Result) > 0 {
			m.state.Result = append(json.RawMessage(nil), u.Result...)
		}
		m.halted = true
		return nil
	case actionFail:
		m.state.CurrentStatus = u.Status
		message := u.Message
		if message == "" {
			message = "Analysis failed on the server"
		}
		m.fail(services.New(services.CodeProcessing, message, nil), false)
		return nil
	}

	next := append([]Step(nil), m.state.Steps...)
	target := next[idx].Status
	switch {
	case act == actionCompleted && target == StatusCompleted,
		act == actionProcessing && target == StatusProcessing:
		m.state.CurrentStatus = u.Status
		return nil
	case target.Terminal():
		m.report(DiagnosticRegression, u.Status, fmt.Sprintf("step %s already %s", next[idx].ID, target))
		return nil
	}
	for i := 0; i < idx; i++ {
		next[i].Status = StatusCompleted
	}
	if act == actionProcessing {
		next[idx].Status = StatusProcessing
	} else {
		next[idx].Status = StatusCompleted
	}

	progress := computeProgress(next)
	if progress < m.state.Progress {
		m.report(DiagnosticRegression, u.Status, fmt.Sprintf("progress would drop from %d to %d", m.state.Progress, progress))
		return nil
	}
	m.state.Steps = next
	m.state.Progress = progress
	m.state.CurrentStatus = u.Status
	return nil
}

// Fail records a client-side failure (connection, validation, api) against
// the step currently processing, or the first unfinished step when none is,
// and halts the machine. It is a no-op once the machine has halted.
func (m *Machine) Fail(err *services.Error) {
	if m.halted || err == nil {
		return
	}
	m.fail(err, true)
}

// fail marks the processing step as errored. The server error token only
// ever blames a processing step; pendingFallback is for client failures
// that happen between steps.
func (m *Machine) fail(err *services.Error, pendingFallback bool) {
	idx := -1
	for i, step := range m.state.Steps {
		if step.Status == StatusProcessing {
			idx = i
			break
		}
	}
	if idx < 0 && pendingFallback {
		for i, step := range m.state.Steps {
			if !step.Status.Terminal() {
				idx = i
				break
			}
		}
	}
	if idx >= 0 {
		m.state.Steps[idx].Status = StatusError
	}
	m.state.Error = err
	m.state.IsProcessing = false
	m.halted = true
}

// Halted reports whether the machine accepts no further tokens.
func (m *Machine) Halted() bool {
	return m.halted
}

// Snapshot returns a deep copy of the current state.
func (m *Machine) Snapshot() JobState {
	return m.state.Clone()
}

func (m *Machine) report(kind DiagnosticKind, token Token, detail string) {
	if m.diagnostic != nil {
		m.diagnostic(Diagnostic{Kind: kind, Token: token, Detail: detail})
	}
}

// computeProgress weights processing steps at 30% of a completed step.
func computeProgress(steps []Step) int {
	if len(steps) == 0 {
		return 0
	}
	var completed, processing int
	for _, step := range steps {
		switch step.Status {
		case StatusCompleted:
			completed++
		case StatusProcessing:
			processing++
		}
	}
	weighted := float64(completed) + 0.3*float64(processing)
	return int(math.Round(weighted / float64(len(steps)) * 100))
}

// Progress recomputes the percentage for an arbitrary step list.
func Progress(steps []Step) int {
	return computeProgress(steps)
}
