package pipeline_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ispeak/internal/pipeline"
	"ispeak/internal/services"
)

var fullOptions = pipeline.Options{Transcription: true, AcousticAnalysis: true}

func stepIDs(steps []pipeline.Step) []pipeline.StepID {
	ids := make([]pipeline.StepID, 0, len(steps))
	for _, step := range steps {
		ids = append(ids, step.ID)
	}
	return ids
}

func statuses(steps []pipeline.Step) []pipeline.StepStatus {
	out := make([]pipeline.StepStatus, 0, len(steps))
	for _, step := range steps {
		out = append(out, step.Status)
	}
	return out
}

func apply(t *testing.T, m *pipeline.Machine, tokens ...pipeline.Token) {
	t.Helper()
	for _, token := range tokens {
		require.NoError(t, m.Apply(pipeline.Update{Status: token}))
	}
}

func TestBuildStepsSelectsOptionalSteps(t *testing.T) {
	tests := []struct {
		name string
		opts pipeline.Options
		want []pipeline.StepID
	}{
		{"both", fullOptions, []pipeline.StepID{"health_check", "upload", "convert", "transcribe", "analyze", "finalize"}},
		{"acoustic", pipeline.Options{AcousticAnalysis: true}, []pipeline.StepID{"health_check", "upload", "convert", "analyze", "finalize"}},
		{"intelligibility", pipeline.Options{Transcription: true}, []pipeline.StepID{"health_check", "upload", "convert", "transcribe", "finalize"}},
		{"none", pipeline.Options{}, []pipeline.StepID{"health_check", "upload", "convert", "finalize"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			steps := pipeline.BuildSteps(tc.opts)
			assert.Equal(t, tc.want, stepIDs(steps))
			for _, step := range steps {
				assert.Equal(t, pipeline.StatusPending, step.Status)
				assert.NotEmpty(t, step.Name)
				assert.NotEmpty(t, step.Description)
			}
		})
	}
}

func TestMachineProgressThroughFullPipeline(t *testing.T) {
	m := pipeline.NewMachine(fullOptions, nil)
	expected := []struct {
		token    pipeline.Token
		progress int
	}{
		{pipeline.TokenStarting, 5},
		{pipeline.TokenUploading, 22},
		{pipeline.TokenUploadCompleted, 33},
		{pipeline.TokenConverting, 38},
		{pipeline.TokenConverted, 50},
		{pipeline.TokenTranscribing, 55},
		{pipeline.TokenTrimming, 55},
		{pipeline.TokenTranscribed, 67},
		{pipeline.TokenAcousticAnalysis, 72},
		{pipeline.TokenAcousticAnalysisCompleted, 83},
		{pipeline.TokenCompleted, 100},
	}
	for _, step := range expected {
		require.NoError(t, m.Apply(pipeline.Update{Status: step.token}))
		state := m.Snapshot()
		assert.Equal(t, step.progress, state.Progress, "after %s", step.token)
		assert.Equal(t, step.token, state.CurrentStatus)
	}
	state := m.Snapshot()
	assert.True(t, state.IsCompleted)
	assert.False(t, state.IsProcessing)
	for _, status := range statuses(state.Steps) {
		assert.Equal(t, pipeline.StatusCompleted, status)
	}
}

func TestMachineProcessingMarksEarlierStepsCompleted(t *testing.T) {
	m := pipeline.NewMachine(fullOptions, nil)
	apply(t, m, pipeline.TokenConverting)
	assert.Equal(t, []pipeline.StepStatus{
		pipeline.StatusCompleted,
		pipeline.StatusCompleted,
		pipeline.StatusProcessing,
		pipeline.StatusPending,
		pipeline.StatusPending,
		pipeline.StatusPending,
	}, statuses(m.Snapshot().Steps))
}

func TestMachineFallsBackWhenStepAbsent(t *testing.T) {
	m := pipeline.NewMachine(pipeline.Options{AcousticAnalysis: true}, nil)
	apply(t, m, pipeline.TokenConverting, pipeline.TokenTranscribing)
	state := m.Snapshot()
	assert.Equal(t, []pipeline.StepStatus{
		pipeline.StatusCompleted,
		pipeline.StatusCompleted,
		pipeline.StatusCompleted,
		pipeline.StatusPending,
		pipeline.StatusPending,
	}, statuses(state.Steps))
	assert.Equal(t, pipeline.TokenTranscribing, state.CurrentStatus)

	apply(t, m, pipeline.TokenTranscribed, pipeline.TokenAcousticAnalysis)
	assert.Equal(t, pipeline.StatusProcessing, m.Snapshot().Steps[3].Status)

	n := pipeline.NewMachine(pipeline.Options{Transcription: true}, nil)
	apply(t, n, pipeline.TokenTranscribing, pipeline.TokenAcousticAnalysis)
	assert.Equal(t, pipeline.StatusCompleted, n.Snapshot().Steps[3].Status, "acoustic_analysis without analyze completes transcribe")
}

func TestMachineErrorHalts(t *testing.T) {
	m := pipeline.NewMachine(fullOptions, nil)
	apply(t, m, pipeline.TokenStarting, pipeline.TokenUploading, pipeline.TokenConverting)
	before := m.Snapshot().Progress

	require.NoError(t, m.Apply(pipeline.Update{Status: pipeline.TokenError, Message: "ffmpeg failed"}))
	state := m.Snapshot()
	require.NotNil(t, state.Error)
	assert.Equal(t, services.CodeProcessing, state.Error.Code)
	assert.Equal(t, "ffmpeg failed", state.Error.Message)
	assert.Equal(t, pipeline.StatusError, state.Steps[2].Status)
	assert.Equal(t, pipeline.StatusPending, state.Steps[3].Status)
	assert.False(t, state.IsProcessing)
	assert.Equal(t, before, state.Progress)
	assert.True(t, m.Halted())

	err := m.Apply(pipeline.Update{Status: pipeline.TokenConverted})
	assert.True(t, errors.Is(err, pipeline.ErrHalted))
	assert.Equal(t, state, m.Snapshot())
}

func TestMachineErrorBetweenStepsMarksNoStep(t *testing.T) {
	m := pipeline.NewMachine(pipeline.Options{Transcription: true}, nil)
	apply(t, m, pipeline.TokenStarting, pipeline.TokenUploading, pipeline.TokenConverting, pipeline.TokenConverted)
	before := m.Snapshot().Progress

	require.NoError(t, m.Apply(pipeline.Update{Status: pipeline.TokenError}))
	state := m.Snapshot()
	assert.Equal(t, []pipeline.StepStatus{
		pipeline.StatusCompleted, pipeline.StatusCompleted, pipeline.StatusCompleted,
		pipeline.StatusPending, pipeline.StatusPending,
	}, statuses(state.Steps))
	require.NotNil(t, state.Error)
	assert.Equal(t, services.CodeProcessing, state.Error.Code)
	assert.Equal(t, before, state.Progress)
	assert.True(t, m.Halted())
}

func TestMachineFailBetweenStepsMarksNextStep(t *testing.T) {
	m := pipeline.NewMachine(pipeline.Options{Transcription: true}, nil)
	apply(t, m, pipeline.TokenStarting, pipeline.TokenUploading, pipeline.TokenConverting, pipeline.TokenConverted)
	m.Fail(services.New(services.CodeConnection, "Connection to server lost", nil))
	state := m.Snapshot()
	assert.Equal(t, pipeline.StatusError, state.Steps[3].Status)
	assert.Equal(t, pipeline.StatusPending, state.Steps[4].Status)
}

func TestMachineFailMarksHealthCheck(t *testing.T) {
	m := pipeline.NewMachine(fullOptions, nil)
	apply(t, m, pipeline.TokenStarting)
	m.Fail(services.New(services.CodeConnection, "Server connection failed.", nil))
	state := m.Snapshot()
	assert.Equal(t, pipeline.StatusError, state.Steps[0].Status)
	assert.Equal(t, services.CodeConnection, state.Error.Code)
	assert.True(t, state.Terminal())
}

func TestMachineUnknownTokenDiagnostic(t *testing.T) {
	var diags []pipeline.Diagnostic
	m := pipeline.NewMachine(fullOptions, func(d pipeline.Diagnostic) { diags = append(diags, d) })
	apply(t, m, pipeline.TokenUploading)
	before := m.Snapshot()

	require.NoError(t, m.Apply(pipeline.Update{Status: "rebalancing"}))
	assert.Equal(t, before, m.Snapshot())
	require.Len(t, diags, 1)
	assert.Equal(t, pipeline.DiagnosticUnknownToken, diags[0].Kind)
	assert.Equal(t, pipeline.Token("rebalancing"), diags[0].Token)
}

func TestMachineIgnoresRegression(t *testing.T) {
	var diags []pipeline.Diagnostic
	m := pipeline.NewMachine(fullOptions, func(d pipeline.Diagnostic) { diags = append(diags, d) })
	apply(t, m, pipeline.TokenConverted)
	before := m.Snapshot()

	require.NoError(t, m.Apply(pipeline.Update{Status: pipeline.TokenUploading}))
	assert.Equal(t, before, m.Snapshot())
	require.Len(t, diags, 1)
	assert.Equal(t, pipeline.DiagnosticRegression, diags[0].Kind)

	require.NoError(t, m.Apply(pipeline.Update{Status: pipeline.TokenConverted}))
	assert.Len(t, diags, 1, "repeating a completed token is a quiet no-op")
}

func TestMachineCompletedKeepsResult(t *testing.T) {
	m := pipeline.NewMachine(pipeline.Options{Transcription: true}, nil)
	payload := json.RawMessage(`{"intelligibility_scores":{"total_wer":0.1}}`)
	require.NoError(t, m.Apply(pipeline.Update{Status: pipeline.TokenCompleted, Result: payload}))

	state := m.Snapshot()
	assert.JSONEq(t, string(payload), string(state.Result))
	state.Result[0] = 'x'
	state.Steps[0].Status = pipeline.StatusPending
	again := m.Snapshot()
	assert.JSONEq(t, string(payload), string(again.Result), "snapshot must be a deep copy")
	assert.Equal(t, pipeline.StatusCompleted, again.Steps[0].Status)

	assert.ErrorIs(t, m.Apply(pipeline.Update{Status: pipeline.TokenStarting}), pipeline.ErrHalted)
}

// Every ordered subsequence of the non-terminal tokens followed by completed
// must yield non-decreasing progress that ends at exactly 100.
func TestMachineProgressMonotoneForOrderedSequences(t *testing.T) {
	ordered := pipeline.Tokens()[:10]
	optionSets := []pipeline.Options{
		{}, {Transcription: true}, {AcousticAnalysis: true}, fullOptions,
	}
	for _, opts := range optionSets {
		for mask := 0; mask < 1<<len(ordered); mask++ {
			m := pipeline.NewMachine(opts, nil)
			last := 0
			for i, token := range ordered {
				if mask&(1<<i) == 0 {
					continue
				}
				require.NoError(t, m.Apply(pipeline.Update{Status: token}))
				progress := m.Snapshot().Progress
				require.GreaterOrEqual(t, progress, last, "opts=%+v mask=%b token=%s", opts, mask, token)
				last = progress
			}
			require.NoError(t, m.Apply(pipeline.Update{Status: pipeline.TokenCompleted}))
			require.Equal(t, 100, m.Snapshot().Progress)
		}
	}
}

func TestProgressFormula(t *testing.T) {
	steps := []pipeline.Step{
		{Status: pipeline.StatusCompleted},
		{Status: pipeline.StatusProcessing},
		{Status: pipeline.StatusPending},
		{Status: pipeline.StatusPending},
	}
	assert.Equal(t, 33, pipeline.Progress(steps))
	assert.Equal(t, 0, pipeline.Progress(nil))
}

func TestTokenKnown(t *testing.T) {
	for _, token := range pipeline.Tokens() {
		assert.True(t, token.Known(), token)
	}
	assert.False(t, pipeline.Token("bogus").Known())
	assert.True(t, pipeline.TokenError.Terminal())
	assert.False(t, pipeline.TokenTrimming.Terminal())
}
