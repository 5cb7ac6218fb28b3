package pipeline

// StepID identifies a pipeline step.
type StepID string

const (
	StepHealthCheck StepID = "health_check"
	StepUpload      StepID = "upload"
	StepConvert     StepID = "convert"
	StepTranscribe  StepID = "transcribe"
	StepAnalyze     StepID = "analyze"
	StepFinalize    StepID = "finalize"
)

// StepStatus is the lifecycle state of one step.
type StepStatus string

const (
	StatusPending    StepStatus = "pending"
	StatusProcessing StepStatus = "processing"
	StatusCompleted  StepStatus = "completed"
	StatusError      StepStatus = "error"
)

// Terminal reports whether the status can no longer change.
func (s StepStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Step is one entry of the user-facing pipeline.
type Step struct {
	ID          StepID     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
}

// Options selects the optional steps.
type Options struct {
	Transcription    bool
	AcousticAnalysis bool
}

type stepDef struct {
	id          StepID
	name        string
	description string
	include     func(Options) bool
}

func always(Options) bool { return true }

// catalogue is the fixed superset in pipeline order.
var catalogue = []stepDef{
	{StepHealthCheck, "Server Connection", "Connecting to the server", always},
	{StepUpload, "Uploading File", "Securely uploading your file to our servers", always},
	{StepConvert, "Audio Conversion", "Converting audio to optimal format", always},
	{StepTranscribe, "Speech Recognition", "Converting speech to text using AI", func(o Options) bool { return o.Transcription }},
	{StepAnalyze, "Audio Analysis", "Analyzing audio characteristics and patterns", func(o Options) bool { return o.AcousticAnalysis }},
	{StepFinalize, "Finalizing Results", "Preparing your analysis results", always},
}

// BuildSteps returns the pending step list for opts.
func BuildSteps(opts Options) []Step {
	steps := make([]Step, 0, len(catalogue))
	for _, def := range catalogue {
		if !def.include(opts) {
			continue
		}
		steps = append(steps, Step{ID: def.id, Name: def.name, Description: def.description, Status: StatusPending})
	}
	return steps
}

// catalogueIndex returns the position of id in the full superset.
func catalogueIndex(id StepID) int {
	for i, def := range catalogue {
		if def.id == id {
			return i
		}
	}
	return -1
}
