package pipeline

type action int

const (
	actionProcessing action = iota
	actionCompleted
	actionCompleteAll
	actionFail
)

func (a action) String() string {
	switch a {
	case actionProcessing:
		return "processing"
	case actionCompleted:
		return "completed"
	case actionCompleteAll:
		return "complete_all"
	default:
		return "fail"
	}
}

type transition struct {
	step   StepID
	action action
}

// transitions maps every known token to the step it implies.
var transitions = map[Token]transition{
	TokenStarting:                  {StepHealthCheck, actionProcessing},
	TokenUploading:                 {StepUpload, actionProcessing},
	TokenUploadCompleted:           {StepUpload, actionCompleted},
	TokenConverting:                {StepConvert, actionProcessing},
	TokenConverted:                 {StepConvert, actionCompleted},
	TokenTranscribing:              {StepTranscribe, actionProcessing},
	TokenTrimming:                  {StepTranscribe, actionProcessing},
	TokenTranscribed:               {StepTranscribe, actionCompleted},
	TokenAcousticAnalysis:          {StepAnalyze, actionProcessing},
	TokenAcousticAnalysisCompleted: {StepAnalyze, actionCompleted},
	TokenCompleted:                 {"", actionCompleteAll},
	TokenError:                     {"", actionFail},
}

// resolve maps a transition onto the steps of one job. When the target step
// is not part of this job, the nearest included earlier step is marked
// completed instead. ok is false when no step precedes the target.
func resolve(steps []Step, tr transition) (index int, act action, ok bool) {
	if tr.action == actionCompleteAll || tr.action == actionFail {
		return -1, tr.action, true
	}
	for i, step := range steps {
		if step.ID == tr.step {
			return i, tr.action, true
		}
	}
	target := catalogueIndex(tr.step)
	best := -1
	for i, step := range steps {
		if pos := catalogueIndex(step.ID); pos >= 0 && pos < target {
			best = i
		}
	}
	if best < 0 {
		return -1, tr.action, false
	}
	return best, actionCompleted, true
}
