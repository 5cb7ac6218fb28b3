package pipeline

// Token is a raw status value pushed by the analysis service.
type Token string

const (
	TokenStarting                  Token = "starting"
	TokenUploading                 Token = "uploading"
	TokenUploadCompleted           Token = "upload_completed"
	TokenConverting                Token = "converting"
	TokenConverted                 Token = "converted"
	TokenTranscribing              Token = "transcribing"
	TokenTrimming                  Token = "trimming"
	TokenTranscribed               Token = "transcribed"
	TokenAcousticAnalysis          Token = "acoustic_analysis"
	TokenAcousticAnalysisCompleted Token = "acoustic_analysis_completed"
	TokenCompleted                 Token = "completed"
	TokenError                     Token = "error"
)

var knownTokens = map[Token]struct{}{
	TokenStarting:                  {},
	TokenUploading:                 {},
	TokenUploadCompleted:           {},
	TokenConverting:                {},
	TokenConverted:                 {},
	TokenTranscribing:              {},
	TokenTrimming:                  {},
	TokenTranscribed:               {},
	TokenAcousticAnalysis:          {},
	TokenAcousticAnalysisCompleted: {},
	TokenCompleted:                 {},
	TokenError:                     {},
}

// Known reports whether t belongs to the enumerated token set.
func (t Token) Known() bool {
	_, ok := knownTokens[t]
	return ok
}

// Terminal reports whether t ends a job.
func (t Token) Terminal() bool {
	return t == TokenCompleted || t == TokenError
}

// Tokens returns the enumerated token set in pipeline order.
func Tokens() []Token {
	return []Token{
		TokenStarting,
		TokenUploading,
		TokenUploadCompleted,
		TokenConverting,
		TokenConverted,
		TokenTranscribing,
		TokenTrimming,
		TokenTranscribed,
		TokenAcousticAnalysis,
		TokenAcousticAnalysisCompleted,
		TokenCompleted,
		TokenError,
	}
}
