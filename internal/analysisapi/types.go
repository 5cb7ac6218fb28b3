package analysisapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPDoer describes the HTTP client used by the analysis service client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Health is the reachability probe response.
type Health struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Metadata describes the uploaded session.
type Metadata struct {
	UserID    string  `json:"user_id"`
	PatientID string  `json:"patient_id,omitempty"`
	Date      string  `json:"date,omitempty"`
	Duration  float64 `json:"duration"`
}

// File is the recording handed to Upload.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadResponse is returned when the service accepts a job.
type UploadResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Filename string `json:"filename"`
}

// ResultMetadata is the typed header of a stored result.
type ResultMetadata struct {
	JobID         string   `json:"job_id"`
	Date          *string  `json:"date"`
	Duration      float64  `json:"duration"`
	PatientID     *string  `json:"patient_id"`
	UserID        *string  `json:"user_id"`
	AnalysisTypes []string `json:"analysis_types"`
}

// IntelligibilityScores holds the aggregate word error rates.
type IntelligibilityScores struct {
	TotalWER     *float64 `json:"total_wer"`
	SentencesWER *float64 `json:"sentences_wer"`
	WordsWER     *float64 `json:"words_wer"`
}

// Result is a finished job. Per-segment results are keyed by segment id and
// kept as raw JSON.
type Result struct {
	Metadata               ResultMetadata             `json:"metadata"`
	IntelligibilityScores  IntelligibilityScores      `json:"intelligibility_scores"`
	AcousticResults        map[string]json.RawMessage `json:"acoustic_results,omitempty"`
	IntelligibilityResults map[string]json.RawMessage `json:"intelligibility_results"`
}

// APIError is a non-success response from the analysis service.
type APIError struct {
	Status  int
	Message string
	Body    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, http.StatusText(e.Status))
}

// StatusCode returns the HTTP status of the failed response.
func (e *APIError) StatusCode() int {
	return e.Status
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func newAPIError(resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	apiErr := &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Message = strings.TrimSpace(body.Message)
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(body.Error)
		}
	} else if apiErr.Body != "" {
		apiErr.Message = apiErr.Body
	}
	return apiErr
}
