package jobstore

import (
	"fmt"
	"strings"
	"time"

	"ispeak/internal/pipeline"
	"ispeak/internal/segments"
)

// Status is the local lifecycle of a recorded job.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{StatusActive, StatusCompleted, StatusFailed}

var statusSet = func() map[Status]struct{} {
	m := make(map[Status]struct{}, len(allStatuses))
	for _, s := range allStatuses {
		m[s] = struct{}{}
	}
	return m
}()

// ParseStatus normalizes a stored or user supplied status.
func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := statusSet[status]; !ok {
		return "", fmt.Errorf("unknown job status %q", value)
	}
	return status, nil
}

// Statuses returns every status in display order.
func Statuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// Job is one recorded submission.
type Job struct {
	JobID        string             `json:"job_id"`
	UserID       string             `json:"user_id"`
	FileName     string             `json:"file_name"`
	PatientID    string             `json:"patient_id,omitempty"`
	SessionDate  string             `json:"session_date,omitempty"`
	Duration     float64            `json:"duration"`
	Segments     []segments.Segment `json:"segments"`
	Status       Status             `json:"status"`
	LastToken    pipeline.Token     `json:"last_status,omitempty"`
	Progress     int                `json:"progress"`
	ErrorCode    string             `json:"error_code,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// Options returns the pipeline options implied by the recorded segments.
func (j *Job) Options() pipeline.Options {
	opts := segments.OptionsFor(j.Segments)
	return pipeline.Options{Transcription: opts.Transcription, AcousticAnalysis: opts.AcousticAnalysis}
}

// Terminal reports whether the job can no longer be resumed.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
