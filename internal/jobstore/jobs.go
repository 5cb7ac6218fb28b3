package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ispeak/internal/pipeline"
	"ispeak/internal/segments"
)

const jobColumns = "job_id, user_id, file_name, patient_id, session_date, duration, segments_json, status, last_token, progress, error_code, error_message, created_at, updated_at"

// Record inserts a freshly uploaded job in the active state.
func (s *Store) Record(ctx context.Context, job *Job) error {
	if job == nil || strings.TrimSpace(job.JobID) == "" {
		return errors.New("record job: job id is required")
	}
	list := job.Segments
	if list == nil {
		list = []segments.Segment{}
	}
	segmentsJSON, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("marshal segments: %w", err)
	}
	now := s.now().UTC()
	timestamp := now.Format(timeLayout)
	status := job.Status
	if status == "" {
		status = StatusActive
	}

	if _, err := s.execWithRetry(ctx,
		`INSERT INTO jobs (
            job_id, user_id, file_name, patient_id, session_date, duration,
            segments_json, status, last_token, progress, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.JobID,
		job.UserID,
		job.FileName,
		nullableString(job.PatientID),
		nullableString(job.SessionDate),
		job.Duration,
		string(segmentsJSON),
		status,
		nullableString(string(job.LastToken)),
		job.Progress,
		timestamp,
		timestamp,
	); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	job.Status = status
	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

// UpdateProgress stores the latest token and progress of an active job.
func (s *Store) UpdateProgress(ctx context.Context, jobID string, token pipeline.Token, progress int) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET last_token = ?, progress = ?, updated_at = ?
         WHERE job_id = ? AND status = ?`,
		string(token), progress, s.timestamp(), jobID, StatusActive,
	)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return requireRow(res, jobID)
}

// Complete marks a job completed at 100%.
func (s *Store) Complete(ctx context.Context, jobID string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, last_token = ?, progress = 100, error_code = NULL,
            error_message = NULL, updated_at = ?
         WHERE job_id = ?`,
		StatusCompleted, string(pipeline.TokenCompleted), s.timestamp(), jobID,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return requireRow(res, jobID)
}

// Fail marks a job failed with the classified error code and message.
func (s *Store) Fail(ctx context.Context, jobID, code, message string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, error_code = ?, error_message = ?, updated_at = ?
         WHERE job_id = ?`,
		StatusFailed, nullableString(code), nullableString(message), s.timestamp(), jobID,
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return requireRow(res, jobID)
}

// Get returns the job with the given id or ErrNotFound.
func (s *Store) Get(ctx context.Context, jobID string) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE job_id = ?", jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// List returns jobs newest first. A limit <= 0 returns every job. When
// statuses are given only matching jobs are returned.
func (s *Store) List(ctx context.Context, limit int, statuses ...Status) ([]*Job, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + jobColumns + " FROM jobs"
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY created_at DESC, job_id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// LatestActive returns the most recent job that has not reached a terminal
// state, or ErrNotFound.
func (s *Store) LatestActive(ctx context.Context) (*Job, error) {
	jobs, err := s.List(ctx, 1, StatusActive)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, ErrNotFound
	}
	return jobs[0], nil
}

// Clear removes finished jobs and returns how many were deleted. Active jobs
// are kept unless all is set.
func (s *Store) Clear(ctx context.Context, all bool) (int64, error) {
	query := "DELETE FROM jobs WHERE status != ?"
	args := []any{StatusActive}
	if all {
		query = "DELETE FROM jobs"
		args = nil
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

func requireRow(res sql.Result, jobID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job          Job
		patientID    sql.NullString
		sessionDate  sql.NullString
		segmentsRaw  string
		statusRaw    string
		lastToken    sql.NullString
		errorCode    sql.NullString
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&job.JobID,
		&job.UserID,
		&job.FileName,
		&patientID,
		&sessionDate,
		&job.Duration,
		&segmentsRaw,
		&statusRaw,
		&lastToken,
		&job.Progress,
		&errorCode,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	status, err := ParseStatus(statusRaw)
	if err != nil {
		return nil, err
	}
	job.Status = status
	job.PatientID = patientID.String
	job.SessionDate = sessionDate.String
	job.LastToken = pipeline.Token(lastToken.String)
	job.ErrorCode = errorCode.String
	job.ErrorMessage = errorMessage.String
	if err := json.Unmarshal([]byte(segmentsRaw), &job.Segments); err != nil {
		return nil, fmt.Errorf("decode segments for %s: %w", job.JobID, err)
	}
	job.CreatedAt = parseTime(createdRaw)
	job.UpdatedAt = parseTime(updatedRaw)
	return &job, nil
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
