package analysisapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"ispeak/internal/config"
	"ispeak/internal/logging"
	"ispeak/internal/segments"
	"ispeak/internal/services"
)

// ErrResultsNotFound reports that the service has no result for the job yet.
var ErrResultsNotFound = errors.New("results not found")

const resultsNotFoundMessage = "Results not found."

// Client talks to the analysis service.
type Client struct {
	baseURL        string
	http           HTTPDoer
	healthTimeout  time.Duration
	uploadTimeout  time.Duration
	resultsTimeout time.Duration
	logger         *slog.Logger
}

// Options configures a Client. Zero timeouts disable the per-call deadline.
type Options struct {
	BaseURL        string
	HealthTimeout  time.Duration
	UploadTimeout  time.Duration
	ResultsTimeout time.Duration
}

// NewClient constructs a client. A nil doer uses http.DefaultClient.
func NewClient(opts Options, doer HTTPDoer, logger *slog.Logger) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Client{
		baseURL:        strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		http:           doer,
		healthTimeout:  opts.HealthTimeout,
		uploadTimeout:  opts.UploadTimeout,
		resultsTimeout: opts.ResultsTimeout,
		logger:         logging.NewComponentLogger(logger, "analysisapi"),
	}
}

// NewFromConfig constructs a client from the [api] config section.
func NewFromConfig(cfg *config.Config, doer HTTPDoer, logger *slog.Logger) *Client {
	return NewClient(Options{
		BaseURL:        cfg.API.BaseURL,
		HealthTimeout:  cfg.HealthTimeout(),
		UploadTimeout:  cfg.UploadTimeout(),
		ResultsTimeout: cfg.ResultsTimeout(),
	}, doer, logger)
}

// BaseURL returns the normalized service URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health probes the service. Any failure is a connection error.
func (c *Client) Health(ctx context.Context) (Health, error) {
	ctx, cancel := withTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return Health{}, services.New(services.CodeConnection, "build health request", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return Health{}, services.New(services.CodeConnection, "Server connection failed. Please retry.", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return Health{}, services.New(services.CodeConnection, "Server connection failed.", newAPIError(resp))
	}

	var health Health
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return Health{}, services.New(services.CodeConnection, "Server connection failed.", fmt.Errorf("decode health response: %w", err))
	}
	if !strings.EqualFold(health.Status, "healthy") {
		return health, services.New(services.CodeConnection, "Server connection failed.",
			fmt.Errorf("service reported status %q", health.Status))
	}
	c.logger.Debug("analysis service healthy", logging.String("message", health.Message))
	return health, nil
}

// Upload submits the recording, metadata and segments as a new job.
func (c *Client) Upload(ctx context.Context, file File, meta Metadata, list []segments.Segment) (UploadResponse, error) {
	if strings.TrimSpace(meta.UserID) == "" {
		return UploadResponse{}, services.Validation("User ID is required", map[string]string{"user_id": "Required"})
	}
	if file.Body == nil {
		return UploadResponse{}, services.Validation("file is required", map[string]string{"upload": "Required"})
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return UploadResponse{}, services.New(services.CodeValidation, "encode metadata", err)
	}
	if list == nil {
		list = []segments.Segment{}
	}
	segmentsJSON, err := json.Marshal(list)
	if err != nil {
		return UploadResponse{}, services.New(services.CodeValidation, "encode segments", err)
	}

	ctx, cancel := withTimeout(ctx, c.uploadTimeout)
	defer cancel()

	body, contentType := multipartBody(file, meta.UserID, metaJSON, segmentsJSON)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", body)
	if err != nil {
		// Unblocks the writer goroutine.
		body.CloseWithError(err)
		return UploadResponse{}, services.New(services.CodeAPI, "build upload request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		req.Header.Set("X-Request-ID", rid)
	}

	c.logger.Info("uploading recording",
		logging.String("file", file.Name),
		logging.Int("segments", len(list)),
	)
	resp, err := c.http.Do(req)
	if err != nil {
		return UploadResponse{}, services.New(services.CodeAPI, "Failed to upload file", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := newAPIError(resp)
		return UploadResponse{}, services.New(services.CodeAPI, apiErr.Error(), apiErr)
	}

	var out UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return UploadResponse{}, services.New(services.CodeValidation, "Validation error: malformed upload response", err)
	}
	if _, err := uuid.Parse(out.JobID); err != nil {
		return UploadResponse{}, services.Validation("Validation error: invalid upload response",
			map[string]string{"job_id": "Invalid uuid"})
	}
	return out, nil
}

// Results fetches a finished job's result. ErrResultsNotFound is returned
// when the service has none.
func (c *Client) Results(ctx context.Context, userID, jobID string) (*Result, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(jobID) == "" {
		return nil, services.Validation("user id and job id are required", nil)
	}
	ctx, cancel := withTimeout(ctx, c.resultsTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/results/%s/%s", c.baseURL, url.PathEscape(userID), url.PathEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, services.New(services.CodeConnection, "build results request", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, services.New(services.CodeConnection, "fetch results", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrResultsNotFound
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := newAPIError(resp)
		return nil, services.New(services.CodeAPI, apiErr.Error(), apiErr)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.New(services.CodeConnection, "read results", err)
	}
	return decodeResult(raw)
}

func decodeResult(raw []byte) (*Result, error) {
	var probe struct {
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && probe.Message != nil && *probe.Message == resultsNotFoundMessage {
		return nil, ErrResultsNotFound
	}
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, services.New(services.CodeValidation, "Validation error: malformed results", err)
	}
	fields := map[string]string{}
	if _, err := uuid.Parse(result.Metadata.JobID); err != nil {
		fields["metadata.job_id"] = "Invalid uuid"
	}
	for i, kind := range result.Metadata.AnalysisTypes {
		if _, err := segments.ParseType(kind); err != nil {
			fields[fmt.Sprintf("metadata.analysis_types[%d]", i)] = "Invalid enum value"
		}
	}
	for id := range result.AcousticResults {
		if _, err := uuid.Parse(id); err != nil {
			fields["acoustic_results"] = "Invalid segment id " + id
		}
	}
	for id := range result.IntelligibilityResults {
		if _, err := uuid.Parse(id); err != nil {
			fields["intelligibility_results"] = "Invalid segment id " + id
		}
	}
	if len(fields) > 0 {
		return nil, services.Validation("Validation error: invalid results", fields)
	}
	return &result, nil
}

// multipartBody streams the form through a pipe. The caller must consume or
// close the returned reader, or the writer goroutine never exits.
func multipartBody(file File, userID string, metaJSON, segmentsJSON []byte) (*io.PipeReader, string) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		err := writeMultipart(writer, file, userID, metaJSON, segmentsJSON)
		if err == nil {
			err = writer.Close()
		}
		pw.CloseWithError(err)
	}()
	return pr, writer.FormDataContentType()
}

func writeMultipart(writer *multipart.Writer, file File, userID string, metaJSON, segmentsJSON []byte) error {
	if err := writer.WriteField("user_id", userID); err != nil {
		return fmt.Errorf("write user_id: %w", err)
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="upload"; filename="%s"`, escapeQuotes(file.Name)))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create upload part: %w", err)
	}
	if _, err := io.Copy(part, file.Body); err != nil {
		return fmt.Errorf("copy upload: %w", err)
	}
	if err := writer.WriteField("metadata", string(metaJSON)); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := writer.WriteField("segments", string(bytes.TrimSpace(segmentsJSON))); err != nil {
		return fmt.Errorf("write segments: %w", err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
