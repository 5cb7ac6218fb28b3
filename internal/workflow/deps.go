package workflow

import (
	"context"
	"time"

	"ispeak/internal/analysisapi"
	"ispeak/internal/jobstore"
	"ispeak/internal/pipeline"
	"ispeak/internal/segments"
	"ispeak/internal/stream"
)

// Uploader is the part of the analysis service client the orchestrator needs.
type Uploader interface {
	Health(ctx context.Context) (analysisapi.Health, error)
	Upload(ctx context.Context, file analysisapi.File, meta analysisapi.Metadata, list []segments.Segment) (analysisapi.UploadResponse, error)
}

// Subscription is an open status stream.
type Subscription interface {
	Close()
}

// StreamConnector opens status streams. Handlers run on the stream's
// goroutine.
type StreamConnector interface {
	Connect(ctx context.Context, jobID string, handlers stream.Handlers) (Subscription, error)
}

// JobRecorder persists job history. *jobstore.Store satisfies it.
type JobRecorder interface {
	Record(ctx context.Context, job *jobstore.Job) error
	UpdateProgress(ctx context.Context, jobID string, token pipeline.Token, progress int) error
	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID, code, message string) error
	Get(ctx context.Context, jobID string) (*jobstore.Job, error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock {
	return systemClock{}
}

type clientConnector struct {
	client *stream.Client
}

// ConnectorFor adapts a stream client to StreamConnector.
func ConnectorFor(client *stream.Client) StreamConnector {
	return clientConnector{client: client}
}

func (c clientConnector) Connect(ctx context.Context, jobID string, handlers stream.Handlers) (Subscription, error) {
	conn, err := c.client.Connect(ctx, jobID, handlers)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
