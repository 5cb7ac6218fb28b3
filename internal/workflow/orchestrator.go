package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ispeak/internal/analysisapi"
	"ispeak/internal/logging"
	"ispeak/internal/pipeline"
	"ispeak/internal/segments"
	"ispeak/internal/services"
	"ispeak/internal/stream"
)

// ErrAbandoned is returned by a call whose attempt was superseded by Start,
// Resume, Retry or Reset while it was blocked on the network.
var ErrAbandoned = errors.New("analysis attempt abandoned")

// ErrNothingToRetry is returned by Retry before any Start.
var ErrNothingToRetry = errors.New("no previous analysis to retry")

const (
	msgHealthUnreachable = "Server connection failed. Please retry."
	msgResumeFailed      = "Failed to connect to existing job"
	msgStreamFailed      = "Connection to server lost"
)

// Option configures optional Orchestrator behavior.
type Option func(*Orchestrator)

// WithClock overrides the wall clock.
func WithClock(clock Clock) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithRecorder persists job history through recorder.
func WithRecorder(recorder JobRecorder) Option {
	return func(o *Orchestrator) {
		o.recorder = recorder
	}
}

// WithObserver registers a callback invoked with a snapshot after every
// state change. It runs outside the orchestrator lock.
func WithObserver(observer func(pipeline.JobState)) Option {
	return func(o *Orchestrator) {
		o.observer = observer
	}
}

// Orchestrator runs analysis attempts for one session.
type Orchestrator struct {
	uploader  Uploader
	connector StreamConnector
	store     *segments.Store
	clock     Clock
	recorder  JobRecorder
	observer  func(pipeline.JobState)
	logger    *slog.Logger
	sampler   *logging.ProgressSampler

	mu       sync.Mutex
	attempt  uint64
	machine  *pipeline.Machine
	localErr *services.Error
	jobID    string
	file     *File
	meta     analysisapi.Metadata
	sub      Subscription
	started  time.Time
	changed  chan struct{}
}

// NewOrchestrator constructs an orchestrator that owns store.
func NewOrchestrator(uploader Uploader, connector StreamConnector, store *segments.Store, logger *slog.Logger, opts ...Option) *Orchestrator {
	if store == nil {
		store = segments.NewStore(0)
	}
	o := &Orchestrator{
		uploader:  uploader,
		connector: connector,
		store:     store,
		clock:     SystemClock(),
		logger:    logging.NewComponentLogger(logger, "workflow"),
		sampler:   logging.NewProgressSampler(10),
		changed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Segments returns the session's segment store.
func (o *Orchestrator) Segments() *segments.Store {
	return o.store
}

// JobID returns the job id of the current attempt, if one was assigned.
func (o *Orchestrator) JobID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.jobID
}

// State returns a snapshot of the current job state. Before any attempt the
// snapshot lists the pending steps for the current segments.
func (o *Orchestrator) State() pipeline.JobState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stateLocked()
}

func (o *Orchestrator) stateLocked() pipeline.JobState {
	var state pipeline.JobState
	if o.machine != nil {
		state = o.machine.Snapshot()
	} else {
		state = pipeline.JobState{Steps: pipeline.BuildSteps(o.pipelineOptions())}
	}
	if state.Error == nil && o.localErr != nil {
		copied := *o.localErr
		state.Error = &copied
	}
	return state
}

func (o *Orchestrator) pipelineOptions() pipeline.Options {
	opts := o.store.Options()
	return pipeline.Options{Transcription: opts.Transcription, AcousticAnalysis: opts.AcousticAnalysis}
}

// Start runs a fresh attempt: local validation, health check, upload and
// stream subscription. Validation failures return before any network call.
// The status stream stays open until a terminal token, Reset, or ctx is
// cancelled.
func (o *Orchestrator) Start(ctx context.Context, file File, meta analysisapi.Metadata) error {
	o.mu.Lock()
	attempt := o.beginLocked()
	fileCopy := file
	o.file = &fileCopy
	o.meta = meta
	o.mu.Unlock()
	o.notify()

	ctx = services.WithAttempt(ctx, attempt)
	logger := logging.WithContext(ctx, o.logger)

	contentType, list, meta, err := o.validate(file, meta)
	if err != nil {
		o.mu.Lock()
		if o.attempt == attempt {
			o.localErr = services.Normalize(err)
		}
		o.mu.Unlock()
		o.notify()
		logger.Info("analysis input rejected", logging.Error(err))
		return err
	}
	file.ContentType = contentType

	o.mu.Lock()
	if o.attempt != attempt {
		o.mu.Unlock()
		return ErrAbandoned
	}
	o.machine = pipeline.NewMachine(o.pipelineOptions(), o.diagnostics(attempt))
	o.applyLocked(pipeline.Update{Status: pipeline.TokenStarting, Message: "Checking server connection..."})
	o.mu.Unlock()
	o.notify()

	logger.Info("checking analysis service", logging.String("file", file.Name), logging.Int("segments", len(list)))
	if _, err := o.uploader.Health(ctx); err != nil {
		return o.failAttempt(ctx, attempt, healthError(err))
	}

	if !o.advance(attempt, pipeline.Update{Status: pipeline.TokenUploading, Message: "Uploading file..."}) {
		return ErrAbandoned
	}

	body, err := file.Open()
	if err != nil {
		return o.failAttempt(ctx, attempt, services.New(services.CodeValidation, "File could not be read", err))
	}
	resp, err := o.uploader.Upload(ctx, analysisapi.File{
		Name:        file.Name,
		ContentType: contentType,
		Size:        file.Size,
		Body:        body,
	}, meta, list)
	body.Close()
	if err != nil {
		return o.failAttempt(ctx, attempt, uploadError(err))
	}

	o.mu.Lock()
	if o.attempt != attempt {
		o.mu.Unlock()
		logger.Info("discarding upload result from abandoned attempt", logging.String(logging.FieldJobID, resp.JobID))
		return ErrAbandoned
	}
	o.jobID = resp.JobID
	o.mu.Unlock()

	ctx = services.WithJobID(ctx, resp.JobID)
	logger = logging.WithContext(ctx, o.logger)
	logger.Info("upload accepted", logging.String("filename", resp.Filename), logging.String("status", resp.Status))
	o.record(ctx, resp.JobID, file, meta, list)

	return o.subscribe(ctx, attempt, resp.JobID, false)
}

// Resume re-attaches to a job that has not reached a terminal state, without
// uploading again. Pipeline options come from the recorded job when one is
// known, otherwise from the current segments.
func (o *Orchestrator) Resume(ctx context.Context, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return services.Validation("job id is required", map[string]string{"job_id": "Required"})
	}

	var lastToken pipeline.Token
	if o.recorder != nil {
		job, err := o.recorder.Get(ctx, jobID)
		switch {
		case err == nil:
			if job.Terminal() {
				return services.Validation(fmt.Sprintf("job %s already %s", jobID, job.Status), nil)
			}
			if o.store.Len() == 0 && len(job.Segments) > 0 {
				if job.Duration > o.store.Duration() {
					o.store.SetDuration(job.Duration)
				}
				if err := o.store.Replace(job.Segments); err != nil {
					return err
				}
			}
			lastToken = job.LastToken
		default:
			logging.WarnWithContext(o.logger, "job history unavailable for resume", "resume_lookup",
				logging.String(logging.FieldJobID, jobID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "step list derived from current segments"),
			)
		}
	}

	o.mu.Lock()
	attempt := o.beginLocked()
	o.jobID = jobID
	o.machine = pipeline.NewMachine(o.pipelineOptions(), o.diagnostics(attempt))
	for _, token := range []pipeline.Token{pipeline.TokenStarting, pipeline.TokenUploading, pipeline.TokenUploadCompleted} {
		o.applyLocked(pipeline.Update{Status: token})
	}
	if lastToken.Known() && !lastToken.Terminal() {
		o.applyLocked(pipeline.Update{Status: lastToken})
	}
	o.mu.Unlock()
	o.notify()

	ctx = services.WithJobID(services.WithAttempt(ctx, attempt), jobID)
	logging.WithContext(ctx, o.logger).Info("resuming job", logging.String("last_token", string(lastToken)))
	return o.subscribe(ctx, attempt, jobID, true)
}

// Retry clears the error and runs Start from scratch with the last file and
// metadata. A failed job is never resumed mid-pipeline.
func (o *Orchestrator) Retry(ctx context.Context) error {
	o.mu.Lock()
	if o.file == nil {
		o.mu.Unlock()
		return ErrNothingToRetry
	}
	file := *o.file
	meta := o.meta
	o.localErr = nil
	o.mu.Unlock()
	return o.Start(ctx, file, meta)
}

// Reset closes the stream and clears the segments, file, job id and
// progress. In-flight health checks and uploads are abandoned.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.beginLocked()
	o.file = nil
	o.meta = analysisapi.Metadata{}
	o.mu.Unlock()
	o.store.Clear()
	o.notify()
	o.logger.Debug("session reset")
}

// ClearError drops a surfaced error and returns the step list to its
// initial state. The last file and metadata are kept for Retry.
func (o *Orchestrator) ClearError() {
	o.mu.Lock()
	o.localErr = nil
	if o.machine != nil && o.machine.Snapshot().Error != nil {
		o.machine = nil
	}
	o.mu.Unlock()
	o.notify()
}

// Wait blocks until the current attempt reaches a terminal state and returns
// it. ErrAbandoned is returned when the attempt is superseded.
func (o *Orchestrator) Wait(ctx context.Context) (pipeline.JobState, error) {
	o.mu.Lock()
	attempt := o.attempt
	o.mu.Unlock()
	for {
		o.mu.Lock()
		state := o.stateLocked()
		current := o.attempt
		changed := o.changed
		o.mu.Unlock()

		if current != attempt {
			return state, ErrAbandoned
		}
		if state.Terminal() {
			return state, nil
		}
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-changed:
		}
	}
}

// beginLocked supersedes the current attempt and tears down its stream.
func (o *Orchestrator) beginLocked() uint64 {
	o.attempt++
	if o.sub != nil {
		o.sub.Close()
		o.sub = nil
	}
	o.machine = nil
	o.localErr = nil
	o.jobID = ""
	o.sampler.Reset()
	o.started = o.clock.Now()
	return o.attempt
}

func (o *Orchestrator) validate(file File, meta analysisapi.Metadata) (string, []segments.Segment, analysisapi.Metadata, error) {
	meta.UserID = strings.TrimSpace(meta.UserID)
	if meta.UserID == "" {
		return "", nil, meta, services.Validation("User ID is required", map[string]string{fieldUserID: "Required"})
	}
	contentType, err := ValidateFile(file)
	if err != nil {
		return "", nil, meta, err
	}
	if meta.Duration <= 0 {
		meta.Duration = o.store.Duration()
	}
	list := o.store.List()
	if err := segments.ValidateForSubmit(list, meta.Duration); err != nil {
		return "", nil, meta, err
	}
	return contentType, list, meta, nil
}

func (o *Orchestrator) subscribe(ctx context.Context, attempt uint64, jobID string, resuming bool) error {
	handlers := stream.Handlers{
		OnMessage: func(msg stream.StatusMessage) { o.handleMessage(ctx, attempt, msg) },
		OnError:   func(err error) { o.handleStreamError(ctx, attempt, err) },
	}
	sub, err := o.connector.Connect(ctx, jobID, handlers)
	if err != nil {
		classified := services.Normalize(err)
		switch {
		case resuming:
			classified = services.New(services.CodeConnection, msgResumeFailed, err)
		case classified.Code != services.CodeConnection:
			classified = services.New(services.CodeConnection, msgStreamFailed, err)
		}
		return o.failAttempt(ctx, attempt, classified)
	}

	o.mu.Lock()
	if o.attempt != attempt {
		o.mu.Unlock()
		sub.Close()
		return ErrAbandoned
	}
	halted := o.machine != nil && o.machine.Halted()
	if !halted {
		o.sub = sub
	}
	o.mu.Unlock()
	if halted {
		sub.Close()
	}
	o.notify()
	logging.WithContext(ctx, o.logger).Debug("status stream attached")
	return nil
}

func (o *Orchestrator) handleMessage(ctx context.Context, attempt uint64, msg stream.StatusMessage) {
	o.mu.Lock()
	if o.attempt != attempt || o.machine == nil {
		o.mu.Unlock()
		return
	}
	err := o.applyLocked(msg.Update())
	state := o.machine.Snapshot()
	jobID := o.jobID
	elapsed := o.clock.Now().Sub(o.started)
	sample := o.sampler.ShouldLog(state.Progress, string(state.CurrentStatus))
	if state.Terminal() {
		o.sub = nil
	}
	o.mu.Unlock()

	logger := logging.WithContext(ctx, o.logger)
	if errors.Is(err, pipeline.ErrHalted) {
		logger.Debug("status after terminal state ignored", logging.String("status", string(msg.Status)))
		return
	}

	// History is settled before waiters see the terminal state.
	switch {
	case state.IsCompleted:
		o.recordOutcome(ctx, jobID, nil)
		o.notify()
		logger.Info("analysis completed", logging.Int("progress", state.Progress), logging.Duration("elapsed", elapsed))
	case state.Error != nil:
		o.recordOutcome(ctx, jobID, state.Error)
		o.notify()
		logging.ErrorWithContext(logger, "analysis failed on server", "job_failed",
			logging.String("message", state.Error.Message),
			logging.Duration("elapsed", elapsed),
			logging.String(logging.FieldErrorHint, "retry the analysis from scratch"),
		)
	default:
		o.notify()
		if sample {
			logger.Info("analysis progress",
				logging.String("status", string(state.CurrentStatus)),
				logging.Int("progress", state.Progress),
				logging.String("message", msg.Message),
			)
		}
		if o.recorder != nil && jobID != "" {
			if err := o.recorder.UpdateProgress(ctx, jobID, state.CurrentStatus, state.Progress); err != nil {
				logger.Debug("job history progress update failed", logging.Error(err))
			}
		}
	}
}

func (o *Orchestrator) handleStreamError(ctx context.Context, attempt uint64, err error) {
	classified := services.Normalize(err)
	o.mu.Lock()
	if o.attempt != attempt || o.machine == nil || o.machine.Halted() {
		o.mu.Unlock()
		return
	}
	o.machine.Fail(classified)
	o.sub = nil
	jobID := o.jobID
	o.mu.Unlock()
	o.recordOutcome(ctx, jobID, classified)
	o.notify()

	logging.ErrorWithContext(logging.WithContext(ctx, o.logger), "status stream failed", "stream_failed",
		logging.String("code", string(classified.Code)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the analysis service and retry"),
	)
}

// failAttempt halts the attempt's machine with err unless the attempt was
// superseded, in which case ErrAbandoned is returned.
func (o *Orchestrator) failAttempt(ctx context.Context, attempt uint64, err *services.Error) error {
	o.mu.Lock()
	if o.attempt != attempt {
		o.mu.Unlock()
		return ErrAbandoned
	}
	if o.machine != nil {
		o.machine.Fail(err)
	} else {
		o.localErr = err
	}
	jobID := o.jobID
	o.mu.Unlock()
	o.recordOutcome(ctx, jobID, err)
	o.notify()

	logging.ErrorWithContext(logging.WithContext(ctx, o.logger), "analysis attempt failed", "attempt_failed",
		logging.String("code", string(err.Code)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "retry the analysis"),
	)
	return err
}

// advance applies a synthetic token for the attempt and reports whether the
// attempt is still current.
func (o *Orchestrator) advance(attempt uint64, u pipeline.Update) bool {
	o.mu.Lock()
	if o.attempt != attempt || o.machine == nil {
		o.mu.Unlock()
		return false
	}
	o.applyLocked(u)
	o.mu.Unlock()
	o.notify()
	return true
}

func (o *Orchestrator) applyLocked(u pipeline.Update) error {
	if o.machine == nil {
		return nil
	}
	return o.machine.Apply(u)
}

func (o *Orchestrator) diagnostics(attempt uint64) pipeline.DiagnosticFunc {
	return func(d pipeline.Diagnostic) {
		logging.WarnWithContext(o.logger, "status token ignored", "status_"+string(d.Kind),
			logging.String("status", string(d.Token)),
			logging.String("detail", d.Detail),
			logging.Any(logging.FieldAttempt, attempt),
			logging.String(logging.FieldErrorHint, "check analysis service version"),
		)
	}
}

func (o *Orchestrator) notify() {
	o.mu.Lock()
	close(o.changed)
	o.changed = make(chan struct{})
	var state pipeline.JobState
	if o.observer != nil {
		state = o.stateLocked()
	}
	o.mu.Unlock()
	if o.observer != nil {
		o.observer(state)
	}
}

func healthError(err error) *services.Error {
	classified := services.Normalize(err)
	if classified.Code == services.CodeConnection {
		return classified
	}
	return services.New(services.CodeConnection, msgHealthUnreachable, err)
}

func uploadError(err error) *services.Error {
	classified := services.Normalize(err)
	if classified.Code == services.CodeUnknown {
		return services.New(services.CodeAPI, "Failed to upload file", err)
	}
	return classified
}
