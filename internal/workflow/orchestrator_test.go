package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ispeak/internal/analysisapi"
	"ispeak/internal/jobstore"
	"ispeak/internal/logging"
	"ispeak/internal/pipeline"
	"ispeak/internal/segments"
	"ispeak/internal/services"
	"ispeak/internal/stream"
	"ispeak/internal/testsupport"
	"ispeak/internal/workflow"
)

const jobID = "3f0e2b8c-5a61-4b7f-8d8e-0c2f4b6a9d11"

type fakeUploader struct {
	mu          sync.Mutex
	healthErrs  []error
	uploadErr   error
	jobID       string
	healthCalls int
	uploadCalls int
	lastMeta    analysisapi.Metadata
	lastSegs    []segments.Segment
	uploading   chan struct{}
	release     chan struct{}
}

func (f *fakeUploader) Health(ctx context.Context) (analysisapi.Health, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthCalls++
	if len(f.healthErrs) > 0 {
		err := f.healthErrs[0]
		f.healthErrs = f.healthErrs[1:]
		if err != nil {
			return analysisapi.Health{}, err
		}
	}
	return analysisapi.Health{Status: "healthy"}, nil
}

func (f *fakeUploader) Upload(ctx context.Context, file analysisapi.File, meta analysisapi.Metadata, list []segments.Segment) (analysisapi.UploadResponse, error) {
	_, _ = io.ReadAll(file.Body)
	f.mu.Lock()
	f.uploadCalls++
	f.lastMeta = meta
	f.lastSegs = list
	uploading, release := f.uploading, f.release
	err := f.uploadErr
	id := f.jobID
	f.mu.Unlock()
	if uploading != nil {
		close(uploading)
		<-release
	}
	if err != nil {
		return analysisapi.UploadResponse{}, err
	}
	if id == "" {
		id = jobID
	}
	return analysisapi.UploadResponse{JobID: id, Status: "queued", Filename: file.Name}, nil
}

func (f *fakeUploader) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthCalls, f.uploadCalls
}

type fakeConnector struct {
	mu       sync.Mutex
	err      error
	subs     []*fakeSub
	handlers []stream.Handlers
	jobIDs   []string
}

type fakeSub struct {
	owner  *fakeConnector
	closed bool
}

func (s *fakeSub) Close() {
	s.owner.mu.Lock()
	s.closed = true
	s.owner.mu.Unlock()
}

func (c *fakeConnector) Connect(ctx context.Context, id string, handlers stream.Handlers) (workflow.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	sub := &fakeSub{owner: c}
	c.subs = append(c.subs, sub)
	c.handlers = append(c.handlers, handlers)
	c.jobIDs = append(c.jobIDs, id)
	return sub, nil
}

func (c *fakeConnector) open() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, sub := range c.subs {
		if !sub.closed {
			count++
		}
	}
	return count
}

func (c *fakeConnector) connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *fakeConnector) handler(i int) stream.Handlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers[i]
}

func send(h stream.Handlers, token pipeline.Token) {
	msg := stream.StatusMessage{Status: token, Message: string(token)}
	if token == pipeline.TokenCompleted {
		msg.Result = []byte(`{"intelligibility_scores":{}}`)
	}
	h.OnMessage(msg)
}

func wavFile() workflow.File {
	return workflow.File{
		Name:        "take.wav",
		ContentType: "audio/wav",
		Size:        4,
		Open:        func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("RIFF")), nil },
	}
}

func newSessionStore(t *testing.T) *segments.Store {
	t.Helper()
	store := segments.NewStore(10)
	_, err := store.Create(segments.Draft{Type: segments.TypeAcoustic, TimeRange: segments.TimeRange{Start: 0, End: 2}})
	require.NoError(t, err)
	_, err = store.Create(segments.Draft{
		Type:          segments.TypeIntelligibility,
		TimeRange:     segments.TimeRange{Start: 2, End: 4},
		ReferenceKind: segments.ReferenceWords,
		ReferenceText: "office, leaf",
	})
	require.NoError(t, err)
	return store
}

type harness struct {
	orch      *workflow.Orchestrator
	uploader  *fakeUploader
	connector *fakeConnector
	store     *segments.Store
}

func newHarness(t *testing.T, opts ...workflow.Option) *harness {
	t.Helper()
	h := &harness{
		uploader:  &fakeUploader{},
		connector: &fakeConnector{},
		store:     newSessionStore(t),
	}
	h.orch = workflow.NewOrchestrator(h.uploader, h.connector, h.store, logging.NewNop(), opts...)
	return h
}

func meta() analysisapi.Metadata {
	return analysisapi.Metadata{UserID: "user-1", PatientID: "p-1"}
}

func errorCode(t *testing.T, err error) services.Code {
	t.Helper()
	require.Error(t, err)
	return services.CodeOf(err)
}

func TestStartRunsPipelineToCompletion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	jobs := testsupport.MustOpenStore(t, cfg)
	h := newHarness(t, workflow.WithRecorder(jobs))
	ctx := context.Background()

	require.NoError(t, h.orch.Start(ctx, wavFile(), meta()))
	assert.Equal(t, jobID, h.orch.JobID())
	assert.Equal(t, 1, h.connector.open())
	assert.Equal(t, 10.0, h.uploader.lastMeta.Duration, "duration defaults to the recording length")
	assert.Len(t, h.uploader.lastSegs, 2)

	state := h.orch.State()
	assert.True(t, state.IsProcessing)
	assert.Equal(t, pipeline.TokenUploading, state.CurrentStatus)

	handlers := h.connector.handler(0)
	last := state.Progress
	for _, token := range []pipeline.Token{
		pipeline.TokenUploadCompleted,
		pipeline.TokenConverting,
		pipeline.TokenConverted,
		pipeline.TokenTranscribing,
		pipeline.TokenTranscribed,
		pipeline.TokenAcousticAnalysis,
		pipeline.TokenAcousticAnalysisCompleted,
	} {
		send(handlers, token)
		progress := h.orch.State().Progress
		assert.GreaterOrEqual(t, progress, last, "progress after %s", token)
		last = progress
	}

	recorded, err := jobs.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusActive, recorded.Status)
	assert.Equal(t, pipeline.TokenAcousticAnalysisCompleted, recorded.LastToken)
	assert.Equal(t, "p-1", recorded.PatientID)

	send(handlers, pipeline.TokenCompleted)
	state = h.orch.State()
	assert.True(t, state.IsCompleted)
	assert.False(t, state.IsProcessing)
	assert.Equal(t, 100, state.Progress)
	assert.JSONEq(t, `{"intelligibility_scores":{}}`, string(state.Result))

	final, err := h.orch.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, final.IsCompleted)

	recorded, err = jobs.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusCompleted, recorded.Status)
}

func TestStartValidationFailsBeforeNetwork(t *testing.T) {
	textFile := workflow.File{
		Name: "notes.txt",
		Size: 5,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("hello")), nil },
	}
	emptyFile := wavFile()
	emptyFile.Size = 0

	cases := []struct {
		name   string
		file   workflow.File
		meta   analysisapi.Metadata
		clear  bool
		expect string
	}{
		{name: "missing user", file: wavFile(), meta: analysisapi.Metadata{}, expect: "User ID is required"},
		{name: "empty file", file: emptyFile, meta: meta(), expect: "File cannot be empty"},
		{name: "not audio", file: textFile, meta: meta(), expect: "File must be an audio or video file"},
		{name: "no segments", file: wavFile(), meta: meta(), clear: true, expect: "no analysis segments"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			if tc.clear {
				h.store.Clear()
			}
			err := h.orch.Start(context.Background(), tc.file, tc.meta)
			assert.Equal(t, services.CodeValidation, errorCode(t, err))
			assert.Contains(t, err.Error(), tc.expect)

			healthCalls, uploadCalls := h.uploader.calls()
			assert.Zero(t, healthCalls)
			assert.Zero(t, uploadCalls)
			assert.Zero(t, h.connector.connects())

			state := h.orch.State()
			require.NotNil(t, state.Error)
			assert.Equal(t, services.CodeValidation, state.Error.Code)
			for _, step := range state.Steps {
				assert.Equal(t, pipeline.StatusPending, step.Status)
			}
		})
	}
}

func TestStartHealthFailureHaltsAtHealthCheck(t *testing.T) {
	h := newHarness(t)
	h.uploader.healthErrs = []error{errors.New("dial tcp: connection refused")}

	err := h.orch.Start(context.Background(), wavFile(), meta())
	assert.Equal(t, services.CodeConnection, errorCode(t, err))
	assert.Contains(t, err.Error(), "Server connection failed. Please retry.")

	_, uploadCalls := h.uploader.calls()
	assert.Zero(t, uploadCalls)
	assert.Zero(t, h.connector.connects())

	state := h.orch.State()
	assert.False(t, state.IsProcessing)
	require.NotNil(t, state.Error)
	assert.Equal(t, pipeline.StepHealthCheck, state.Steps[0].ID)
	assert.Equal(t, pipeline.StatusError, state.Steps[0].Status)
	assert.True(t, state.Terminal())
}

func TestStartUploadFailureIsAPIError(t *testing.T) {
	h := newHarness(t)
	apiErr := &analysisapi.APIError{Status: http.StatusBadRequest, Message: "Invalid segments"}
	h.uploader.uploadErr = services.New(services.CodeAPI, apiErr.Error(), apiErr)

	err := h.orch.Start(context.Background(), wavFile(), meta())
	assert.Equal(t, services.CodeAPI, errorCode(t, err))
	assert.Zero(t, h.connector.connects())
	assert.Empty(t, h.orch.JobID())

	state := h.orch.State()
	require.NotNil(t, state.Error)
	assert.Equal(t, "Invalid segments", state.Error.Message)
	assert.Equal(t, pipeline.StatusCompleted, state.Steps[0].Status)
	assert.Equal(t, pipeline.StepUpload, state.Steps[1].ID)
	assert.Equal(t, pipeline.StatusError, state.Steps[1].Status)
}

func TestStartWhileStreamOpenLeavesOneConnection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.orch.Start(ctx, wavFile(), meta()))
	require.Equal(t, 1, h.connector.open())
	require.NoError(t, h.orch.Start(ctx, wavFile(), meta()))

	assert.Equal(t, 2, h.connector.connects())
	assert.Equal(t, 1, h.connector.open())
}

func TestSupersededStreamMessagesAreDropped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.orch.Start(ctx, wavFile(), meta()))
	stale := h.connector.handler(0)
	require.NoError(t, h.orch.Start(ctx, wavFile(), meta()))

	send(stale, pipeline.TokenCompleted)
	stale.OnError(services.New(services.CodeConnection, "Connection to server lost", nil))

	state := h.orch.State()
	assert.False(t, state.IsCompleted)
	assert.Nil(t, state.Error)
	assert.True(t, state.IsProcessing)
}

func TestServerErrorFailsCurrentStep(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.orch.Start(context.Background(), wavFile(), meta()))
	handlers := h.connector.handler(0)

	send(handlers, pipeline.TokenConverting)
	handlers.OnMessage(stream.StatusMessage{Status: pipeline.TokenError, Message: "Transcription model unavailable"})

	state := h.orch.State()
	require.NotNil(t, state.Error)
	assert.Equal(t, services.CodeProcessing, state.Error.Code)
	assert.Equal(t, "Transcription model unavailable", state.Error.Message)
	assert.Equal(t, pipeline.StatusError, state.Steps[2].Status)

	before := state.Progress
	send(handlers, pipeline.TokenTranscribed)
	assert.Equal(t, before, h.orch.State().Progress, "no transitions after a terminal token")
}

func TestStreamFailureIsConnectionError(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.orch.Start(context.Background(), wavFile(), meta()))

	h.connector.handler(0).OnError(services.New(services.CodeConnection, "Connection to server lost", io.EOF))
	state := h.orch.State()
	require.NotNil(t, state.Error)
	assert.Equal(t, services.CodeConnection, state.Error.Code)

	h.connector.handler(0).OnError(services.Validation("Validation error", nil))
	assert.Equal(t, services.CodeConnection, h.orch.State().Error.Code, "first error wins")
}

func TestResetAbandonsInflightUpload(t *testing.T) {
	h := newHarness(t)
	h.uploader.uploading = make(chan struct{})
	h.uploader.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- h.orch.Start(context.Background(), wavFile(), meta())
	}()

	<-h.uploader.uploading
	h.orch.Reset()
	close(h.uploader.release)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, workflow.ErrAbandoned)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after upload released")
	}

	assert.Zero(t, h.connector.connects())
	assert.Empty(t, h.orch.JobID())
	assert.Zero(t, h.store.Len())
	state := h.orch.State()
	assert.Nil(t, state.Error)
	assert.Zero(t, state.Progress)
	assert.False(t, state.IsProcessing)
}

func TestResetClosesStream(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.orch.Start(context.Background(), wavFile(), meta()))
	require.Equal(t, 1, h.connector.open())

	h.orch.Reset()
	assert.Zero(t, h.connector.open())
	assert.Empty(t, h.orch.JobID())
	assert.Zero(t, h.orch.State().Progress)

	assert.ErrorIs(t, h.orch.Retry(context.Background()), workflow.ErrNothingToRetry)
}

func TestRetryRunsFromScratch(t *testing.T) {
	h := newHarness(t)
	h.uploader.healthErrs = []error{services.New(services.CodeConnection, "Server connection failed.", nil)}
	ctx := context.Background()

	require.Error(t, h.orch.Start(ctx, wavFile(), meta()))
	require.NotNil(t, h.orch.State().Error)

	require.NoError(t, h.orch.Retry(ctx))
	healthCalls, uploadCalls := h.uploader.calls()
	assert.Equal(t, 2, healthCalls)
	assert.Equal(t, 1, uploadCalls)

	state := h.orch.State()
	assert.Nil(t, state.Error)
	assert.True(t, state.IsProcessing)
	assert.Equal(t, 1, h.connector.open())
}

func TestClearErrorReturnsToInitialSteps(t *testing.T) {
	h := newHarness(t)
	h.uploader.healthErrs = []error{errors.New("refused")}
	require.Error(t, h.orch.Start(context.Background(), wavFile(), meta()))

	h.orch.ClearError()
	state := h.orch.State()
	assert.Nil(t, state.Error)
	for _, step := range state.Steps {
		assert.Equal(t, pipeline.StatusPending, step.Status)
	}
}

func TestResumeUsesRecordedJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	jobs := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	recorded := &jobstore.Job{
		JobID:    jobID,
		UserID:   "user-1",
		FileName: "take.wav",
		Duration: 20,
		Segments: []segments.Segment{{
			ID: "seg-1", Name: "Acoustic Analysis", Type: segments.TypeAcoustic,
			TimeRange: segments.TimeRange{Start: 1, End: 3},
		}},
		LastToken: pipeline.TokenConverting,
	}
	require.NoError(t, jobs.Record(ctx, recorded))

	uploader := &fakeUploader{}
	connector := &fakeConnector{}
	store := segments.NewStore(0)
	orch := workflow.NewOrchestrator(uploader, connector, store, logging.NewNop(), workflow.WithRecorder(jobs))

	require.NoError(t, orch.Resume(ctx, jobID))
	healthCalls, uploadCalls := uploader.calls()
	assert.Zero(t, healthCalls)
	assert.Zero(t, uploadCalls)
	assert.Equal(t, []string{jobID}, connector.jobIDs)
	assert.Equal(t, jobID, orch.JobID())
	assert.Equal(t, 1, store.Len())

	state := orch.State()
	ids := make([]pipeline.StepID, 0, len(state.Steps))
	for _, step := range state.Steps {
		ids = append(ids, step.ID)
	}
	assert.NotContains(t, ids, pipeline.StepTranscribe)
	assert.Equal(t, pipeline.StatusCompleted, state.Steps[1].Status)
	assert.Equal(t, pipeline.StatusProcessing, state.Steps[2].Status)

	send(connector.handler(0), pipeline.TokenCompleted)
	assert.True(t, orch.State().IsCompleted)

	err := orch.Resume(ctx, jobID)
	assert.Equal(t, services.CodeValidation, errorCode(t, err), "finished jobs cannot be resumed")
}

func TestResumeConnectFailure(t *testing.T) {
	h := newHarness(t)
	h.connector.err = errors.New("refused")

	err := h.orch.Resume(context.Background(), jobID)
	assert.Equal(t, services.CodeConnection, errorCode(t, err))
	assert.Contains(t, err.Error(), "Failed to connect to existing job")
	assert.NotNil(t, h.orch.State().Error)
}

func TestWaitReturnsOnCompletion(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.orch.Start(context.Background(), wavFile(), meta()))
	handlers := h.connector.handler(0)

	go func() {
		time.Sleep(10 * time.Millisecond)
		send(handlers, pipeline.TokenCompleted)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, err := h.orch.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, state.IsCompleted)
}

func TestObserverSeesEveryChange(t *testing.T) {
	var (
		mu       sync.Mutex
		statuses []pipeline.Token
	)
	h := newHarness(t, workflow.WithObserver(func(state pipeline.JobState) {
		mu.Lock()
		statuses = append(statuses, state.CurrentStatus)
		mu.Unlock()
	}))
	require.NoError(t, h.orch.Start(context.Background(), wavFile(), meta()))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, statuses, pipeline.TokenStarting)
	assert.Contains(t, statuses, pipeline.TokenUploading)
}

func TestStartWithStreamClient(t *testing.T) {
	tokens := []pipeline.Token{
		pipeline.TokenUploadCompleted,
		pipeline.TokenConverting,
		pipeline.TokenConverted,
		pipeline.TokenTranscribing,
		pipeline.TokenTranscribed,
		pipeline.TokenAcousticAnalysis,
		pipeline.TokenAcousticAnalysisCompleted,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status/"+jobID {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, token := range tokens {
			fmt.Fprintf(w, "data: {\"status\":%q,\"message\":\"%s\"}\n\n", token, token)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: {\"status\":\"completed\",\"message\":\"done\",\"result\":{\"acoustic_results\":{}}}\n\n")
		flusher.Flush()
	}))
	t.Cleanup(srv.Close)

	client := stream.NewClient(srv.URL, srv.Client(), logging.NewNop())
	orch := workflow.NewOrchestrator(&fakeUploader{}, workflow.ConnectorFor(client), newSessionStore(t), logging.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, orch.Start(ctx, wavFile(), meta()))

	state, err := orch.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, state.IsCompleted)
	assert.Equal(t, 100, state.Progress)
	assert.JSONEq(t, `{"acoustic_results":{}}`, string(state.Result))

	require.Eventually(t, func() bool { return client.OpenCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
