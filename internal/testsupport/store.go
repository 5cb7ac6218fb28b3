package testsupport

import (
	"context"
	"testing"

	"ispeak/internal/config"
	"ispeak/internal/jobstore"
	"ispeak/internal/segments"
)

// MustOpenStore opens a jobstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobstore.Store {
	t.Helper()

	store, err := jobstore.Open(cfg)
	if err != nil {
		t.Fatalf("jobstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// RecordJob inserts an active job for tests using the provided store.
func RecordJob(t testing.TB, store *jobstore.Store, jobID string, list ...segments.Segment) *jobstore.Job {
	t.Helper()

	job := &jobstore.Job{
		JobID:    jobID,
		UserID:   "test-user",
		FileName: "session.wav",
		Duration: 10,
		Segments: list,
	}
	if err := store.Record(context.Background(), job); err != nil {
		t.Fatalf("store.Record: %v", err)
	}
	return job
}
