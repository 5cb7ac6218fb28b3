package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ispeak/internal/config"
	"ispeak/internal/notifications"
)

type captured struct {
	title    string
	body     string
	tags     string
	priority string
}

type recorder struct {
	mu   sync.Mutex
	reqs []captured
}

func (r *recorder) all() []captured {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]captured(nil), r.reqs...)
}

func newNtfy(t *testing.T, status int) (notifications.Service, *recorder) {
	t.Helper()
	got := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got.mu.Lock()
		defer got.mu.Unlock()
		got.reqs = append(got.reqs, captured{
			title:    r.Header.Get("Title"),
			body:     string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
		w.WriteHeader(status)
		if status >= 300 {
			_, _ = w.Write([]byte("topic closed"))
		}
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL + "/clinic"
	return notifications.NewService(&cfg, srv.Client()), got
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg, nil)
	if err := svc.JobCompleted(context.Background(), "job", "take.wav", time.Second); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil, nil).Test(context.Background()); err != nil {
		t.Fatalf("expected nil config to yield noop, got %v", err)
	}
}

func TestNtfyFormatsJobOutcomes(t *testing.T) {
	svc, got := newNtfy(t, http.StatusOK)
	ctx := context.Background()

	if err := svc.JobCompleted(ctx, "job-1", "take.wav", 90*time.Second+400*time.Millisecond); err != nil {
		t.Fatalf("JobCompleted: %v", err)
	}
	if err := svc.JobFailed(ctx, "job-2", "", errors.New("Connection to server lost")); err != nil {
		t.Fatalf("JobFailed: %v", err)
	}

	tests := []struct {
		title    string
		body     []string
		tags     string
		priority string
	}{
		{"ispeak - Analysis Complete", []string{"take.wav", "1m30s", "job-1"}, "ispeak,analysis,completed", "high"},
		{"ispeak - Analysis Failed", []string{"recording", "Connection to server lost", "job-2"}, "ispeak,error,alert", "high"},
	}
	reqs := got.all()
	if len(reqs) != len(tests) {
		t.Fatalf("expected %d requests, got %d", len(tests), len(reqs))
	}
	for i, tc := range tests {
		req := reqs[i]
		if req.title != tc.title {
			t.Fatalf("request %d title = %q, want %q", i, req.title, tc.title)
		}
		for _, part := range tc.body {
			if !strings.Contains(req.body, part) {
				t.Fatalf("request %d body %q missing %q", i, req.body, part)
			}
		}
		if req.tags != tc.tags || req.priority != tc.priority {
			t.Fatalf("request %d headers = %q/%q", i, req.tags, req.priority)
		}
	}
}

func TestNtfyErrorStatus(t *testing.T) {
	svc, _ := newNtfy(t, http.StatusForbidden)
	err := svc.Test(context.Background())
	if err == nil {
		t.Fatal("expected error for forbidden topic")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "topic closed") {
		t.Fatalf("unexpected error %v", err)
	}
}
