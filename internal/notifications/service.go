package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ispeak/internal/config"
)

const userAgent = "ispeak/0.1"

// Service is the notification surface used by the CLI.
type Service interface {
	JobSubmitted(ctx context.Context, jobID, fileName string) error
	JobCompleted(ctx context.Context, jobID, fileName string, elapsed time.Duration) error
	JobFailed(ctx context.Context, jobID, fileName string, err error) error
	Test(ctx context.Context) error
}

// HTTPDoer is the subset of http.Client used for delivery.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewService builds an ntfy notifier when a topic is configured, otherwise a
// no-op.
func NewService(cfg *config.Config, doer HTTPDoer) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	if doer == nil {
		doer = &http.Client{Timeout: cfg.NotifyTimeout()}
	}
	return &ntfyService{endpoint: topic, client: doer}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   HTTPDoer
}

func (n *ntfyService) JobSubmitted(ctx context.Context, jobID, fileName string) error {
	return n.send(ctx, message{
		title: "ispeak - Analysis Submitted",
		body:  fmt.Sprintf("Uploaded %s\nJob %s", displayName(fileName), jobID),
		tags:  []string{"ispeak", "analysis", "submitted"},
	})
}

func (n *ntfyService) JobCompleted(ctx context.Context, jobID, fileName string, elapsed time.Duration) error {
	return n.send(ctx, message{
		title:    "ispeak - Analysis Complete",
		body:     fmt.Sprintf("Results ready for %s in %s\nJob %s", displayName(fileName), roundDuration(elapsed), jobID),
		tags:     []string{"ispeak", "analysis", "completed"},
		priority: "high",
	})
}

func (n *ntfyService) JobFailed(ctx context.Context, jobID, fileName string, err error) error {
	reason := "unknown error"
	if err != nil {
		reason = strings.TrimSpace(err.Error())
	}
	body := fmt.Sprintf("Analysis of %s failed: %s", displayName(fileName), reason)
	if jobID != "" {
		body += "\nJob " + jobID
	}
	return n.send(ctx, message{
		title:    "ispeak - Analysis Failed",
		body:     body,
		tags:     []string{"ispeak", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) Test(ctx context.Context) error {
	return n.send(ctx, message{
		title:    "ispeak - Test",
		body:     "Notification system test",
		tags:     []string{"ispeak", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func displayName(fileName string) string {
	if name := strings.TrimSpace(fileName); name != "" {
		return name
	}
	return "recording"
}

func roundDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

type noopService struct{}

func (noopService) JobSubmitted(context.Context, string, string) error                { return nil }
func (noopService) JobCompleted(context.Context, string, string, time.Duration) error { return nil }
func (noopService) JobFailed(context.Context, string, string, error) error            { return nil }
func (noopService) Test(context.Context) error                                        { return nil }
