package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"ispeak/internal/analysisapi"
	"ispeak/internal/config"
	"ispeak/internal/jobstore"
)

// CheckAnalysisService probes the analysis service health endpoint.
func CheckAnalysisService(ctx context.Context, baseURL string, timeout time.Duration) Result {
	const name = "Analysis service"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := analysisapi.NewClient(analysisapi.Options{BaseURL: base, HealthTimeout: timeout}, nil, nil)
	health, err := client.Health(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", base, summarizeHealthError(err))}
	}
	detail := base + " (healthy)"
	if msg := strings.TrimSpace(health.Message); msg != "" {
		detail = fmt.Sprintf("%s (healthy: %s)", base, msg)
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckUserID verifies a user id is configured, since uploads require one.
func CheckUserID(cfg *config.Config) Result {
	const name = "User ID"
	if err := cfg.RequireUserID(); err != nil {
		return Result{Name: name, Detail: "not configured (set api.user_id or ISPEAK_USER_ID)"}
	}
	return Result{Name: name, Passed: true, Detail: cfg.API.UserID}
}

// CheckJobDatabase opens the job history database.
func CheckJobDatabase(cfg *config.Config) Result {
	const name = "Job history"
	store, err := jobstore.Open(cfg)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.JobDatabasePath(), err)}
	}
	defer store.Close()
	jobs, err := store.List(context.Background(), 0, jobstore.StatusActive)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", store.Path(), err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d active)", store.Path(), len(jobs))}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeHealthError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out"
	}
	var apiErr *analysisapi.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("unhealthy (%d)", apiErr.StatusCode())
	}
	return err.Error()
}
