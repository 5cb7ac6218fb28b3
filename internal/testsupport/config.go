package testsupport

import (
	"path/filepath"
	"testing"

	"ispeak/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "state", "logs")
	cfgVal.API.UserID = "test-user"
	cfgVal.API.BaseURL = "http://127.0.0.1:0"
	cfgVal.API.HealthTimeoutSeconds = 1
	cfgVal.API.UploadTimeoutSeconds = 5
	cfgVal.API.ResultsTimeoutSeconds = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithAPIURL points the test config at a fake analysis service.
func WithAPIURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.BaseURL = url
	}
}

// WithUserID overrides the configured user id. An empty id exercises the
// missing user path.
func WithUserID(id string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.UserID = id
	}
}

// WithNtfyTopic enables push notifications to the given topic URL.
func WithNtfyTopic(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = url
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
