package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"ispeak/internal/analysisapi"
	"ispeak/internal/config"
	"ispeak/internal/jobstore"
	"ispeak/internal/logging"
	"ispeak/internal/notifications"
	"ispeak/internal/stream"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// log returns the command logger. Failures to open the log file fall back
// to a discarding logger so read-only commands still work.
func (c *commandContext) log() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg := c.configValue()
		if cfg == nil {
			c.logger = logging.NewNop()
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) analysisClient() (*analysisapi.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return analysisapi.NewFromConfig(cfg, nil, c.log()), nil
}

func (c *commandContext) streamClient() (*stream.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return stream.NewClient(cfg.API.BaseURL, nil, c.log()), nil
}

func (c *commandContext) notifier() notifications.Service {
	return notifications.NewService(c.configValue(), nil)
}

func (c *commandContext) withJobs(fn func(*jobstore.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := jobstore.Open(cfg)
	if err != nil {
		return fmt.Errorf("open job history: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func (c *commandContext) userID() (string, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	if err := cfg.RequireUserID(); err != nil {
		return "", err
	}
	return cfg.API.UserID, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
