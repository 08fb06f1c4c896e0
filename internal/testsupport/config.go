package testsupport

import (
	"path/filepath"
	"testing"

	"stockpix/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.StoreDir = filepath.Join(base, "images")
	cfg.Paths.DBDir = filepath.Join(base, "db")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Workflow.PollInterval = 1
	cfg.Workflow.ErrorRetryInterval = 1

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithFetchConcurrency overrides the fetch concurrency ceiling.
func WithFetchConcurrency(k int) ConfigOption {
	return func(c *config.Config) {
		c.Fetch.Concurrency = k
	}
}

// WithFetchMaxAttempts overrides the fetch retry cap.
func WithFetchMaxAttempts(n int) ConfigOption {
	return func(c *config.Config) {
		c.Fetch.MaxAttempts = n
	}
}

// WithFetchChunkSize overrides the fetch commit chunk size.
func WithFetchChunkSize(n int) ConfigOption {
	return func(c *config.Config) {
		c.Fetch.ChunkSize = n
	}
}
