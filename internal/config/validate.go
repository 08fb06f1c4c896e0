package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateServices(); err != nil {
		return err
	}
	return c.validateWorkflow()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StoreDir) == "" {
		return errors.New("paths.store_dir must be set")
	}
	if strings.TrimSpace(c.Paths.DBDir) == "" {
		return errors.New("paths.db_dir must be set")
	}
	return nil
}

func (c *Config) validateFetch() error {
	if err := ensurePositiveMap(map[string]int{
		"fetch.concurrency":     c.Fetch.Concurrency,
		"fetch.timeout_seconds": c.Fetch.TimeoutSeconds,
		"fetch.chunk_size":      c.Fetch.ChunkSize,
	}); err != nil {
		return err
	}
	if c.Fetch.MaxAttempts < 0 {
		return errors.New("fetch.max_attempts must be >= 0 (0 disables the retry cap)")
	}
	if c.Fetch.Extension == "" {
		return errors.New("fetch.extension must be set")
	}
	return nil
}

func (c *Config) validateServices() error {
	return ensurePositiveMap(map[string]int{
		"classifier.timeout_seconds":       c.Classifier.TimeoutSeconds,
		"classifier.workers":               c.Classifier.Workers,
		"validator.timeout_seconds":        c.Validator.TimeoutSeconds,
		"validator.health_timeout_seconds": c.Validator.HealthTimeoutSeconds,
		"validator.workers":                c.Validator.Workers,
		"validator.flush_every":            c.Validator.FlushEvery,
	})
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.poll_interval":        c.Workflow.PollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
