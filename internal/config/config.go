package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration. Stage areas live under DataDir;
// downloaded payloads live under StoreDir, sharded by content identifier.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	StoreDir string `toml:"store_dir"`
	DBDir    string `toml:"db_dir"`
	LogDir   string `toml:"log_dir"`
}

// Fetch contains settings for the bounded download scheduler.
type Fetch struct {
	Concurrency    int    `toml:"concurrency"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	ChunkSize      int    `toml:"chunk_size"`
	MaxAttempts    int    `toml:"max_attempts"`
	Extension      string `toml:"extension"`
}

// Classifier contains connection settings for the product classification service.
type Classifier struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Workers        int    `toml:"workers"`
}

// Validator contains connection settings for the visual validation service.
type Validator struct {
	URL                  string `toml:"url"`
	APIKey               string `toml:"api_key"`
	TimeoutSeconds       int    `toml:"timeout_seconds"`
	HealthTimeoutSeconds int    `toml:"health_timeout_seconds"`
	Workers              int    `toml:"workers"`
	FlushEvery           int    `toml:"flush_every"`
}

// Workflow contains pipeline timing configuration.
type Workflow struct {
	PollInterval       int  `toml:"poll_interval"`
	ErrorRetryInterval int  `toml:"error_retry_interval"`
	WatchInbox         bool `toml:"watch_inbox"`
}

// Logging contains log output configuration.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for stockpix.
type Config struct {
	Paths      Paths      `toml:"paths"`
	Fetch      Fetch      `toml:"fetch"`
	Classifier Classifier `toml:"classifier"`
	Validator  Validator  `toml:"validator"`
	Workflow   Workflow   `toml:"workflow"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/stockpix/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("stockpix.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// Stage areas under DataDir. Batches move inbox -> fetched -> classified ->
// validated -> archive; raw holds pre-transform originals from the classify
// stage.

// InboxDir returns the directory scanned for new catalog batches.
func (c *Config) InboxDir() string { return filepath.Join(c.Paths.DataDir, "inbox") }

// FetchedDir returns the input area for the classify stage.
func (c *Config) FetchedDir() string { return filepath.Join(c.Paths.DataDir, "fetched") }

// ClassifiedDir returns the input area for the validate stage.
func (c *Config) ClassifiedDir() string { return filepath.Join(c.Paths.DataDir, "classified") }

// ValidatedDir returns the input area for the archive move.
func (c *Config) ValidatedDir() string { return filepath.Join(c.Paths.DataDir, "validated") }

// ArchiveDir returns the terminal area for fully processed batches.
func (c *Config) ArchiveDir() string { return filepath.Join(c.Paths.DataDir, "archive") }

// RawDir returns the area holding pre-simplification originals.
func (c *Config) RawDir() string { return filepath.Join(c.Paths.DataDir, "raw") }

// StageDirs returns every directory the pipeline reads or writes.
func (c *Config) StageDirs() []string {
	return []string{
		c.InboxDir(),
		c.FetchedDir(),
		c.ClassifiedDir(),
		c.ValidatedDir(),
		c.ArchiveDir(),
		c.RawDir(),
	}
}

// RegistryPath returns the SQLite registry database location.
func (c *Config) RegistryPath() string { return filepath.Join(c.Paths.DBDir, "registry.db") }

// EnsureDirectories creates required directories for pipeline operation.
func (c *Config) EnsureDirectories() error {
	dirs := append(c.StageDirs(), c.Paths.StoreDir, c.Paths.DBDir, c.Paths.LogDir)
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) normalize() error {
	fields := []*string{
		&c.Paths.DataDir,
		&c.Paths.StoreDir,
		&c.Paths.DBDir,
		&c.Paths.LogDir,
	}
	for _, field := range fields {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	c.Fetch.Extension = strings.TrimPrefix(strings.TrimSpace(c.Fetch.Extension), ".")
	c.Classifier.URL = strings.TrimSpace(c.Classifier.URL)
	c.Validator.URL = strings.TrimSpace(c.Validator.URL)
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
