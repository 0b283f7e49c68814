// Package config loads the optional YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yuya-takeyama/cargo-safe-publish/internal/retry"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/matcher"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/postpublish"
)

// DefaultFileName is looked up in the package directory when no file is
// given explicitly.
const DefaultFileName = ".cargo-safe-publish.yaml"

// Config represents the configuration file. Zero values mean "not set".
type Config struct {
	RegistryURL string       `yaml:"registry_url,omitempty"`
	Compare     string       `yaml:"compare,omitempty"`    // exact|whitespace
	Precedence  string       `yaml:"precedence,omitempty"` // cargo|last-match|most-specific
	Retry       RetryConfig  `yaml:"retry,omitempty"`
	Report      ReportConfig `yaml:"report,omitempty"`
	MetricsFile string       `yaml:"metrics_file,omitempty"`
}

type RetryConfig struct {
	Mode       string        `yaml:"mode,omitempty"`
	Initial    time.Duration `yaml:"initial,omitempty"`
	Max        time.Duration `yaml:"max,omitempty"`
	MaxRetries *int          `yaml:"max_retries,omitempty"`
}

type ReportConfig struct {
	JSONFile string `yaml:"json_file,omitempty"`
	S3URI    string `yaml:"s3_uri,omitempty"`
}

// Load reads and validates the configuration file at path.
// Environment variables in the file are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault loads DefaultFileName from dir, or returns an empty Config
// when the file does not exist.
func LoadDefault(dir string) (*Config, error) {
	cfg, err := Load(filepath.Join(dir, DefaultFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return &Config{}, nil
	}
	return cfg, err
}

// Validate checks enumerations and durations.
func (c *Config) Validate() error {
	if _, err := postpublish.ParseCompareMode(c.Compare); err != nil {
		return err
	}
	if _, err := matcher.ParsePrecedence(c.Precedence); err != nil {
		return err
	}
	if c.Retry.Initial < 0 || c.Retry.Max < 0 {
		return fmt.Errorf("retry durations cannot be negative")
	}
	if c.Retry.MaxRetries != nil && *c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries cannot be negative")
	}
	_, err := c.RetryPolicy()
	return err
}

// RetryPolicy builds the registry backoff policy, defaults filled in.
func (c *Config) RetryPolicy() (retry.Policy, error) {
	maxRetries := -1
	if c.Retry.MaxRetries != nil {
		maxRetries = *c.Retry.MaxRetries
	}
	return retry.NewPolicy(retry.Mode(c.Retry.Mode), c.Retry.Initial, c.Retry.Max, maxRetries)
}
