// Package config loads the harvester configuration from a YAML file and
// applies defaults for anything left unset.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked for in the working directory when no explicit
// config path is given.
const DefaultFileName = "paperline.yml"

// Config is the full configuration tree.
type Config struct {
	Data      DataConfig      `yaml:"data"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Server    ServerConfig    `yaml:"server"`
}

// DataConfig locates the corpus on disk.
type DataConfig struct {
	// Root holds the CSV stores and the vector index database.
	Root string `yaml:"root"`
}

// FetchConfig drives the windowed catalog crawl.
type FetchConfig struct {
	Categories []string `yaml:"categories"`

	// LookbackDays sets the build floor: now minus this many days.
	LookbackDays int `yaml:"lookback_days"`

	BatchSize   int `yaml:"batch_size"`
	PollSeconds int `yaml:"poll_seconds"`

	// NearFloorHours stops a crawl once a batch's earliest record comes
	// within this many hours of the floor.
	NearFloorHours int `yaml:"near_floor_hours"`

	RetryMaxAttempts      int `yaml:"retry_max_attempts"`
	RetryBaseSleepSeconds int `yaml:"retry_base_sleep_seconds"`

	// MaxResults caps a build run; -1 means unlimited.
	MaxResults int `yaml:"max_results"`
}

// EmbeddingConfig points at the embedding service.
type EmbeddingConfig struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	Dimensions     int    `yaml:"dimensions"`
	BatchSize      int    `yaml:"batch_size"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SearchConfig sets result sizing and default field weights.
type SearchConfig struct {
	DefaultTopK    int     `yaml:"default_top_k"`
	MaxTopK        int     `yaml:"max_top_k"`
	Oversample     int     `yaml:"oversample"`
	TitleWeight    float32 `yaml:"title_weight"`
	AbstractWeight float32 `yaml:"abstract_weight"`
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Root: "data",
		},
		Fetch: FetchConfig{
			Categories:            []string{"cs.CL", "cs.LG"},
			LookbackDays:          30,
			BatchSize:             100,
			PollSeconds:           3,
			NearFloorHours:        1,
			RetryMaxAttempts:      3,
			RetryBaseSleepSeconds: 5,
			MaxResults:            -1,
		},
		Embedding: EmbeddingConfig{
			BaseURL:        "http://localhost:11434",
			Model:          "nomic-embed-text",
			BatchSize:      32,
			TimeoutSeconds: 60,
		},
		Search: SearchConfig{
			DefaultTopK:    10,
			MaxTopK:        100,
			Oversample:     2,
			TitleWeight:    0.3,
			AbstractWeight: 0.7,
		},
		Server: ServerConfig{
			Addr: ":8787",
		},
	}
}

// Load reads and validates the config file at path. An empty path falls
// back to DefaultFileName in the working directory; if that file does not
// exist either, the defaults are returned as-is.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Data.Root == "" {
		return fmt.Errorf("data.root must not be empty")
	}
	if len(c.Fetch.Categories) == 0 {
		return fmt.Errorf("fetch.categories must list at least one category")
	}
	if c.Fetch.LookbackDays <= 0 {
		return fmt.Errorf("fetch.lookback_days must be positive, got %d", c.Fetch.LookbackDays)
	}
	if c.Fetch.BatchSize <= 0 {
		return fmt.Errorf("fetch.batch_size must be positive, got %d", c.Fetch.BatchSize)
	}
	if c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url must not be empty")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model must not be empty")
	}
	if c.Search.DefaultTopK <= 0 || c.Search.MaxTopK <= 0 {
		return fmt.Errorf("search.default_top_k and search.max_top_k must be positive")
	}
	if c.Search.DefaultTopK > c.Search.MaxTopK {
		return fmt.Errorf("search.default_top_k (%d) exceeds search.max_top_k (%d)",
			c.Search.DefaultTopK, c.Search.MaxTopK)
	}
	if c.Search.Oversample <= 0 {
		return fmt.Errorf("search.oversample must be positive, got %d", c.Search.Oversample)
	}
	if c.Search.TitleWeight < 0 || c.Search.AbstractWeight < 0 {
		return fmt.Errorf("search weights must not be negative")
	}
	if c.Search.TitleWeight+c.Search.AbstractWeight == 0 {
		return fmt.Errorf("search weights must not both be zero")
	}
	return nil
}

// IndexPath returns the vector index database path under the data root.
func (c *Config) IndexPath() string {
	return filepath.Join(c.Data.Root, "index.db")
}

// Floor returns the build-run floor derived from the lookback window.
func (c *Config) Floor(now time.Time) time.Time {
	return now.UTC().AddDate(0, 0, -c.Fetch.LookbackDays)
}

// PollInterval returns the between-batch delay as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Fetch.PollSeconds) * time.Second
}

// NearFloorThreshold returns the near-floor stop distance as a duration.
func (c *Config) NearFloorThreshold() time.Duration {
	return time.Duration(c.Fetch.NearFloorHours) * time.Hour
}

// RetryBaseSleep returns the rate-limit backoff base delay as a duration.
func (c *Config) RetryBaseSleep() time.Duration {
	return time.Duration(c.Fetch.RetryBaseSleepSeconds) * time.Second
}

// EmbeddingTimeout returns the embedding request timeout as a duration.
func (c *Config) EmbeddingTimeout() time.Duration {
	return time.Duration(c.Embedding.TimeoutSeconds) * time.Second
}
