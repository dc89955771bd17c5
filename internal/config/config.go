// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Site     SiteConfig     `mapstructure:"site"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Sink     SinkConfig     `mapstructure:"sink"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Progress ProgressConfig `mapstructure:"progress"`
	API      APIConfig      `mapstructure:"api"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SiteConfig describes the target listing site and the search walk.
type SiteConfig struct {
	BaseURL     string   `mapstructure:"base_url"`
	SearchTerms []string `mapstructure:"search_terms"`
	PageCeiling int      `mapstructure:"page_ceiling"`
	MaxJobs     int      `mapstructure:"max_jobs"`
	DomainQPS   float64  `mapstructure:"domain_qps"`
}

// FetchConfig selects and tunes the fetch backend.
type FetchConfig struct {
	Backend        string   `mapstructure:"backend"` // "direct" or "proxy"
	UserAgents     []string `mapstructure:"user_agents"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	ProxyEndpoint  string   `mapstructure:"proxy_endpoint"`
	ProxyAPIKey    string   `mapstructure:"proxy_api_key"`
	RenderJS       bool     `mapstructure:"render_js"`
}

// WorkersConfig sizes the per-stage pools. Discovery is sequential and
// has no knob here.
type WorkersConfig struct {
	Extract    int `mapstructure:"extract"`
	Archive    int `mapstructure:"archive"`
	QueueDepth int `mapstructure:"queue_depth"`
}

// RetryConfig governs the bounded-retry policy shared by discovery and
// extraction.
type RetryConfig struct {
	MaxAttempts      int `mapstructure:"max_attempts"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// SinkConfig controls batching and output format paths.
type SinkConfig struct {
	BatchSize  int    `mapstructure:"batch_size"`
	CSVPath    string `mapstructure:"csv_path"`
	JSONPath   string `mapstructure:"json_path"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// ArchiveConfig controls raw HTML persistence and bundling.
type ArchiveConfig struct {
	Dir        string `mapstructure:"dir"`
	BundlePath string `mapstructure:"bundle_path"`
	FileLimit  int    `mapstructure:"file_limit"`
}

// ProgressConfig points at the durable audit log.
type ProgressConfig struct {
	AuditLogPath string `mapstructure:"audit_log_path"`
}

// APIConfig toggles the status/metrics HTTP server.
type APIConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JOBHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.base_url", "https://www.jobs.ch")
	v.SetDefault("site.search_terms", []string{"Informatiker"})
	v.SetDefault("site.page_ceiling", 30)
	v.SetDefault("site.max_jobs", 1000)
	v.SetDefault("site.domain_qps", 1.0)

	v.SetDefault("fetch.backend", "direct")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.render_js", true)
	v.SetDefault("fetch.proxy_endpoint", "https://app.scrapingbee.com/api/v1/")
	v.SetDefault("fetch.user_agents", []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64; rv:90.0) Gecko/20100101 Firefox/90.0",
	})

	v.SetDefault("workers.extract", 3)
	v.SetDefault("workers.archive", 3)
	v.SetDefault("workers.queue_depth", 2048)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff_initial_ms", 250)
	v.SetDefault("retry.backoff_max_ms", 5000)

	v.SetDefault("sink.batch_size", 50)
	v.SetDefault("sink.csv_path", "data/job_descriptions.csv")
	v.SetDefault("sink.json_path", "data/job_descriptions.json")
	v.SetDefault("sink.sqlite_path", "data/jobs.db")

	v.SetDefault("archive.dir", "data/html")
	v.SetDefault("archive.bundle_path", "data/job_html_files.zip")
	v.SetDefault("archive.file_limit", 90)

	v.SetDefault("progress.audit_log_path", "data/harvest.log")

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.port", 8080)

	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url must be set")
	}
	if len(c.Site.SearchTerms) == 0 {
		return fmt.Errorf("site.search_terms must include at least one term")
	}
	if c.Site.PageCeiling <= 0 {
		return fmt.Errorf("site.page_ceiling must be > 0")
	}
	if c.Site.MaxJobs <= 0 {
		return fmt.Errorf("site.max_jobs must be > 0")
	}
	switch c.Fetch.Backend {
	case "direct":
	case "proxy":
		if c.Fetch.ProxyAPIKey == "" {
			return fmt.Errorf("fetch.proxy_api_key must be set when fetch.backend is proxy")
		}
	default:
		return fmt.Errorf("fetch.backend must be direct or proxy, got %q", c.Fetch.Backend)
	}
	if len(c.Fetch.UserAgents) == 0 {
		return fmt.Errorf("fetch.user_agents must include at least one entry")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Workers.Extract <= 0 {
		return fmt.Errorf("workers.extract must be > 0")
	}
	if c.Workers.Archive <= 0 {
		return fmt.Errorf("workers.archive must be > 0")
	}
	if c.Workers.QueueDepth <= 0 {
		return fmt.Errorf("workers.queue_depth must be > 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Sink.BatchSize <= 0 {
		return fmt.Errorf("sink.batch_size must be > 0")
	}
	if c.Archive.FileLimit < 0 {
		return fmt.Errorf("archive.file_limit must be >= 0")
	}
	if c.API.Enabled && c.API.Port <= 0 {
		return fmt.Errorf("api.port must be > 0 when api is enabled")
	}
	return nil
}

// FetchTimeout converts the configured timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// BackoffInitial converts the initial backoff into a duration.
func (c RetryConfig) BackoffInitial() time.Duration {
	return time.Duration(c.BackoffInitialMs) * time.Millisecond
}

// BackoffMax converts the backoff ceiling into a duration.
func (c RetryConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}

// DataDir returns the directory holding the audit log, used to ensure
// output directories exist before the pipeline starts.
func (c Config) DataDir() string {
	return filepath.Dir(c.Progress.AuditLogPath)
}
