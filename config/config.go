// Package config provides configuration management for buildtrace.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the global configuration for buildtrace.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// GitHub is the workflow data source configuration.
	GitHub GitHubConfig `mapstructure:"github"`

	// Tracing is the span export configuration.
	Tracing TracingConfig `mapstructure:"tracing"`

	// Cache is the fetched-run cache configuration.
	Cache CacheConfig `mapstructure:"cache"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name, used as the tracing service name.
	Name string `mapstructure:"name" validate:"required"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"env"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (auto, json, text, github). Auto picks
	// github inside a GitHub Actions job and text elsewhere.
	Format string `mapstructure:"format" validate:"oneof=auto json text github"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// FormatFor resolves the auto log format.
func (c LogConfig) FormatFor(inActions bool) string {
	if c.Format != "auto" {
		return c.Format
	}
	if inActions {
		return "github"
	}
	return "text"
}

// GitHubConfig holds settings for fetching workflow runs.
type GitHubConfig struct {
	// Token authenticates against the GitHub REST API.
	Token string `mapstructure:"token"`

	// APIURL overrides GITHUB_API_URL.
	APIURL string `mapstructure:"api_url" validate:"omitempty,url"`

	// RunID overrides GITHUB_RUN_ID.
	RunID string `mapstructure:"run_id" validate:"omitempty,numeric"`

	// PrecedingRunIDs is a comma separated list of earlier runs that belong
	// to the same build, e.g. the CI run that preceded a deploy run.
	PrecedingRunIDs string `mapstructure:"preceding_run_ids"`

	// JobFilter selects which job attempts are listed (latest, all).
	JobFilter string `mapstructure:"job_filter" validate:"oneof=latest all"`

	// PerPage is the page size used when listing jobs.
	PerPage int `mapstructure:"per_page" validate:"min=1,max=100"`

	// Timeout bounds a single API request.
	Timeout time.Duration `mapstructure:"timeout"`

	// RetryMax is the number of retries for failed requests.
	RetryMax int `mapstructure:"retry_max" validate:"min=0,max=10"`

	// RateLimit is the maximum number of requests per second (0 = unlimited).
	RateLimit float64 `mapstructure:"rate_limit" validate:"min=0"`

	// FromFile replays stored jobs API responses instead of calling GitHub.
	FromFile string `mapstructure:"from_file"`

	// SaveDir, when set, receives one jobs file per fetched run in the
	// format FromFile reads back.
	SaveDir string `mapstructure:"save_dir"`
}

// RunIDs returns the preceding run IDs followed by the current run.
func (c GitHubConfig) RunIDs(current string) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, raw := range strings.Split(c.PrecedingRunIDs, ",") {
		id := strings.TrimSpace(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if current != "" && !seen[current] {
		ids = append(ids, current)
	}
	return ids
}

// TracingConfig holds span export settings.
type TracingConfig struct {
	// Enabled enables span export.
	Enabled bool `mapstructure:"enabled"`

	// Exporter is the exporter kind (otlpgrpc, otlphttp, console).
	Exporter string `mapstructure:"exporter" validate:"oneof=otlpgrpc otlphttp console"`

	// Endpoint is the collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// Headers are sent with every export request.
	Headers map[string]string `mapstructure:"headers"`

	// Insecure disables transport security for OTLP exporters.
	Insecure bool `mapstructure:"insecure"`

	// Timeout bounds a single export.
	Timeout time.Duration `mapstructure:"timeout"`

	// Sampler is the sampling strategy (always_on, always_off, parentbased_traceidratio).
	Sampler string `mapstructure:"sampler" validate:"oneof=always_on always_off parentbased_traceidratio"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`

	// RootSpanName names the synthetic root span.
	RootSpanName string `mapstructure:"root_span_name"`

	// GrafanaURL is used to log a link to the emitted trace.
	GrafanaURL string `mapstructure:"grafana_url" validate:"omitempty,url"`
}

// CacheConfig holds fetched-run cache settings.
type CacheConfig struct {
	// Type is the cache backend (none, memory, badger, redis).
	Type string `mapstructure:"type" validate:"oneof=none memory badger redis"`

	// Badger is the BadgerDB configuration.
	Badger BadgerConfig `mapstructure:"badger"`

	// Redis is the Redis configuration.
	Redis RedisConfig `mapstructure:"redis"`
}

// BadgerConfig holds BadgerDB-specific settings.
type BadgerConfig struct {
	// Path is the database directory path.
	Path string `mapstructure:"path"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `mapstructure:"sync_writes"`

	// ValueLogFileSize is the maximum size of value log files in bytes.
	ValueLogFileSize int64 `mapstructure:"value_log_file_size"`

	// NumVersionsToKeep is the number of versions to keep per key.
	NumVersionsToKeep int `mapstructure:"num_versions_to_keep"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	// Address is the Redis server address.
	Address string `mapstructure:"address"`

	// Password is the Redis password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db" validate:"min=0"`

	// KeyPrefix namespaces cache keys.
	KeyPrefix string `mapstructure:"key_prefix"`

	// TTL is how long cached runs are kept.
	TTL time.Duration `mapstructure:"ttl"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// PushgatewayURL is the Prometheus Pushgateway to push to after a run.
	PushgatewayURL string `mapstructure:"pushgateway_url" validate:"omitempty,url"`

	// Job is the Pushgateway job label.
	Job string `mapstructure:"job"`

	// Textfile writes metrics for the node_exporter textfile collector.
	Textfile string `mapstructure:"textfile"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String returns a string representation of the configuration (without sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Env: %s, Exporter: %s, Cache: %s}",
		c.App.Name, c.App.Environment, c.Tracing.Exporter, c.Cache.Type)
}
