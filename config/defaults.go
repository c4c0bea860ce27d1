package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "buildtrace",
			Environment: "production",
			Debug:       false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
			Output: "stdout",
		},
		GitHub: GitHubConfig{
			JobFilter: "latest",
			PerPage:   100,
			Timeout:   30 * time.Second,
			RetryMax:  3,
			RateLimit: 10,
		},
		Tracing: TracingConfig{
			Enabled:      true,
			Exporter:     "otlpgrpc",
			Endpoint:     "localhost:4317",
			Insecure:     true,
			Timeout:      10 * time.Second,
			Sampler:      "always_on",
			SampleRate:   1.0,
			RootSpanName: "build and deploy",
		},
		Cache: CacheConfig{
			Type: "none",
			Badger: BadgerConfig{
				Path:              "./data/runs",
				SyncWrites:        true,
				ValueLogFileSize:  64 << 20, // 64MB
				NumVersionsToKeep: 1,
			},
			Redis: RedisConfig{
				Address:   "localhost:6379",
				Password:  "",
				DB:        0,
				KeyPrefix: "buildtrace:",
				TTL:       7 * 24 * time.Hour,
			},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Job:     "buildtrace",
		},
	}
}
