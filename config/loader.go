package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "BUILDTRACE_"
	// ActionInputPrefix is the prefix GitHub Actions uses for action inputs.
	ActionInputPrefix = "INPUT_"
	// Delimiter is the key delimiter for nested config.
	Delimiter = "."
	// envNestingSeparator separates nested keys in environment variable names.
	envNestingSeparator = "__"
)

// actionInputs maps action input names to config keys.
var actionInputs = map[string]string{
	"token":             "github.token",
	"preceding_run_ids": "github.preceding_run_ids",
	"log_level":         "log.level",
	"endpoint":          "tracing.endpoint",
	"exporter":          "tracing.exporter",
	"grafana_url":       "tracing.grafana_url",
	"root_span_name":    "tracing.root_span_name",
}

// Loader handles configuration loading from various sources.
type Loader struct {
	k       *koanf.Koanf
	environ func() []string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		k:       koanf.New(Delimiter),
		environ: os.Environ,
	}
}

// Load loads configuration from all sources with the following priority:
// 1. Command line overrides (highest)
// 2. BUILDTRACE_ environment variables
// 3. GitHub Actions inputs (INPUT_*)
// 4. Configuration file
// 5. Defaults (lowest)
func (l *Loader) Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	if err := l.loadDefaults(); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := l.loadFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		l.loadDefaultFiles()
	}

	if err := l.loadActionInputs(); err != nil {
		return nil, fmt.Errorf("failed to load action inputs: %w", err)
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if len(overrides) > 0 {
		if err := l.k.Load(confmap.Provider(overrides, Delimiter), nil); err != nil {
			return nil, fmt.Errorf("failed to apply overrides: %w", err)
		}
	}

	var cfg Config
	if err := l.k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "mapstructure",
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ValidateWithDetails(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDefaults loads the default configuration as flattened keys so that
// later sources merge field by field.
func (l *Loader) loadDefaults() error {
	return l.k.Load(confmap.Provider(structToMap(DefaultConfig(), ""), Delimiter), nil)
}

// loadFile loads configuration from a file.
func (l *Loader) loadFile(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser

	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", path)
	}

	return l.k.Load(file.Provider(path), parser)
}

// loadDefaultFiles tries to load config from standard locations.
func (l *Loader) loadDefaultFiles() {
	candidates := []string{
		"buildtrace.yaml",
		"buildtrace.yml",
		"buildtrace.json",
		".github/buildtrace.yaml",
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			_ = l.loadFile(path)
			return
		}
	}
}

// loadActionInputs maps known INPUT_* variables onto config keys. Empty
// inputs are skipped so that unset action inputs keep the defaults.
func (l *Loader) loadActionInputs() error {
	values := make(map[string]interface{})
	for _, kv := range l.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, ActionInputPrefix) || value == "" {
			continue
		}
		input := strings.ToLower(strings.TrimPrefix(name, ActionInputPrefix))
		input = strings.ReplaceAll(input, "-", "_")
		if key, known := actionInputs[input]; known {
			values[key] = value
		}
	}
	if len(values) == 0 {
		return nil
	}
	return l.k.Load(confmap.Provider(values, Delimiter), nil)
}

// loadEnv loads configuration from environment variables.
func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(EnvPrefix, Delimiter, envKey), nil)
}

// envKey transforms an environment variable name into a config key.
// BUILDTRACE_LOG__LEVEL -> log.level
// BUILDTRACE_GITHUB__PRECEDING_RUN_IDS -> github.preceding_run_ids
func envKey(s string) string {
	key := strings.TrimPrefix(s, EnvPrefix)
	key = strings.ReplaceAll(key, envNestingSeparator, Delimiter)
	return strings.ToLower(key)
}

var durationType = reflect.TypeOf(time.Duration(0))

// structToMap recursively converts a struct to a flat map with dot-separated keys.
func structToMap(v interface{}, prefix string) map[string]interface{} {
	result := make(map[string]interface{})
	val := reflect.ValueOf(v)

	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return result
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		fieldVal := val.Field(i)

		if !field.IsExported() {
			continue
		}

		key := field.Tag.Get("mapstructure")
		if key == "" || key == "-" {
			continue
		}

		fullKey := key
		if prefix != "" {
			fullKey = prefix + Delimiter + key
		}

		switch {
		case fieldVal.Type() == durationType:
			result[fullKey] = fieldVal.Interface()
		case fieldVal.Kind() == reflect.Struct:
			for k, v := range structToMap(fieldVal.Interface(), fullKey) {
				result[k] = v
			}
		case fieldVal.Kind() == reflect.Map:
			if fieldVal.Len() > 0 {
				result[fullKey] = fieldVal.Interface()
			}
		default:
			result[fullKey] = fieldVal.Interface()
		}
	}

	return result
}

// Load is a convenience function to load configuration.
func Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	return NewLoader().Load(configPath, overrides)
}
