// Package metrics provides Prometheus metrics instrumentation for buildtrace.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Namespace prefixes every metric name.
const Namespace = "buildtrace"

// Manager manages all Prometheus metrics for buildtrace.
type Manager struct {
	registry *prometheus.Registry
	enabled  bool
	cfg      Config

	// Source metrics
	runsFetched  prometheus.Counter
	jobsFetched  prometheus.Counter
	cacheLookups *prometheus.CounterVec

	// Reconstruction metrics
	spansEmitted           *prometheus.CounterVec
	warnings               *prometheus.CounterVec
	reconstructionDuration prometheus.Histogram
}

// Config holds metrics configuration.
type Config struct {
	Enabled        bool
	PushgatewayURL string
	Job            string
	// Grouping labels attached to pushed metrics, e.g. repository.
	Grouping map[string]string

	// Histogram bucket configuration
	ReconstructionBuckets []float64
}

// DefaultConfig returns default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:               true,
		Job:                   Namespace,
		ReconstructionBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}
}

// NewManager creates a new metrics manager.
func NewManager(cfg Config) *Manager {
	if !cfg.Enabled {
		return &Manager{enabled: false}
	}
	if len(cfg.ReconstructionBuckets) == 0 {
		cfg.ReconstructionBuckets = DefaultConfig().ReconstructionBuckets
	}
	if cfg.Job == "" {
		cfg.Job = Namespace
	}

	registry := prometheus.NewRegistry()

	// Register Go runtime metrics
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Manager{
		registry: registry,
		enabled:  true,
		cfg:      cfg,
	}

	m.initSourceMetrics()
	m.initReconstructionMetrics(cfg)

	return m
}

// Enabled returns whether metrics collection is enabled.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Registry returns the private registry, or nil when disabled.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Push sends all metrics to the configured Pushgateway. It is a no-op when
// metrics are disabled or no Pushgateway is configured.
func (m *Manager) Push(ctx context.Context) error {
	if !m.enabled || m.cfg.PushgatewayURL == "" {
		return nil
	}

	pusher := push.New(m.cfg.PushgatewayURL, m.cfg.Job).Gatherer(m.registry)
	for name, value := range m.cfg.Grouping {
		if value != "" {
			pusher = pusher.Grouping(name, value)
		}
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

// WriteTextfile writes all metrics to path in the text exposition format.
func (m *Manager) WriteTextfile(path string) error {
	if !m.enabled || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// NoOpManager returns a no-op metrics manager for when metrics are disabled.
func NoOpManager() *Manager {
	return &Manager{enabled: false}
}
