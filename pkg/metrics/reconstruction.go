package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/buildtrace/buildtrace/pkg/buildtrace"
)

// Cache lookup results.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// Warning types.
const (
	WarningFormat        = "format"
	WarningEmptyWorkflow = "empty_workflow"
	WarningOther         = "other"
)

// initSourceMetrics initializes data source metrics.
func (m *Manager) initSourceMetrics() {
	m.runsFetched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_fetched_total",
			Help:      "Total number of workflow runs fetched",
		},
	)

	m.jobsFetched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "jobs_fetched_total",
			Help:      "Total number of jobs fetched",
		},
	)

	m.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_lookups_total",
			Help:      "Total number of run cache lookups by result",
		},
		[]string{"result"},
	)

	m.registry.MustRegister(m.runsFetched)
	m.registry.MustRegister(m.jobsFetched)
	m.registry.MustRegister(m.cacheLookups)
}

// initReconstructionMetrics initializes trace reconstruction metrics.
func (m *Manager) initReconstructionMetrics(cfg Config) {
	m.spansEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "spans_emitted_total",
			Help:      "Total number of spans emitted by kind",
		},
		[]string{"kind"},
	)

	m.warnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "warnings_total",
			Help:      "Total number of non-fatal reconstruction warnings by type",
		},
		[]string{"type"},
	)

	m.reconstructionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "reconstruction_duration_seconds",
			Help:      "Time spent fetching runs and building the span tree",
			Buckets:   cfg.ReconstructionBuckets,
		},
	)

	m.registry.MustRegister(m.spansEmitted)
	m.registry.MustRegister(m.warnings)
	m.registry.MustRegister(m.reconstructionDuration)
}

// RecordRunFetched records a fetched run and its job count.
func (m *Manager) RecordRunFetched(_ string, jobs int) {
	if !m.enabled {
		return
	}
	m.runsFetched.Inc()
	m.jobsFetched.Add(float64(jobs))
}

// RecordCacheLookup records a run cache hit or miss.
func (m *Manager) RecordCacheLookup(hit bool) {
	if !m.enabled {
		return
	}
	result := CacheMiss
	if hit {
		result = CacheHit
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordSpanEmitted records an emitted span.
func (m *Manager) RecordSpanEmitted(kind buildtrace.Kind) {
	if !m.enabled {
		return
	}
	m.spansEmitted.WithLabelValues(kind.String()).Inc()
}

// RecordWarning records a non-fatal reconstruction warning.
func (m *Manager) RecordWarning(err error) {
	if !m.enabled {
		return
	}
	m.warnings.WithLabelValues(warningType(err)).Inc()
}

// RecordReconstruction records the reconstruction duration.
func (m *Manager) RecordReconstruction(d time.Duration) {
	if !m.enabled {
		return
	}
	m.reconstructionDuration.Observe(d.Seconds())
}

func warningType(err error) string {
	var formatErr *buildtrace.FormatError
	var emptyErr *buildtrace.EmptyWorkflowError
	switch {
	case errors.As(err, &formatErr):
		return WarningFormat
	case errors.As(err, &emptyErr):
		return WarningEmptyWorkflow
	default:
		return WarningOther
	}
}
