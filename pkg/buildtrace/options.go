package buildtrace

import (
	"time"

	"github.com/buildtrace/buildtrace/pkg/logger"
)

// MetricsRecorder observes a reconstruction.
type MetricsRecorder interface {
	RecordRunFetched(runID string, jobs int)
	RecordWarning(err error)
	RecordSpanEmitted(kind Kind)
	RecordReconstruction(d time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) RecordRunFetched(string, int)       {}
func (noopRecorder) RecordWarning(error)                {}
func (noopRecorder) RecordSpanEmitted(Kind)             {}
func (noopRecorder) RecordReconstruction(time.Duration) {}

type options struct {
	rootName string
	log      logger.Logger
	metrics  MetricsRecorder
}

func newOptions(opts []Option) *options {
	o := &options{
		rootName: DefaultRootName,
		metrics:  noopRecorder{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.Global()
	}
	return o
}

// Option is a functional option for Build and BuildAndEmit.
type Option func(*options)

// WithRootName overrides the root span name.
func WithRootName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.rootName = name
		}
	}
}

// WithLogger sets the logger used to report warnings.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(o *options) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}
