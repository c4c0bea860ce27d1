package storage

import (
	"context"

	"github.com/buildtrace/buildtrace/pkg/buildtrace"
	"github.com/buildtrace/buildtrace/pkg/logger"
)

// LookupRecorder observes cache lookups.
type LookupRecorder interface {
	RecordCacheLookup(hit bool)
}

// AttemptSource is a Source that can report the current attempt of a run
// without fetching its jobs.
type AttemptSource interface {
	buildtrace.Source
	RunAttempt(ctx context.Context, id string) (int, error)
}

// CachedSource serves runs from a cache and falls back to the wrapped
// source. Entries are keyed by run ID and attempt, so a re-run is never
// served from the previous attempt. Only runs whose jobs have all
// completed are cached, since anything else can still change.
type CachedSource struct {
	src      AttemptSource
	cache    RunCache
	log      logger.Logger
	recorder LookupRecorder
}

// CachedSourceOption configures a CachedSource.
type CachedSourceOption func(*CachedSource)

// WithLogger sets the logger for cache failures.
func WithLogger(l logger.Logger) CachedSourceOption {
	return func(c *CachedSource) {
		if l != nil {
			c.log = l
		}
	}
}

// WithLookupRecorder reports hits and misses to r.
func WithLookupRecorder(r LookupRecorder) CachedSourceOption {
	return func(c *CachedSource) {
		c.recorder = r
	}
}

// NewCachedSource wraps src with cache.
func NewCachedSource(src AttemptSource, cache RunCache, opts ...CachedSourceOption) *CachedSource {
	c := &CachedSource{
		src:   src,
		cache: cache,
		log:   logger.Global(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunIDs returns the wrapped source's run IDs.
func (c *CachedSource) RunIDs() []string {
	return c.src.RunIDs()
}

// Run returns the cached run for the current attempt of id, or fetches and
// caches it. Cache failures are logged and never fail the lookup.
func (c *CachedSource) Run(ctx context.Context, id string) (*buildtrace.WorkflowRun, error) {
	attempt, err := c.src.RunAttempt(ctx, id)
	if err != nil {
		return nil, err
	}
	key := RunKey{ID: id, Attempt: attempt}

	run, err := c.cache.GetRun(ctx, key)
	switch {
	case err == nil:
		c.record(true)
		c.log.DebugContext(ctx, "run served from cache", "run_id", id, "attempt", attempt)
		return run, nil
	case IsNotFound(err):
		c.record(false)
	default:
		c.record(false)
		c.log.WarnContext(ctx, "run cache lookup failed", "run_id", id, "attempt", attempt, "error", err)
	}

	run, err = c.src.Run(ctx, id)
	if err != nil {
		return nil, err
	}

	if run.Completed() {
		if err := c.cache.SaveRun(ctx, run); err != nil {
			c.log.WarnContext(ctx, "failed to cache run", "run_id", id, "error", err)
		}
	}
	return run, nil
}

func (c *CachedSource) record(hit bool) {
	if c.recorder != nil {
		c.recorder.RecordCacheLookup(hit)
	}
}
