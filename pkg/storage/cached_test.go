package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildtrace/buildtrace/pkg/buildtrace"
	"github.com/buildtrace/buildtrace/pkg/logger"
	"github.com/buildtrace/buildtrace/pkg/storage"
	"github.com/buildtrace/buildtrace/pkg/storage/memory"
)

type countingSource struct {
	*buildtrace.MapSource
	calls      map[string]int
	attemptErr error
}

func newCountingSource(runs ...*buildtrace.WorkflowRun) *countingSource {
	return &countingSource{MapSource: buildtrace.NewMapSource(runs...), calls: make(map[string]int)}
}

func (s *countingSource) Run(ctx context.Context, id string) (*buildtrace.WorkflowRun, error) {
	s.calls[id]++
	return s.MapSource.Run(ctx, id)
}

// RunAttempt reports the attempt of the stored run, or 1 for runs that are
// only requested.
func (s *countingSource) RunAttempt(ctx context.Context, id string) (int, error) {
	if s.attemptErr != nil {
		return 0, s.attemptErr
	}
	run, err := s.MapSource.Run(ctx, id)
	if err != nil {
		return 1, nil
	}
	return run.Attempt, nil
}

type lookups struct {
	hits, misses int
}

func (l *lookups) RecordCacheLookup(hit bool) {
	if hit {
		l.hits++
	} else {
		l.misses++
	}
}

type brokenCache struct{}

var errBroken = errors.New("cache down")

func (brokenCache) GetRun(context.Context, storage.RunKey) (*buildtrace.WorkflowRun, error) {
	return nil, errBroken
}

func (brokenCache) SaveRun(context.Context, *buildtrace.WorkflowRun) error { return errBroken }

func (brokenCache) DeleteRun(context.Context, storage.RunKey) error { return errBroken }

func (brokenCache) Close() error { return nil }

func TestCachedSource_CachesCompletedRuns(t *testing.T) {
	src := newCountingSource(storage.SampleRun("1"))
	cache := memory.NewMemoryStorage()
	rec := &lookups{}
	cached := storage.NewCachedSource(src, cache, storage.WithLookupRecorder(rec), storage.WithLogger(logger.Discard()))

	assert.Equal(t, []string{"1"}, cached.RunIDs())

	for i := 0; i < 3; i++ {
		run, err := cached.Run(context.Background(), "1")
		require.NoError(t, err)
		assert.Equal(t, "1", run.ID)
	}

	assert.Equal(t, 1, src.calls["1"])
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, 2, rec.hits)
	assert.Equal(t, 1, rec.misses)
}

func TestCachedSource_SkipsRunsInProgress(t *testing.T) {
	run := storage.SampleRun("2")
	run.Workflows[0].Jobs[0].Status = buildtrace.StatusInProgress
	src := newCountingSource(run)
	cache := memory.NewMemoryStorage()
	cached := storage.NewCachedSource(src, cache, storage.WithLogger(logger.Discard()))

	for i := 0; i < 2; i++ {
		_, err := cached.Run(context.Background(), "2")
		require.NoError(t, err)
	}

	assert.Equal(t, 2, src.calls["2"])
	assert.Zero(t, cache.Len())
}

func TestCachedSource_MissingRunPassesThrough(t *testing.T) {
	src := newCountingSource()
	src.Request("3")
	cached := storage.NewCachedSource(src, memory.NewMemoryStorage(), storage.WithLogger(logger.Discard()))

	_, err := cached.Run(context.Background(), "3")
	var missing *buildtrace.MissingDataError
	assert.ErrorAs(t, err, &missing)
}

func TestCachedSource_BrokenCacheFallsBack(t *testing.T) {
	src := newCountingSource(storage.SampleRun("4"))
	rec := &lookups{}
	cached := storage.NewCachedSource(src, brokenCache{}, storage.WithLookupRecorder(rec), storage.WithLogger(logger.Discard()))

	run, err := cached.Run(context.Background(), "4")
	require.NoError(t, err)
	assert.Equal(t, "4", run.ID)
	assert.Equal(t, 1, rec.misses)
}

func TestCachedSource_FeedsBuild(t *testing.T) {
	cache := memory.NewMemoryStorage()
	require.NoError(t, cache.SaveRun(context.Background(), storage.SampleRun("5")))

	src := newCountingSource()
	src.Request("5")
	cached := storage.NewCachedSource(src, cache, storage.WithLogger(logger.Discard()))

	result, err := buildtrace.Build(context.Background(), cached, buildtrace.WithLogger(logger.Discard()))
	require.NoError(t, err)
	assert.Equal(t, 4, result.Root.Count())
	assert.Zero(t, src.calls["5"])
}

func TestCachedSource_RerunIsNotServedFromPreviousAttempt(t *testing.T) {
	cache := memory.NewMemoryStorage()
	ctx := context.Background()

	first := storage.SampleRun("42")
	first.Conclusion = "failure"
	firstSrc := newCountingSource(first)
	run, err := storage.NewCachedSource(firstSrc, cache, storage.WithLogger(logger.Discard())).Run(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "failure", run.Conclusion)

	rerun := storage.SampleRun("42")
	rerun.Attempt = 2
	rerunSrc := newCountingSource(rerun)
	rec := &lookups{}
	cached := storage.NewCachedSource(rerunSrc, cache, storage.WithLookupRecorder(rec), storage.WithLogger(logger.Discard()))

	run, err = cached.Run(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "success", run.Conclusion)
	assert.Equal(t, 2, run.Attempt)
	assert.Equal(t, 1, rerunSrc.calls["42"])
	assert.Equal(t, 1, rec.misses)
	assert.Equal(t, 2, cache.Len())

	run, err = cached.Run(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "success", run.Conclusion)
	assert.Equal(t, 1, rerunSrc.calls["42"])
	assert.Equal(t, 1, rec.hits)
}

func TestCachedSource_AttemptLookupErrorIsFatal(t *testing.T) {
	cache := memory.NewMemoryStorage()
	require.NoError(t, cache.SaveRun(context.Background(), storage.SampleRun("6")))

	src := newCountingSource(storage.SampleRun("6"))
	src.attemptErr = &buildtrace.MissingDataError{RunID: "6"}
	cached := storage.NewCachedSource(src, cache, storage.WithLogger(logger.Discard()))

	_, err := cached.Run(context.Background(), "6")
	var missing *buildtrace.MissingDataError
	assert.ErrorAs(t, err, &missing)
	assert.Zero(t, src.calls["6"])
}
