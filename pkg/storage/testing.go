package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/buildtrace/buildtrace/pkg/buildtrace"
)

// RunCacheTestSuite defines a test suite that can be run against any RunCache implementation.
type RunCacheTestSuite struct {
	NewCache func(t *testing.T) RunCache
}

// RunAllTests runs all cache tests against the provided implementation.
func (s *RunCacheTestSuite) RunAllTests(t *testing.T) {
	t.Run("RunRoundTrip", s.TestRunRoundTrip)
	t.Run("OverwriteRun", s.TestOverwriteRun)
	t.Run("DeleteRun", s.TestDeleteRun)
	t.Run("RunNotFound", s.TestRunNotFound)
	t.Run("AttemptsAreSeparate", s.TestAttemptsAreSeparate)
	t.Run("ErrorHandling", s.TestErrorHandling)
	t.Run("ConcurrentAccess", s.TestConcurrentAccess)
	t.Run("ReturnedRunIsACopy", s.TestReturnedRunIsACopy)
}

// SampleRun returns a completed run with one workflow and one job.
func SampleRun(id string) *buildtrace.WorkflowRun {
	started := "2024-01-01T10:00:00Z"
	completed := "2024-01-01T10:05:00Z"
	conclusion := "success"
	return &buildtrace.WorkflowRun{
		ID:         id,
		Attempt:    1,
		Name:       "ci",
		Status:     buildtrace.StatusCompleted,
		Conclusion: conclusion,
		URL:        "https://github.com/acme/app/actions/runs/" + id,
		Workflows: []buildtrace.Workflow{{
			Name: "ci",
			Jobs: []buildtrace.Job{{
				ID:          1,
				Name:        "build",
				Status:      buildtrace.StatusCompleted,
				Conclusion:  &conclusion,
				StartedAt:   &started,
				CompletedAt: &completed,
				Steps: []buildtrace.Step{{
					Name:        "compile",
					Number:      1,
					Status:      buildtrace.StatusCompleted,
					Conclusion:  &conclusion,
					StartedAt:   &started,
					CompletedAt: &completed,
				}},
			}},
		}},
	}
}

// TestRunRoundTrip tests that a saved run reads back unchanged.
func (s *RunCacheTestSuite) TestRunRoundTrip(t *testing.T) {
	cache := s.NewCache(t)
	defer cache.Close()

	ctx := context.Background()
	run := SampleRun("100")

	if err := cache.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := cache.GetRun(ctx, RunKey{ID: "100", Attempt: 1})
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.ID != run.ID || got.Name != run.Name || got.URL != run.URL {
		t.Errorf("run metadata mismatch: got %+v", got)
	}
	if len(got.Workflows) != 1 || len(got.Workflows[0].Jobs) != 1 {
		t.Fatalf("expected 1 workflow with 1 job, got %+v", got.Workflows)
	}
	job := got.Workflows[0].Jobs[0]
	if job.StartedAt == nil || *job.StartedAt != *run.Workflows[0].Jobs[0].StartedAt {
		t.Errorf("job started_at mismatch: %v", job.StartedAt)
	}
	if job.Conclusion == nil || *job.Conclusion != "success" {
		t.Errorf("job conclusion mismatch: %v", job.Conclusion)
	}
	if len(job.Steps) != 1 || job.Steps[0].Name != "compile" {
		t.Errorf("steps mismatch: %+v", job.Steps)
	}
	if !got.Completed() {
		t.Error("expected cached run to be completed")
	}
}

// TestOverwriteRun tests that saving a run twice keeps the latest version.
func (s *RunCacheTestSuite) TestOverwriteRun(t *testing.T) {
	cache := s.NewCache(t)
	defer cache.Close()

	ctx := context.Background()
	run := SampleRun("200")
	if err := cache.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	run.Name = "deploy"
	if err := cache.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun (overwrite) failed: %v", err)
	}

	got, err := cache.GetRun(ctx, RunKey{ID: "200", Attempt: 1})
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Name != "deploy" {
		t.Errorf("expected name deploy, got %s", got.Name)
	}
}

// TestDeleteRun tests run removal.
func (s *RunCacheTestSuite) TestDeleteRun(t *testing.T) {
	cache := s.NewCache(t)
	defer cache.Close()

	ctx := context.Background()
	if err := cache.SaveRun(ctx, SampleRun("300")); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := cache.DeleteRun(ctx, RunKey{ID: "300", Attempt: 1}); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}

	_, err := cache.GetRun(ctx, RunKey{ID: "300", Attempt: 1})
	if !IsNotFound(err) {
		t.Errorf("expected NotFoundError after delete, got %v", err)
	}

	err = cache.DeleteRun(ctx, RunKey{ID: "300", Attempt: 1})
	if !IsNotFound(err) {
		t.Errorf("expected NotFoundError deleting missing run, got %v", err)
	}
}

// TestRunNotFound tests lookups of unknown runs.
func (s *RunCacheTestSuite) TestRunNotFound(t *testing.T) {
	cache := s.NewCache(t)
	defer cache.Close()

	_, err := cache.GetRun(context.Background(), RunKey{ID: "missing", Attempt: 1})
	if err == nil {
		t.Fatal("expected error for missing run")
	}

	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %T", err)
	}
	if nf.EntityType != EntityRun || nf.ID != "missing:1" {
		t.Errorf("unexpected not found error: %+v", nf)
	}
}

// TestAttemptsAreSeparate tests that re-runs of one ID never share an entry.
func (s *RunCacheTestSuite) TestAttemptsAreSeparate(t *testing.T) {
	cache := s.NewCache(t)
	defer cache.Close()

	ctx := context.Background()
	first := SampleRun("500")
	first.Conclusion = "failure"
	if err := cache.SaveRun(ctx, first); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	_, err := cache.GetRun(ctx, RunKey{ID: "500", Attempt: 2})
	if !IsNotFound(err) {
		t.Fatalf("expected NotFoundError for unsaved attempt, got %v", err)
	}

	second := SampleRun("500")
	second.Attempt = 2
	if err := cache.SaveRun(ctx, second); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := cache.GetRun(ctx, RunKey{ID: "500", Attempt: 1})
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Conclusion != "failure" || got.Attempt != 1 {
		t.Errorf("attempt 1 overwritten: %+v", got)
	}
	got, err = cache.GetRun(ctx, RunKey{ID: "500", Attempt: 2})
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Conclusion != "success" || got.Attempt != 2 {
		t.Errorf("unexpected attempt 2: %+v", got)
	}
}

// TestErrorHandling tests invalid input.
func (s *RunCacheTestSuite) TestErrorHandling(t *testing.T) {
	cache := s.NewCache(t)
	defer cache.Close()

	ctx := context.Background()
	if err := cache.SaveRun(ctx, nil); err == nil {
		t.Error("expected error saving nil run")
	}
	if err := cache.SaveRun(ctx, &buildtrace.WorkflowRun{}); err == nil {
		t.Error("expected error saving run without ID")
	}
}

// TestConcurrentAccess tests concurrent reads and writes.
func (s *RunCacheTestSuite) TestConcurrentAccess(t *testing.T) {
	cache := s.NewCache(t)
	defer cache.Close()

	ctx := context.Background()
	const workers = 10

	var wg sync.WaitGroup
	errs := make(chan error, workers*2)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("run-%d", i)
			if err := cache.SaveRun(ctx, SampleRun(id)); err != nil {
				errs <- err
				return
			}
			if _, err := cache.GetRun(ctx, RunKey{ID: id, Attempt: 1}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent operation failed: %v", err)
	}
}

// TestReturnedRunIsACopy tests that callers cannot mutate cached state.
func (s *RunCacheTestSuite) TestReturnedRunIsACopy(t *testing.T) {
	cache := s.NewCache(t)
	defer cache.Close()

	ctx := context.Background()
	run := SampleRun("400")
	if err := cache.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	run.Workflows[0].Jobs[0].Name = "mutated"

	got, err := cache.GetRun(ctx, RunKey{ID: "400", Attempt: 1})
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Workflows[0].Jobs[0].Name != "build" {
		t.Errorf("cache shares state with caller: %s", got.Workflows[0].Jobs[0].Name)
	}
	got.Name = "changed"

	again, err := cache.GetRun(ctx, RunKey{ID: "400", Attempt: 1})
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if again.Name != "ci" {
		t.Errorf("cache shares state with reader: %s", again.Name)
	}
}
