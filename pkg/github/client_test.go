package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildtrace/buildtrace/pkg/buildtrace"
	"github.com/buildtrace/buildtrace/pkg/logger"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, handler http.Handler, mutate ...func(*ClientConfig)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := ClientConfig{
		BaseURL:      srv.URL,
		Repository:   "acme/app",
		Token:        "ghs_test",
		Timeout:      5 * time.Second,
		RetryMax:     0,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
		Logger:       logger.Discard(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return NewClient(cfg)
}

func TestClient_GetRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/app/actions/runs/42", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ghs_test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		assert.Equal(t, APIVersion, r.Header.Get("X-GitHub-Api-Version"))
		writeJSON(w, http.StatusOK, map[string]any{
			"id":          42,
			"name":        "deploy",
			"status":      "completed",
			"conclusion":  "success",
			"html_url":    "https://github.com/acme/app/actions/runs/42",
			"run_attempt": 2,
		})
	})

	client := newTestClient(t, mux)
	run, err := client.GetRun(context.Background(), "42")
	require.NoError(t, err)

	assert.Equal(t, int64(42), run.ID)
	assert.Equal(t, "deploy", run.Name)
	assert.Equal(t, "success", run.Conclusion)
	assert.Equal(t, "https://github.com/acme/app/actions/runs/42", run.HTMLURL)
	assert.Equal(t, 2, run.RunAttempt)
}

func TestClient_GetRunNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/app/actions/runs/404", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})

	client := newTestClient(t, mux)
	_, err := client.GetRun(context.Background(), "404")
	require.Error(t, err)

	var missing *buildtrace.MissingDataError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "404", missing.RunID)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Not Found", apiErr.Message)
}

func TestClient_ServerErrorIsNotMissing(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/app/actions/runs/7", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadGateway, map[string]string{"message": "upstream"})
	})

	client := newTestClient(t, mux, func(cfg *ClientConfig) { cfg.RetryMax = 2 })
	_, err := client.GetRun(context.Background(), "7")
	require.Error(t, err)

	var missing *buildtrace.MissingDataError
	assert.False(t, errors.As(err, &missing))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load(), "one attempt plus two retries")
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/app/actions/runs/9", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": 9, "name": "ci"})
	})

	client := newTestClient(t, mux, func(cfg *ClientConfig) { cfg.RetryMax = 3 })
	run, err := client.GetRun(context.Background(), "9")
	require.NoError(t, err)
	assert.Equal(t, "ci", run.Name)
	assert.Equal(t, int32(2), calls.Load())
}

func jobFixture(id int64, workflow, name string) buildtrace.Job {
	started := "2024-01-01T00:00:00Z"
	completed := "2024-01-01T00:01:00Z"
	return buildtrace.Job{
		ID:           id,
		RunID:        42,
		WorkflowName: workflow,
		Name:         name,
		Status:       buildtrace.StatusCompleted,
		StartedAt:    &started,
		CompletedAt:  &completed,
	}
}

func TestClient_ListJobsPaginates(t *testing.T) {
	const total = 5
	var pages []int
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/app/actions/runs/42/jobs", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2", q.Get("per_page"))
		assert.Equal(t, FilterAll, q.Get("filter"))
		page, err := strconv.Atoi(q.Get("page"))
		require.NoError(t, err)
		pages = append(pages, page)

		var jobs []buildtrace.Job
		for i := (page-1)*2 + 1; i <= page*2 && i <= total; i++ {
			jobs = append(jobs, jobFixture(int64(i), "ci", fmt.Sprintf("job-%d", i)))
		}
		writeJSON(w, http.StatusOK, JobsPage{TotalCount: total, Jobs: jobs})
	})

	client := newTestClient(t, mux, func(cfg *ClientConfig) {
		cfg.PerPage = 2
		cfg.Filter = FilterAll
	})
	jobs, err := client.ListJobs(context.Background(), "42")
	require.NoError(t, err)

	require.Len(t, jobs, total)
	assert.Equal(t, []int{1, 2, 3}, pages)
	assert.Equal(t, "job-1", jobs[0].Name)
	assert.Equal(t, "job-5", jobs[4].Name)
	assert.Equal(t, "ci", jobs[4].WorkflowName)
}

func TestClient_ListJobsStopsOnEmptyPage(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/app/actions/runs/42/jobs", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusOK, JobsPage{TotalCount: 10, Jobs: []buildtrace.Job{jobFixture(1, "ci", "a")}})
			return
		}
		writeJSON(w, http.StatusOK, JobsPage{TotalCount: 10})
	})

	client := newTestClient(t, mux)
	jobs, err := client.ListJobs(context.Background(), "42")
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ListJobsDecodesNullFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/app/actions/runs/42/jobs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total_count":1,"jobs":[{"id":1,"run_id":42,"workflow_name":"ci","name":"build",
"status":"in_progress","conclusion":null,"started_at":"2024-01-01T00:00:00Z","completed_at":null,
"steps":[{"name":"checkout","number":1,"status":"queued","conclusion":null,"started_at":null,"completed_at":null}]}]}`))
	})

	client := newTestClient(t, mux)
	jobs, err := client.ListJobs(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	job := jobs[0]
	assert.Nil(t, job.Conclusion)
	assert.Nil(t, job.CompletedAt)
	require.NotNil(t, job.StartedAt)
	require.Len(t, job.Steps, 1)
	assert.Equal(t, buildtrace.StatusQueued, job.Steps[0].Status)
	assert.Nil(t, job.Steps[0].StartedAt)
}

func TestClient_ContextCancelled(t *testing.T) {
	client := newTestClient(t, http.NewServeMux(), func(cfg *ClientConfig) { cfg.RateLimit = 0.001 })

	// The limiter starts with one token; the second request has to wait.
	_, _ = client.GetRun(context.Background(), "1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.GetRun(ctx, "1")
	assert.ErrorContains(t, err, "rate limiter")
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(ClientConfig{Repository: "acme/app", Logger: logger.Discard()})
	assert.Equal(t, 100, client.perPage)
	assert.Equal(t, FilterLatest, client.filter)
	assert.Equal(t, DefaultAPIURL, client.resty.BaseURL)
}
