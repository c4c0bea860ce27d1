package github

import (
	"context"
	"strconv"
	"sync"

	"github.com/buildtrace/buildtrace/pkg/buildtrace"
)

// defaultWorkflowName names jobs whose workflow cannot be determined.
const defaultWorkflowName = "workflow"

// RunAPI is the part of the Actions API a Source needs.
type RunAPI interface {
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListJobs(ctx context.Context, runID string) ([]buildtrace.Job, error)
}

// Source serves workflow runs fetched from the Actions API.
type Source struct {
	api    RunAPI
	runIDs []string

	mu   sync.Mutex
	meta map[string]*Run
}

// NewSource returns a source for runIDs, in the order given.
func NewSource(api RunAPI, runIDs []string) *Source {
	ids := make([]string, len(runIDs))
	copy(ids, runIDs)
	return &Source{api: api, runIDs: ids, meta: make(map[string]*Run)}
}

// RunAttempt fetches the run metadata and returns its attempt number. The
// metadata is kept for the next Run call on the same ID, so the lookup
// costs no extra request.
func (s *Source) RunAttempt(ctx context.Context, runID string) (int, error) {
	meta, err := s.api.GetRun(ctx, runID)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.meta[runID] = meta
	s.mu.Unlock()
	return meta.RunAttempt, nil
}

func (s *Source) runMeta(ctx context.Context, runID string) (*Run, error) {
	s.mu.Lock()
	meta, ok := s.meta[runID]
	delete(s.meta, runID)
	s.mu.Unlock()
	if ok {
		return meta, nil
	}
	return s.api.GetRun(ctx, runID)
}

// RunIDs returns the requested run IDs.
func (s *Source) RunIDs() []string {
	ids := make([]string, len(s.runIDs))
	copy(ids, s.runIDs)
	return ids
}

// Run fetches the run metadata and every job of runID.
func (s *Source) Run(ctx context.Context, runID string) (*buildtrace.WorkflowRun, error) {
	meta, err := s.runMeta(ctx, runID)
	if err != nil {
		return nil, err
	}
	jobs, err := s.api.ListJobs(ctx, runID)
	if err != nil {
		return nil, err
	}

	return &buildtrace.WorkflowRun{
		ID:         runID,
		Attempt:    meta.RunAttempt,
		Name:       meta.Name,
		Status:     meta.Status,
		Conclusion: meta.Conclusion,
		URL:        meta.HTMLURL,
		Workflows:  GroupJobs(meta.Name, jobs),
	}, nil
}

// GroupJobs groups jobs by workflow name, keeping the order in which each
// workflow first appears. Jobs without a workflow name fall under
// runName.
func GroupJobs(runName string, jobs []buildtrace.Job) []buildtrace.Workflow {
	fallback := runName
	if fallback == "" {
		fallback = defaultWorkflowName
	}

	var workflows []buildtrace.Workflow
	index := make(map[string]int)
	for _, job := range jobs {
		name := job.WorkflowName
		if name == "" {
			name = fallback
		}
		i, ok := index[name]
		if !ok {
			i = len(workflows)
			index[name] = i
			workflows = append(workflows, buildtrace.Workflow{Name: name})
		}
		workflows[i].Jobs = append(workflows[i].Jobs, job)
	}
	return workflows
}

func runIDString(id int64) string {
	return strconv.FormatInt(id, 10)
}
