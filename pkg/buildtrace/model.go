// Package buildtrace reconstructs a CI build-and-deploy run as a tree of
// timed spans and emits it to a tracing sink.
//
// Reconstruction happens in three phases over already-fetched data: job
// nodes are built from raw jobs, jobs are folded into workflow nodes, and
// workflow nodes are placed under a synthetic root. The finished tree is
// then walked by Emit, which opens spans parent-first and closes them
// child-first.
package buildtrace

// Job and step statuses reported by the CI provider.
const (
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusWaiting    = "waiting"
	StatusPending    = "pending"
	StatusRequested  = "requested"
)

// Conclusions that mark a span as failed.
const (
	ConclusionFailure        = "failure"
	ConclusionTimedOut       = "timed_out"
	ConclusionStartupFailure = "startup_failure"
)

// Step is one step of a job as returned by the CI provider.
type Step struct {
	Name        string  `json:"name"`
	Number      int     `json:"number,omitempty"`
	Status      string  `json:"status"`
	Conclusion  *string `json:"conclusion"`
	StartedAt   *string `json:"started_at"`
	CompletedAt *string `json:"completed_at"`
}

// Job is one job of a workflow execution.
type Job struct {
	ID           int64   `json:"id,omitempty"`
	RunID        int64   `json:"run_id,omitempty"`
	RunAttempt   int     `json:"run_attempt,omitempty"`
	WorkflowName string  `json:"workflow_name,omitempty"`
	Name         string  `json:"name"`
	Status       string  `json:"status"`
	Conclusion   *string `json:"conclusion"`
	StartedAt    *string `json:"started_at"`
	CompletedAt  *string `json:"completed_at"`
	Steps        []Step  `json:"steps"`
}

// IsQueued reports whether the job has not been scheduled yet.
func (j Job) IsQueued() bool {
	return j.Status == StatusQueued
}

// Workflow is the job collection of one workflow name within a run.
type Workflow struct {
	Name string `json:"name"`
	Jobs []Job  `json:"jobs"`
}

// WorkflowRun is one CI provider invocation. Workflows keep the order in
// which the source reported them. Attempt counts re-runs of the same ID,
// starting at 1; 0 means unknown.
type WorkflowRun struct {
	ID         string     `json:"id"`
	Attempt    int        `json:"attempt,omitempty"`
	Name       string     `json:"name,omitempty"`
	Status     string     `json:"status,omitempty"`
	Conclusion string     `json:"conclusion,omitempty"`
	URL        string     `json:"url,omitempty"`
	Workflows  []Workflow `json:"workflows"`
}

// IsQueued reports whether the run itself has not been scheduled yet. The
// jobs of a queued run are never turned into spans.
func (r *WorkflowRun) IsQueued() bool {
	return r != nil && r.Status == StatusQueued
}

// Completed reports whether every job of the run has completed. Completed
// runs no longer change and are safe to cache.
func (r *WorkflowRun) Completed() bool {
	if r == nil {
		return false
	}
	seen := false
	for _, wf := range r.Workflows {
		for _, job := range wf.Jobs {
			seen = true
			if job.Status != StatusCompleted {
				return false
			}
		}
	}
	return seen
}

// JobCount returns the number of jobs across all workflows of the run.
func (r *WorkflowRun) JobCount() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, wf := range r.Workflows {
		n += len(wf.Jobs)
	}
	return n
}

func strValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
