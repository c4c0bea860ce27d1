package github

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/buildtrace/buildtrace/pkg/buildtrace"
	"github.com/buildtrace/buildtrace/pkg/logger"
)

// SaveRun writes the jobs of run to dir as <run ID>.json, in the format
// NewFileSource replays. It returns the written path.
func SaveRun(dir string, run *buildtrace.WorkflowRun) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create save dir: %w", err)
	}

	var jobs []buildtrace.Job
	for _, wf := range run.Workflows {
		for _, job := range wf.Jobs {
			if job.WorkflowName == "" {
				job.WorkflowName = wf.Name
			}
			if job.RunAttempt == 0 {
				job.RunAttempt = run.Attempt
			}
			jobs = append(jobs, job)
		}
	}

	path := filepath.Join(dir, run.ID+".json")
	if err := SaveJobs(path, jobs); err != nil {
		return "", err
	}
	return path, nil
}

// SavingSource writes every run it serves to a directory. A failed write
// is logged and does not fail the run.
type SavingSource struct {
	buildtrace.Source
	dir string
	log logger.Logger
}

// NewSavingSource wraps src so that its runs are saved under dir.
func NewSavingSource(src buildtrace.Source, dir string, log logger.Logger) *SavingSource {
	if log == nil {
		log = logger.Global()
	}
	return &SavingSource{Source: src, dir: dir, log: log}
}

// Run fetches runID from the wrapped source and saves it.
func (s *SavingSource) Run(ctx context.Context, runID string) (*buildtrace.WorkflowRun, error) {
	run, err := s.Source.Run(ctx, runID)
	if err != nil {
		return nil, err
	}

	path, err := SaveRun(s.dir, run)
	if err != nil {
		s.log.Warn("Failed to save run", "run_id", runID, "error", err)
		return run, nil
	}
	s.log.Debug("Saved run", "run_id", runID, "path", path)
	return run, nil
}
