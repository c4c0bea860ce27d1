package github

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/buildtrace/buildtrace/pkg/buildtrace"
)

// FileSource replays list jobs responses stored on disk. Each file holds
// one response body; the run ID is taken from the jobs, or from the file
// name when the file has no jobs.
type FileSource struct {
	runs *buildtrace.MapSource
}

// NewFileSource loads every file in paths, in order.
func NewFileSource(paths ...string) (*FileSource, error) {
	runs := buildtrace.NewMapSource()
	for _, path := range paths {
		run, err := loadRunFile(path)
		if err != nil {
			return nil, err
		}
		runs.Add(run)
	}
	return &FileSource{runs: runs}, nil
}

func loadRunFile(path string) (*buildtrace.WorkflowRun, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}

	var page JobsPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("decode jobs file %s: %w", path, err)
	}

	runID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	attempt := 0
	if len(page.Jobs) > 0 {
		if page.Jobs[0].RunID != 0 {
			runID = runIDString(page.Jobs[0].RunID)
		}
		attempt = page.Jobs[0].RunAttempt
	}

	return &buildtrace.WorkflowRun{
		ID:        runID,
		Attempt:   attempt,
		Workflows: GroupJobs("", page.Jobs),
	}, nil
}

// RunIDs returns the loaded run IDs in file order.
func (s *FileSource) RunIDs() []string {
	return s.runs.RunIDs()
}

// Run returns the stored run.
func (s *FileSource) Run(ctx context.Context, runID string) (*buildtrace.WorkflowRun, error) {
	return s.runs.Run(ctx, runID)
}

// SaveJobs writes jobs in the format NewFileSource reads.
func SaveJobs(path string, jobs []buildtrace.Job) error {
	data, err := json.MarshalIndent(JobsPage{TotalCount: len(jobs), Jobs: jobs}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode jobs: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write jobs file: %w", err)
	}
	return nil
}
