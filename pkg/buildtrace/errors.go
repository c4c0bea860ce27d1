package buildtrace

import "fmt"

// FormatError is returned when a timestamp cannot be parsed. The affected
// field is treated as unset and the trace is still built.
type FormatError struct {
	Field string
	Value string
	Cause error
}

func (e *FormatError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid timestamp %q for %s: %v", e.Value, e.Field, e.Cause)
	}
	return fmt.Sprintf("invalid timestamp %q: %v", e.Value, e.Cause)
}

func (e *FormatError) Unwrap() error { return e.Cause }

// EmptyWorkflowError reports a workflow execution whose jobs carry no
// resolvable timing. The workflow is still emitted as a degenerate span.
type EmptyWorkflowError struct {
	Workflow string
	RunID    string
}

func (e *EmptyWorkflowError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("workflow %q in run %s has no jobs with resolvable timing", e.Workflow, e.RunID)
	}
	return fmt.Sprintf("workflow %q has no jobs with resolvable timing", e.Workflow)
}

// MissingDataError is returned when a requested workflow run is not present
// in the data source.
type MissingDataError struct {
	RunID string
	Cause error
}

func (e *MissingDataError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("workflow run %s not found: %v", e.RunID, e.Cause)
	}
	return fmt.Sprintf("workflow run %s not found", e.RunID)
}

func (e *MissingDataError) Unwrap() error { return e.Cause }
