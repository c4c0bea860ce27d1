package buildtrace

import "errors"

// BuildJobNode converts one job into a job node with one child per step.
//
// The job's bounds come from its own timestamps only. Steps that are still
// queued are dropped. Malformed timestamps are left unset and returned as
// *FormatError values alongside the node.
func BuildJobNode(job Job) (*SpanNode, []error) {
	var errs []error

	node := &SpanNode{
		Name:       job.Name,
		Kind:       KindJob,
		Status:     job.Status,
		Conclusion: strValue(job.Conclusion),
		JobID:      job.ID,
	}
	node.Start, node.End, errs = parseBounds(job.Name, job.StartedAt, job.CompletedAt, errs)
	node.End = clampEnd(node.Start, node.End)

	for _, step := range job.Steps {
		if step.Status == StatusQueued {
			continue
		}
		child := &SpanNode{
			Name:       step.Name,
			Kind:       KindStep,
			Status:     step.Status,
			Conclusion: strValue(step.Conclusion),
			JobID:      job.ID,
		}
		child.Start, child.End, errs = parseBounds(job.Name+"/"+step.Name, step.StartedAt, step.CompletedAt, errs)
		child.Start, child.End = clampInto(child.Start, child.End, node.Start, node.End)
		node.Children = append(node.Children, child)
	}

	return node, errs
}

func parseBounds(field string, started, completed *string, errs []error) (Timestamp, Timestamp, []error) {
	start, err := TimestampFromPtr(started)
	if err != nil {
		errs = append(errs, withField(err, field+" started_at"))
	}
	end, err := TimestampFromPtr(completed)
	if err != nil {
		errs = append(errs, withField(err, field+" completed_at"))
	}
	return start, end, errs
}

func withField(err error, field string) error {
	var fe *FormatError
	if errors.As(err, &fe) {
		fe.Field = field
	}
	return err
}

// clampEnd keeps start <= end when both are resolved.
func clampEnd(start, end Timestamp) Timestamp {
	if end.Before(start) {
		return start
	}
	return end
}

// clampInto keeps a child interval inside its parent's resolved bounds.
func clampInto(start, end, lo, hi Timestamp) (Timestamp, Timestamp) {
	if start.Before(lo) {
		start = lo
	}
	if start.After(hi) {
		start = hi
	}
	if end.After(hi) {
		end = hi
	}
	if end.Before(lo) {
		end = lo
	}
	return start, clampEnd(start, end)
}
