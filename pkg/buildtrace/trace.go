package buildtrace

import (
	"context"
	"errors"
	"time"
)

// Result is the outcome of a reconstruction.
type Result struct {
	Root *SpanNode
	// Warnings holds non-fatal conditions: *FormatError and
	// *EmptyWorkflowError values.
	Warnings []error
}

// Warning joins all warnings into one error, or returns nil.
func (r *Result) Warning() error {
	return errors.Join(r.Warnings...)
}

// Trace is an emitted reconstruction.
type Trace struct {
	*Result
	Root *EmittedSpan
}

// Handle returns the sink handle of the root span.
func (t *Trace) Handle() Handle {
	if t == nil || t.Root == nil {
		return nil
	}
	return t.Root.Handle
}

// Build fetches every run listed by src and reconstructs the span tree.
//
// Each workflow of each run becomes its own workflow node, in source order.
// Queued jobs are skipped. Source errors are fatal and returned as is.
func Build(ctx context.Context, src Source, opts ...Option) (*Result, error) {
	o := newOptions(opts)
	return build(ctx, src, o)
}

func build(ctx context.Context, src Source, o *options) (*Result, error) {
	began := time.Now()
	res := &Result{}

	var workflows []*SpanNode
	for _, id := range src.RunIDs() {
		run, err := src.Run(ctx, id)
		if err != nil {
			return nil, err
		}
		if run == nil {
			return nil, &MissingDataError{RunID: id}
		}
		o.metrics.RecordRunFetched(id, run.JobCount())

		for _, wf := range run.Workflows {
			var jobs []*SpanNode
			for _, job := range wf.Jobs {
				if run.IsQueued() || job.IsQueued() {
					continue
				}
				node, errs := BuildJobNode(job)
				res.Warnings = append(res.Warnings, errs...)
				jobs = append(jobs, node)
			}

			node, err := AggregateWorkflow(wf.Name, jobs)
			if err != nil {
				var empty *EmptyWorkflowError
				if errors.As(err, &empty) {
					empty.RunID = run.ID
				}
				res.Warnings = append(res.Warnings, err)
			}
			node.RunID = run.ID
			node.RunURL = run.URL
			workflows = append(workflows, node)
		}
	}

	res.Root = AssembleTrace(o.rootName, workflows)

	for _, w := range res.Warnings {
		o.metrics.RecordWarning(w)
	}
	if len(res.Warnings) > 0 {
		o.log.WarnContext(ctx, "trace reconstructed with warnings",
			"count", len(res.Warnings),
			"error", res.Warning(),
		)
	}
	o.metrics.RecordReconstruction(time.Since(began))
	return res, nil
}

// BuildAndEmit reconstructs the span tree from src and emits it to sink.
func BuildAndEmit(ctx context.Context, src Source, sink Sink, opts ...Option) (*Trace, error) {
	o := newOptions(opts)

	res, err := build(ctx, src, o)
	if err != nil {
		return nil, err
	}

	root := emitNode(ctx, sink, res.Root, func(n *SpanNode) {
		o.metrics.RecordSpanEmitted(n.Kind)
	})
	o.log.DebugContext(ctx, "trace emitted",
		"root", res.Root.Name,
		"workflows", len(res.Root.Children),
		"spans", res.Root.Count(),
	)
	return &Trace{Result: res, Root: root}, nil
}
