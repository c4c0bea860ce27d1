package buildtrace

// AggregateWorkflow folds the job nodes of one workflow execution into a
// workflow node.
//
// Start is the earliest resolved job start and end the latest resolved job
// end; unset job bounds are ignored. When no job has a resolved start or
// end, the workflow node is returned with unset bounds together with an
// *EmptyWorkflowError. Callers should still emit that node.
func AggregateWorkflow(name string, jobs []*SpanNode) (*SpanNode, error) {
	node := &SpanNode{
		Name:     name,
		Kind:     KindWorkflow,
		Children: jobs,
	}

	starts := make([]Timestamp, 0, len(jobs))
	ends := make([]Timestamp, 0, len(jobs))
	for _, job := range jobs {
		starts = append(starts, job.Start)
		ends = append(ends, job.End)
	}
	node.Start = MinOf(starts...)
	node.End = MaxOf(ends...)

	if !node.Start.IsSet() && !node.End.IsSet() {
		return node, &EmptyWorkflowError{Workflow: name}
	}
	node.End = clampEnd(node.Start, node.End)
	return node, nil
}
