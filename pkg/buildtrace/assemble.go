package buildtrace

// DefaultRootName names the synthetic root span.
const DefaultRootName = "build and deploy"

// AssembleTrace places workflow nodes under a synthetic root node.
//
// Children keep the supplied order. The root starts one nanosecond before
// the earliest workflow so that it strictly contains every child. The root
// end is the latest workflow end, or unset while any workflow is still
// open.
func AssembleTrace(name string, workflows []*SpanNode) *SpanNode {
	if name == "" {
		name = DefaultRootName
	}
	root := &SpanNode{
		Name:     name,
		Kind:     KindRoot,
		Children: workflows,
	}

	starts := make([]Timestamp, 0, len(workflows))
	ends := make([]Timestamp, 0, len(workflows))
	open := false
	for _, wf := range workflows {
		starts = append(starts, wf.Start)
		ends = append(ends, wf.End)
		if !wf.End.IsSet() {
			open = true
		}
	}

	root.Start = MinOf(starts...).Add(-1)
	if !open {
		root.End = clampEnd(root.Start, MaxOf(ends...))
	}
	return root
}
