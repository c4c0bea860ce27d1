package buildtrace

import "strconv"

// Kind identifies the level of a node in the trace tree.
type Kind int

const (
	KindRoot Kind = iota
	KindWorkflow
	KindJob
	KindStep
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindWorkflow:
		return "workflow"
	case KindJob:
		return "job"
	case KindStep:
		return "step"
	default:
		return "unknown"
	}
}

// CICD semantic-convention attribute keys.
const (
	AttrPipelineName       = "cicd.pipeline.name"
	AttrPipelineRunID      = "cicd.pipeline.run.id"
	AttrPipelineRunURL     = "cicd.pipeline.run.url.full"
	AttrPipelineTaskName   = "cicd.pipeline.task.name"
	AttrPipelineTaskRunID  = "cicd.pipeline.task.run.id"
	AttrPipelineTaskResult = "cicd.pipeline.task.run.result"
	AttrPipelineTaskStatus = "cicd.pipeline.task.run.status"
	AttrSpanKind           = "buildtrace.kind"
)

// Attribute is a string key/value pair attached to an emitted span.
type Attribute struct {
	Key   string
	Value string
}

// SpanNode is one node of the timing tree. A node is built once and is
// read-only afterwards; emitted span handles live in EmittedSpan.
type SpanNode struct {
	Name       string
	Kind       Kind
	Start      Timestamp
	End        Timestamp
	Status     string
	Conclusion string
	RunID      string
	RunURL     string
	JobID      int64
	Children   []*SpanNode
}

// Failed reports whether the node represents failed work.
func (n *SpanNode) Failed() bool {
	for _, v := range []string{n.Status, n.Conclusion} {
		switch v {
		case ConclusionFailure, ConclusionTimedOut, ConclusionStartupFailure:
			return true
		}
	}
	return false
}

// FailureReason returns the text attached to the sink's failure marker.
func (n *SpanNode) FailureReason() string {
	if n.Conclusion != "" {
		return n.Conclusion
	}
	return n.Status
}

// Walk visits n and its descendants in pre-order. Returning false from fn
// skips the node's children.
func (n *SpanNode) Walk(fn func(node, parent *SpanNode) bool) {
	n.walk(nil, fn)
}

func (n *SpanNode) walk(parent *SpanNode, fn func(node, parent *SpanNode) bool) {
	if !fn(n, parent) {
		return
	}
	for _, child := range n.Children {
		child.walk(n, fn)
	}
}

// Count returns the number of nodes in the subtree rooted at n.
func (n *SpanNode) Count() int {
	count := 0
	n.Walk(func(*SpanNode, *SpanNode) bool {
		count++
		return true
	})
	return count
}

// Attributes returns the span attributes for the node.
func (n *SpanNode) Attributes() []Attribute {
	attrs := []Attribute{{Key: AttrSpanKind, Value: n.Kind.String()}}
	switch n.Kind {
	case KindWorkflow:
		attrs = append(attrs, Attribute{Key: AttrPipelineName, Value: n.Name})
		if n.RunID != "" {
			attrs = append(attrs, Attribute{Key: AttrPipelineRunID, Value: n.RunID})
		}
		if n.RunURL != "" {
			attrs = append(attrs, Attribute{Key: AttrPipelineRunURL, Value: n.RunURL})
		}
	case KindJob, KindStep:
		attrs = append(attrs, Attribute{Key: AttrPipelineTaskName, Value: n.Name})
		if n.JobID != 0 {
			attrs = append(attrs, Attribute{Key: AttrPipelineTaskRunID, Value: strconv.FormatInt(n.JobID, 10)})
		}
		if n.Status != "" {
			attrs = append(attrs, Attribute{Key: AttrPipelineTaskStatus, Value: n.Status})
		}
		if n.Conclusion != "" {
			attrs = append(attrs, Attribute{Key: AttrPipelineTaskResult, Value: n.Conclusion})
		}
	}
	return attrs
}
