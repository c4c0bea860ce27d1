package buildtrace

import "context"

// Handle is an opaque span reference returned by a Sink.
type Handle any

// Sink receives span lifecycle calls. Calls are issued in tree order: a
// span is started after its parent and ended after all of its children.
// Unset timestamps mean the sink should use its own notion of "now".
type Sink interface {
	// StartSpan starts a span as a child of the span carried by ctx and
	// returns a context carrying the new span.
	StartSpan(ctx context.Context, name string, start Timestamp, attrs []Attribute) (context.Context, Handle)
	// EndSpan ends the span.
	EndSpan(h Handle, end Timestamp)
	// SetFailure marks the span as failed.
	SetFailure(h Handle, reason string)
}

// EmittedSpan pairs a timing node with the handle the sink returned for it.
type EmittedSpan struct {
	Node     *SpanNode
	Handle   Handle
	Children []*EmittedSpan
}

// Find returns the first emitted span in pre-order whose node matches kind
// and name.
func (e *EmittedSpan) Find(kind Kind, name string) *EmittedSpan {
	if e.Node.Kind == kind && e.Node.Name == name {
		return e
	}
	for _, child := range e.Children {
		if found := child.Find(kind, name); found != nil {
			return found
		}
	}
	return nil
}

// Emit walks the tree rooted at root and reports every node to sink. The
// root is started from ctx, so a span already carried by ctx becomes its
// parent. The timing tree is not modified.
func Emit(ctx context.Context, sink Sink, root *SpanNode) *EmittedSpan {
	return emitNode(ctx, sink, root, nil)
}

func emitNode(ctx context.Context, sink Sink, node *SpanNode, observe func(*SpanNode)) *EmittedSpan {
	childCtx, handle := sink.StartSpan(ctx, node.Name, node.Start, node.Attributes())
	emitted := &EmittedSpan{
		Node:     node,
		Handle:   handle,
		Children: make([]*EmittedSpan, 0, len(node.Children)),
	}

	for _, child := range node.Children {
		emitted.Children = append(emitted.Children, emitNode(childCtx, sink, child, observe))
	}

	if node.Failed() {
		sink.SetFailure(handle, node.FailureReason())
	}
	sink.EndSpan(handle, node.End)
	if observe != nil {
		observe(node)
	}
	return emitted
}
