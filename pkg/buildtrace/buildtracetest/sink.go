// Package buildtracetest provides a recording Sink for tests.
package buildtracetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/buildtrace/buildtrace/pkg/buildtrace"
)

// Op is a recorded sink operation.
type Op string

const (
	OpStart   Op = "start"
	OpEnd     Op = "end"
	OpFailure Op = "failure"
)

// Call is one recorded sink call.
type Call struct {
	Op     Op
	Span   *Span
	Time   buildtrace.Timestamp
	Reason string
}

func (c Call) String() string {
	return fmt.Sprintf("%s %s", c.Op, c.Span.Name)
}

// Span is the handle returned by RecordingSink.
type Span struct {
	ID         int
	Name       string
	Parent     *Span
	Start      buildtrace.Timestamp
	End        buildtrace.Timestamp
	Attributes []buildtrace.Attribute
	Failed     bool
	Reason     string
	Ended      bool
}

type spanKey struct{}

// RecordingSink records every call in order.
type RecordingSink struct {
	mu    sync.Mutex
	calls []Call
	spans []*Span
}

// NewRecordingSink returns an empty recording sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// StartSpan records a span start. The parent is taken from ctx.
func (s *RecordingSink) StartSpan(ctx context.Context, name string, start buildtrace.Timestamp, attrs []buildtrace.Attribute) (context.Context, buildtrace.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, _ := ctx.Value(spanKey{}).(*Span)
	span := &Span{
		ID:         len(s.spans) + 1,
		Name:       name,
		Parent:     parent,
		Start:      start,
		Attributes: attrs,
	}
	s.spans = append(s.spans, span)
	s.calls = append(s.calls, Call{Op: OpStart, Span: span, Time: start})
	return context.WithValue(ctx, spanKey{}, span), span
}

// EndSpan records a span end.
func (s *RecordingSink) EndSpan(h buildtrace.Handle, end buildtrace.Timestamp) {
	s.mu.Lock()
	defer s.mu.Unlock()

	span := h.(*Span)
	span.End = end
	span.Ended = true
	s.calls = append(s.calls, Call{Op: OpEnd, Span: span, Time: end})
}

// SetFailure records a failure marker.
func (s *RecordingSink) SetFailure(h buildtrace.Handle, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	span := h.(*Span)
	span.Failed = true
	span.Reason = reason
	s.calls = append(s.calls, Call{Op: OpFailure, Span: span, Reason: reason})
}

// Calls returns a copy of the recorded calls.
func (s *RecordingSink) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Spans returns the recorded spans in start order.
func (s *RecordingSink) Spans() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Span, len(s.spans))
	copy(out, s.spans)
	return out
}

// Span returns the first span with the given name, or nil.
func (s *RecordingSink) Span(name string) *Span {
	for _, span := range s.Spans() {
		if span.Name == name {
			return span
		}
	}
	return nil
}

// CheckNesting verifies that spans were started after their parents and
// ended after all of their children.
func (s *RecordingSink) CheckNesting() error {
	started := make(map[*Span]bool)
	ended := make(map[*Span]bool)
	open := make(map[*Span]int)

	for i, call := range s.Calls() {
		span := call.Span
		switch call.Op {
		case OpStart:
			if span.Parent != nil {
				if !started[span.Parent] {
					return fmt.Errorf("call %d: %q started before parent %q", i, span.Name, span.Parent.Name)
				}
				if ended[span.Parent] {
					return fmt.Errorf("call %d: %q started after parent %q ended", i, span.Name, span.Parent.Name)
				}
				open[span.Parent]++
			}
			started[span] = true
		case OpEnd:
			if open[span] != 0 {
				return fmt.Errorf("call %d: %q ended with %d open children", i, span.Name, open[span])
			}
			if span.Parent != nil {
				open[span.Parent]--
			}
			ended[span] = true
		case OpFailure:
			if ended[span] {
				return fmt.Errorf("call %d: failure set on ended span %q", i, span.Name)
			}
		}
	}
	for span := range started {
		if !ended[span] {
			return fmt.Errorf("span %q never ended", span.Name)
		}
	}
	return nil
}
