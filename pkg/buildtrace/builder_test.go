package buildtrace

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func ts(offset time.Duration) *string {
	s := t0.Add(offset).Format(time.RFC3339)
	return &s
}

func at(offset time.Duration) Timestamp {
	return FromTime(t0.Add(offset))
}

func TestBuildJobNode(t *testing.T) {
	job := Job{
		ID:          42,
		Name:        "build",
		Status:      StatusCompleted,
		Conclusion:  strPtr("success"),
		StartedAt:   ts(0),
		CompletedAt: ts(5 * time.Minute),
		Steps: []Step{
			{Name: "checkout", Status: StatusCompleted, Conclusion: strPtr("success"), StartedAt: ts(0), CompletedAt: ts(time.Minute)},
			{Name: "compile", Status: StatusCompleted, Conclusion: strPtr("failure"), StartedAt: ts(time.Minute), CompletedAt: ts(5 * time.Minute)},
		},
	}

	node, errs := BuildJobNode(job)
	require.Empty(t, errs)

	assert.Equal(t, "build", node.Name)
	assert.Equal(t, KindJob, node.Kind)
	assert.Equal(t, at(0), node.Start)
	assert.Equal(t, at(5*time.Minute), node.End)
	assert.Equal(t, "success", node.Conclusion)
	require.Len(t, node.Children, 2)

	compile := node.Children[1]
	assert.Equal(t, "compile", compile.Name)
	assert.Equal(t, KindStep, compile.Kind)
	assert.Equal(t, at(time.Minute), compile.Start)
	assert.Equal(t, at(5*time.Minute), compile.End)
	assert.True(t, compile.Failed())
	assert.Equal(t, "failure", compile.FailureReason())
	assert.False(t, node.Failed())
}

func TestBuildJobNode_BoundsComeFromJobRecord(t *testing.T) {
	job := Job{
		Name:      "test",
		Status:    StatusInProgress,
		StartedAt: ts(time.Minute),
		Steps: []Step{
			{Name: "setup", Status: StatusCompleted, StartedAt: ts(time.Minute), CompletedAt: ts(2 * time.Minute)},
		},
	}

	node, errs := BuildJobNode(job)
	require.Empty(t, errs)
	assert.Equal(t, at(time.Minute), node.Start)
	assert.False(t, node.End.IsSet(), "job end must not be derived from steps")
}

func TestBuildJobNode_SkipsQueuedSteps(t *testing.T) {
	job := Job{
		Name:      "deploy",
		Status:    StatusInProgress,
		StartedAt: ts(0),
		Steps: []Step{
			{Name: "prepare", Status: StatusCompleted, StartedAt: ts(0), CompletedAt: ts(time.Second)},
			{Name: "rollout", Status: StatusInProgress, StartedAt: ts(time.Second)},
			{Name: "verify", Status: StatusQueued},
		},
	}

	node, _ := BuildJobNode(job)
	require.Len(t, node.Children, 2)
	assert.Equal(t, "prepare", node.Children[0].Name)
	assert.Equal(t, "rollout", node.Children[1].Name)
	assert.False(t, node.Children[1].End.IsSet())
}

func TestBuildJobNode_MalformedTimestampBecomesUnset(t *testing.T) {
	job := Job{
		Name:        "lint",
		Status:      StatusCompleted,
		StartedAt:   strPtr("garbage"),
		CompletedAt: ts(time.Minute),
		Steps: []Step{
			{Name: "run", Status: StatusCompleted, StartedAt: ts(0), CompletedAt: strPtr("also garbage")},
		},
	}

	node, errs := BuildJobNode(job)
	require.Len(t, errs, 2)
	assert.False(t, node.Start.IsSet())
	assert.Equal(t, at(time.Minute), node.End)
	assert.False(t, node.Children[0].End.IsSet())

	var fe *FormatError
	require.True(t, errors.As(errs[0], &fe))
	assert.Equal(t, "lint started_at", fe.Field)
	require.True(t, errors.As(errs[1], &fe))
	assert.Equal(t, "lint/run completed_at", fe.Field)
}

func TestBuildJobNode_StartNeverAfterEnd(t *testing.T) {
	job := Job{
		Name:        "skewed",
		Status:      StatusCompleted,
		StartedAt:   ts(time.Minute),
		CompletedAt: ts(0),
		Steps: []Step{
			{Name: "early", Status: StatusCompleted, StartedAt: ts(-time.Minute), CompletedAt: ts(30 * time.Second)},
			{Name: "late", Status: StatusCompleted, StartedAt: ts(time.Minute), CompletedAt: ts(2 * time.Minute)},
		},
	}

	node, _ := BuildJobNode(job)
	assertWellFormed(t, node)
}

func TestAggregateWorkflow(t *testing.T) {
	jobs := []*SpanNode{
		{Name: "a", Kind: KindJob, Start: at(time.Minute), End: at(3 * time.Minute)},
		{Name: "b", Kind: KindJob, Start: at(0), End: at(2 * time.Minute)},
		{Name: "c", Kind: KindJob, Start: at(4 * time.Minute)},
		{Name: "d", Kind: KindJob},
	}

	wf, err := AggregateWorkflow("ci", jobs)
	require.NoError(t, err)
	assert.Equal(t, "ci", wf.Name)
	assert.Equal(t, KindWorkflow, wf.Kind)
	assert.Equal(t, at(0), wf.Start)
	assert.Equal(t, at(3*time.Minute), wf.End)
	assert.Len(t, wf.Children, 4)
}

func TestAggregateWorkflow_Empty(t *testing.T) {
	tests := []struct {
		name string
		jobs []*SpanNode
	}{
		{"no jobs", nil},
		{"no timing", []*SpanNode{{Name: "a", Kind: KindJob}, {Name: "b", Kind: KindJob}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf, err := AggregateWorkflow("deploy", tt.jobs)
			require.Error(t, err)
			require.NotNil(t, wf, "degenerate node must still be returned")

			var empty *EmptyWorkflowError
			require.True(t, errors.As(err, &empty))
			assert.Equal(t, "deploy", empty.Workflow)
			assert.False(t, wf.Start.IsSet())
			assert.False(t, wf.End.IsSet())
			assert.Len(t, wf.Children, len(tt.jobs))
		})
	}
}

func TestAggregateWorkflow_StillRunning(t *testing.T) {
	wf, err := AggregateWorkflow("ci", []*SpanNode{
		{Name: "a", Kind: KindJob, Start: at(0)},
	})
	require.NoError(t, err)
	assert.Equal(t, at(0), wf.Start)
	assert.False(t, wf.End.IsSet())
}

func TestAggregateWorkflow_InProgressJobDoesNotHoldEnd(t *testing.T) {
	wf, err := AggregateWorkflow("ci", []*SpanNode{
		{Name: "lint", Kind: KindJob, Start: at(0), End: at(time.Minute)},
		{Name: "test", Kind: KindJob, Start: at(30 * time.Second), Status: StatusInProgress},
	})
	require.NoError(t, err)
	assert.Equal(t, at(0), wf.Start)
	assert.Equal(t, at(time.Minute), wf.End)

	root := AssembleTrace("", []*SpanNode{wf})
	assert.Equal(t, at(time.Minute), root.End)
}

func TestAssembleTrace(t *testing.T) {
	first := &SpanNode{Name: "ci", Kind: KindWorkflow, Start: at(time.Minute), End: at(5 * time.Minute)}
	second := &SpanNode{Name: "deploy", Kind: KindWorkflow, Start: at(0), End: at(10 * time.Minute)}

	root := AssembleTrace("", []*SpanNode{first, second})
	assert.Equal(t, DefaultRootName, root.Name)
	assert.Equal(t, KindRoot, root.Kind)
	require.Len(t, root.Children, 2)
	assert.Same(t, first, root.Children[0])
	assert.Same(t, second, root.Children[1])
	assert.Equal(t, at(0).UnixNano()-1, root.Start.UnixNano())
	assert.Equal(t, at(10*time.Minute), root.End)
}

func TestAssembleTrace_OpenWorkflowLeavesRootOpen(t *testing.T) {
	root := AssembleTrace("release", []*SpanNode{
		{Name: "ci", Kind: KindWorkflow, Start: at(0), End: at(time.Minute)},
		{Name: "deploy", Kind: KindWorkflow, Start: at(2 * time.Minute)},
	})
	assert.Equal(t, "release", root.Name)
	assert.True(t, root.Start.IsSet())
	assert.False(t, root.End.IsSet())
}

func TestAssembleTrace_NoTiming(t *testing.T) {
	root := AssembleTrace("", []*SpanNode{{Name: "ci", Kind: KindWorkflow}})
	assert.False(t, root.Start.IsSet())
	assert.False(t, root.End.IsSet())
}

func TestSpanNode_Attributes(t *testing.T) {
	wf := &SpanNode{Name: "ci", Kind: KindWorkflow, RunID: "7", RunURL: "https://example.test/runs/7"}
	assert.Contains(t, wf.Attributes(), Attribute{Key: AttrPipelineName, Value: "ci"})
	assert.Contains(t, wf.Attributes(), Attribute{Key: AttrPipelineRunID, Value: "7"})

	job := &SpanNode{Name: "build", Kind: KindJob, JobID: 12, Status: StatusCompleted, Conclusion: "success"}
	attrs := job.Attributes()
	assert.Contains(t, attrs, Attribute{Key: AttrSpanKind, Value: "job"})
	assert.Contains(t, attrs, Attribute{Key: AttrPipelineTaskRunID, Value: "12"})
	assert.Contains(t, attrs, Attribute{Key: AttrPipelineTaskResult, Value: "success"})
}

// assertWellFormed checks start <= end and containment for every resolved
// parent/child pair below n.
func assertWellFormed(t *testing.T, n *SpanNode) {
	t.Helper()
	n.Walk(func(node, parent *SpanNode) bool {
		if node.Start.IsSet() && node.End.IsSet() {
			assert.False(t, node.End.Before(node.Start), "%s: end before start", node.Name)
		}
		if parent != nil {
			if node.Start.IsSet() && parent.Start.IsSet() {
				assert.False(t, node.Start.Before(parent.Start), "%s starts before parent %s", node.Name, parent.Name)
			}
			if node.End.IsSet() && parent.End.IsSet() {
				assert.False(t, node.End.After(parent.End), "%s ends after parent %s", node.Name, parent.Name)
			}
		}
		return true
	})
}
