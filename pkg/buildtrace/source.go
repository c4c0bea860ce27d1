package buildtrace

import "context"

// Source supplies already-parsed workflow runs. Fetching, pagination and
// authentication against the CI provider are the source's responsibility.
type Source interface {
	// RunIDs returns the identifiers to reconstruct, in supplied order.
	RunIDs() []string
	// Run returns the run for id or a *MissingDataError.
	Run(ctx context.Context, id string) (*WorkflowRun, error)
}

// MapSource is an in-memory Source that preserves insertion order.
type MapSource struct {
	ids  []string
	runs map[string]*WorkflowRun
}

// NewMapSource returns a source serving runs in the given order.
func NewMapSource(runs ...*WorkflowRun) *MapSource {
	s := &MapSource{runs: make(map[string]*WorkflowRun, len(runs))}
	for _, run := range runs {
		s.Add(run)
	}
	return s
}

// Add appends run. Adding an ID twice replaces the stored run but keeps
// its original position.
func (s *MapSource) Add(run *WorkflowRun) {
	if run == nil {
		return
	}
	if !s.has(run.ID) {
		s.ids = append(s.ids, run.ID)
	}
	s.runs[run.ID] = run
}

// Request appends an identifier without data, so that Build reports it as
// missing.
func (s *MapSource) Request(id string) {
	if !s.has(id) {
		s.ids = append(s.ids, id)
	}
}

func (s *MapSource) has(id string) bool {
	for _, existing := range s.ids {
		if existing == id {
			return true
		}
	}
	return false
}

// RunIDs returns the run identifiers in insertion order.
func (s *MapSource) RunIDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Run returns the stored run.
func (s *MapSource) Run(_ context.Context, id string) (*WorkflowRun, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, &MissingDataError{RunID: id}
	}
	return run, nil
}
