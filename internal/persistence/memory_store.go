package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/petrijr/flowgraph/pkg/api"
)

// InMemoryGraphStore is a GraphStore backed by a map. Safe for concurrent
// use.
type InMemoryGraphStore struct {
	mu     sync.RWMutex
	graphs map[string]api.Graph
}

var _ GraphStore = (*InMemoryGraphStore)(nil)

func NewInMemoryGraphStore() *InMemoryGraphStore {
	return &InMemoryGraphStore{graphs: make(map[string]api.Graph)}
}

func (s *InMemoryGraphStore) SaveGraph(ctx context.Context, g api.Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graphs[g.Name] = g
	return nil
}

func (s *InMemoryGraphStore) GetGraph(ctx context.Context, name string) (api.Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.graphs[name]
	if !ok {
		return api.Graph{}, ErrGraphNotFound
	}
	return g, nil
}

func (s *InMemoryGraphStore) ListGraphs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.graphs))
	for name := range s.graphs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// InMemoryRunStore is a RunStore backed by a map. Records are copied on
// the way in and out so callers cannot mutate stored state.
type InMemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]*api.Run
}

var _ RunStore = (*InMemoryRunStore)(nil)

func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{runs: make(map[string]*api.Run)}
}

func (s *InMemoryRunStore) SaveRun(ctx context.Context, run *api.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = copyRun(run)
	return nil
}

func (s *InMemoryRunStore) UpdateRun(ctx context.Context, run *api.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return ErrRunNotFound
	}
	s.runs[run.ID] = copyRun(run)
	return nil
}

func (s *InMemoryRunStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return copyRun(run), nil
}

func (s *InMemoryRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*api.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*api.Run
	for _, run := range s.runs {
		if filter.GraphName != "" && run.GraphName != filter.GraphName {
			continue
		}
		if filter.State != "" && run.State != filter.State {
			continue
		}
		out = append(out, copyRun(run))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func copyRun(run *api.Run) *api.Run {
	c := *run
	c.NodeStates = make(map[string]api.ExecutionState, len(run.NodeStates))
	for k, v := range run.NodeStates {
		c.NodeStates[k] = v
	}
	c.Seed = copyMap(run.Seed)
	c.Outputs = copyMap(run.Outputs)
	c.Log = make([]api.LogEntry, len(run.Log))
	copy(c.Log, run.Log)
	return &c
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
