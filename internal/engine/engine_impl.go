// Package engine implements the run control surface: it stores graphs,
// resolves capabilities, and drives runs through the scheduler.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/petrijr/flowgraph/internal/executor"
	"github.com/petrijr/flowgraph/internal/graph"
	"github.com/petrijr/flowgraph/internal/persistence"
	"github.com/petrijr/flowgraph/internal/runctx"
	"github.com/petrijr/flowgraph/internal/scheduler"
	"github.com/petrijr/flowgraph/pkg/api"
)

// engineImpl is a synchronous, in-process engine implementation.
type engineImpl struct {
	store    *persistence.Persistence
	registry *api.Registry
	observer api.Observer
	feed     api.StatusFeed
	sink     api.MessageSink

	defaultTimeout time.Duration
	maxConcurrent  int

	mu     sync.Mutex
	active map[string]*scheduler.Scheduler
}

// Config describes how to construct an engineImpl.
// Only used inside this package; external callers use the helper functions.
type Config struct {
	Persistence *persistence.Persistence
	Observer    api.Observer
	Feed        api.StatusFeed
	Sink        api.MessageSink
	Registry    *api.Registry

	// DefaultTimeout applies to nodes whose config does not set one.
	DefaultTimeout time.Duration

	// MaxConcurrent caps parallel node executions per run. Zero means
	// unlimited.
	MaxConcurrent int
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	feed := cfg.Feed
	if feed == nil {
		feed = api.NoopFeed{}
	}
	sink := cfg.Sink
	if sink == nil {
		sink = api.NoopSink{}
	}
	reg := cfg.Registry
	if reg == nil {
		reg = api.NewRegistry(sink)
	}
	store := cfg.Persistence
	if store == nil {
		store = persistence.NewInMemoryPersistence()
	}
	return &engineImpl{
		store:          store,
		registry:       reg,
		observer:       obs,
		feed:           feed,
		sink:           sink,
		defaultTimeout: cfg.DefaultTimeout,
		maxConcurrent:  cfg.MaxConcurrent,
		active:         make(map[string]*scheduler.Scheduler),
	}
}

// NewEngine returns an Engine backed by the given persistence bundle.
func NewEngine(p *persistence.Persistence) api.Engine {
	return NewEngineWithConfig(Config{Persistence: p})
}

// NewInMemoryEngine returns an Engine with no durable state. External
// users access this via flowgraph.NewInMemoryEngine.
func NewInMemoryEngine() api.Engine {
	return NewEngine(persistence.NewInMemoryPersistence())
}

// NewSQLiteEngine returns an Engine persisting graphs and runs in SQLite.
func NewSQLiteEngine(db *sql.DB) (api.Engine, error) {
	p, err := persistence.NewSQLitePersistence(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(p), nil
}

// NewPostgresEngine returns an Engine persisting graphs and runs in
// PostgreSQL.
func NewPostgresEngine(db *sql.DB) (api.Engine, error) {
	p, err := persistence.NewPostgresPersistence(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(p), nil
}

// NewRedisEngine returns an Engine persisting graphs and runs in Redis.
func NewRedisEngine(client *redis.Client) api.Engine {
	return NewEngine(persistence.NewRedisPersistence(client, "flowgraph:"))
}

func (e *engineImpl) RegisterGraph(g api.Graph) error {
	if g.Name == "" {
		return errors.New("graph name is required")
	}
	if len(g.Nodes) == 0 {
		return errors.New("graph must have at least one node")
	}
	if err := graph.Validate(&g); err != nil {
		return err
	}

	ctx := context.Background()
	if _, err := e.store.Graphs.GetGraph(ctx, g.Name); err == nil {
		return fmt.Errorf("graph already registered: %s", g.Name)
	} else if !errors.Is(err, persistence.ErrGraphNotFound) {
		return err
	}

	return e.store.Graphs.SaveGraph(ctx, g)
}

func (e *engineImpl) RegisterCapability(m api.Manifest, inv api.Invoker) error {
	return e.registry.Register(m, inv)
}

func (e *engineImpl) StartRun(ctx context.Context, graphName string, seed map[string]any) (*api.Run, error) {
	g, err := e.store.Graphs.GetGraph(ctx, graphName)
	if err != nil {
		if errors.Is(err, persistence.ErrGraphNotFound) {
			return nil, fmt.Errorf("unknown graph: %s", graphName)
		}
		return nil, err
	}

	// Graphs are validated at registration, and again here: definitions
	// loaded from an external store may have been written by older code.
	if err := graph.Validate(&g); err != nil {
		return nil, err
	}

	run := &api.Run{
		ID:         uuid.NewString(),
		GraphName:  g.Name,
		State:      api.RunRunning,
		NodeStates: make(map[string]api.ExecutionState, len(g.Nodes)),
		Seed:       seed,
		StartedAt:  time.Now(),
	}
	for _, n := range g.Nodes {
		run.NodeStates[n.ID] = api.StateIdle
	}

	e.observer.OnRunStart(ctx, run)
	if err := e.store.Runs.SaveRun(ctx, run); err != nil {
		run.State = api.RunFailed
		run.Err = err
		e.observer.OnRunFailed(ctx, run, err)
		return run, err
	}

	rc := runctx.New(run.ID)
	exec := executor.New(e.registry, e.sink, executor.Options{DefaultTimeout: e.defaultTimeout})
	sched := scheduler.New(&g, exec, rc, run, seed, e.observer, e.feed,
		scheduler.Options{MaxConcurrent: e.maxConcurrent})

	e.mu.Lock()
	e.active[run.ID] = sched
	e.mu.Unlock()

	runErr := sched.Run(ctx)

	e.mu.Lock()
	delete(e.active, run.ID)
	e.mu.Unlock()

	if err := e.store.Runs.UpdateRun(ctx, run); err != nil && runErr == nil {
		runErr = err
		run.State = api.RunFailed
		run.Err = err
	}

	switch run.State {
	case api.RunCompleted:
		e.observer.OnRunCompleted(ctx, run)
	case api.RunCancelled:
		e.observer.OnRunCancelled(ctx, run)
	default:
		e.observer.OnRunFailed(ctx, run, runErr)
	}

	return run, runErr
}

func (e *engineImpl) CancelRun(ctx context.Context, runID string) error {
	e.mu.Lock()
	sched, ok := e.active[runID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("run not active: %s", runID)
	}
	sched.Cancel()
	return nil
}

func (e *engineImpl) GetRun(ctx context.Context, id string) (*api.Run, error) {
	run, err := e.store.Runs.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrRunNotFound) {
			return nil, fmt.Errorf("run not found: %s", id)
		}
		return nil, err
	}
	return run, nil
}

func (e *engineImpl) ListRuns(ctx context.Context, opts api.RunListOptions) ([]*api.Run, error) {
	filter := persistence.RunFilter{
		GraphName: opts.GraphName,
		State:     opts.State,
	}
	return e.store.Runs.ListRuns(ctx, filter)
}

var _ api.Engine = (*engineImpl)(nil)
