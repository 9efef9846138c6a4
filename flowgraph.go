package flowgraph

import (
	"context"
	"database/sql"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/flowgraph/internal/engine"
	"github.com/petrijr/flowgraph/internal/graphfile"
	"github.com/petrijr/flowgraph/internal/persistence"
	"github.com/petrijr/flowgraph/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine         = api.Engine
	Graph          = api.Graph
	Node           = api.Node
	Edge           = api.Edge
	Port           = api.Port
	NodeKind       = api.NodeKind
	EdgeKind       = api.EdgeKind
	BranchLabel    = api.BranchLabel
	GraphError     = api.GraphError
	Run            = api.Run
	RunState       = api.RunState
	ExecutionState = api.ExecutionState
	RunListOptions = api.RunListOptions
	LogEntry       = api.LogEntry

	CapabilityRef   = api.CapabilityRef
	Invoker         = api.Invoker
	InvokerFunc     = api.InvokerFunc
	CapabilityError = api.CapabilityError
	Manifest        = api.Manifest
	PortSpec        = api.PortSpec
	Constraints     = api.Constraints
	RetryPolicy     = api.RetryPolicy

	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver

	StatusEvent = api.StatusEvent
	StatusFeed  = api.StatusFeed
	Message     = api.Message
	MessageSink = api.MessageSink
	BufferSink  = api.BufferSink
	BufferFeed  = api.BufferFeed
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	NewCompositeSink     = api.NewCompositeSink
)

// Re-export node kinds, run states, and node states for convenience.

const (
	NodeAgent     = api.NodeAgent
	NodeCondition = api.NodeCondition
	NodeInput     = api.NodeInput
	NodeOutput    = api.NodeOutput

	EdgeData    = api.EdgeData
	EdgeControl = api.EdgeControl
	EdgeEvent   = api.EdgeEvent

	BranchTrue  = api.BranchTrue
	BranchFalse = api.BranchFalse

	RunRunning   = api.RunRunning
	RunCompleted = api.RunCompleted
	RunFailed    = api.RunFailed
	RunCancelled = api.RunCancelled

	StateIdle      = api.StateIdle
	StatePending   = api.StatePending
	StateRunning   = api.StateRunning
	StateCompleted = api.StateCompleted
	StateFailed    = api.StateFailed
	StateSkipped   = api.StateSkipped
	StateCancelled = api.StateCancelled
)

// EngineConfig carries the optional knobs shared by all engine backends.
// The zero value is usable: no observer, no feed, no sink, no node timeout,
// unlimited per-run concurrency.
type EngineConfig struct {
	// Observer receives run and node lifecycle callbacks.
	Observer Observer

	// Feed receives status events for UIs as nodes transition.
	Feed StatusFeed

	// Sink receives protocol messages (task lifecycle, heartbeats,
	// capability announcements).
	Sink MessageSink

	// DefaultTimeout applies to nodes whose config does not set one.
	// Zero means no timeout.
	DefaultTimeout time.Duration

	// MaxConcurrent caps parallel node executions per run. Zero means
	// unlimited.
	MaxConcurrent int
}

func (c EngineConfig) internal(p *persistence.Persistence) engine.Config {
	return engine.Config{
		Persistence:    p,
		Observer:       c.Observer,
		Feed:           c.Feed,
		Sink:           c.Sink,
		DefaultTimeout: c.DefaultTimeout,
		MaxConcurrent:  c.MaxConcurrent,
	}
}

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine() Engine {
	return engine.NewInMemoryEngine()
}

// NewInMemoryEngineWithConfig returns an in-memory Engine with the given
// configuration.
func NewInMemoryEngineWithConfig(cfg EngineConfig) Engine {
	return engine.NewEngineWithConfig(cfg.internal(persistence.NewInMemoryPersistence()))
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given
// Observer.
func NewInMemoryEngineWithObserver(obs Observer) Engine {
	return NewInMemoryEngineWithConfig(EngineConfig{Observer: obs})
}

// NewSQLiteEngine returns an Engine that persists graphs and runs in a
// SQLite database.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	return engine.NewSQLiteEngine(db)
}

// NewSQLiteEngineWithConfig returns a SQLite-backed Engine with the given
// configuration.
func NewSQLiteEngineWithConfig(db *sql.DB, cfg EngineConfig) (Engine, error) {
	p, err := persistence.NewSQLitePersistence(db)
	if err != nil {
		return nil, err
	}
	return engine.NewEngineWithConfig(cfg.internal(p)), nil
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given
// Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	return NewSQLiteEngineWithConfig(db, EngineConfig{Observer: obs})
}

// NewPostgresEngine returns an Engine that persists graphs and runs in
// PostgreSQL.
func NewPostgresEngine(db *sql.DB) (Engine, error) {
	return engine.NewPostgresEngine(db)
}

// NewPostgresEngineWithConfig returns a Postgres-backed Engine with the
// given configuration.
func NewPostgresEngineWithConfig(db *sql.DB, cfg EngineConfig) (Engine, error) {
	p, err := persistence.NewPostgresPersistence(db)
	if err != nil {
		return nil, err
	}
	return engine.NewEngineWithConfig(cfg.internal(p)), nil
}

// NewPostgresEngineWithObserver returns a Postgres-backed Engine with the
// given Observer.
func NewPostgresEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	return NewPostgresEngineWithConfig(db, EngineConfig{Observer: obs})
}

// NewRedisEngine returns an Engine that persists graphs and runs in Redis.
func NewRedisEngine(client *redis.Client) Engine {
	return engine.NewRedisEngine(client)
}

// NewRedisEngineWithConfig returns a Redis-backed Engine with the given
// configuration.
func NewRedisEngineWithConfig(client *redis.Client, cfg EngineConfig) Engine {
	return engine.NewEngineWithConfig(cfg.internal(persistence.NewRedisPersistence(client, "flowgraph:")))
}

// NewRedisEngineWithObserver returns a Redis-backed Engine with the given
// Observer.
func NewRedisEngineWithObserver(client *redis.Client, obs Observer) Engine {
	return NewRedisEngineWithConfig(client, EngineConfig{Observer: obs})
}

// Graph file helpers, re-exported from the YAML codec.

// LoadGraph reads and validates a graph definition from a YAML file.
func LoadGraph(path string) (Graph, error) {
	return graphfile.Load(path)
}

// SaveGraph writes a graph definition to a YAML file.
func SaveGraph(path string, g Graph) error {
	return graphfile.Save(path, g)
}

// ParseGraph decodes and validates a YAML graph document.
func ParseGraph(r io.Reader) (Graph, error) {
	return graphfile.Parse(r)
}

// EncodeGraph writes a graph definition as YAML.
func EncodeGraph(w io.Writer, g Graph) error {
	return graphfile.Encode(w, g)
}

// Convenience helpers that just forward to the underlying Engine.

// StartRun runs a registered graph synchronously to a terminal state.
func StartRun(ctx context.Context, eng Engine, graphName string, seed map[string]any) (*Run, error) {
	return eng.StartRun(ctx, graphName, seed)
}

// CancelRun requests cooperative cancellation of an in-flight run.
func CancelRun(ctx context.Context, eng Engine, runID string) error {
	return eng.CancelRun(ctx, runID)
}

// GetRun fetches a run record by ID.
func GetRun(ctx context.Context, eng Engine, id string) (*Run, error) {
	return eng.GetRun(ctx, id)
}

// ListRuns lists run records according to the given options.
func ListRuns(ctx context.Context, eng Engine, opts RunListOptions) ([]*Run, error) {
	return eng.ListRuns(ctx, opts)
}
