// Package persistence defines the storage interfaces used by the engine
// and provides in-memory, SQLite, PostgreSQL, and Redis implementations.
package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/flowgraph/pkg/api"
)

var (
	// ErrGraphNotFound is returned when a graph definition is not found.
	ErrGraphNotFound = errors.New("graph not found")

	// ErrRunNotFound is returned when a run record is not found.
	ErrRunNotFound = errors.New("run not found")
)

// GraphStore handles storage of graph definitions.
type GraphStore interface {
	// SaveGraph stores a graph definition by name, replacing any previous
	// definition with the same name.
	SaveGraph(ctx context.Context, g api.Graph) error
	GetGraph(ctx context.Context, name string) (api.Graph, error)
	ListGraphs(ctx context.Context) ([]string, error)
}

// RunFilter selects runs from the store. Empty string / zero state mean
// "no filter" for that field.
type RunFilter struct {
	GraphName string
	State     api.RunState
}

// RunStore handles storage of run records.
type RunStore interface {
	SaveRun(ctx context.Context, run *api.Run) error
	UpdateRun(ctx context.Context, run *api.Run) error
	GetRun(ctx context.Context, id string) (*api.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*api.Run, error)
}

// Persistence bundles the stores an engine needs.
type Persistence struct {
	Graphs GraphStore
	Runs   RunStore
}

// NewInMemoryPersistence returns a Persistence backed entirely by memory.
// Suitable for tests and embedded use where durability is not required.
func NewInMemoryPersistence() *Persistence {
	return &Persistence{
		Graphs: NewInMemoryGraphStore(),
		Runs:   NewInMemoryRunStore(),
	}
}

// NewSQLitePersistence returns a Persistence backed by the given SQLite
// database. The schema is created on first use.
func NewSQLitePersistence(db *sql.DB) (*Persistence, error) {
	graphs, err := NewSQLiteGraphStore(db)
	if err != nil {
		return nil, err
	}
	runs, err := NewSQLiteRunStore(db)
	if err != nil {
		return nil, err
	}
	return &Persistence{Graphs: graphs, Runs: runs}, nil
}

// NewPostgresPersistence returns a Persistence backed by the given
// PostgreSQL database. The schema is created on first use.
func NewPostgresPersistence(db *sql.DB) (*Persistence, error) {
	graphs, err := NewPostgresGraphStore(db)
	if err != nil {
		return nil, err
	}
	runs, err := NewPostgresRunStore(db)
	if err != nil {
		return nil, err
	}
	return &Persistence{Graphs: graphs, Runs: runs}, nil
}

// NewRedisPersistence returns a Persistence backed by Redis under the
// given key prefix.
func NewRedisPersistence(client *redis.Client, prefix string) *Persistence {
	return &Persistence{
		Graphs: NewRedisGraphStore(client, prefix),
		Runs:   NewRedisRunStore(client, prefix),
	}
}
