package flowgraph

import (
	"database/sql"

	"github.com/petrijr/flowgraph/internal/taskqueue"
	workerpkg "github.com/petrijr/flowgraph/pkg/worker"
)

// WorkerBundle wires together an Engine, a durable task queue, and a Worker
// that consumes tasks from that queue.
type WorkerBundle struct {
	Engine Engine
	Worker *workerpkg.Worker

	// queue is kept unexported; it is primarily useful for internal
	// inspection and tests. The public API focuses on Engine and Worker.
	queue taskqueue.Queue
}

// NewSQLiteBundle constructs a durable Engine + Queue + Worker combo sharing
// the same SQLite database. Graphs, run records, and queued tasks are all
// persisted in the provided *sql.DB.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:flowgraph.db?_journal=WAL")
//	bundle, err := flowgraph.NewSQLiteBundle(db)
//	// register graphs and capabilities on bundle.Engine
//	// enqueue work via bundle.Worker
func NewSQLiteBundle(db *sql.DB, opts ...workerpkg.Option) (*WorkerBundle, error) {
	eng, err := NewSQLiteEngine(db)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	w := workerpkg.New(eng, q, opts...)

	return &WorkerBundle{
		Engine: eng,
		Worker: w,
		queue:  q,
	}, nil
}
