// Package taskqueue provides the queue the worker drains for asynchronous
// run control: starting and cancelling runs without blocking the caller.
package taskqueue

import (
	"context"
	"time"

	"github.com/petrijr/flowgraph/pkg/api"
)

// TaskType identifies what the worker should do.
type TaskType string

const (
	TaskTypeStartRun  TaskType = "start-run"
	TaskTypeCancelRun TaskType = "cancel-run"
)

// Task represents a unit of work for the worker.
type Task struct {
	ID   string
	Type TaskType

	// For start-run tasks.
	GraphName string
	Seed      map[string]any

	// RunID names the run to cancel, or pre-assigns the id of a run to
	// start so callers can poll it immediately.
	RunID string

	// Priority orders competing dispatches in queue backends that
	// support it. The in-memory queue is strictly FIFO.
	Priority api.TaskPriority

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task should be eligible for
	// processing. Zero value means "immediately".
	NotBefore time.Time

	// Attempts counts how many times a worker has picked this task up.
	Attempts int
}

// Queue is a simple async task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next task, blocking until one is
	// available or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}
