package flowgraph

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/petrijr/flowgraph/internal/taskqueue"
	"github.com/petrijr/flowgraph/pkg/worker"
)

// LocalRunner bundles an in-memory Engine, an in-memory task queue, and a
// Worker to provide a simple "local runner" for development and debugging.
//
// Typical usage:
//
//	runner := flowgraph.NewLocalRunner()
//	flowgraph.NewGraph("my-graph"). ... .MustRegister(runner.Engine)
//
//	// Synchronous run (no queue/worker involved):
//	run, err := flowgraph.StartRun(ctx, runner.Engine, "my-graph", seed)
//
//	// Asynchronous run:
//	_ = runner.StartWorkers(ctx, 2)
//	_, _ = runner.StartRunAsync(ctx, "my-graph", seed)
//	...
//	runner.Stop()
type LocalRunner struct {
	// Engine is the in-memory engine used by this runner.
	Engine Engine

	// Queue is the in-memory task queue used by the Worker.
	Queue taskqueue.Queue

	// Worker processes tasks from Queue using Engine.
	Worker *worker.Worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory engine,
// in-memory queue, and a Worker with default config.
//
// This is intended for local development, tests, and simple single-process
// deployments.
func NewLocalRunner() *LocalRunner {
	return NewLocalRunnerWithConfig(EngineConfig{})
}

// NewLocalRunnerWithConfig is like NewLocalRunner but passes cfg through to
// the in-memory engine, so observers and feeds can watch local runs too.
func NewLocalRunnerWithConfig(cfg EngineConfig) *LocalRunner {
	eng := NewInMemoryEngineWithConfig(cfg)
	q := taskqueue.NewInMemoryQueue(1024)
	w := worker.New(eng, q)

	return &LocalRunner{
		Engine: eng,
		Queue:  q,
		Worker: w,
	}
}

// StartWorkers starts 'concurrency' worker goroutines that continuously call
// Worker.ProcessOne(ctx) until the context is cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("flowgraph: LocalRunner already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()

			for {
				processed, err := r.Worker.ProcessOne(ctx)
				if err != nil {
					// For the local runner, cancellation is a clean
					// shutdown signal.
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					// For other errors, log and keep going so a single bad
					// task doesn't kill the worker loop.
					log.Printf("flowgraph: local runner worker error: %v", err)
					continue
				}
				if !processed {
					// Only happens if ctx was cancelled before a task was
					// obtained; the next Dequeue returns context.Canceled.
					continue
				}
			}
		}()
	}

	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// StartRunAsync enqueues a task to start a run of the given graph
// asynchronously. The graph must already be registered on
// LocalRunner.Engine. The returned id is the queue task id, not a run id.
func (r *LocalRunner) StartRunAsync(ctx context.Context, graphName string, seed map[string]any) (string, error) {
	return r.Worker.EnqueueStartRun(ctx, graphName, seed)
}

// CancelRunAsync enqueues a task to cancel an in-flight run. The task
// carries critical priority so persistent queue backends dispatch it ahead
// of pending starts.
func (r *LocalRunner) CancelRunAsync(ctx context.Context, runID string) error {
	return r.Worker.EnqueueCancelRun(ctx, runID)
}
