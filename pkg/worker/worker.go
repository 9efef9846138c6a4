package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/flowgraph/internal/taskqueue"
	"github.com/petrijr/flowgraph/pkg/api"
)

// Worker pulls run-control tasks from a Queue and executes them using an
// Engine. It optionally emits heartbeat messages so supervisors can tell a
// slow worker from a dead one.
type Worker struct {
	id     string
	engine api.Engine
	queue  taskqueue.Queue
	sink   api.MessageSink

	heartbeatInterval time.Duration
}

// Option configures a Worker.
type Option func(*Worker)

// WithMessageSink routes the worker's heartbeat messages to sink.
func WithMessageSink(sink api.MessageSink) Option {
	return func(w *Worker) {
		if sink != nil {
			w.sink = sink
		}
	}
}

// WithHeartbeatInterval sets how often Run emits a heartbeat message.
// Zero (the default) disables heartbeats.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(w *Worker) { w.heartbeatInterval = d }
}

// New creates a new Worker.
func New(engine api.Engine, queue taskqueue.Queue, opts ...Option) *Worker {
	w := &Worker{
		id:     "worker-" + uuid.NewString(),
		engine: engine,
		queue:  queue,
		sink:   api.NoopSink{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ID returns the worker's unique identity, used in heartbeat messages.
func (w *Worker) ID() string { return w.id }

// EnqueueStartRun enqueues a task to start a run of the named graph
// asynchronously. It does NOT run the graph itself; that is done by
// ProcessOne. The returned id is the queue task id, not a run id.
func (w *Worker) EnqueueStartRun(ctx context.Context, graphName string, seed map[string]any) (string, error) {
	t := taskqueue.Task{
		ID:         uuid.NewString(),
		Type:       taskqueue.TaskTypeStartRun,
		GraphName:  graphName,
		Seed:       seed,
		Priority:   api.PriorityNormal,
		EnqueuedAt: time.Now(),
	}
	return t.ID, w.queue.Enqueue(ctx, t)
}

// EnqueueStartRunAt enqueues a start-run task that becomes eligible no
// earlier than 'at'. Only persistent queue backends honor the delay.
func (w *Worker) EnqueueStartRunAt(ctx context.Context, graphName string, seed map[string]any, at time.Time) (string, error) {
	t := taskqueue.Task{
		ID:         uuid.NewString(),
		Type:       taskqueue.TaskTypeStartRun,
		GraphName:  graphName,
		Seed:       seed,
		Priority:   api.PriorityNormal,
		EnqueuedAt: time.Now(),
		NotBefore:  at,
	}
	return t.ID, w.queue.Enqueue(ctx, t)
}

// EnqueueCancelRun enqueues a task to cancel an in-flight run.
// Cancellations jump the queue: they carry critical priority.
func (w *Worker) EnqueueCancelRun(ctx context.Context, runID string) error {
	t := taskqueue.Task{
		ID:         uuid.NewString(),
		Type:       taskqueue.TaskTypeCancelRun,
		RunID:      runID,
		Priority:   api.PriorityCritical,
		EnqueuedAt: time.Now(),
	}
	return w.queue.Enqueue(ctx, t)
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false, err != nil: nothing processed (dequeue failed,
//     typically context cancellation)
//   - processed == true: a task was processed; err reports whether the
//     handler succeeded.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	switch task.Type {
	case taskqueue.TaskTypeStartRun:
		_, runErr := w.engine.StartRun(ctx, task.GraphName, task.Seed)
		return true, runErr

	case taskqueue.TaskTypeCancelRun:
		return true, w.engine.CancelRun(ctx, task.RunID)

	default:
		// Unknown task type; mark as processed but return an error so this
		// isn't silently ignored.
		return true, errors.New("unknown task type: " + string(task.Type))
	}
}

// Run processes tasks until ctx is cancelled, emitting heartbeats at the
// configured interval. Task handler errors are reported per task through
// the sink as status updates and do not stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	if w.heartbeatInterval > 0 {
		// Heartbeats run on their own goroutine; ProcessOne blocks while
		// the queue is idle and must not starve them.
		go w.heartbeatLoop(ctx)
	}

	for {
		processed, err := w.ProcessOne(ctx)
		if !processed {
			return err
		}
		if err != nil {
			_ = w.sink.Publish(ctx, api.Message{
				Type:      api.MessageStatusUpdate,
				From:      w.id,
				Payload:   err.Error(),
				Timestamp: time.Now(),
			})
		}
	}
}

func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()
	w.heartbeat(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.heartbeat(ctx)
		}
	}
}

func (w *Worker) heartbeat(ctx context.Context) {
	_ = w.sink.Publish(ctx, api.Message{
		Type:      api.MessageHeartbeat,
		From:      w.id,
		Payload:   map[string]any{"queued": w.queue.Len()},
		Timestamp: time.Now(),
	})
}
