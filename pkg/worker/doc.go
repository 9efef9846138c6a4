// Package worker provides the background worker implementation used to
// drive flowgraph runs asynchronously.
//
// Workers consume run-control tasks from a task queue and execute them
// using an engine: start-run tasks execute a graph end to end, cancel-run
// tasks stop an in-flight run. They are designed to be lightweight and
// easy to embed in existing services, and they can be scaled horizontally
// for higher throughput.
//
// # Worker Responsibilities
//
// A worker is responsible for:
//
//   - Polling a task queue for pending work
//   - Starting runs through the engine and delivering cancellations
//   - Emitting heartbeat messages so supervisors can detect dead workers
//   - Reporting task handler failures as status update messages
//
// Workers are long-lived components that typically run in dedicated
// goroutines or processes. Multiple workers can safely operate on the same
// queue to scale processing.
//
// # Integration with Engine and Queues
//
// Workers are decoupled from any particular persistence backend. They rely
// on interfaces provided by the engine and task queue layers:
//
//   - The engine encapsulates graph state and node execution.
//   - The task queue provides delivery of tasks to be performed.
//
// Different backends (in-memory, SQLite, Redis, RabbitMQ) can be plugged
// in through matching queue implementations. This allows workers to be
// reused across different storage technologies.
//
// # Observability
//
// Worker activity surfaces through the message sink: heartbeats carry the
// worker id and approximate queue depth, and task handler errors are
// published as status updates. These messages can be logged, exported as
// metrics, or routed to a broker as needed.
//
// Most users should create workers via the flowgraph package, which
// exposes a simplified API for common cases. The worker package is useful
// when implementing custom worker behavior or new queue backends.
package worker
