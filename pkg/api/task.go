package api

import "time"

// TaskPriority orders competing dispatches. Higher values win.
type TaskPriority int

const (
	PriorityLow TaskPriority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p TaskPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "normal"
	}
}

// ParsePriority maps a config tag to a TaskPriority. Unknown tags fall
// back to PriorityNormal.
func ParsePriority(s string) TaskPriority {
	switch s {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	case "critical":
		return PriorityCritical
	default:
		return PriorityNormal
	}
}

// TaskStatus is the lifecycle state of one node-execution task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskRunning   TaskStatus = "RUNNING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
	TaskTimeout   TaskStatus = "TIMEOUT"
	TaskCancelled TaskStatus = "CANCELLED"
)

// Task records one node execution within a run. Retries increment Attempt
// on the same task; they never create a new task id.
type Task struct {
	ID       string
	NodeID   string
	Priority TaskPriority
	Status   TaskStatus

	CreatedAt time.Time
	StartedAt time.Time
	EndedAt   time.Time

	// Attempt counts executions of this task, starting at 1 once the task
	// is first dispatched.
	Attempt int
}
