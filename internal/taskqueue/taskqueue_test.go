package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/petrijr/flowgraph/pkg/api"
)

func queueFactories(t *testing.T) map[string]func(t *testing.T) Queue {
	t.Helper()
	return map[string]func(t *testing.T) Queue{
		"memory": func(t *testing.T) Queue {
			return NewInMemoryQueue(16)
		},
		"sqlite": func(t *testing.T) Queue {
			db, err := sql.Open("sqlite", ":memory:")
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { db.Close() })
			q, err := NewSQLiteQueue(db)
			if err != nil {
				t.Fatalf("NewSQLiteQueue failed: %v", err)
			}
			return q
		},
	}
}

func TestEnqueueDequeue(t *testing.T) {
	for name, factory := range queueFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			q := factory(t)

			task := Task{
				ID:        "t1",
				Type:      TaskTypeStartRun,
				GraphName: "pipeline",
				RunID:     "r1",
				Seed:      map[string]any{"A": 80},
			}
			if err := q.Enqueue(ctx, task); err != nil {
				t.Fatalf("Enqueue failed: %v", err)
			}
			if q.Len() != 1 {
				t.Fatalf("Len = %d, want 1", q.Len())
			}

			got, err := q.Dequeue(ctx)
			if err != nil {
				t.Fatalf("Dequeue failed: %v", err)
			}
			if got.Type != TaskTypeStartRun || got.GraphName != "pipeline" || got.RunID != "r1" {
				t.Fatalf("unexpected task: %+v", got)
			}
			if got.Seed["A"] != 80 {
				t.Fatalf("seed lost: %#v", got.Seed)
			}
			if q.Len() != 0 {
				t.Fatalf("Len after dequeue = %d, want 0", q.Len())
			}
		})
	}
}

func TestDequeueBlocksUntilCancelled(t *testing.T) {
	for name, factory := range queueFactories(t) {
		t.Run(name, func(t *testing.T) {
			q := factory(t)
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			_, err := q.Dequeue(ctx)
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Fatalf("Dequeue error = %v, want deadline exceeded", err)
			}
		})
	}
}

func TestSQLitePriorityOrdering(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	q, err := NewSQLiteQueue(db)
	if err != nil {
		t.Fatalf("NewSQLiteQueue failed: %v", err)
	}

	ctx := context.Background()
	tasks := []Task{
		{ID: "low", Type: TaskTypeStartRun, Priority: api.PriorityLow},
		{ID: "critical", Type: TaskTypeCancelRun, Priority: api.PriorityCritical},
		{ID: "normal", Type: TaskTypeStartRun, Priority: api.PriorityNormal},
	}
	for _, task := range tasks {
		if err := q.Enqueue(ctx, task); err != nil {
			t.Fatalf("Enqueue(%s) failed: %v", task.ID, err)
		}
	}

	var order []string
	for range tasks {
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		order = append(order, got.ID)
	}
	want := []string{"critical", "normal", "low"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("dequeue order = %v, want %v", order, want)
		}
	}
}

func TestSQLiteNotBeforeDelaysTask(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	q, err := NewSQLiteQueue(db)
	if err != nil {
		t.Fatalf("NewSQLiteQueue failed: %v", err)
	}

	ctx := context.Background()
	delay := 60 * time.Millisecond
	if err := q.Enqueue(ctx, Task{ID: "later", Type: TaskTypeStartRun, NotBefore: time.Now().Add(delay)}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	start := time.Now()
	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if got.ID != "later" {
		t.Fatalf("task id = %s", got.ID)
	}
	if elapsed := time.Since(start); elapsed < delay {
		t.Fatalf("task became eligible after %s, want >= %s", elapsed, delay)
	}
}

func TestTaskCodecRoundTrip(t *testing.T) {
	in := Task{
		ID:        "t1",
		Type:      TaskTypeStartRun,
		GraphName: "g",
		Seed:      map[string]any{"A": []any{"x", "y"}},
		Priority:  api.PriorityHigh,
	}
	data, err := encodeTask(in)
	if err != nil {
		t.Fatalf("encodeTask failed: %v", err)
	}
	out, err := decodeTask(data)
	if err != nil {
		t.Fatalf("decodeTask failed: %v", err)
	}
	if out.ID != in.ID || out.Type != in.Type || out.Priority != in.Priority {
		t.Fatalf("round-trip mismatch: %+v", out)
	}
	seq, ok := out.Seed["A"].([]any)
	if !ok || len(seq) != 2 || seq[0] != "x" {
		t.Fatalf("seed lost: %#v", out.Seed)
	}
}
