package runctx

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/petrijr/flowgraph/pkg/api"
)

func TestWriteOncePerKey(t *testing.T) {
	rc := New("run-1")

	if err := rc.Write(api.PortKey("A", "out"), 42); err != nil {
		t.Fatalf("first write failed: %v", err)
	}

	err := rc.Write(api.PortKey("A", "out"), 43)
	var dup *DuplicateWriteError
	if !errors.As(err, &dup) {
		t.Fatalf("error = %v, want *DuplicateWriteError", err)
	}
	if dup.Key != "A:out" {
		t.Fatalf("key = %q", dup.Key)
	}

	// The original value survives the rejected write.
	v, ok := rc.Read("A:out")
	if !ok || v != 42 {
		t.Fatalf("read = %v, %v", v, ok)
	}
}

func TestReadMissingKey(t *testing.T) {
	rc := New("run-1")
	if _, ok := rc.Read("nope"); ok {
		t.Fatal("read of missing key reported ok")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	rc := New("run-1")
	if err := rc.Write("A:out", 1); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	snap := rc.Snapshot()
	snap["A:out"] = 99
	snap["B:out"] = 2

	if v, _ := rc.Read("A:out"); v != 1 {
		t.Fatalf("snapshot mutation leaked into context: %v", v)
	}
	if _, ok := rc.Read("B:out"); ok {
		t.Fatal("snapshot mutation leaked a new key into context")
	}
}

func TestLogPreservesArrivalOrder(t *testing.T) {
	rc := New("run-1")
	rc.Append("A", "started")
	rc.Appendf("A", "attempt %d: completed", 1)
	rc.Append("B", "started")

	log := rc.Log()
	if len(log) != 3 {
		t.Fatalf("got %d entries", len(log))
	}
	if log[1].NodeID != "A" || log[1].Message != "attempt 1: completed" {
		t.Fatalf("entry = %+v", log[1])
	}
	if log[2].NodeID != "B" {
		t.Fatalf("entry = %+v", log[2])
	}
}

func TestConcurrentDistinctWrites(t *testing.T) {
	rc := New("run-1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := api.PortKey(fmt.Sprintf("n%d", i), "out")
			if err := rc.Write(key, i); err != nil {
				t.Errorf("write %s failed: %v", key, err)
			}
			rc.Appendf(fmt.Sprintf("n%d", i), "completed")
		}(i)
	}
	wg.Wait()

	if got := len(rc.Snapshot()); got != 50 {
		t.Fatalf("snapshot has %d keys, want 50", got)
	}
	if got := len(rc.Log()); got != 50 {
		t.Fatalf("log has %d entries, want 50", got)
	}
}

func TestConcurrentWritersSameKeyExactlyOneWins(t *testing.T) {
	rc := New("run-1")

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = rc.Write("A:out", i)
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			var dup *DuplicateWriteError
			if !errors.As(err, &dup) {
				t.Fatalf("error = %v, want *DuplicateWriteError", err)
			}
		}
	}
	if failures != 9 {
		t.Fatalf("%d writes failed, want 9", failures)
	}
}
