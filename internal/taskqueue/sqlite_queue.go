package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/petrijr/flowgraph/pkg/api"
)

// SQLiteQueue is a persistent task queue backed by SQLite. Dequeue order
// is priority first, then eligibility time, then insertion order.
type SQLiteQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewSQLiteQueue initializes the tasks table in the given DB and returns a new queue.
func NewSQLiteQueue(db *sql.DB) (*SQLiteQueue, error) {
	q := &SQLiteQueue{
		db:           db,
		pollInterval: 20 * time.Millisecond,
	}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *SQLiteQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT,
			type TEXT NOT NULL,
			graph_name TEXT,
			run_id TEXT,
			seed BLOB,
			priority INTEGER NOT NULL,
			enqueued_at INTEGER NOT NULL,
			not_before INTEGER NOT NULL,
			attempts INTEGER NOT NULL
		);
	`)
	return err
}

// Ensure SQLiteQueue implements Queue.
var _ Queue = (*SQLiteQueue)(nil)

func (q *SQLiteQueue) Enqueue(ctx context.Context, t Task) error {
	seed, err := encodeSeed(t.Seed)
	if err != nil {
		return err
	}

	now := time.Now()
	enqueuedAt := now.UnixNano()

	var notBefore int64
	if t.NotBefore.IsZero() {
		notBefore = enqueuedAt
	} else {
		notBefore = t.NotBefore.UnixNano()
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO tasks (id, type, graph_name, run_id, seed, priority, enqueued_at, not_before, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		string(t.Type),
		t.GraphName,
		t.RunID,
		seed,
		int(t.Priority),
		enqueuedAt,
		notBefore,
		t.Attempts,
	)
	return err
}

func (q *SQLiteQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		now := time.Now().UnixNano()

		tx, err := q.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}

		var (
			seq         int64
			id          sql.NullString
			typeStr     string
			graphName   sql.NullString
			runID       sql.NullString
			seed        []byte
			priority    int
			enqueuedInt int64
			notBefore   int64
			attempts    int
		)

		row := tx.QueryRowContext(ctx, `
			SELECT seq, id, type, graph_name, run_id, seed, priority, enqueued_at, not_before, attempts
			FROM tasks
			WHERE not_before <= ?
			ORDER BY priority DESC, not_before, seq
			LIMIT 1`, now)
		err = row.Scan(&seq, &id, &typeStr, &graphName, &runID, &seed, &priority, &enqueuedInt, &notBefore, &attempts)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				_ = tx.Rollback()
				// Nothing available: sleep a bit and retry.
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(q.pollInterval):
					continue
				}
			}
			_ = tx.Rollback()
			return nil, err
		}

		// Delete the row we just claimed.
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE seq = ?`, seq); err != nil {
			_ = tx.Rollback()
			return nil, err
		}

		if err := tx.Commit(); err != nil {
			return nil, err
		}

		seedMap, err := decodeSeed(seed)
		if err != nil {
			return nil, err
		}

		task := &Task{
			ID:         id.String,
			Type:       TaskType(typeStr),
			GraphName:  graphName.String,
			RunID:      runID.String,
			Seed:       seedMap,
			Priority:   api.TaskPriority(priority),
			EnqueuedAt: time.Unix(0, enqueuedInt),
			NotBefore:  time.Unix(0, notBefore),
			Attempts:   attempts,
		}
		return task, nil
	}
}

func (q *SQLiteQueue) Len() int {
	var n int
	err := q.db.QueryRow(`SELECT COUNT(*) FROM tasks`).Scan(&n)
	if err != nil {
		return 0
	}
	return n
}
