package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/petrijr/flowgraph/pkg/api"
)

// SQLiteGraphStore is a GraphStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteGraphStore struct {
	db *sql.DB
}

var _ GraphStore = (*SQLiteGraphStore)(nil)

// NewSQLiteGraphStore initializes the required schema in the given
// database and returns a new SQLiteGraphStore.
func NewSQLiteGraphStore(db *sql.DB) (*SQLiteGraphStore, error) {
	s := &SQLiteGraphStore{db: db}
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS graphs (
			name TEXT PRIMARY KEY,
			definition BLOB NOT NULL
		);`,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteGraphStore) SaveGraph(ctx context.Context, g api.Graph) error {
	blob, err := EncodeValue(g)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO graphs (name, definition) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET definition = excluded.definition`,
		g.Name, blob,
	)
	return err
}

func (s *SQLiteGraphStore) GetGraph(ctx context.Context, name string) (api.Graph, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT definition FROM graphs WHERE name = ?`, name,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return api.Graph{}, ErrGraphNotFound
	}
	if err != nil {
		return api.Graph{}, err
	}
	return DecodeValue[api.Graph](blob)
}

func (s *SQLiteGraphStore) ListGraphs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM graphs ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SQLiteRunStore is a RunStore backed by SQLite. Structured fields (node
// states, seed, outputs, log) are stored as gob blobs; scalar fields get
// their own columns so runs can be filtered in SQL.
type SQLiteRunStore struct {
	db *sql.DB
}

var _ RunStore = (*SQLiteRunStore)(nil)

// NewSQLiteRunStore initializes the required schema in the given database
// and returns a new SQLiteRunStore.
func NewSQLiteRunStore(db *sql.DB) (*SQLiteRunStore, error) {
	s := &SQLiteRunStore{db: db}
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			graph_name TEXT NOT NULL,
			state TEXT NOT NULL,
			node_states BLOB,
			seed BLOB,
			outputs BLOB,
			log BLOB,
			error TEXT,
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL
		);`,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteRunStore) SaveRun(ctx context.Context, run *api.Run) error {
	cols, err := encodeRunColumns(run)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, graph_name, state, node_states, seed, outputs, log, error, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.GraphName, string(run.State),
		cols.nodeStates, cols.seed, cols.outputs, cols.log, cols.errStr,
		run.StartedAt.UnixNano(), run.EndedAt.UnixNano(),
	)
	return err
}

func (s *SQLiteRunStore) UpdateRun(ctx context.Context, run *api.Run) error {
	cols, err := encodeRunColumns(run)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET graph_name = ?, state = ?, node_states = ?, seed = ?, outputs = ?, log = ?, error = ?, started_at = ?, ended_at = ?
		WHERE id = ?`,
		run.GraphName, string(run.State),
		cols.nodeStates, cols.seed, cols.outputs, cols.log, cols.errStr,
		run.StartedAt.UnixNano(), run.EndedAt.UnixNano(),
		run.ID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, graph_name, state, node_states, seed, outputs, log, error, started_at, ended_at
		FROM runs WHERE id = ?`, id,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return run, err
}

func (s *SQLiteRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*api.Run, error) {
	query := `
		SELECT id, graph_name, state, node_states, seed, outputs, log, error, started_at, ended_at
		FROM runs`
	var args []any
	var clauses []string

	if filter.GraphName != "" {
		clauses = append(clauses, "graph_name = ?")
		args = append(args, filter.GraphName)
	}
	if filter.State != "" {
		clauses = append(clauses, "state = ?")
		args = append(args, string(filter.State))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY started_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*api.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type runColumns struct {
	nodeStates []byte
	seed       []byte
	outputs    []byte
	log        []byte
	errStr     string
}

func encodeRunColumns(run *api.Run) (runColumns, error) {
	var cols runColumns
	var err error
	if cols.nodeStates, err = EncodeValue(run.NodeStates); err != nil {
		return cols, err
	}
	if cols.seed, err = EncodeValue(run.Seed); err != nil {
		return cols, err
	}
	if cols.outputs, err = EncodeValue(run.Outputs); err != nil {
		return cols, err
	}
	if cols.log, err = EncodeValue(run.Log); err != nil {
		return cols, err
	}
	if run.Err != nil {
		cols.errStr = run.Err.Error()
	}
	return cols, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*api.Run, error) {
	var run api.Run
	var state string
	var nodeStates, seed, outputs, logBlob []byte
	var errStr sql.NullString
	var startedAt, endedAt int64

	if err := row.Scan(&run.ID, &run.GraphName, &state, &nodeStates, &seed, &outputs, &logBlob, &errStr, &startedAt, &endedAt); err != nil {
		return nil, err
	}

	run.State = api.RunState(state)
	run.StartedAt = time.Unix(0, startedAt)
	run.EndedAt = time.Unix(0, endedAt)

	var err error
	if run.NodeStates, err = DecodeValue[map[string]api.ExecutionState](nodeStates); err != nil {
		return nil, err
	}
	if run.Seed, err = DecodeValue[map[string]any](seed); err != nil {
		return nil, err
	}
	if run.Outputs, err = DecodeValue[map[string]any](outputs); err != nil {
		return nil, err
	}
	if run.Log, err = DecodeValue[[]api.LogEntry](logBlob); err != nil {
		return nil, err
	}
	if errStr.Valid && errStr.String != "" {
		run.Err = errors.New(errStr.String)
	}
	return &run, nil
}
