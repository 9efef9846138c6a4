package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/petrijr/flowgraph/pkg/api"
)

// PostgresGraphStore is a GraphStore backed by PostgreSQL. As with the
// SQLite stores, the caller owns the *sql.DB and imports the driver.
type PostgresGraphStore struct {
	db *sql.DB
}

var _ GraphStore = (*PostgresGraphStore)(nil)

// NewPostgresGraphStore initializes the required schema and returns a new
// PostgresGraphStore.
func NewPostgresGraphStore(db *sql.DB) (*PostgresGraphStore, error) {
	s := &PostgresGraphStore{db: db}
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS graphs (
			name TEXT PRIMARY KEY,
			definition BYTEA NOT NULL
		);`,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresGraphStore) SaveGraph(ctx context.Context, g api.Graph) error {
	blob, err := EncodeValue(g)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO graphs (name, definition) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET definition = EXCLUDED.definition`,
		g.Name, blob,
	)
	return err
}

func (s *PostgresGraphStore) GetGraph(ctx context.Context, name string) (api.Graph, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT definition FROM graphs WHERE name = $1`, name,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return api.Graph{}, ErrGraphNotFound
	}
	if err != nil {
		return api.Graph{}, err
	}
	return DecodeValue[api.Graph](blob)
}

func (s *PostgresGraphStore) ListGraphs(ctx context.Context) ([]string, error) {
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

// PostgresRunStore is a RunStore backed by PostgreSQL. Layout mirrors
// SQLiteRunStore with positional placeholders.
type PostgresRunStore struct {
	db *sql.DB
}

var _ RunStore = (*PostgresRunStore)(nil)

// NewPostgresRunStore initializes the required schema and returns a new
// PostgresRunStore.
func NewPostgresRunStore(db *sql.DB) (*PostgresRunStore, error) {
	s := &PostgresRunStore{db: db}
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			graph_name TEXT NOT NULL,
			state TEXT NOT NULL,
			node_states BYTEA,
			seed BYTEA,
			outputs BYTEA,
			log BYTEA,
			error TEXT,
			started_at BIGINT NOT NULL,
			ended_at BIGINT NOT NULL
		);`,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresRunStore) SaveRun(ctx context.Context, run *api.Run) error {
	cols, err := encodeRunColumns(run)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, graph_name, state, node_states, seed, outputs, log, error, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.GraphName, string(run.State),
		cols.nodeStates, cols.seed, cols.outputs, cols.log, cols.errStr,
		run.StartedAt.UnixNano(), run.EndedAt.UnixNano(),
	)
	return err
}

func (s *PostgresRunStore) UpdateRun(ctx context.Context, run *api.Run) error {
	cols, err := encodeRunColumns(run)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET graph_name = $1, state = $2, node_states = $3, seed = $4, outputs = $5, log = $6, error = $7, started_at = $8, ended_at = $9
		WHERE id = $10`,
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

func (s *PostgresRunStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, graph_name, state, node_states, seed, outputs, log, error, started_at, ended_at
		FROM runs WHERE id = $1`, id,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return run, err
}

func (s *PostgresRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*api.Run, error) {
	query := `
		SELECT id, graph_name, state, node_states, seed, outputs, log, error, started_at, ended_at
		FROM runs`
	var args []any
	var clauses []string

	if filter.GraphName != "" {
		args = append(args, filter.GraphName)
		clauses = append(clauses, "graph_name = $"+strconv.Itoa(len(args)))
	}
	if filter.State != "" {
		args = append(args, string(filter.State))
		clauses = append(clauses, "state = $"+strconv.Itoa(len(args)))
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
