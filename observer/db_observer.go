package observer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dcshock/respipe/pipeline"
)

// Store persists pipeline and handler execution to SQLite (pipeline_run,
// pipeline_run_handler) so runs can be inspected after the fact. It
// implements pipeline.Observer. Nested pipelines share the run ID and are
// stored as separate pipeline_run rows keyed by (run_id, pipeline).
type Store struct {
	db *sql.DB
}

// RunRecord is one pipeline_run row.
type RunRecord struct {
	RunID      string
	Pipeline   string
	Status     string // running, or an Outcome label
	Bag        json.RawMessage
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// HandlerRecord is one pipeline_run_handler row.
type HandlerRecord struct {
	RunID    string
	Pipeline string
	Index    int
	Status   string
	Output   json.RawMessage
	Error    string
	Duration time.Duration
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS pipeline_run (
		run_id TEXT NOT NULL,
		pipeline TEXT NOT NULL,
		status TEXT NOT NULL,
		bag TEXT,
		error TEXT,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		PRIMARY KEY (run_id, pipeline)
	)`,
	`CREATE TABLE IF NOT EXISTS pipeline_run_handler (
		run_id TEXT NOT NULL,
		pipeline TEXT NOT NULL,
		handler_index INTEGER NOT NULL,
		status TEXT NOT NULL,
		output TEXT,
		error TEXT,
		duration_ms INTEGER,
		PRIMARY KEY (run_id, pipeline, handler_index)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pipeline_run_started ON pipeline_run(started_at)`,
}

// OpenStore opens (or creates) the SQLite database at path and migrates it.
// Use ":memory:" for a throwaway store.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: SQLite serializes writers, and an in-memory database
	// exists per connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure database: %w", err)
		}
	}
	s := NewStore(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore returns a store over an open database. Call Migrate before use.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// BeforePipeline implements pipeline.Observer. Inserts or replaces the run row with status 'running'.
func (s *Store) BeforePipeline(ctx context.Context, run pipeline.Run, bag pipeline.Bag) error {
	bagJSON, err := marshalOptional(bag)
	if err != nil {
		return fmt.Errorf("marshal bag: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pipeline_run (run_id, pipeline, status, bag, started_at)
		VALUES (?, ?, 'running', ?, ?)
		ON CONFLICT (run_id, pipeline) DO UPDATE SET
			status = 'running', bag = excluded.bag, error = NULL,
			started_at = excluded.started_at, finished_at = NULL`,
		run.ID, run.Pipeline, bagJSON, time.Now().UnixNano())
	return err
}

// AfterPipeline implements pipeline.Observer. Records the outcome, final bag, and error.
func (s *Store) AfterPipeline(ctx context.Context, run pipeline.Run, bag pipeline.Bag, err error) error {
	bagJSON, _ := marshalOptional(bag)
	_, dbErr := s.db.ExecContext(ctx, `
		UPDATE pipeline_run SET status = ?, bag = ?, error = ?, finished_at = ?
		WHERE run_id = ? AND pipeline = ?`,
		Outcome(err), bagJSON, errText(err), time.Now().UnixNano(), run.ID, run.Pipeline)
	return dbErr
}

// BeforeHandler implements pipeline.Observer. Inserts the handler row with status 'running'.
func (s *Store) BeforeHandler(ctx context.Context, run pipeline.Run, index int, _ pipeline.Bag) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_run_handler (run_id, pipeline, handler_index, status)
		VALUES (?, ?, ?, 'running')
		ON CONFLICT (run_id, pipeline, handler_index) DO UPDATE SET
			status = 'running', output = NULL, error = NULL, duration_ms = NULL`,
		run.ID, run.Pipeline, index)
	return err
}

// AfterHandler implements pipeline.Observer. Updates the handler row with output, status, error, duration.
func (s *Store) AfterHandler(ctx context.Context, run pipeline.Run, index int, bag pipeline.Bag, handlerErr error, d time.Duration) error {
	outJSON, _ := marshalOptional(bag)
	_, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_run_handler SET status = ?, output = ?, error = ?, duration_ms = ?
		WHERE run_id = ? AND pipeline = ? AND handler_index = ?`,
		Outcome(handlerErr), outJSON, errText(handlerErr), d.Milliseconds(), run.ID, run.Pipeline, index)
	return err
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, pipeline, status, bag, error, started_at, finished_at
		FROM pipeline_run ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r        RunRecord
			bag      sql.NullString
			errMsg   sql.NullString
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&r.RunID, &r.Pipeline, &r.Status, &bag, &errMsg, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if bag.Valid {
			r.Bag = json.RawMessage(bag.String)
		}
		r.Error = errMsg.String
		r.StartedAt = time.Unix(0, started)
		if finished.Valid {
			r.FinishedAt = time.Unix(0, finished.Int64)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Handlers returns the handler rows of one run, ordered by pipeline and index.
func (s *Store) Handlers(ctx context.Context, runID string) ([]HandlerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, pipeline, handler_index, status, output, error, duration_ms
		FROM pipeline_run_handler WHERE run_id = ?
		ORDER BY pipeline, handler_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query handlers: %w", err)
	}
	defer rows.Close()

	var out []HandlerRecord
	for rows.Next() {
		var (
			h      HandlerRecord
			output sql.NullString
			errMsg sql.NullString
			ms     sql.NullInt64
		)
		if err := rows.Scan(&h.RunID, &h.Pipeline, &h.Index, &h.Status, &output, &errMsg, &ms); err != nil {
			return nil, fmt.Errorf("scan handler: %w", err)
		}
		if output.Valid {
			h.Output = json.RawMessage(output.String)
		}
		h.Error = errMsg.String
		h.Duration = time.Duration(ms.Int64) * time.Millisecond
		out = append(out, h)
	}
	return out, rows.Err()
}

func marshalOptional(v pipeline.Bag) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func errText(err error) any {
	if err == nil {
		return nil
	}
	return err.Error()
}
