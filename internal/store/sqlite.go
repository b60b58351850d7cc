package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/testengine-ci/internal/model"

	_ "modernc.org/sqlite"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

const createExecutionsTable = `
CREATE TABLE IF NOT EXISTS executions (
    id             TEXT PRIMARY KEY,
    status         TEXT NOT NULL,
    current_status TEXT NOT NULL,
    project_file   TEXT NOT NULL,
    results        TEXT,
    created_at     DATETIME NOT NULL,
    started_at     DATETIME,
    finished_at    DATETIME
)`

const createLogsTable = `
CREATE TABLE IF NOT EXISTS execution_logs (
    execution_id TEXT NOT NULL REFERENCES executions(id),
    seq          INTEGER NOT NULL,
    line         TEXT NOT NULL,
    created_at   DATETIME NOT NULL,
    PRIMARY KEY (execution_id, seq)
)`

const selectExecution = `SELECT id, status, current_status, project_file, results,
	created_at, started_at, finished_at FROM executions`

// ErrNotFound is returned when an execution is not found.
var ErrNotFound = errors.New("execution not found")

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dsn and creates the schema.
// With MemoryDSN the pool is pinned to one connection, since every
// connection to ":memory:" would otherwise see its own empty database.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dsn == MemoryDSN {
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createExecutionsTable, createLogsTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateExecution inserts a new execution record.
func (s *SQLiteStore) CreateExecution(ctx context.Context, e *model.Execution) error {
	results, err := encodeResults(e.Results)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (
			id, status, current_status, project_file, results,
			created_at, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Status), e.CurrentStatus, e.ProjectFile, results,
		e.CreatedAt, e.StartedAt, e.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by ID.
func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	e, err := scanExecution(s.db.QueryRowContext(ctx, selectExecution+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return e, nil
}

// ListExecutions returns a page of executions in creation order along with
// the total count. A non-positive limit returns every row.
func (s *SQLiteStore) ListExecutions(ctx context.Context, limit, offset int) ([]*model.Execution, int, error) {
	if limit <= 0 {
		limit = -1
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM executions").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count executions: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		selectExecution+" ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []*model.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate executions: %w", err)
	}

	return out, total, nil
}

// UpdateExecution writes every mutable field of e. A status change must be a
// valid transition from the stored status, otherwise ErrInvalidTransition is
// returned and nothing is written.
func (s *SQLiteStore) UpdateExecution(ctx context.Context, e *model.Execution) error {
	results, err := encodeResults(e.Results)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM executions WHERE id = ?", e.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read execution status: %w", err)
	}
	if from := model.Status(current); from != e.Status && !model.ValidTransition(from, e.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, e.Status)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE executions SET status = ?, current_status = ?, results = ?,
			started_at = ?, finished_at = ? WHERE id = ?`,
		string(e.Status), e.CurrentStatus, results, e.StartedAt, e.FinishedAt, e.ID,
	); err != nil {
		return fmt.Errorf("update execution: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit execution update: %w", err)
	}
	return nil
}

// CountByStatus returns the number of executions in each status. Statuses
// with no executions are present with a zero count.
func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	counts := make(map[model.Status]int, len(model.AllStatuses))
	for _, st := range model.AllStatuses {
		counts[st] = 0
	}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM executions GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[model.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

// AppendLog adds a line to the execution's log.
func (s *SQLiteStore) AppendLog(ctx context.Context, executionID, line string) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO execution_logs (execution_id, seq, line, created_at)
		SELECT id, (SELECT COALESCE(MAX(seq), 0) + 1 FROM execution_logs WHERE execution_id = ?), ?, ?
		FROM executions WHERE id = ?`,
		executionID, line, time.Now().UTC(), executionID,
	)
	if err != nil {
		return fmt.Errorf("insert log line: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetLog returns the execution's log lines in order.
func (s *SQLiteStore) GetLog(ctx context.Context, executionID string) ([]model.LogLine, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, line, created_at FROM execution_logs WHERE execution_id = ? ORDER BY seq",
		executionID,
	)
	if err != nil {
		return nil, fmt.Errorf("get log lines: %w", err)
	}
	defer rows.Close()

	var lines []model.LogLine
	for rows.Next() {
		var l model.LogLine
		if err := rows.Scan(&l.Seq, &l.Line, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log lines: %w", err)
	}
	return lines, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(row scanner) (*model.Execution, error) {
	var (
		e       model.Execution
		status  string
		results sql.NullString
	)
	if err := row.Scan(
		&e.ID, &status, &e.CurrentStatus, &e.ProjectFile, &results,
		&e.CreatedAt, &e.StartedAt, &e.FinishedAt,
	); err != nil {
		return nil, err
	}
	e.Status = model.Status(status)
	if results.Valid && results.String != "" {
		e.Results = &model.Results{}
		if err := json.Unmarshal([]byte(results.String), e.Results); err != nil {
			return nil, fmt.Errorf("decode results: %w", err)
		}
	}
	return &e, nil
}

func encodeResults(r *model.Results) (any, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	return string(b), nil
}
