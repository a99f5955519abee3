package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/comfybridge/internal/model"

	_ "modernc.org/sqlite"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
    id              TEXT PRIMARY KEY,
    action          TEXT NOT NULL,
    status          TEXT NOT NULL,
    prompt          TEXT,
    prompt_id       TEXT,
    seed            INTEGER,
    output          BLOB,
    output_filename TEXT,
    error           TEXT,
    timeout_s       INTEGER,
    duration_ms     INTEGER,
    created_at      DATETIME NOT NULL,
    started_at      DATETIME,
    finished_at     DATETIME
)`

// ErrNotFound is returned when a run is not found.
var ErrNotFound = errors.New("run not found")

// ErrFinalized is returned when an update targets a run already in a
// terminal state. Terminal rows are immutable.
var ErrFinalized = errors.New("run already finalized")

// notFinalized guards updates so a write racing with run finalization can
// never regress a terminal status. Mirrors model.Terminal.
const notFinalized = "status NOT IN ('" + model.StatusCompleted + "', '" +
	model.StatusTimedOut + "', '" + model.StatusCancelled + "', '" + model.StatusFailed + "')"

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createRunsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, r *model.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (
			id, action, status, prompt, prompt_id, seed, output,
			output_filename, error, timeout_s, duration_ms,
			created_at, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Action, r.Status, r.Prompt, r.PromptID, r.Seed, r.Output,
		r.OutputFilename, r.Error, r.TimeoutS, r.DurationMS,
		r.CreatedAt, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	r := &model.Run{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, action, status, prompt, prompt_id, seed, output,
			output_filename, error, timeout_s, duration_ms,
			created_at, started_at, finished_at
		FROM runs WHERE id = ?`, id,
	).Scan(
		&r.ID, &r.Action, &r.Status, &r.Prompt, &r.PromptID, &r.Seed, &r.Output,
		&r.OutputFilename, &r.Error, &r.TimeoutS, &r.DurationMS,
		&r.CreatedAt, &r.StartedAt, &r.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns a paginated list of runs ordered by created_at DESC,
// along with the total count of all runs. Output blobs are not hydrated in
// listings.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, action, status, prompt, prompt_id, seed,
			output_filename, error, timeout_s, duration_ms,
			created_at, started_at, finished_at
		FROM runs ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		r := &model.Run{}
		if err := rows.Scan(
			&r.ID, &r.Action, &r.Status, &r.Prompt, &r.PromptID, &r.Seed,
			&r.OutputFilename, &r.Error, &r.TimeoutS, &r.DurationMS,
			&r.CreatedAt, &r.StartedAt, &r.FinishedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, total, nil
}

// UpdateRunStatus updates the status of a run. For terminal statuses it
// also sets finished_at. Runs already in a terminal state are immutable and
// return ErrFinalized.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id, status string) error {
	var result sql.Result
	var err error

	if model.Terminal(status) {
		result, err = s.db.ExecContext(ctx,
			"UPDATE runs SET status = ?, finished_at = ? WHERE id = ? AND "+notFinalized,
			status, time.Now().UTC(), id,
		)
	} else {
		result, err = s.db.ExecContext(ctx,
			"UPDATE runs SET status = ? WHERE id = ? AND "+notFinalized,
			status, id,
		)
	}

	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return s.blockedUpdateError(ctx, id)
	}

	return nil
}

// blockedUpdateError explains an update that matched no rows: the run is
// either absent or already finalized.
func (s *SQLiteStore) blockedUpdateError(ctx context.Context, id string) error {
	var status string
	err := s.db.QueryRowContext(ctx, "SELECT status FROM runs WHERE id = ?", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check run status: %w", err)
	}
	if model.Terminal(status) {
		return fmt.Errorf("%w: run %s is %s", ErrFinalized, id, status)
	}
	return ErrNotFound
}

// UpdateRun overwrites the mutable fields of a run. Runs already in a
// terminal state are immutable and return ErrFinalized.
func (s *SQLiteStore) UpdateRun(ctx context.Context, r *model.Run) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET
			status = ?, prompt_id = ?, seed = ?, output = ?,
			output_filename = ?, error = ?, duration_ms = ?,
			started_at = ?, finished_at = ?
		WHERE id = ? AND `+notFinalized,
		r.Status, r.PromptID, r.Seed, r.Output,
		r.OutputFilename, r.Error, r.DurationMS,
		r.StartedAt, r.FinishedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return s.blockedUpdateError(ctx, r.ID)
	}
	return nil
}
