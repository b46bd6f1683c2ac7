package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"glossa/internal/config"
)

// Store manages run-queue persistence backed by SQLite.
//
// Every exported mutator executes as a single transaction so the
// claim-exclusivity and heartbeat-ownership invariants hold even if an
// unexpected second worker appears; the daemon's flock is a deployment
// safeguard, not the correctness mechanism.
type Store struct {
	db   *sql.DB
	path string
}

// ErrNoActiveRun indicates no queued or running row exists for a job.
var ErrNoActiveRun = errors.New("no active run for job")

// Open initializes or connects to the queue database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.DatabasePath())
}

// OpenPath opens the queue database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return timestamp(*value)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func scanNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	t, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &t
}

const runColumns = "id, job_id, state, attempt, notify_target, created_by, enqueued_at, available_at, started_at, heartbeat_at, finished_at, worker_id, pipeline_pid, pipeline_pgid, last_error, cancel_requested_at, cancel_requested_by, cancel_reason, cancel_mode"

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		id              int64
		jobID           string
		stateStr        string
		attempt         int
		notifyTarget    string
		createdBy       string
		enqueuedRaw     string
		availableRaw    sql.NullString
		startedRaw      sql.NullString
		heartbeatRaw    sql.NullString
		finishedRaw     sql.NullString
		workerID        string
		pipelinePID     int
		pipelinePGID    int
		lastError       string
		cancelAtRaw     sql.NullString
		cancelBy        string
		cancelReason    string
		cancelModeValue string
	)

	if err := scanner.Scan(
		&id,
		&jobID,
		&stateStr,
		&attempt,
		&notifyTarget,
		&createdBy,
		&enqueuedRaw,
		&availableRaw,
		&startedRaw,
		&heartbeatRaw,
		&finishedRaw,
		&workerID,
		&pipelinePID,
		&pipelinePGID,
		&lastError,
		&cancelAtRaw,
		&cancelBy,
		&cancelReason,
		&cancelModeValue,
	); err != nil {
		return nil, err
	}

	run := &Run{
		ID:                id,
		JobID:             jobID,
		State:             State(stateStr),
		Attempt:           attempt,
		NotifyTarget:      notifyTarget,
		CreatedBy:         createdBy,
		AvailableAt:       scanNullableTime(availableRaw),
		StartedAt:         scanNullableTime(startedRaw),
		HeartbeatAt:       scanNullableTime(heartbeatRaw),
		FinishedAt:        scanNullableTime(finishedRaw),
		WorkerID:          workerID,
		PipelinePID:       pipelinePID,
		PipelinePGID:      pipelinePGID,
		LastError:         lastError,
		CancelRequestedAt: scanNullableTime(cancelAtRaw),
		CancelRequestedBy: cancelBy,
		CancelReason:      cancelReason,
		CancelMode:        CancelMode(cancelModeValue),
	}
	if enqueued, err := parseTimeString(enqueuedRaw); err == nil {
		run.EnqueuedAt = enqueued
	}
	return run, nil
}

func getRunTx(ctx context.Context, tx *sql.Tx, id int64) (*Run, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+runColumns+` FROM run_queue WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// GetRun fetches a run-queue row by identifier.
func (s *Store) GetRun(ctx context.Context, id int64) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM run_queue WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ActiveForJob returns the queued or running row for a job, or nil.
func (s *Store) ActiveForJob(ctx context.Context, jobID string) (*Run, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+runColumns+` FROM run_queue
         WHERE job_id = ? AND state IN (?, ?)
         ORDER BY id DESC LIMIT 1`,
		jobID, StateQueued, StateRunning,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active run for job: %w", err)
	}
	return run, nil
}

// RunsForJob returns every attempt recorded for a job, oldest first.
func (s *Store) RunsForJob(ctx context.Context, jobID string) ([]*Run, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+runColumns+` FROM run_queue WHERE job_id = ? ORDER BY id`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("runs for job: %w", err)
	}
	defer rows.Close()
	return collectRuns(rows)
}

// List returns run-queue rows filtered by state set (or all rows when no state
// is provided), FIFO by enqueue time.
func (s *Store) List(ctx context.Context, states ...State) ([]*Run, error) {
	baseQuery := `SELECT ` + runColumns + ` FROM run_queue`
	orderClause := ` ORDER BY enqueued_at, id`

	var (
		rows *sql.Rows
		err  error
	)
	if len(states) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(states))
		args := make([]any, len(states))
		for i, state := range states {
			args[i] = state
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE state IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	return collectRuns(rows)
}

func collectRuns(rows *sql.Rows) ([]*Run, error) {
	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
