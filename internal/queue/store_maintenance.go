package queue

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"
)

// ProcessKiller tears down a leftover pipeline process group after the reaper
// has taken a row away from its dead worker. Called outside the transaction.
type ProcessKiller func(pid, pgid int)

// ReapResult summarizes one reaper sweep.
type ReapResult struct {
	Requeued []*Run
	Failed   []*Run
	Canceled []*Run
}

// Total returns the number of rows the sweep transitioned.
func (r ReapResult) Total() int {
	return len(r.Requeued) + len(r.Failed) + len(r.Canceled)
}

type killTarget struct {
	pid  int
	pgid int
}

// RequeueStuck recovers running rows whose worker stopped heartbeating. A row
// is stuck when its heartbeat (or start time, if no heartbeat was ever
// written) is older than stuckAfter. Stuck rows with a pending cancellation
// are finished as canceled; rows that already burned maxAttempts are finished
// as failed with StuckExceededMaxAttempts; everything else goes back to queued
// with the attempt counter bumped. Database updates commit first, then any
// recorded pipeline process groups are handed to kill.
func (s *Store) RequeueStuck(ctx context.Context, stuckAfter time.Duration, maxAttempts int, kill ProcessKiller) (ReapResult, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var (
		result  ReapResult
		targets []killTarget
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		nowTime := time.Now()
		cutoff := timestamp(nowTime.Add(-stuckAfter))
		now := timestamp(nowTime)

		rows, err := tx.QueryContext(
			ctx,
			`SELECT `+runColumns+` FROM run_queue
             WHERE state = ? AND COALESCE(heartbeat_at, started_at, enqueued_at) < ?
             ORDER BY id`,
			StateRunning, cutoff,
		)
		if err != nil {
			return fmt.Errorf("scan stuck runs: %w", err)
		}
		stuck, err := collectRuns(rows)
		rows.Close()
		if err != nil {
			return fmt.Errorf("scan stuck runs: %w", err)
		}

		for _, run := range stuck {
			if run.PipelinePGID > 0 || run.PipelinePID > 0 {
				targets = append(targets, killTarget{pid: run.PipelinePID, pgid: run.PipelinePGID})
			}

			switch {
			case run.CancelRequested():
				if _, err := tx.ExecContext(
					ctx,
					`UPDATE run_queue SET state = ?, finished_at = ?, last_error = 'canceled_while_stuck'
                     WHERE id = ? AND state = ?`,
					StateCanceled, now, run.ID, StateRunning,
				); err != nil {
					return fmt.Errorf("cancel stuck run %d: %w", run.ID, err)
				}
				if err := forceJobTerminal(ctx, tx, run.JobID, JobStatusCanceled, "canceled_while_stuck", now); err != nil {
					return err
				}
				result.Canceled = append(result.Canceled, run)

			case run.Attempt >= maxAttempts:
				if _, err := tx.ExecContext(
					ctx,
					`UPDATE run_queue SET state = ?, finished_at = ?, last_error = ?
                     WHERE id = ? AND state = ?`,
					StateFailed, now, StuckExceededMaxAttempts, run.ID, StateRunning,
				); err != nil {
					return fmt.Errorf("fail stuck run %d: %w", run.ID, err)
				}
				if err := forceJobTerminal(ctx, tx, run.JobID, JobStatusFailed, StuckExceededMaxAttempts, now); err != nil {
					return err
				}
				result.Failed = append(result.Failed, run)

			default:
				if _, err := tx.ExecContext(
					ctx,
					`UPDATE run_queue
                     SET state = ?, attempt = attempt + 1, worker_id = '', started_at = NULL,
                         heartbeat_at = NULL, pipeline_pid = 0, pipeline_pgid = 0,
                         last_error = 'requeued_after_stuck'
                     WHERE id = ? AND state = ?`,
					StateQueued, run.ID, StateRunning,
				); err != nil {
					return fmt.Errorf("requeue stuck run %d: %w", run.ID, err)
				}
				if err := markJobQueued(ctx, tx, run.JobID, now); err != nil {
					return err
				}
				result.Requeued = append(result.Requeued, run)
			}
		}
		return nil
	})
	if err != nil {
		return ReapResult{}, err
	}

	if kill != nil {
		for _, target := range targets {
			kill(target.pid, target.pgid)
		}
	}
	return result, nil
}

// Stats returns per-state counts across the whole queue.
func (s *Store) Stats(ctx context.Context) (HealthSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM run_queue GROUP BY state`)
	if err != nil {
		return HealthSummary{}, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	var summary HealthSummary
	for rows.Next() {
		var (
			stateStr string
			count    int
		)
		if err := rows.Scan(&stateStr, &count); err != nil {
			return HealthSummary{}, fmt.Errorf("scan stats row: %w", err)
		}
		summary.Total += count
		switch State(stateStr) {
		case StateQueued:
			summary.Queued = count
		case StateRunning:
			summary.Running = count
		case StateSucceeded:
			summary.Succeeded = count
		case StateFailed:
			summary.Failed = count
		case StateCanceled:
			summary.Canceled = count
		}
	}
	return summary, rows.Err()
}

// CheckHealth inspects the database file, schema, and integrity. It never
// returns an error for an unhealthy database; problems land in the report.
func (s *Store) CheckHealth(ctx context.Context) DatabaseHealth {
	health := DatabaseHealth{DBPath: s.path}

	if _, err := os.Stat(s.path); err != nil {
		health.Error = fmt.Sprintf("database file not accessible: %v", err)
		return health
	}
	health.DatabaseExists = true

	if err := s.db.PingContext(ctx); err != nil {
		health.Error = fmt.Sprintf("database not readable: %v", err)
		return health
	}
	health.DatabaseReadable = true

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='run_queue'`)
	var tableCount int
	if err := row.Scan(&tableCount); err != nil || tableCount == 0 {
		health.Error = "run_queue table missing"
		return health
	}
	health.TableExists = true

	expected := []string{
		"id", "job_id", "state", "attempt", "notify_target", "created_by",
		"enqueued_at", "available_at", "started_at", "heartbeat_at", "finished_at",
		"worker_id", "pipeline_pid", "pipeline_pgid", "last_error",
		"cancel_requested_at", "cancel_requested_by", "cancel_reason", "cancel_mode",
	}
	present := make(map[string]bool, len(expected))
	colRows, err := s.db.QueryContext(ctx, `PRAGMA table_info(run_queue)`)
	if err != nil {
		health.Error = fmt.Sprintf("inspect columns: %v", err)
		return health
	}
	for colRows.Next() {
		var (
			cid      int
			name     string
			colType  string
			notNull  int
			dfltVal  sql.NullString
			primaryK int
		)
		if err := colRows.Scan(&cid, &name, &colType, &notNull, &dfltVal, &primaryK); err != nil {
			colRows.Close()
			health.Error = fmt.Sprintf("scan column info: %v", err)
			return health
		}
		present[name] = true
	}
	colRows.Close()
	for _, name := range expected {
		if present[name] {
			health.ColumnsPresent = append(health.ColumnsPresent, name)
		} else {
			health.MissingColumns = append(health.MissingColumns, name)
		}
	}
	if len(health.MissingColumns) > 0 {
		health.Error = fmt.Sprintf("missing columns: %v", health.MissingColumns)
		return health
	}

	var integrity string
	if err := s.db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&integrity); err != nil {
		health.Error = fmt.Sprintf("integrity check: %v", err)
		return health
	}
	health.IntegrityCheck = integrity == "ok"
	if !health.IntegrityCheck {
		health.Error = fmt.Sprintf("integrity check reported %q", integrity)
		return health
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM run_queue`).Scan(&health.TotalRuns); err != nil {
		health.Error = fmt.Sprintf("count runs: %v", err)
	}
	return health
}

// Clear deletes rows in the given states and returns the number removed.
// Active states are refused; use Cancel for those.
func (s *Store) Clear(ctx context.Context, states ...State) (int64, error) {
	if len(states) == 0 {
		states = []State{StateSucceeded, StateFailed, StateCanceled}
	}
	for _, state := range states {
		if state.Active() {
			return 0, fmt.Errorf("refusing to clear active state %q", state)
		}
	}

	placeholders := makePlaceholders(len(states))
	args := make([]any, len(states))
	for i, state := range states {
		args[i] = state
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM run_queue WHERE state IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("clear runs: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear rows affected: %w", err)
	}
	return removed, nil
}
