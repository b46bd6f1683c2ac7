package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Cancel actions reported back to operators.
const (
	CancelActionCanceled         = "canceled"
	CancelActionCancelRequested  = "cancel_requested"
	CancelActionAlreadyRequested = "already_requested"
)

// CancelOutcome describes what Cancel did and the run it touched.
type CancelOutcome struct {
	Action string
	Run    *Run
}

// Enqueue records a new queued run for a job, creating the job record when it
// does not exist yet. The operation is idempotent: when a queued or running row
// already exists for the job, that row is returned unchanged except that a
// blank notify_target is backfilled from the new request. The returned bool is
// true when a fresh row was inserted.
func (s *Store) Enqueue(ctx context.Context, jobID, notifyTarget, createdBy string) (*Run, bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, false, fmt.Errorf("job_id is required")
	}
	notifyTarget = strings.TrimSpace(notifyTarget)

	var (
		run     *Run
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := timestamp(time.Now())

		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO jobs (job_id, status, notify_target, errors_json, created_at, updated_at)
             VALUES (?, ?, ?, '[]', ?, ?)
             ON CONFLICT(job_id) DO NOTHING`,
			jobID, JobStatusPlanned, notifyTarget, now, now,
		); err != nil {
			return fmt.Errorf("ensure job: %w", err)
		}

		existing, err := activeForJobTx(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if existing != nil {
			if notifyTarget != "" && existing.NotifyTarget == "" {
				if _, err := tx.ExecContext(
					ctx,
					`UPDATE run_queue SET notify_target = ? WHERE id = ?`,
					notifyTarget, existing.ID,
				); err != nil {
					return fmt.Errorf("backfill notify target: %w", err)
				}
				existing.NotifyTarget = notifyTarget
			}
			run = existing
			return nil
		}

		res, err := tx.ExecContext(
			ctx,
			`INSERT INTO run_queue (job_id, state, attempt, notify_target, created_by, enqueued_at)
             VALUES (?, ?, 1, ?, ?, ?)`,
			jobID, StateQueued, notifyTarget, strings.TrimSpace(createdBy), now,
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert run id: %w", err)
		}

		if err := markJobQueued(ctx, tx, jobID, now); err != nil {
			return err
		}

		inserted, err := getRunTx(ctx, tx, id)
		if err != nil {
			return err
		}
		run = inserted
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return run, created, nil
}

func activeForJobTx(ctx context.Context, tx *sql.Tx, jobID string) (*Run, error) {
	row := tx.QueryRowContext(
		ctx,
		`SELECT `+runColumns+` FROM run_queue
         WHERE job_id = ? AND state IN (?, ?)
         ORDER BY id DESC LIMIT 1`,
		jobID, StateQueued, StateRunning,
	)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active run for job: %w", err)
	}
	return run, nil
}

// ClaimNextQueued atomically takes ownership of the oldest due queued run.
// Rows whose available_at lies in the future are skipped. Returns nil when the
// queue is empty. The guarded UPDATE with a rows-affected check makes the claim
// safe even against a concurrent claimer.
func (s *Store) ClaimNextQueued(ctx context.Context, workerID string) (*Run, error) {
	var claimed *Run
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		nowTime := time.Now()
		now := timestamp(nowTime)

		row := tx.QueryRowContext(
			ctx,
			`SELECT id FROM run_queue
             WHERE state = ? AND (available_at IS NULL OR available_at <= ?)
             ORDER BY enqueued_at, id LIMIT 1`,
			StateQueued, now,
		)
		var id int64
		if err := row.Scan(&id); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return fmt.Errorf("select claimable run: %w", err)
		}

		res, err := tx.ExecContext(
			ctx,
			`UPDATE run_queue
             SET state = ?, worker_id = ?, started_at = ?, heartbeat_at = ?, last_error = ''
             WHERE id = ? AND state = ?`,
			StateRunning, workerID, now, now, id, StateQueued,
		)
		if err != nil {
			return fmt.Errorf("claim run: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("claim rows affected: %w", err)
		}
		if affected == 0 {
			return nil
		}

		run, err := getRunTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if run == nil {
			return nil
		}
		if err := markJobRunning(ctx, tx, run.JobID, now); err != nil {
			return err
		}
		claimed = run
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Heartbeat refreshes the liveness stamp on a running row. The update is
// guarded by worker ownership and state, so a reaped or finished row is never
// resurrected; the bool reports whether the row still belonged to the caller.
func (s *Store) Heartbeat(ctx context.Context, runID int64, workerID string) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE run_queue SET heartbeat_at = ?
         WHERE id = ? AND worker_id = ? AND state = ?`,
		timestamp(time.Now()), runID, workerID, StateRunning,
	)
	if err != nil {
		return false, fmt.Errorf("heartbeat run %d: %w", runID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat rows affected: %w", err)
	}
	return affected > 0, nil
}

// SetPipelineProcess records the spawned subprocess pid and process group on
// the claimed row so the reaper can clean up after a dead worker.
func (s *Store) SetPipelineProcess(ctx context.Context, runID int64, workerID string, pid, pgid int) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE run_queue SET pipeline_pid = ?, pipeline_pgid = ?
         WHERE id = ? AND worker_id = ? AND state = ?`,
		pid, pgid, runID, workerID, StateRunning,
	)
	if err != nil {
		return false, fmt.Errorf("record pipeline process: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record process rows affected: %w", err)
	}
	return affected > 0, nil
}

// Finish moves a running row owned by the caller into a terminal state. The
// bool reports whether the transition happened; false means another actor
// (typically the reaper) already took the row, and the caller's result must be
// discarded. When the job record still carries a non-terminal status the
// finish forces it to the matching terminal one, so a pipeline that died
// before writing its own status never leaves a ghost running job. For failed
// and canceled finishes the last error is appended to the job's error list.
func (s *Store) Finish(ctx context.Context, runID int64, workerID string, state State, lastError string) (bool, error) {
	if !state.Terminal() {
		return false, fmt.Errorf("finish requires a terminal state, got %q", state)
	}

	var finished bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := timestamp(time.Now())
		res, err := tx.ExecContext(
			ctx,
			`UPDATE run_queue SET state = ?, finished_at = ?, last_error = ?
             WHERE id = ? AND worker_id = ? AND state = ?`,
			state, now, strings.TrimSpace(lastError), runID, workerID, StateRunning,
		)
		if err != nil {
			return fmt.Errorf("finish run %d: %w", runID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("finish rows affected: %w", err)
		}
		if affected == 0 {
			return nil
		}
		finished = true

		run, err := getRunTx(ctx, tx, runID)
		if err != nil {
			return err
		}
		if run == nil {
			return nil
		}
		var (
			jobStatus JobStatus
			tag       string
		)
		switch state {
		case StateSucceeded:
			jobStatus = JobStatusSucceeded
		case StateFailed:
			jobStatus = JobStatusFailed
			tag = strings.TrimSpace(lastError)
			if tag == "" {
				tag = "run_failed"
			}
		case StateCanceled:
			jobStatus = JobStatusCanceled
			tag = strings.TrimSpace(lastError)
			if tag == "" {
				tag = "run_canceled"
			}
		}
		return forceJobTerminal(ctx, tx, run.JobID, jobStatus, tag, now)
	})
	if err != nil {
		return false, err
	}
	return finished, nil
}

// Defer hands a running row back to the queue without burning an attempt. The
// row becomes claimable again once availableAt passes; ownership and process
// bookkeeping are cleared so the next claim starts clean. The reason lands in
// last_error so operators can see why the run is waiting.
func (s *Store) Defer(ctx context.Context, runID int64, workerID string, availableAt time.Time, reason string) (bool, error) {
	var deferred bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(
			ctx,
			`UPDATE run_queue
             SET state = ?, available_at = ?, worker_id = '', started_at = NULL,
                 heartbeat_at = NULL, pipeline_pid = 0, pipeline_pgid = 0, last_error = ?
             WHERE id = ? AND worker_id = ? AND state = ?`,
			StateQueued, timestamp(availableAt), strings.TrimSpace(reason), runID, workerID, StateRunning,
		)
		if err != nil {
			return fmt.Errorf("defer run %d: %w", runID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("defer rows affected: %w", err)
		}
		if affected == 0 {
			return nil
		}
		deferred = true

		run, err := getRunTx(ctx, tx, runID)
		if err != nil {
			return err
		}
		if run != nil {
			if err := markJobQueued(ctx, tx, run.JobID, timestamp(time.Now())); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return deferred, nil
}

// Cancel asks for the active run of a job to stop. A queued row is canceled
// immediately. A running row only gets the cancellation fields stamped; the
// owning worker observes them on its next poll and performs the actual
// termination. Repeat requests never overwrite the first stamp. Returns
// ErrNoActiveRun when the job has no queued or running row.
func (s *Store) Cancel(ctx context.Context, jobID, requestedBy, reason string, mode CancelMode) (*CancelOutcome, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("job_id is required")
	}
	if mode != CancelGraceful && mode != CancelForce {
		mode = ParseCancelMode(string(mode))
	}

	var outcome *CancelOutcome
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		run, err := activeForJobTx(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if run == nil {
			return ErrNoActiveRun
		}
		now := timestamp(time.Now())

		switch run.State {
		case StateQueued:
			if _, err := tx.ExecContext(
				ctx,
				`UPDATE run_queue
                 SET state = ?, finished_at = ?, last_error = 'canceled_before_start',
                     cancel_requested_at = COALESCE(cancel_requested_at, ?),
                     cancel_requested_by = CASE WHEN cancel_requested_at IS NULL THEN ? ELSE cancel_requested_by END,
                     cancel_reason = CASE WHEN cancel_requested_at IS NULL THEN ? ELSE cancel_reason END,
                     cancel_mode = CASE WHEN cancel_requested_at IS NULL THEN ? ELSE cancel_mode END
                 WHERE id = ? AND state = ?`,
				StateCanceled, now, now, strings.TrimSpace(requestedBy), strings.TrimSpace(reason), mode,
				run.ID, StateQueued,
			); err != nil {
				return fmt.Errorf("cancel queued run: %w", err)
			}
			if err := forceJobTerminal(ctx, tx, jobID, JobStatusCanceled, "canceled_before_start", now); err != nil {
				return err
			}
			updated, err := getRunTx(ctx, tx, run.ID)
			if err != nil {
				return err
			}
			outcome = &CancelOutcome{Action: CancelActionCanceled, Run: updated}
			return nil

		case StateRunning:
			action := CancelActionCancelRequested
			if run.CancelRequested() {
				action = CancelActionAlreadyRequested
			} else {
				if _, err := tx.ExecContext(
					ctx,
					`UPDATE run_queue
                     SET cancel_requested_at = ?, cancel_requested_by = ?, cancel_reason = ?, cancel_mode = ?
                     WHERE id = ? AND state = ? AND cancel_requested_at IS NULL`,
					now, strings.TrimSpace(requestedBy), strings.TrimSpace(reason), mode,
					run.ID, StateRunning,
				); err != nil {
					return fmt.Errorf("request cancel: %w", err)
				}
			}
			updated, err := getRunTx(ctx, tx, run.ID)
			if err != nil {
				return err
			}
			outcome = &CancelOutcome{Action: action, Run: updated}
			return nil

		default:
			return ErrNoActiveRun
		}
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// CancelRequestFor returns the cancellation snapshot for a run. The owning
// worker polls this while the pipeline subprocess is alive.
func (s *Store) CancelRequestFor(ctx context.Context, runID int64) (CancelRequest, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT cancel_requested_at, cancel_requested_by, cancel_reason, cancel_mode
         FROM run_queue WHERE id = ?`,
		runID,
	)
	var (
		requestedRaw sql.NullString
		requestedBy  string
		reason       string
		modeValue    string
	)
	if err := row.Scan(&requestedRaw, &requestedBy, &reason, &modeValue); err != nil {
		if err == sql.ErrNoRows {
			return CancelRequest{}, fmt.Errorf("cancel request for run %d: run not found", runID)
		}
		return CancelRequest{}, fmt.Errorf("cancel request for run %d: %w", runID, err)
	}
	return CancelRequest{
		RequestedAt: scanNullableTime(requestedRaw),
		RequestedBy: requestedBy,
		Reason:      reason,
		Mode:        CancelMode(modeValue),
	}, nil
}
