package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// The jobs table is owned by the translation pipeline; the scheduler's contract
// with it is intentionally narrow. RegisterJob/GetJob exist so operators can
// seed jobs and the worker can read the error side-channel; the status flips in
// this file run inside the same transaction as the queue mutation they belong to.

// RegisterJob inserts a job record if absent and returns the stored row.
// Language fields and notify target are only written on first registration.
func (s *Store) RegisterJob(ctx context.Context, jobID, sourceLang, targetLang, notifyTarget string) (*Job, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, errors.New("job_id is required")
	}
	now := timestamp(time.Now())
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO jobs (job_id, status, source_lang, target_lang, notify_target, errors_json, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, '[]', ?, ?)
             ON CONFLICT(job_id) DO NOTHING`,
			jobID, JobStatusPlanned, strings.TrimSpace(sourceLang), strings.TrimSpace(targetLang),
			strings.TrimSpace(notifyTarget), now, now,
		)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetJob(ctx, jobID)
}

// GetJob returns the job-status record, or nil when unknown.
func (s *Store) GetJob(ctx context.Context, jobID string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT job_id, status, source_lang, target_lang, notify_target, errors_json, created_at, updated_at
         FROM jobs WHERE job_id = ?`,
		strings.TrimSpace(jobID),
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		jobID        string
		status       string
		sourceLang   string
		targetLang   string
		notifyTarget string
		errorsRaw    string
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(&jobID, &status, &sourceLang, &targetLang, &notifyTarget, &errorsRaw, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	job := &Job{
		JobID:        jobID,
		Status:       JobStatus(status),
		SourceLang:   sourceLang,
		TargetLang:   targetLang,
		NotifyTarget: notifyTarget,
	}
	if errorsRaw != "" {
		if err := json.Unmarshal([]byte(errorsRaw), &job.Errors); err != nil {
			job.Errors = nil
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

// markJobQueued aligns the job status with a fresh enqueue without clobbering a
// run already in flight.
func markJobQueued(ctx context.Context, tx *sql.Tx, jobID, now string) error {
	_, err := tx.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE job_id = ? AND status != ?`,
		JobStatusQueued, now, jobID, JobStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("mark job queued: %w", err)
	}
	return nil
}

// markJobRunning flips the job status on claim. Terminal statuses are never
// overwritten; a rerun of a finished job is the pipeline's call, not ours.
func markJobRunning(ctx context.Context, tx *sql.Tx, jobID, now string) error {
	_, err := tx.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE job_id = ? AND status IN (?, ?)`,
		JobStatusRunning, now, jobID, JobStatusPlanned, JobStatusQueued,
	)
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	return nil
}

// forceJobTerminal records an abnormal finish on the job when the pipeline died
// before writing a final status itself, so a ghost "running" job never lingers.
// The error tag is appended to the job's error side-channel exactly once.
func forceJobTerminal(ctx context.Context, tx *sql.Tx, jobID string, status JobStatus, errorTag, now string) error {
	row := tx.QueryRowContext(
		ctx,
		`SELECT job_id, status, source_lang, target_lang, notify_target, errors_json, created_at, updated_at
         FROM jobs WHERE job_id = ?`,
		jobID,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read job for finish: %w", err)
	}
	if job.Status.Terminal() {
		return nil
	}

	errs := job.Errors
	if errorTag != "" {
		seen := false
		for _, e := range errs {
			if e == errorTag {
				seen = true
				break
			}
		}
		if !seen {
			errs = append(errs, errorTag)
		}
	}
	encoded, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("encode job errors: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, errors_json = ?, updated_at = ? WHERE job_id = ?`,
		status, string(encoded), now, jobID,
	); err != nil {
		return fmt.Errorf("force job terminal: %w", err)
	}
	return nil
}
