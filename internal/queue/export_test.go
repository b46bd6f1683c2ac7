package queue

import (
	"context"
	"fmt"
	"time"
)

// BackdateHeartbeat rewinds the liveness stamps on a run so recovery paths can
// be exercised without waiting out real thresholds.
func (s *Store) BackdateHeartbeat(ctx context.Context, runID int64, to time.Time) error {
	stamp := timestamp(to)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE run_queue SET heartbeat_at = ?, started_at = ? WHERE id = ?`,
		stamp, stamp, runID,
	)
	if err != nil {
		return fmt.Errorf("backdate heartbeat: %w", err)
	}
	return nil
}

// MakeDue rewinds a run's availability window so it is claimable immediately.
func (s *Store) MakeDue(ctx context.Context, runID int64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE run_queue SET available_at = ? WHERE id = ?`,
		timestamp(time.Now().Add(-time.Minute)), runID,
	)
	if err != nil {
		return fmt.Errorf("make run due: %w", err)
	}
	return nil
}

// BackdateEnqueue rewinds the enqueue stamp on a run to force FIFO ordering.
func (s *Store) BackdateEnqueue(ctx context.Context, runID int64, to time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE run_queue SET enqueued_at = ? WHERE id = ?`,
		timestamp(to), runID,
	)
	if err != nil {
		return fmt.Errorf("backdate enqueue: %w", err)
	}
	return nil
}
