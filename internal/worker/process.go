package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"glossa/internal/logging"
	"glossa/internal/pipeline"
	"glossa/internal/queue"
)

func killGroup(pid, pgid int) {
	pipeline.KillGroup(pid, pgid)
}

func (w *Worker) claimAndProcess(ctx context.Context) (bool, error) {
	run, err := w.store.ClaimNextQueued(ctx, w.workerID)
	if err != nil {
		return false, err
	}
	if run == nil {
		return false, nil
	}
	w.processRun(ctx, run)
	return true, nil
}

// processRun owns one claimed run from spawn to terminal finish. Any internal
// error, including a panic, ends in a failed finish rather than a crashed
// loop.
func (w *Worker) processRun(ctx context.Context, run *queue.Run) {
	logger := w.logger.With(
		logging.String(logging.FieldJobID, run.JobID),
		logging.Int64(logging.FieldQueueID, run.ID),
		logging.Int("attempt", run.Attempt),
	)
	// Database writes must still land when the surrounding context is being
	// torn down during shutdown.
	dbCtx := context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "run handler panicked", "run_handler_panic",
				logging.String("panic", fmt.Sprint(r)),
			)
			w.finishRun(dbCtx, logger, run, queue.StateFailed, fmt.Sprintf("panic: %v", r))
		}
	}()

	inv, err := pipeline.BuildInvocation(w.cfg, run.JobID, run.NotifyTarget)
	if err != nil {
		w.finishRun(dbCtx, logger, run, queue.StateFailed, fmt.Sprintf("pipeline config: %v", err))
		return
	}

	logger.Info("starting pipeline", logging.String("command", inv.String()))
	handle, err := pipeline.Start(logging.NewComponentLogger(logger, "pipeline"), inv, w.cfg.Paths.WorkRoot)
	if err != nil {
		w.finishRun(dbCtx, logger, run, queue.StateFailed, fmt.Sprintf("spawn pipeline: %v", err))
		return
	}

	if ok, err := w.store.SetPipelineProcess(dbCtx, run.ID, w.workerID, handle.PID(), handle.PGID()); err != nil || !ok {
		// The row is no longer ours; nothing downstream may keep running.
		logging.WarnWithContext(logger, "lost run before pipeline registration", "run_ownership_lost",
			logging.Error(err),
		)
		_ = handle.Kill()
		<-handle.Done()
		return
	}

	if err := w.notifier.NotifyRunClaimed(ctx, run.JobID, run.NotifyTarget, run.Attempt); err != nil {
		logger.Warn("claim notification failed", logging.Error(err))
	}

	hbCtx, hbStop := context.WithCancel(ctx)
	lost := make(chan struct{})
	w.wg.Add(1)
	go w.heartbeatLoop(hbCtx, logger, run.ID, lost)

	outcome := w.monitor(ctx, dbCtx, logger, run, handle, lost)
	hbStop()

	if outcome.abandoned {
		return
	}
	w.finishRun(dbCtx, logger, run, outcome.state, outcome.lastError)
}

type runOutcome struct {
	state     queue.State
	lastError string
	abandoned bool
}

// monitor waits for the pipeline to exit while polling for cancellation
// requests and ownership loss. It never writes the terminal state itself.
func (w *Worker) monitor(ctx, dbCtx context.Context, logger *slog.Logger, run *queue.Run, handle *pipeline.Handle, lost <-chan struct{}) runOutcome {
	cancelPoll := time.Duration(w.cfg.Worker.CancelPollSeconds * float64(time.Second))
	if cancelPoll < 200*time.Millisecond {
		cancelPoll = 200 * time.Millisecond
	}
	grace := time.Duration(w.cfg.Worker.CancelGraceSeconds) * time.Second

	ticker := time.NewTicker(cancelPoll)
	defer ticker.Stop()

	canceling := false
	for {
		select {
		case <-handle.Done():
			return w.classify(dbCtx, logger, run, handle, canceling)

		case <-lost:
			// Reaper took the row; the old pipeline must not outlive it.
			logging.WarnWithContext(logger, "run reaped while pipeline alive", "run_ownership_lost")
			_ = handle.Kill()
			<-handle.Done()
			return runOutcome{abandoned: true}

		case <-ctx.Done():
			// Daemon shutdown: stop the pipeline and hand the run back to the
			// queue so the next start retries it without burning an attempt.
			logger.Info("shutting down, interrupting pipeline")
			w.stopPipeline(handle, grace)
			if ok, err := w.store.Defer(dbCtx, run.ID, w.workerID, time.Now(), "worker_shutdown"); err != nil || !ok {
				logging.WarnWithContext(logger, "requeue on shutdown failed", "shutdown_requeue_failed",
					logging.Error(err),
				)
			}
			return runOutcome{abandoned: true}

		case <-ticker.C:
			if canceling {
				continue
			}
			req, err := w.store.CancelRequestFor(dbCtx, run.ID)
			if err != nil {
				logger.Warn("cancel poll failed", logging.Error(err))
				continue
			}
			if !req.Requested() {
				continue
			}
			canceling = true
			logger.Info("cancel requested, stopping pipeline",
				logging.String("mode", string(req.Mode)),
				logging.String("requested_by", req.RequestedBy),
			)
			if req.Mode == queue.CancelForce {
				w.stopPipeline(handle, grace)
			} else {
				go w.stopPipeline(handle, grace)
			}
		}
	}
}

// stopPipeline sends SIGTERM to the process group and escalates to SIGKILL
// after the grace period. A zero grace escalates without waiting, but the
// group still sees the TERM first.
func (w *Worker) stopPipeline(handle *pipeline.Handle, grace time.Duration) {
	_ = handle.Terminate()
	if grace <= 0 {
		_ = handle.Kill()
		return
	}
	select {
	case <-handle.Done():
	case <-time.After(grace):
		_ = handle.Kill()
	}
}

// classify maps a finished pipeline to its terminal state. A pending
// cancellation wins over the exit code; a clean exit wins over failure.
func (w *Worker) classify(dbCtx context.Context, logger *slog.Logger, run *queue.Run, handle *pipeline.Handle, canceling bool) runOutcome {
	if !canceling {
		// The request may have landed between the last poll and the exit.
		if req, err := w.store.CancelRequestFor(dbCtx, run.ID); err == nil && req.Requested() {
			canceling = true
		}
	}
	if canceling {
		return runOutcome{state: queue.StateCanceled, lastError: "canceled_by_request"}
	}

	code, waitErr := handle.Result()
	if code == 0 && waitErr == nil {
		return runOutcome{state: queue.StateSucceeded}
	}
	return runOutcome{state: queue.StateFailed, lastError: w.failureDetail(dbCtx, logger, run.JobID, code)}
}

// failureDetail prefers the pipeline's own last recorded error over the bare
// exit code.
func (w *Worker) failureDetail(ctx context.Context, logger *slog.Logger, jobID string, code int) string {
	job, err := w.store.GetJob(ctx, jobID)
	if err != nil {
		logger.Warn("read job errors failed", logging.Error(err))
	}
	if job != nil && len(job.Errors) > 0 {
		return job.Errors[len(job.Errors)-1]
	}
	return fmt.Sprintf("exit_code:%d", code)
}

func (w *Worker) finishRun(ctx context.Context, logger *slog.Logger, run *queue.Run, state queue.State, lastError string) {
	ok, err := w.store.Finish(ctx, run.ID, w.workerID, state, lastError)
	if err != nil {
		logging.ErrorWithContext(logger, "finish run failed", "finish_failed",
			logging.Error(err),
			logging.String("state", string(state)),
		)
		return
	}
	if !ok {
		logging.WarnWithContext(logger, "run already taken, result discarded", "finish_lost_race",
			logging.String("state", string(state)),
		)
		return
	}
	logger.Info("run finished",
		logging.String("state", string(state)),
		logging.String("last_error", lastError),
	)

	duration := time.Duration(0)
	if run.StartedAt != nil {
		duration = time.Since(*run.StartedAt)
	}
	var notifyErr error
	switch state {
	case queue.StateSucceeded:
		notifyErr = w.notifier.NotifyRunSucceeded(ctx, run.JobID, run.NotifyTarget, duration)
	case queue.StateFailed:
		notifyErr = w.notifier.NotifyRunFailed(ctx, run.JobID, run.NotifyTarget, lastError, run.Attempt)
	case queue.StateCanceled:
		notifyErr = w.notifier.NotifyRunCanceled(ctx, run.JobID, run.NotifyTarget, run.CancelRequestedBy)
	}
	if notifyErr != nil {
		logger.Warn("finish notification failed", logging.Error(notifyErr))
	}
}

// heartbeatLoop refreshes the liveness stamp until stopped. Losing ownership
// closes lost exactly once; write errors are tolerated because the row only
// goes stale after many misses.
func (w *Worker) heartbeatLoop(ctx context.Context, logger *slog.Logger, runID int64, lost chan<- struct{}) {
	defer w.wg.Done()

	interval := time.Duration(w.cfg.Worker.HeartbeatSeconds) * time.Second
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := w.store.Heartbeat(context.WithoutCancel(ctx), runID, w.workerID)
			if err != nil {
				logging.WarnWithContext(logger, "heartbeat write failed", "heartbeat_write_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check queue database access"),
				)
				continue
			}
			if !ok {
				close(lost)
				return
			}
		}
	}
}
