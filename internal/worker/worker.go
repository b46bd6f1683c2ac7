package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"glossa/internal/config"
	"glossa/internal/logging"
	"glossa/internal/notifications"
	"glossa/internal/queue"
)

// Worker claims queued runs one at a time and supervises the pipeline
// subprocess for each. One Worker instance handles the whole daemon; the
// database-level claim guards make a second instance harmless, just useless.
type Worker struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	notifier notifications.Service

	workerID  string
	sessionID string

	pollInterval time.Duration
	reaper       *cron.Cron

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures optional Worker behavior.
type Option func(*Worker)

// WithNotifier injects a custom notification service (used in tests).
func WithNotifier(notifier notifications.Service) Option {
	return func(w *Worker) {
		if notifier != nil {
			w.notifier = notifier
		}
	}
}

// WithWorkerID overrides the host:pid worker identity (used in tests).
func WithWorkerID(id string) Option {
	return func(w *Worker) {
		if id != "" {
			w.workerID = id
		}
	}
}

// New constructs a worker bound to the store and configuration.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	w := &Worker{
		cfg:          cfg,
		store:        store,
		notifier:     notifications.NewService(cfg),
		workerID:     defaultWorkerID(),
		sessionID:    uuid.NewString(),
		pollInterval: time.Duration(cfg.Worker.PollSeconds) * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logging.NewComponentLogger(logger, "worker").With(
		logging.String(logging.FieldWorkerID, w.workerID),
		logging.String("session_id", w.sessionID),
	)
	return w
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

// WorkerID returns this worker's claim identity.
func (w *Worker) WorkerID() string {
	return w.workerID
}

// Start begins the claim loop and the reaper schedule.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("worker already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true

	reaper := cron.New()
	if _, err := reaper.AddFunc(w.cfg.Worker.ReaperSchedule, func() {
		w.reapStuck(runCtx)
	}); err != nil {
		cancel()
		w.running = false
		w.cancel = nil
		return fmt.Errorf("schedule reaper: %w", err)
	}
	w.reaper = reaper
	reaper.Start()

	w.wg.Add(1)
	go w.runLoop(runCtx)

	w.logger.Info("worker started",
		logging.Duration("poll_interval", w.pollInterval),
		logging.String("reaper_schedule", w.cfg.Worker.ReaperSchedule),
	)
	return nil
}

// Stop terminates the loop and waits for the in-flight run to settle.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	reaper := w.reaper
	w.running = false
	w.cancel = nil
	w.reaper = nil
	w.mu.Unlock()

	if reaper != nil {
		reaperCtx := reaper.Stop()
		<-reaperCtx.Done()
	}
	cancel()
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) runLoop(ctx context.Context) {
	defer w.wg.Done()

	// Recover anything a previous crash of this same host left behind before
	// taking new work.
	w.reapStuck(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		processed, err := w.claimAndProcess(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logging.ErrorWithContext(w.logger, "claim cycle failed", "claim_cycle_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

// RunOnce claims and processes at most one run, then returns. Intended for
// cron-style invocations without a resident daemon. The bool reports whether a
// run was processed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	w.reapStuck(ctx)
	return w.claimAndProcess(ctx)
}

func (w *Worker) reapStuck(ctx context.Context) {
	stuckAfter := time.Duration(w.cfg.Worker.StuckSeconds) * time.Second
	result, err := w.store.RequeueStuck(ctx, stuckAfter, w.cfg.Worker.MaxAttempts, killGroup)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logging.WarnWithContext(w.logger, "stuck-run sweep failed", "reaper_sweep_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return
	}
	if result.Total() == 0 {
		return
	}
	w.logger.Info("recovered stuck runs",
		logging.Int("requeued", len(result.Requeued)),
		logging.Int("failed", len(result.Failed)),
		logging.Int("canceled", len(result.Canceled)),
		logging.String(logging.FieldEventType, "stuck_runs_recovered"),
	)
	if err := w.notifier.NotifyStuckRecovered(ctx, len(result.Requeued), len(result.Failed), len(result.Canceled)); err != nil {
		w.logger.Warn("stuck-recovery notification failed", logging.Error(err))
	}
}
