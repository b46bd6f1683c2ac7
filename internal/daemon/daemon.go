package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"glossa/internal/config"
	"glossa/internal/logging"
	"glossa/internal/notifications"
	"glossa/internal/queue"
	"glossa/internal/worker"
)

// ErrAlreadyRunning indicates another daemon instance holds the lock.
var ErrAlreadyRunning = errors.New("another glossa daemon instance is already running")

// Daemon coordinates the scheduler services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	worker   *worker.Worker
	notifier notifications.Service
	logPath  string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	WorkerID     string
	QueueDBPath  string
	LockFilePath string
	QueueStats   queue.HealthSummary
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, w *worker.Worker, notifier notifications.Service) (*Daemon, error) {
	if cfg == nil || store == nil || w == nil {
		return nil, errors.New("daemon requires config, store, and worker")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		worker:   w,
		notifier: notifier,
		logPath:  cfg.LogFilePath(),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the worker. A held lock means
// another instance is alive; the caller should exit cleanly.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.worker.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start worker: %w", err)
	}
	d.cancel = cancel

	d.running.Store(true)
	d.logger.Info("glossa daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.worker.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("glossa daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the worker loop is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LogPath returns the daemon log file location.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status summarizes runtime state for the control surface.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		WorkerID:     d.worker.WorkerID(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if stats, err := d.store.Stats(ctx); err == nil {
		status.QueueStats = stats
	}
	return status
}

// RegisterJob seeds a job record with its language pair.
func (d *Daemon) RegisterJob(ctx context.Context, jobID, sourceLang, targetLang, notifyTarget string) (*queue.Job, error) {
	return d.store.RegisterJob(ctx, jobID, sourceLang, targetLang, notifyTarget)
}

// Enqueue records a run request for a job.
func (d *Daemon) Enqueue(ctx context.Context, jobID, notifyTarget, createdBy string) (*queue.Run, bool, error) {
	return d.store.Enqueue(ctx, jobID, notifyTarget, createdBy)
}

// Cancel asks the active run of a job to stop.
func (d *Daemon) Cancel(ctx context.Context, jobID, requestedBy, reason string, mode queue.CancelMode) (*queue.CancelOutcome, error) {
	return d.store.Cancel(ctx, jobID, requestedBy, reason, mode)
}

// ListQueue returns run rows filtered by optional states.
func (d *Daemon) ListQueue(ctx context.Context, states []queue.State) ([]*queue.Run, error) {
	return d.store.List(ctx, states...)
}

// GetRun fetches one run row.
func (d *Daemon) GetRun(ctx context.Context, id int64) (*queue.Run, error) {
	return d.store.GetRun(ctx, id)
}

// RunsForJob returns every recorded attempt for a job.
func (d *Daemon) RunsForJob(ctx context.Context, jobID string) ([]*queue.Run, error) {
	return d.store.RunsForJob(ctx, jobID)
}

// GetJob fetches the job-status record.
func (d *Daemon) GetJob(ctx context.Context, jobID string) (*queue.Job, error) {
	return d.store.GetJob(ctx, jobID)
}

// QueueHealth returns aggregate per-state counts.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Stats(ctx)
}

// DatabaseHealth returns detailed queue database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) queue.DatabaseHealth {
	return d.store.CheckHealth(ctx)
}

// ClearFinished removes terminal rows from the queue.
func (d *Daemon) ClearFinished(ctx context.Context, states ...queue.State) (int64, error) {
	return d.store.Clear(ctx, states...)
}

// TestNotification sends a test event through the configured notifier.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, err.Error(), err
	}
	return true, "test notification sent", nil
}
