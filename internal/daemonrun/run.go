// Package daemonrun wires the daemon process together: logging, pid file,
// queue store, worker, singleton lock, and the IPC control socket.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/gofrs/flock"

	"glossa/internal/config"
	"glossa/internal/daemon"
	"glossa/internal/ipc"
	"glossa/internal/logging"
	"glossa/internal/notifications"
	"glossa/internal/queue"
	"glossa/internal/worker"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the glossa daemon runtime loop and blocks until shutdown.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "glossad.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	notifier := notifications.NewService(cfg)
	w := worker.New(cfg, store, logger, worker.WithNotifier(notifier))

	d, err := daemon.New(cfg, store, logger, w, notifier)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			logger.Info("another instance holds the lock, exiting",
				logging.String(logging.FieldEventType, "daemon_duplicate_instance"),
				logging.String("lock", cfg.LockPath()),
			)
			return nil
		}
		return fmt.Errorf("start daemon: %w", err)
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger, cancel)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	<-signalCtx.Done()
	logger.Info("glossa daemon shutting down")
	return nil
}

// RunOnce claims and processes at most one queued run, then exits. Intended
// for cron-style deployments without a resident daemon. Exits cleanly without
// processing when a resident daemon holds the singleton lock.
func RunOnce(cmdCtx context.Context, cfg *config.Config, opts Options) (bool, error) {
	if cfg == nil {
		return false, fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return false, fmt.Errorf("init logger: %w", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return false, fmt.Errorf("open queue store: %w", err)
	}
	defer store.Close()

	// The one-shot claim still honors the singleton lock so it never races a
	// resident daemon.
	lock := flock.New(cfg.LockPath())
	held, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	if !held {
		logger.Info("resident daemon active, skipping one-shot run")
		return false, nil
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release lock", logging.Error(err))
		}
	}()

	notifier := notifications.NewService(cfg)
	w := worker.New(cfg, store, logger, worker.WithNotifier(notifier))

	processed, err := w.RunOnce(signalCtx)
	if err != nil {
		return false, fmt.Errorf("run once: %w", err)
	}
	return processed, nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
