package worker_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"glossa/internal/logging"
	"glossa/internal/queue"
	"glossa/internal/testsupport"
	"glossa/internal/worker"
)

func waitFor(t *testing.T, timeout time.Duration, what string, predicate func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if predicate() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRunOnceProcessesQueuedRun(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPipelineScript("exit 0\n"))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := testsupport.MustEnqueue(t, store, "job-ok")
	w := worker.New(cfg, store, logging.NewNop())

	processed, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if !processed {
		t.Fatal("expected the queued run to be processed")
	}

	finished, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if finished.State != queue.StateSucceeded {
		t.Fatalf("expected succeeded, got %#v", finished)
	}
	if finished.WorkerID != w.WorkerID() {
		t.Fatalf("expected run owned by %s, got %q", w.WorkerID(), finished.WorkerID)
	}

	job, err := store.GetJob(ctx, "job-ok")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != queue.JobStatusSucceeded {
		t.Fatalf("expected succeeded job, got %q", job.Status)
	}

	processed, err = w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second RunOnce failed: %v", err)
	}
	if processed {
		t.Fatal("empty queue must report processed=false")
	}
}

func TestRunOnceRecordsExitCodeOnFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPipelineScript("exit 7\n"))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := testsupport.MustEnqueue(t, store, "job-fail")
	w := worker.New(cfg, store, logging.NewNop())

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	finished, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if finished.State != queue.StateFailed || finished.LastError != "exit_code:7" {
		t.Fatalf("expected exit_code:7 failure, got %#v", finished)
	}

	job, err := store.GetJob(ctx, "job-fail")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != queue.JobStatusFailed {
		t.Fatalf("expected failed job, got %q", job.Status)
	}
}

func TestRunOnceFailsCleanlyOnBadPipeline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPipelineCommand("/nonexistent/translate"))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := testsupport.MustEnqueue(t, store, "job-bad-binary")
	w := worker.New(cfg, store, logging.NewNop())

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	finished, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if finished.State != queue.StateFailed {
		t.Fatalf("expected failed run, got %#v", finished)
	}
}

func TestGracefulCancelStopsRunningPipeline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPipelineScript("sleep 30\n"))
	cfg.Worker.CancelGraceSeconds = 2
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := testsupport.MustEnqueue(t, store, "job-cancel")
	w := worker.New(cfg, store, logging.NewNop())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	waitFor(t, 10*time.Second, "run to start", func() bool {
		current, err := store.GetRun(ctx, run.ID)
		return err == nil && current.State == queue.StateRunning && current.PipelinePID > 0
	})

	outcome, err := store.Cancel(ctx, "job-cancel", "admin", "test teardown", queue.CancelGraceful)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if outcome.Action != queue.CancelActionCancelRequested {
		t.Fatalf("expected cancel_requested, got %q", outcome.Action)
	}

	waitFor(t, 10*time.Second, "run to finish canceled", func() bool {
		current, err := store.GetRun(ctx, run.ID)
		return err == nil && current.State == queue.StateCanceled
	})

	job, err := store.GetJob(ctx, "job-cancel")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != queue.JobStatusCanceled {
		t.Fatalf("expected canceled job, got %q", job.Status)
	}
}

func TestForceCancelDeliversTermBeforeKill(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "term-received")
	script := fmt.Sprintf("trap 'touch %s; kill $! 2>/dev/null; exit 0' TERM\nsleep 30 &\nwait $!\n", marker)
	cfg := testsupport.NewConfig(t, testsupport.WithPipelineScript(script))
	cfg.Worker.CancelGraceSeconds = 5
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := testsupport.MustEnqueue(t, store, "job-force-cancel")
	w := worker.New(cfg, store, logging.NewNop())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	waitFor(t, 10*time.Second, "run to start", func() bool {
		current, err := store.GetRun(ctx, run.ID)
		return err == nil && current.State == queue.StateRunning && current.PipelinePID > 0
	})

	outcome, err := store.Cancel(ctx, "job-force-cancel", "admin", "force teardown", queue.CancelForce)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if outcome.Action != queue.CancelActionCancelRequested {
		t.Fatalf("expected cancel_requested, got %q", outcome.Action)
	}

	waitFor(t, 10*time.Second, "run to finish canceled", func() bool {
		current, err := store.GetRun(ctx, run.ID)
		return err == nil && current.State == queue.StateCanceled
	})

	// A nonzero grace period means the group gets SIGTERM and a cleanup
	// window before any SIGKILL, force mode included.
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("pipeline did not observe SIGTERM during the grace window: %v", err)
	}
}

func TestStopRequeuesInFlightRun(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPipelineScript("sleep 30\n"))
	cfg.Worker.CancelGraceSeconds = 2
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := testsupport.MustEnqueue(t, store, "job-shutdown")
	w := worker.New(cfg, store, logging.NewNop())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, 10*time.Second, "run to start", func() bool {
		current, err := store.GetRun(ctx, run.ID)
		return err == nil && current.State == queue.StateRunning
	})

	w.Stop()

	requeued, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if requeued.State != queue.StateQueued {
		t.Fatalf("expected run back in queue after shutdown, got %#v", requeued)
	}
	if requeued.Attempt != 1 {
		t.Fatalf("shutdown must not burn an attempt, got %d", requeued.Attempt)
	}
	if requeued.LastError != "worker_shutdown" {
		t.Fatalf("expected worker_shutdown reason, got %q", requeued.LastError)
	}
}

func TestStartIsExclusive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	w := worker.New(cfg, store, logging.NewNop())
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
}
