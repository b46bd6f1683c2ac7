package ipc_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"glossa/internal/daemon"
	"glossa/internal/ipc"
	"glossa/internal/logging"
	"glossa/internal/queue"
	"glossa/internal/testsupport"
	"glossa/internal/worker"
)

func startServer(t *testing.T) (*ipc.Client, *daemon.Daemon, chan struct{}) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	w := worker.New(cfg, store, logging.NewNop())
	d, err := daemon.New(cfg, store, logging.NewNop(), w, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Stop() })

	shutdownRequested := make(chan struct{})
	server, err := ipc.NewServer(context.Background(), cfg.SocketPath(), d, logging.NewNop(), func() {
		close(shutdownRequested)
	})
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	server.Serve()
	t.Cleanup(server.Close)

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, d, shutdownRequested
}

func ipcEnqueue(jobID, notifyTarget string) ipc.EnqueueRequest {
	return ipc.EnqueueRequest{JobID: jobID, NotifyTarget: notifyTarget, CreatedBy: "cli"}
}

func TestEnqueueCancelDescribeRoundTrip(t *testing.T) {
	client, _, _ := startServer(t)

	enq, err := client.Enqueue(ipcEnqueue("job-ipc", "ops"))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if !enq.Created || enq.Run.JobID != "job-ipc" || enq.Run.State != string(queue.StateQueued) {
		t.Fatalf("unexpected enqueue response: %#v", enq)
	}

	again, err := client.Enqueue(ipcEnqueue("job-ipc", ""))
	if err != nil {
		t.Fatalf("repeat Enqueue failed: %v", err)
	}
	if again.Created || again.Run.ID != enq.Run.ID {
		t.Fatalf("expected idempotent enqueue, got %#v", again)
	}

	cancel, err := client.Cancel("job-ipc", "admin", "test", "graceful")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancel.Action != queue.CancelActionCanceled {
		t.Fatalf("expected queued run canceled, got %q", cancel.Action)
	}

	desc, err := client.Describe("job-ipc")
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if desc.Job.Status != string(queue.JobStatusCanceled) || len(desc.Runs) != 1 {
		t.Fatalf("unexpected describe response: %#v", desc)
	}

	if _, err := client.Describe("job-unknown"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestListHealthAndClear(t *testing.T) {
	client, _, _ := startServer(t)

	for _, jobID := range []string{"job-a", "job-b"} {
		if _, err := client.Enqueue(ipcEnqueue(jobID, "")); err != nil {
			t.Fatalf("Enqueue %s failed: %v", jobID, err)
		}
	}
	if _, err := client.Cancel("job-b", "admin", "", "force"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	list, err := client.QueueList([]string{"queued"})
	if err != nil {
		t.Fatalf("QueueList failed: %v", err)
	}
	if len(list.Runs) != 1 || list.Runs[0].JobID != "job-a" {
		t.Fatalf("unexpected filtered listing: %#v", list.Runs)
	}

	if _, err := client.QueueList([]string{"bogus"}); err == nil {
		t.Fatal("expected error for unknown state filter")
	}

	health, err := client.QueueHealth()
	if err != nil {
		t.Fatalf("QueueHealth failed: %v", err)
	}
	if health.Total != 2 || health.Queued != 1 || health.Canceled != 1 {
		t.Fatalf("unexpected health: %#v", health)
	}

	dbHealth, err := client.DatabaseHealth()
	if err != nil {
		t.Fatalf("DatabaseHealth failed: %v", err)
	}
	if dbHealth.Error != "" || !dbHealth.IntegrityCheck {
		t.Fatalf("unexpected db health: %#v", dbHealth)
	}

	cleared, err := client.QueueClear(nil)
	if err != nil {
		t.Fatalf("QueueClear failed: %v", err)
	}
	if cleared.Removed != 1 {
		t.Fatalf("expected 1 terminal row removed, got %d", cleared.Removed)
	}
}

func TestStatusAndStop(t *testing.T) {
	client, d, shutdownRequested := startServer(t)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Running {
		t.Fatal("worker was never started, status must report not running")
	}
	if status.WorkerID == "" || status.QueueDBPath == "" || status.LockPath == "" {
		t.Fatalf("incomplete status: %#v", status)
	}
	_ = d

	stop, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !stop.Stopped {
		t.Fatal("expected stop acknowledgement")
	}
	select {
	case <-shutdownRequested:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown callback was not invoked")
	}
}
