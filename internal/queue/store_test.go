package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"glossa/internal/queue"
	"glossa/internal/testsupport"
)

func TestEnqueueIsIdempotentWhileActive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first, created, err := store.Enqueue(ctx, "job-1", "", "cli")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if !created {
		t.Fatal("expected first enqueue to create a row")
	}
	if first.State != queue.StateQueued || first.Attempt != 1 {
		t.Fatalf("unexpected initial run: %#v", first)
	}

	second, created, err := store.Enqueue(ctx, "job-1", "ops-channel", "cli")
	if err != nil {
		t.Fatalf("second Enqueue failed: %v", err)
	}
	if created {
		t.Fatal("expected second enqueue to reuse the active row")
	}
	if second.ID != first.ID {
		t.Fatalf("expected run %d, got %d", first.ID, second.ID)
	}
	if second.NotifyTarget != "ops-channel" {
		t.Fatalf("expected blank notify target to be backfilled, got %q", second.NotifyTarget)
	}

	// A claimed run is still active, so the enqueue must keep deduplicating.
	if _, err := store.ClaimNextQueued(ctx, "worker-a"); err != nil {
		t.Fatalf("ClaimNextQueued failed: %v", err)
	}
	third, created, err := store.Enqueue(ctx, "job-1", "", "cli")
	if err != nil {
		t.Fatalf("third Enqueue failed: %v", err)
	}
	if created || third.ID != first.ID {
		t.Fatalf("expected running row to be reused, got created=%v id=%d", created, third.ID)
	}

	if _, err := store.Finish(ctx, first.ID, "worker-a", queue.StateSucceeded, ""); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	fresh, created, err := store.Enqueue(ctx, "job-1", "", "cli")
	if err != nil {
		t.Fatalf("enqueue after finish failed: %v", err)
	}
	if !created || fresh.ID == first.ID {
		t.Fatalf("expected new row after terminal finish, got created=%v id=%d", created, fresh.ID)
	}
}

func TestEnqueueCreatesJobRecord(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, _, err := store.Enqueue(ctx, "job-new", "", "cli"); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	job, err := store.GetJob(ctx, "job-new")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job == nil || job.Status != queue.JobStatusQueued {
		t.Fatalf("expected queued job record, got %#v", job)
	}
}

func TestClaimMarksOwnershipAndJobRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, "job-claim")

	run, err := store.ClaimNextQueued(ctx, "host:1234")
	if err != nil {
		t.Fatalf("ClaimNextQueued failed: %v", err)
	}
	if run == nil {
		t.Fatal("expected a claimed run")
	}
	if run.State != queue.StateRunning || run.WorkerID != "host:1234" {
		t.Fatalf("unexpected claimed run: %#v", run)
	}
	if run.StartedAt == nil || run.HeartbeatAt == nil {
		t.Fatal("expected started and heartbeat stamps on claim")
	}

	job, err := store.GetJob(ctx, "job-claim")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != queue.JobStatusRunning {
		t.Fatalf("expected running job status, got %q", job.Status)
	}

	// Queue is drained; the next claim comes back empty.
	again, err := store.ClaimNextQueued(ctx, "host:5678")
	if err != nil {
		t.Fatalf("second claim failed: %v", err)
	}
	if again != nil {
		t.Fatalf("expected empty claim, got %#v", again)
	}
}

func TestConcurrentClaimsAwardRowOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	queued := testsupport.MustEnqueue(t, store, "job-race")

	const claimers = 8
	winners := make(chan *queue.Run, claimers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()
			<-start
			// Lock contention may bounce a claimer with a busy error; only a
			// duplicate award is a defect.
			run, err := store.ClaimNextQueued(ctx, workerID)
			if err != nil || run == nil {
				return
			}
			winners <- run
		}(fmt.Sprintf("racer-%d", i))
	}
	close(start)
	wg.Wait()
	close(winners)

	var claimed []*queue.Run
	for run := range winners {
		claimed = append(claimed, run)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected exactly one winning claim, got %d: %#v", len(claimed), claimed)
	}
	winner := claimed[0]
	if winner.ID != queued.ID || winner.State != queue.StateRunning {
		t.Fatalf("unexpected winning run: %#v", winner)
	}

	current, err := store.GetRun(ctx, queued.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if current.WorkerID != winner.WorkerID {
		t.Fatalf("row owned by %q but claim returned to %q", current.WorkerID, winner.WorkerID)
	}
}

func TestClaimOrderIsFIFO(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	older := testsupport.MustEnqueue(t, store, "job-old")
	testsupport.MustEnqueue(t, store, "job-new")
	if err := store.BackdateEnqueue(ctx, older.ID, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("BackdateEnqueue failed: %v", err)
	}

	run, err := store.ClaimNextQueued(ctx, "worker-a")
	if err != nil {
		t.Fatalf("ClaimNextQueued failed: %v", err)
	}
	if run == nil || run.JobID != "job-old" {
		t.Fatalf("expected oldest enqueue first, got %#v", run)
	}
}

func TestDeferredRunWaitsForAvailability(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := testsupport.MustEnqueue(t, store, "job-defer")
	claimed, err := store.ClaimNextQueued(ctx, "worker-a")
	if err != nil || claimed == nil {
		t.Fatalf("claim failed: run=%v err=%v", claimed, err)
	}

	ok, err := store.Defer(ctx, run.ID, "worker-a", time.Now().Add(time.Hour), "kb sync in progress")
	if err != nil {
		t.Fatalf("Defer failed: %v", err)
	}
	if !ok {
		t.Fatal("expected defer to apply")
	}

	if got, err := store.ClaimNextQueued(ctx, "worker-a"); err != nil || got != nil {
		t.Fatalf("expected future run to be unclaimable, got run=%v err=%v", got, err)
	}

	deferred, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if deferred.State != queue.StateQueued || deferred.Attempt != 1 {
		t.Fatalf("defer must not burn an attempt, got %#v", deferred)
	}
	if deferred.WorkerID != "" || deferred.StartedAt != nil || deferred.HeartbeatAt != nil {
		t.Fatalf("expected ownership cleared on defer, got %#v", deferred)
	}

	ok, err = store.Defer(ctx, run.ID, "worker-a", time.Now(), "")
	if err != nil {
		t.Fatalf("re-defer failed: %v", err)
	}
	if ok {
		t.Fatal("defer of a non-running row must report false")
	}

	// Once the availability window passes the run is claimable again.
	if err := store.MakeDue(ctx, run.ID); err != nil {
		t.Fatalf("MakeDue failed: %v", err)
	}
	reclaimed, err := store.ClaimNextQueued(ctx, "worker-b")
	if err != nil {
		t.Fatalf("claim after defer failed: %v", err)
	}
	if reclaimed == nil || reclaimed.ID != run.ID || reclaimed.WorkerID != "worker-b" {
		t.Fatalf("expected due run to be claimed, got %#v", reclaimed)
	}
}

func TestHeartbeatRequiresOwnership(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := testsupport.MustEnqueue(t, store, "job-hb")
	if _, err := store.ClaimNextQueued(ctx, "worker-a"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	ok, err := store.Heartbeat(ctx, run.ID, "worker-a")
	if err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if !ok {
		t.Fatal("expected owner heartbeat to apply")
	}

	ok, err = store.Heartbeat(ctx, run.ID, "worker-b")
	if err != nil {
		t.Fatalf("foreign heartbeat errored: %v", err)
	}
	if ok {
		t.Fatal("foreign worker must not refresh the heartbeat")
	}

	if _, err := store.Finish(ctx, run.ID, "worker-a", queue.StateSucceeded, ""); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	ok, err = store.Heartbeat(ctx, run.ID, "worker-a")
	if err != nil {
		t.Fatalf("post-finish heartbeat errored: %v", err)
	}
	if ok {
		t.Fatal("heartbeat must not resurrect a finished run")
	}
}

func TestFinishForcesJobStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := testsupport.MustEnqueue(t, store, "job-finish")
	if _, err := store.ClaimNextQueued(ctx, "worker-a"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	ok, err := store.Finish(ctx, run.ID, "worker-a", queue.StateFailed, "exit_code:3")
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if !ok {
		t.Fatal("expected finish to apply")
	}

	finished, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if finished.State != queue.StateFailed || finished.LastError != "exit_code:3" {
		t.Fatalf("unexpected finished run: %#v", finished)
	}
	if finished.FinishedAt == nil {
		t.Fatal("expected finished_at stamp")
	}

	job, err := store.GetJob(ctx, "job-finish")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != queue.JobStatusFailed {
		t.Fatalf("expected failed job status, got %q", job.Status)
	}
	if len(job.Errors) != 1 || job.Errors[0] != "exit_code:3" {
		t.Fatalf("expected error tag on job, got %#v", job.Errors)
	}
}

func TestFinishRejectsNonTerminalAndNonOwners(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := testsupport.MustEnqueue(t, store, "job-guard")
	if _, err := store.ClaimNextQueued(ctx, "worker-a"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	if _, err := store.Finish(ctx, run.ID, "worker-a", queue.StateRunning, ""); err == nil {
		t.Fatal("expected error for non-terminal finish state")
	}

	ok, err := store.Finish(ctx, run.ID, "worker-b", queue.StateSucceeded, "")
	if err != nil {
		t.Fatalf("foreign finish errored: %v", err)
	}
	if ok {
		t.Fatal("foreign worker must not finish the run")
	}

	if _, err := store.Finish(ctx, run.ID, "worker-a", queue.StateSucceeded, ""); err != nil {
		t.Fatalf("owner finish failed: %v", err)
	}
	ok, err = store.Finish(ctx, run.ID, "worker-a", queue.StateFailed, "late")
	if err != nil {
		t.Fatalf("double finish errored: %v", err)
	}
	if ok {
		t.Fatal("terminal state must be immutable")
	}
	final, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if final.State != queue.StateSucceeded {
		t.Fatalf("terminal state was overwritten: %#v", final)
	}
}

func TestCancelQueuedRunIsImmediate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := testsupport.MustEnqueue(t, store, "job-cancel-q")

	outcome, err := store.Cancel(ctx, "job-cancel-q", "admin", "not needed", queue.CancelGraceful)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if outcome.Action != queue.CancelActionCanceled {
		t.Fatalf("expected immediate cancel, got %q", outcome.Action)
	}
	if outcome.Run.ID != run.ID || outcome.Run.State != queue.StateCanceled {
		t.Fatalf("unexpected outcome run: %#v", outcome.Run)
	}
	if outcome.Run.FinishedAt == nil {
		t.Fatal("expected finished_at on immediate cancel")
	}

	job, err := store.GetJob(ctx, "job-cancel-q")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != queue.JobStatusCanceled {
		t.Fatalf("expected canceled job status, got %q", job.Status)
	}

	if got, err := store.ClaimNextQueued(ctx, "worker-a"); err != nil || got != nil {
		t.Fatalf("canceled run must not be claimable, got run=%v err=%v", got, err)
	}
}

func TestCancelRunningRunOnlyStamps(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := testsupport.MustEnqueue(t, store, "job-cancel-r")
	if _, err := store.ClaimNextQueued(ctx, "worker-a"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	outcome, err := store.Cancel(ctx, "job-cancel-r", "admin", "superseded", queue.CancelGraceful)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if outcome.Action != queue.CancelActionCancelRequested {
		t.Fatalf("expected cancel_requested, got %q", outcome.Action)
	}
	if outcome.Run.State != queue.StateRunning {
		t.Fatalf("running run must not change state on cancel, got %q", outcome.Run.State)
	}
	if !outcome.Run.CancelRequested() || outcome.Run.CancelRequestedBy != "admin" {
		t.Fatalf("expected cancel stamp, got %#v", outcome.Run)
	}

	req, err := store.CancelRequestFor(ctx, run.ID)
	if err != nil {
		t.Fatalf("CancelRequestFor failed: %v", err)
	}
	if !req.Requested() || req.Mode != queue.CancelGraceful || req.Reason != "superseded" {
		t.Fatalf("unexpected cancel request: %#v", req)
	}

	// A second request never overwrites the first stamp.
	repeat, err := store.Cancel(ctx, "job-cancel-r", "other", "again", queue.CancelForce)
	if err != nil {
		t.Fatalf("repeat Cancel failed: %v", err)
	}
	if repeat.Action != queue.CancelActionAlreadyRequested {
		t.Fatalf("expected already_requested, got %q", repeat.Action)
	}
	if repeat.Run.CancelRequestedBy != "admin" || repeat.Run.CancelMode != queue.CancelGraceful {
		t.Fatalf("first cancel stamp was overwritten: %#v", repeat.Run)
	}
}

func TestCancelWithoutActiveRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.Cancel(ctx, "job-miss", "admin", "", queue.CancelGraceful); !errors.Is(err, queue.ErrNoActiveRun) {
		t.Fatalf("expected ErrNoActiveRun, got %v", err)
	}

	run := testsupport.MustEnqueue(t, store, "job-done")
	if _, err := store.ClaimNextQueued(ctx, "worker-a"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if _, err := store.Finish(ctx, run.ID, "worker-a", queue.StateSucceeded, ""); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if _, err := store.Cancel(ctx, "job-done", "admin", "", queue.CancelGraceful); !errors.Is(err, queue.ErrNoActiveRun) {
		t.Fatalf("expected ErrNoActiveRun for finished job, got %v", err)
	}
}

func TestRequeueStuckRecoversOrphanedRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := testsupport.MustEnqueue(t, store, "job-stuck")
	if _, err := store.ClaimNextQueued(ctx, "worker-dead"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if _, err := store.SetPipelineProcess(ctx, run.ID, "worker-dead", 4242, 4242); err != nil {
		t.Fatalf("SetPipelineProcess failed: %v", err)
	}
	if err := store.BackdateHeartbeat(ctx, run.ID, time.Now().Add(-7*time.Hour)); err != nil {
		t.Fatalf("BackdateHeartbeat failed: %v", err)
	}

	var killedPGIDs []int
	result, err := store.RequeueStuck(ctx, 6*time.Hour, 3, func(pid, pgid int) {
		killedPGIDs = append(killedPGIDs, pgid)
	})
	if err != nil {
		t.Fatalf("RequeueStuck failed: %v", err)
	}
	if len(result.Requeued) != 1 || result.Total() != 1 {
		t.Fatalf("unexpected reap result: %#v", result)
	}
	if len(killedPGIDs) != 1 || killedPGIDs[0] != 4242 {
		t.Fatalf("expected leftover process group to be killed, got %v", killedPGIDs)
	}

	recovered, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if recovered.State != queue.StateQueued || recovered.Attempt != 2 {
		t.Fatalf("expected requeued attempt 2, got %#v", recovered)
	}
	if recovered.WorkerID != "" || recovered.PipelinePID != 0 || recovered.PipelinePGID != 0 {
		t.Fatalf("expected ownership cleared, got %#v", recovered)
	}

	// The dead worker's late result must lose the race.
	ok, err := store.Finish(ctx, run.ID, "worker-dead", queue.StateSucceeded, "")
	if err != nil {
		t.Fatalf("late finish errored: %v", err)
	}
	if ok {
		t.Fatal("reaped run must reject the old worker's finish")
	}
}

func TestRequeueStuckFailsAfterMaxAttempts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := testsupport.MustEnqueue(t, store, "job-exhausted")
	for attempt := 1; attempt <= 3; attempt++ {
		claimed, err := store.ClaimNextQueued(ctx, "worker-dead")
		if err != nil {
			t.Fatalf("claim %d failed: %v", attempt, err)
		}
		if claimed == nil || claimed.Attempt != attempt {
			t.Fatalf("expected attempt %d, got %#v", attempt, claimed)
		}
		if err := store.BackdateHeartbeat(ctx, run.ID, time.Now().Add(-7*time.Hour)); err != nil {
			t.Fatalf("BackdateHeartbeat failed: %v", err)
		}
		result, err := store.RequeueStuck(ctx, 6*time.Hour, 3, nil)
		if err != nil {
			t.Fatalf("RequeueStuck %d failed: %v", attempt, err)
		}
		if attempt < 3 && len(result.Requeued) != 1 {
			t.Fatalf("sweep %d: expected requeue, got %#v", attempt, result)
		}
		if attempt == 3 && len(result.Failed) != 1 {
			t.Fatalf("final sweep: expected failure, got %#v", result)
		}
	}

	final, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if final.State != queue.StateFailed || final.LastError != queue.StuckExceededMaxAttempts {
		t.Fatalf("unexpected final run: %#v", final)
	}

	job, err := store.GetJob(ctx, "job-exhausted")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != queue.JobStatusFailed {
		t.Fatalf("expected failed job, got %q", job.Status)
	}
	found := false
	for _, tag := range job.Errors {
		if tag == queue.StuckExceededMaxAttempts {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %q in job errors, got %#v", queue.StuckExceededMaxAttempts, job.Errors)
	}
}

func TestRequeueStuckHonorsPendingCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := testsupport.MustEnqueue(t, store, "job-stuck-cancel")
	if _, err := store.ClaimNextQueued(ctx, "worker-dead"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if _, err := store.Cancel(ctx, "job-stuck-cancel", "admin", "", queue.CancelGraceful); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if err := store.BackdateHeartbeat(ctx, run.ID, time.Now().Add(-7*time.Hour)); err != nil {
		t.Fatalf("BackdateHeartbeat failed: %v", err)
	}

	result, err := store.RequeueStuck(ctx, 6*time.Hour, 3, nil)
	if err != nil {
		t.Fatalf("RequeueStuck failed: %v", err)
	}
	if len(result.Canceled) != 1 {
		t.Fatalf("expected stuck run with pending cancel to finish canceled, got %#v", result)
	}

	final, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if final.State != queue.StateCanceled {
		t.Fatalf("expected canceled, got %#v", final)
	}
	job, err := store.GetJob(ctx, "job-stuck-cancel")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != queue.JobStatusCanceled {
		t.Fatalf("expected canceled job, got %q", job.Status)
	}
}

func TestRequeueStuckIgnoresHealthyRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, "job-healthy")
	if _, err := store.ClaimNextQueued(ctx, "worker-a"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	result, err := store.RequeueStuck(ctx, 6*time.Hour, 3, nil)
	if err != nil {
		t.Fatalf("RequeueStuck failed: %v", err)
	}
	if result.Total() != 0 {
		t.Fatalf("healthy run must survive the sweep: %#v", result)
	}
}

func TestStatsAndClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, "job-a")
	testsupport.MustEnqueue(t, store, "job-b")
	if _, err := store.ClaimNextQueued(ctx, "worker-a"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 2 || stats.Running != 1 || stats.Queued != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}

	if _, err := store.Clear(ctx, queue.StateRunning); err == nil {
		t.Fatal("expected clear of active state to be refused")
	}

	// job-a is the claimed one (FIFO), finish it and clear terminals.
	runs, err := store.List(ctx, queue.StateRunning)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected one running row, got %d", len(runs))
	}
	if _, err := store.Finish(ctx, runs[0].ID, runs[0].WorkerID, queue.StateFailed, "boom"); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	removed, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 terminal row cleared, got %d", removed)
	}
}

func TestCheckHealthReportsHealthyDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, "job-health")

	health := store.CheckHealth(ctx)
	if health.Error != "" {
		t.Fatalf("unexpected health error: %s", health.Error)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists || !health.IntegrityCheck {
		t.Fatalf("unexpected health report: %#v", health)
	}
	if health.TotalRuns != 1 || len(health.MissingColumns) != 0 {
		t.Fatalf("unexpected health counters: %#v", health)
	}
}

func TestParseCancelMode(t *testing.T) {
	cases := map[string]queue.CancelMode{
		"":         queue.CancelGraceful,
		"graceful": queue.CancelGraceful,
		"soft":     queue.CancelGraceful,
		"SOFT":     queue.CancelGraceful,
		"force":    queue.CancelForce,
		"hard":     queue.CancelForce,
		"unknown":  queue.CancelForce,
	}
	for input, want := range cases {
		if got := queue.ParseCancelMode(input); got != want {
			t.Errorf("ParseCancelMode(%q) = %q, want %q", input, got, want)
		}
	}
}
