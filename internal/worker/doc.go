// Package worker drives the single-runner scheduling loop: claim the oldest
// queued run, spawn the translation pipeline in its own process group, keep
// the heartbeat fresh while it executes, honor cooperative cancellation, and
// record the terminal outcome.
//
// A cron-scheduled reaper sweep recovers runs whose worker stopped
// heartbeating, independently of the claim loop. Per-run failures never take
// the loop down; each run's outcome is recorded and the loop moves on.
package worker
