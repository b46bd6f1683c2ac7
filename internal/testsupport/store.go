package testsupport

import (
	"context"
	"testing"

	"glossa/internal/config"
	"glossa/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustEnqueue enqueues a run for tests using the provided store.
func MustEnqueue(t testing.TB, store *queue.Store, jobID string) *queue.Run {
	t.Helper()

	run, _, err := store.Enqueue(context.Background(), jobID, "", "test")
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return run
}
