package main

import "testing"

func TestEnqueueAndCancelViaDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"enqueue", "job-cli", "--source", "en", "--target", "fr"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	requireContains(t, out, "Enqueued run 1 for job job-cli (attempt 1)")

	out, _, err = runCLI(t, []string{"enqueue", "job-cli"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("repeat enqueue: %v", err)
	}
	requireContains(t, out, "already has an active run")

	out, _, err = runCLI(t, []string{"queue", "describe", "job-cli"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	requireContains(t, out, "English -> French")
	requireContains(t, out, "queued")

	out, _, err = runCLI(t, []string{"cancel", "job-cli", "--by", "tester"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireContains(t, out, "Run 1 canceled")

	out, _, err = runCLI(t, []string{"cancel", "job-cli"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("cancel without active run: %v", err)
	}
	requireContains(t, out, "has no active run")
}

func TestEnqueueFallsBackToStoreWhenDaemonDown(t *testing.T) {
	env := setupCLITestEnv(t)
	deadSocket := env.socketPath + ".gone"

	out, _, err := runCLI(t, []string{"enqueue", "job-offline"}, deadSocket, env.configPath)
	if err != nil {
		t.Fatalf("offline enqueue: %v", err)
	}
	requireContains(t, out, "Enqueued run 1 for job job-offline")

	out, _, err = runCLI(t, []string{"queue", "list"}, deadSocket, env.configPath)
	if err != nil {
		t.Fatalf("offline list: %v", err)
	}
	requireContains(t, out, "job-offline")
}
