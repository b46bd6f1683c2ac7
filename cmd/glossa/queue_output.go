package main

import (
	"strconv"
	"time"

	"glossa/internal/ipc"
	"glossa/internal/queue"
)

func queueStatsMap(summary queue.HealthSummary) map[string]int {
	return map[string]int{
		string(queue.StateQueued):    summary.Queued,
		string(queue.StateRunning):   summary.Running,
		string(queue.StateSucceeded): summary.Succeeded,
		string(queue.StateFailed):    summary.Failed,
		string(queue.StateCanceled):  summary.Canceled,
	}
}

func buildQueueStatusRows(stats map[string]int) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, state := range queue.AllStates() {
		count := stats[string(state)]
		if count == 0 {
			continue
		}
		rows = append(rows, []string{string(state), strconv.Itoa(count)})
	}
	return rows
}

func buildRunRows(runs []ipc.RunInfo) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			strconv.FormatInt(run.ID, 10),
			run.JobID,
			run.State,
			strconv.Itoa(run.Attempt),
			run.WorkerID,
			formatWireTime(run.EnqueuedAt),
		})
	}
	return rows
}

func buildRunHistoryRows(runs []ipc.RunInfo) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			strconv.FormatInt(run.ID, 10),
			run.State,
			strconv.Itoa(run.Attempt),
			run.WorkerID,
			formatWireTime(run.EnqueuedAt),
			formatWireTime(run.FinishedAt),
			truncate(run.LastError, 48),
		})
	}
	return rows
}

func formatWireTime(value string) string {
	if value == "" {
		return ""
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return parsed.Local().Format("2006-01-02 15:04:05")
}

func truncate(value string, limit int) string {
	if limit <= 3 || len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}
