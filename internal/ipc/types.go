package ipc

import (
	"time"

	"glossa/internal/queue"
)

// RunInfo is the wire representation of a run-queue row.
type RunInfo struct {
	ID                int64  `json:"id"`
	JobID             string `json:"job_id"`
	State             string `json:"state"`
	Attempt           int    `json:"attempt"`
	NotifyTarget      string `json:"notify_target,omitempty"`
	CreatedBy         string `json:"created_by,omitempty"`
	EnqueuedAt        string `json:"enqueued_at"`
	AvailableAt       string `json:"available_at,omitempty"`
	StartedAt         string `json:"started_at,omitempty"`
	HeartbeatAt       string `json:"heartbeat_at,omitempty"`
	FinishedAt        string `json:"finished_at,omitempty"`
	WorkerID          string `json:"worker_id,omitempty"`
	PipelinePID       int    `json:"pipeline_pid,omitempty"`
	PipelinePGID      int    `json:"pipeline_pgid,omitempty"`
	LastError         string `json:"last_error,omitempty"`
	CancelRequestedAt string `json:"cancel_requested_at,omitempty"`
	CancelRequestedBy string `json:"cancel_requested_by,omitempty"`
	CancelReason      string `json:"cancel_reason,omitempty"`
	CancelMode        string `json:"cancel_mode,omitempty"`
}

// JobInfo is the wire representation of a job-status record.
type JobInfo struct {
	JobID        string   `json:"job_id"`
	Status       string   `json:"status"`
	SourceLang   string   `json:"source_lang,omitempty"`
	TargetLang   string   `json:"target_lang,omitempty"`
	NotifyTarget string   `json:"notify_target,omitempty"`
	Errors       []string `json:"errors,omitempty"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// FromRun converts a queue row into its wire representation.
func FromRun(run *queue.Run) RunInfo {
	if run == nil {
		return RunInfo{}
	}
	return RunInfo{
		ID:                run.ID,
		JobID:             run.JobID,
		State:             string(run.State),
		Attempt:           run.Attempt,
		NotifyTarget:      run.NotifyTarget,
		CreatedBy:         run.CreatedBy,
		EnqueuedAt:        formatTime(run.EnqueuedAt),
		AvailableAt:       formatTimePtr(run.AvailableAt),
		StartedAt:         formatTimePtr(run.StartedAt),
		HeartbeatAt:       formatTimePtr(run.HeartbeatAt),
		FinishedAt:        formatTimePtr(run.FinishedAt),
		WorkerID:          run.WorkerID,
		PipelinePID:       run.PipelinePID,
		PipelinePGID:      run.PipelinePGID,
		LastError:         run.LastError,
		CancelRequestedAt: formatTimePtr(run.CancelRequestedAt),
		CancelRequestedBy: run.CancelRequestedBy,
		CancelReason:      run.CancelReason,
		CancelMode:        string(run.CancelMode),
	}
}

// FromJob converts a job record into its wire representation.
func FromJob(job *queue.Job) JobInfo {
	if job == nil {
		return JobInfo{}
	}
	return JobInfo{
		JobID:        job.JobID,
		Status:       string(job.Status),
		SourceLang:   job.SourceLang,
		TargetLang:   job.TargetLang,
		NotifyTarget: job.NotifyTarget,
		Errors:       append([]string(nil), job.Errors...),
		CreatedAt:    formatTime(job.CreatedAt),
		UpdatedAt:    formatTime(job.UpdatedAt),
	}
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents daemon runtime information.
type StatusResponse struct {
	Running     bool           `json:"running"`
	PID         int            `json:"pid"`
	WorkerID    string         `json:"worker_id"`
	QueueDBPath string         `json:"queue_db_path"`
	LockPath    string         `json:"lock_path"`
	QueueStats  map[string]int `json:"queue_stats"`
}

// EnqueueRequest records a run request for a job. Language fields seed the job
// record on first registration and are ignored for known jobs.
type EnqueueRequest struct {
	JobID        string `json:"job_id"`
	SourceLang   string `json:"source_lang,omitempty"`
	TargetLang   string `json:"target_lang,omitempty"`
	NotifyTarget string `json:"notify_target,omitempty"`
	CreatedBy    string `json:"created_by,omitempty"`
}

// EnqueueResponse reports the active run after the request.
type EnqueueResponse struct {
	Created bool    `json:"created"`
	Run     RunInfo `json:"run"`
}

// CancelRequest asks the active run of a job to stop.
type CancelRequest struct {
	JobID       string `json:"job_id"`
	RequestedBy string `json:"requested_by,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Mode        string `json:"mode,omitempty"`
}

// CancelResponse reports the cancellation action taken.
type CancelResponse struct {
	Action string  `json:"action"`
	Run    RunInfo `json:"run"`
}

// QueueListRequest filters run listing by state.
type QueueListRequest struct {
	States []string `json:"states"`
}

// QueueListResponse contains run rows.
type QueueListResponse struct {
	Runs []RunInfo `json:"runs"`
}

// DescribeRequest fetches a job with its full run history.
type DescribeRequest struct {
	JobID string `json:"job_id"`
}

// DescribeResponse contains one job and its attempts, oldest first.
type DescribeResponse struct {
	Job  JobInfo   `json:"job"`
	Runs []RunInfo `json:"runs"`
}

// QueueClearRequest removes terminal rows, optionally limited to the given states.
type QueueClearRequest struct {
	States []string `json:"states"`
}

// QueueClearResponse reports number of removed rows.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// QueueHealthRequest fetches aggregate diagnostics.
type QueueHealthRequest struct{}

// QueueHealthResponse reports per-state queue counts.
type QueueHealthResponse struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Canceled  int `json:"canceled"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	TableExists      bool     `json:"table_exists"`
	ColumnsPresent   []string `json:"columns_present"`
	MissingColumns   []string `json:"missing_columns"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalRuns        int      `json:"total_runs"`
	Error            string   `json:"error"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// StopRequest asks the daemon process to shut down.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}
