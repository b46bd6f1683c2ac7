package queue

import (
	"strings"
	"time"
)

// State represents the lifecycle of a run-queue row.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

var allStates = []State{
	StateQueued,
	StateRunning,
	StateSucceeded,
	StateFailed,
	StateCanceled,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stateSet[normalized]
	return normalized, ok
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCanceled:
		return true
	default:
		return false
	}
}

// Active reports whether the state counts against the one-active-run-per-job invariant.
func (s State) Active() bool {
	return s == StateQueued || s == StateRunning
}

// CancelMode selects how the owning worker terminates a running pipeline.
type CancelMode string

const (
	// CancelGraceful sends SIGTERM and escalates to SIGKILL after the grace period.
	CancelGraceful CancelMode = "graceful"
	// CancelForce escalates to SIGKILL immediately when the grace period is zero.
	CancelForce CancelMode = "force"
)

// ParseCancelMode normalizes operator input. "soft" is accepted as an alias for
// graceful; anything unrecognized falls back to force, matching the behavior
// operators expect from the messaging front end.
func ParseCancelMode(value string) CancelMode {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "graceful", "soft":
		return CancelGraceful
	case "":
		return CancelGraceful
	default:
		return CancelForce
	}
}

// StuckExceededMaxAttempts is the last_error recorded when the reaper gives up on a run.
const StuckExceededMaxAttempts = "stuck_exceeded_max_attempts"

// Run is one durable record of a single attempt to execute a job.
type Run struct {
	ID                int64
	JobID             string
	State             State
	Attempt           int
	NotifyTarget      string
	CreatedBy         string
	EnqueuedAt        time.Time
	AvailableAt       *time.Time
	StartedAt         *time.Time
	HeartbeatAt       *time.Time
	FinishedAt        *time.Time
	WorkerID          string
	PipelinePID       int
	PipelinePGID      int
	LastError         string
	CancelRequestedAt *time.Time
	CancelRequestedBy string
	CancelReason      string
	CancelMode        CancelMode
}

// CancelRequested reports whether an operator has asked for this run to stop.
func (r *Run) CancelRequested() bool {
	return r != nil && r.CancelRequestedAt != nil
}

// JobStatus is the coarse business status on the job record. The scheduler only
// ever writes running (on claim) and failed/canceled (on abnormal finish); the
// pipeline owns everything else.
type JobStatus string

const (
	JobStatusPlanned   JobStatus = "planned"
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// Terminal reports whether a job status should no longer be overwritten by the
// scheduler.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// Job is the externally-owned job-status record. The run queue's contract with
// it is deliberately narrow; see the package documentation.
type Job struct {
	JobID        string
	Status       JobStatus
	SourceLang   string
	TargetLang   string
	NotifyTarget string
	Errors       []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CancelRequest is the cancellation snapshot the owning worker polls while the
// pipeline subprocess runs.
type CancelRequest struct {
	RequestedAt *time.Time
	RequestedBy string
	Reason      string
	Mode        CancelMode
}

// Requested reports whether a cancellation has been recorded.
func (c CancelRequest) Requested() bool {
	return c.RequestedAt != nil
}

// HealthSummary describes aggregated queue counts per lifecycle state.
type HealthSummary struct {
	Total     int
	Queued    int
	Running   int
	Succeeded int
	Failed    int
	Canceled  int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalRuns        int
	Error            string
}
