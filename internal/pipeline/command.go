package pipeline

import (
	"errors"
	"strings"

	"glossa/internal/config"
)

// Invocation is a fully resolved pipeline command line.
type Invocation struct {
	Command string
	Args    []string
}

// Argv returns the complete argument vector including the command itself.
func (i Invocation) Argv() []string {
	argv := make([]string, 0, len(i.Args)+1)
	argv = append(argv, i.Command)
	argv = append(argv, i.Args...)
	return argv
}

// String renders the invocation for logs.
func (i Invocation) String() string {
	return strings.Join(i.Argv(), " ")
}

// BuildInvocation assembles the pipeline command line for one job. Configured
// static args come first, then the job identifier and the roots the pipeline
// reads and writes. The notify target is forwarded only when set, so pipelines
// without notification support never see the flag.
func BuildInvocation(cfg *config.Config, jobID, notifyTarget string) (Invocation, error) {
	command := strings.TrimSpace(cfg.Pipeline.Command)
	if command == "" {
		return Invocation{}, errors.New("pipeline command not configured")
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return Invocation{}, errors.New("job id required")
	}

	args := make([]string, 0, len(cfg.Pipeline.Args)+8)
	args = append(args, cfg.Pipeline.Args...)
	args = append(args,
		"--job-id", jobID,
		"--work-root", cfg.Paths.WorkRoot,
		"--kb-root", cfg.Paths.KBRoot,
	)
	if target := strings.TrimSpace(notifyTarget); target != "" {
		args = append(args, "--notify-target", target)
	}
	return Invocation{Command: command, Args: args}, nil
}
