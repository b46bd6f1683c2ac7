package config

const (
	defaultWorkRoot = "~/.local/share/glossa/work"
	defaultKBRoot   = "~/.local/share/glossa/kb"
	defaultLogDir   = "~/.local/share/glossa/logs"

	defaultPipelineCommand = "glossa-pipeline"

	defaultWorkerPollSeconds        = 2
	defaultWorkerStuckSeconds       = 6 * 60 * 60
	defaultWorkerMaxAttempts        = 3
	defaultWorkerHeartbeatSeconds   = 30
	defaultWorkerCancelPollSeconds  = 0.5
	defaultWorkerCancelGraceSeconds = 5
	defaultWorkerReaperSchedule     = "@every 1m"

	defaultNotifyRequestTimeout = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkRoot: defaultWorkRoot,
			KBRoot:   defaultKBRoot,
			LogDir:   defaultLogDir,
		},
		Pipeline: Pipeline{
			Command: defaultPipelineCommand,
		},
		Worker: Worker{
			PollSeconds:        defaultWorkerPollSeconds,
			StuckSeconds:       defaultWorkerStuckSeconds,
			MaxAttempts:        defaultWorkerMaxAttempts,
			HeartbeatSeconds:   defaultWorkerHeartbeatSeconds,
			CancelPollSeconds:  defaultWorkerCancelPollSeconds,
			CancelGraceSeconds: defaultWorkerCancelGraceSeconds,
			ReaperSchedule:     defaultWorkerReaperSchedule,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Claims:         true,
			Completions:    true,
			Failures:       true,
			Recovery:       true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
