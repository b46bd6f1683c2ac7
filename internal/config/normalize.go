package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeWorker()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkRoot, err = expandPath(c.Paths.WorkRoot); err != nil {
		return fmt.Errorf("paths.work_root: %w", err)
	}
	if c.Paths.KBRoot, err = expandPath(c.Paths.KBRoot); err != nil {
		return fmt.Errorf("paths.kb_root: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizePipeline() {
	c.Pipeline.Command = strings.TrimSpace(c.Pipeline.Command)
	if c.Pipeline.Command == "" {
		if value, ok := os.LookupEnv("GLOSSA_PIPELINE_COMMAND"); ok {
			c.Pipeline.Command = strings.TrimSpace(value)
		}
	}
	if c.Pipeline.Command == "" {
		c.Pipeline.Command = defaultPipelineCommand
	}
}

func (c *Config) normalizeWorker() {
	if c.Worker.PollSeconds < 1 {
		c.Worker.PollSeconds = defaultWorkerPollSeconds
	}
	if c.Worker.StuckSeconds < 60 {
		c.Worker.StuckSeconds = defaultWorkerStuckSeconds
	}
	if c.Worker.MaxAttempts < 1 {
		c.Worker.MaxAttempts = defaultWorkerMaxAttempts
	}
	if c.Worker.HeartbeatSeconds < 10 {
		c.Worker.HeartbeatSeconds = defaultWorkerHeartbeatSeconds
	}
	if c.Worker.CancelPollSeconds < 0.2 {
		c.Worker.CancelPollSeconds = defaultWorkerCancelPollSeconds
	}
	if c.Worker.CancelGraceSeconds < 0 {
		c.Worker.CancelGraceSeconds = defaultWorkerCancelGraceSeconds
	}
	c.Worker.ReaperSchedule = strings.TrimSpace(c.Worker.ReaperSchedule)
	if c.Worker.ReaperSchedule == "" {
		c.Worker.ReaperSchedule = defaultWorkerReaperSchedule
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.WebhookURL = strings.TrimSpace(c.Notifications.WebhookURL)
	if c.Notifications.WebhookURL == "" {
		if value, ok := os.LookupEnv("GLOSSA_NOTIFY_WEBHOOK"); ok {
			c.Notifications.WebhookURL = strings.TrimSpace(value)
		}
	}
	c.Notifications.DefaultTarget = strings.TrimSpace(c.Notifications.DefaultTarget)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
