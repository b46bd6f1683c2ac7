package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkRoot) == "" {
		return errors.New("paths.work_root must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if strings.TrimSpace(c.Pipeline.Command) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/glossa/config.toml"
		}
		return fmt.Errorf("pipeline.command is required. Set GLOSSA_PIPELINE_COMMAND env var or edit %s (create with 'glossa config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateWorker() error {
	if c.Worker.MaxAttempts < 1 {
		return errors.New("worker.max_attempts must be at least 1")
	}
	if c.Worker.StuckSeconds <= c.Worker.HeartbeatSeconds {
		return fmt.Errorf("worker.stuck_seconds (%d) must exceed worker.heartbeat_seconds (%d)",
			c.Worker.StuckSeconds, c.Worker.HeartbeatSeconds)
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Worker.ReaperSchedule); err != nil {
		return fmt.Errorf("worker.reaper_schedule %q: %w", c.Worker.ReaperSchedule, err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
