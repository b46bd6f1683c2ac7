package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"glossa/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The pipeline command defaults to /bin/true so worker tests have a real
// executable that exits cleanly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkRoot = filepath.Join(base, "work")
	cfgVal.Paths.KBRoot = filepath.Join(base, "kb")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Pipeline.Command = "/bin/true"
	cfgVal.Worker.PollSeconds = 1
	cfgVal.Worker.HeartbeatSeconds = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithPipelineCommand points the pipeline at an explicit executable.
func WithPipelineCommand(command string, args ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Command = command
		b.cfg.Pipeline.Args = args
	}
}

// WithPipelineScript writes a shell script into the test's temp directory and
// configures it as the pipeline command.
func WithPipelineScript(body string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "bin", "pipeline.sh")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
			b.t.Fatalf("write pipeline script: %v", err)
		}
		b.cfg.Pipeline.Command = path
		b.cfg.Pipeline.Args = nil
	}
}

// WithWebhook enables webhook notifications against the given URL.
func WithWebhook(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.WebhookURL = url
	}
}
