package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"glossa/internal/config"
)

const userAgent = "Glossa-Go/0.1.0"

// Service defines the notification surface exposed to scheduler components.
type Service interface {
	NotifyRunClaimed(ctx context.Context, jobID, target string, attempt int) error
	NotifyRunSucceeded(ctx context.Context, jobID, target string, duration time.Duration) error
	NotifyRunFailed(ctx context.Context, jobID, target, lastError string, attempt int) error
	NotifyRunCanceled(ctx context.Context, jobID, target, requestedBy string) error
	NotifyStuckRecovered(ctx context.Context, requeued, failed, canceled int) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by a webhook when
// configured. When no webhook URL is configured, a noop implementation is
// returned.
func NewService(cfg *config.Config) Service {
	base := strings.TrimSpace(cfg.Notifications.WebhookURL)
	if base == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &webhookService{
		base:          strings.TrimRight(base, "/"),
		defaultTarget: strings.TrimSpace(cfg.Notifications.DefaultTarget),
		claims:        cfg.Notifications.Claims,
		completions:   cfg.Notifications.Completions,
		failures:      cfg.Notifications.Failures,
		recovery:      cfg.Notifications.Recovery,
		client:        &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type webhookService struct {
	base          string
	defaultTarget string
	claims        bool
	completions   bool
	failures      bool
	recovery      bool
	client        *http.Client
}

func (w *webhookService) NotifyRunClaimed(ctx context.Context, jobID, target string, attempt int) error {
	if !w.claims {
		return nil
	}
	data := payload{
		title:   "Glossa - Translation Started",
		message: fmt.Sprintf("Job %s started (attempt %d)", jobID, attempt),
		tags:    []string{"glossa", "run", "claimed"},
	}
	return w.send(ctx, target, data)
}

func (w *webhookService) NotifyRunSucceeded(ctx context.Context, jobID, target string, duration time.Duration) error {
	if !w.completions {
		return nil
	}
	data := payload{
		title:   "Glossa - Translation Completed",
		message: fmt.Sprintf("Job %s completed in %s", jobID, duration.Round(time.Second)),
		tags:    []string{"glossa", "run", "completed"},
	}
	return w.send(ctx, target, data)
}

func (w *webhookService) NotifyRunFailed(ctx context.Context, jobID, target, lastError string, attempt int) error {
	if !w.failures {
		return nil
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "Job %s failed (attempt %d)", jobID, attempt)
	if lastError = strings.TrimSpace(lastError); lastError != "" {
		builder.WriteString(": ")
		builder.WriteString(lastError)
	}
	data := payload{
		title:    "Glossa - Translation Failed",
		message:  builder.String(),
		tags:     []string{"glossa", "run", "failed"},
		priority: "high",
	}
	return w.send(ctx, target, data)
}

func (w *webhookService) NotifyRunCanceled(ctx context.Context, jobID, target, requestedBy string) error {
	if !w.completions {
		return nil
	}
	message := fmt.Sprintf("Job %s canceled", jobID)
	if requestedBy = strings.TrimSpace(requestedBy); requestedBy != "" {
		message += " by " + requestedBy
	}
	data := payload{
		title:   "Glossa - Translation Canceled",
		message: message,
		tags:    []string{"glossa", "run", "canceled"},
	}
	return w.send(ctx, target, data)
}

func (w *webhookService) NotifyStuckRecovered(ctx context.Context, requeued, failed, canceled int) error {
	if !w.recovery {
		return nil
	}
	data := payload{
		title: "Glossa - Stuck Runs Recovered",
		message: fmt.Sprintf("Reaper sweep: %d requeued, %d failed, %d canceled",
			requeued, failed, canceled),
		tags:     []string{"glossa", "reaper", "recovery"},
		priority: "high",
	}
	return w.send(ctx, "", data)
}

func (w *webhookService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Glossa - Test",
		message:  "Notification system test",
		tags:     []string{"glossa", "test"},
		priority: "low",
	}
	return w.send(ctx, "", data)
}

func (w *webhookService) send(ctx context.Context, target string, data payload) error {
	if w == nil || w.client == nil {
		return nil
	}

	endpoint := w.base
	topic := strings.TrimSpace(target)
	if topic == "" {
		topic = w.defaultTarget
	}
	if topic != "" {
		endpoint += "/" + topic
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRunClaimed(context.Context, string, string, int) error             { return nil }
func (noopService) NotifyRunSucceeded(context.Context, string, string, time.Duration) error { return nil }
func (noopService) NotifyRunFailed(context.Context, string, string, string, int) error      { return nil }
func (noopService) NotifyRunCanceled(context.Context, string, string, string) error         { return nil }
func (noopService) NotifyStuckRecovered(context.Context, int, int, int) error               { return nil }
func (noopService) TestNotification(context.Context) error                                  { return nil }
