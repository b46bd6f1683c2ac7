// Package notifications delivers run lifecycle events via pluggable notifiers.
//
// The default implementation publishes to an ntfy-compatible webhook using the
// URL configured in config.toml and gracefully degrades to a no-op when
// notifications are disabled. A run's notify_target selects the topic under
// the configured base URL; runs without a target fall back to the configured
// default.
//
// Extend this package if you need alternative transports; scheduler code
// depends only on the simple Service interface.
package notifications
