// Package logging builds slog loggers with console and JSON handlers plus the
// attribute helpers and standardized field keys used across Glossa.
//
// The console handler renders a compact single-line format with the component
// attribute promoted into the message prefix. WARN and ERROR helpers enforce
// event_type/error_hint/impact fields so operator-facing logs always explain
// cause and next step.
package logging
