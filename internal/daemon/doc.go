// Package daemon coordinates the resident scheduler process: it enforces
// single-instance execution via a file lock, owns the queue store and the
// worker, and exposes the facade the IPC layer calls on behalf of the CLI.
package daemon
