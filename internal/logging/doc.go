// Package logging assembles the structured slog loggers used by the daemon
// and CLI.
//
// It owns the console and JSON handlers, per-stage level overrides and log
// retention, and exposes context-aware helpers so worker code tags every line
// with the scope key, stage and sequence key of the item it is processing.
package logging
