// Package slogobs implements observability.Provider on top of log/slog.
// Spans, counters, and histograms are rendered as debug-level log events so
// a single structured log stream carries the whole run trace.
package slogobs
