// Package logging configures the swarm's structured logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger writing human-readable console output to w.
// Every component logs through a logger built from this so log lines carry
// a consistent "component" field across the supervisor, workers, and the
// reconciler — processes that never share memory but do share stderr when
// run under a terminal.
func New(w io.Writer, component string) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(console).With().Timestamp().Str("component", component).Logger()
}

// NewWorker builds a logger for a single worker process, tagging every
// line with its worker_id so interleaved stderr from a forked fleet stays
// attributable.
func NewWorker(workerID string) zerolog.Logger {
	return New(os.Stderr, "worker").With().Str("worker_id", workerID).Logger()
}
