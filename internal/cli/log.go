// Package cli implements the imgembed command-line interface.
//
// The commands resolve single image references, preprocess whole content
// trees, serve the resolver over HTTP and manage the image cache. The CLI
// is built using cobra and logs through charmbracelet/log.
//
// # Commands
//
//   - resolve: Resolve one URL, data URL, local path or diagram file
//   - preprocess: Attach payloads to every image node of a JSON tree
//   - serve: Expose resolve and preprocess over HTTP
//   - cache: Print, sweep or clear the persistent image cache
//
// # Configuration
//
// Settings are read from ~/.config/imgembed/config.toml (or --config) and
// overridden by flags. The [cache] table selects the store: file, memory,
// redis, mongo or none.
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. Loggers are
// passed through context.Context.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates a new logger with timestamp formatting.
// The logger writes to w and filters messages at the specified level.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress logs how long an operation took. Not safe for concurrent use.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg with the elapsed time, e.g. "Swept ~/.cache/imgembed (12ms)".
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

type ctxKey int

const loggerKey ctxKey = 0

// withLogger attaches l to ctx for loggerFromContext.
func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext returns the logger attached by the root command, or
// log.Default() for contexts built outside it.
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
