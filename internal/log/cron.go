package log

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// cronLogger routes robfig/cron's scheduler messages through slog.
type cronLogger struct {
	l *slog.Logger
}

// CronLogger adapts l to cron.Logger. A nil l uses the global logger.
// Cron's routine "wake"/"run" messages are logged at DEBUG.
func CronLogger(l *slog.Logger) cron.Logger {
	if l == nil {
		l = Logger()
	}
	return cronLogger{l: l.With("component", "cron")}
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append([]interface{}{"err", err}, keysAndValues...)...)
}
