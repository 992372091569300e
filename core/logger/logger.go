package logger

import (
	"fmt"
	"log/slog"
)

// Logger is a small printf style facade over a slog.Logger. Every message is
// prefixed with the name of its owner, and debug messages are only written while
// debug mode is enabled.
type Logger struct {
	log   *slog.Logger
	level *slog.LevelVar
}

// New creates a Logger named name writing according to opts.
func New(name string, opts Options) *Logger {
	if opts.Level == nil {
		opts.Level = new(slog.LevelVar)
	}
	return &Logger{log: slog.New(NewHandler(name, opts)), level: opts.Level}
}

// Wrap returns a Logger backed by log. level may be nil, in which case
// SetDebug has no effect.
func Wrap(log *slog.Logger, level *slog.LevelVar) *Logger {
	if log == nil {
		log = slog.Default()
	}
	if level == nil {
		level = new(slog.LevelVar)
	}
	return &Logger{log: log, level: level}
}

// Named returns a Logger sharing the same output and debug switch, prefixed
// with a different name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{log: l.log.With(NameKey, name), level: l.level}
}

// With returns a Logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{log: l.log.With(args...), level: l.level}
}

// Slog returns the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.log
}

// SetDebug toggles debug output.
func (l *Logger) SetDebug(debug bool) {
	if debug {
		l.level.Set(slog.LevelDebug)
		return
	}
	l.level.Set(slog.LevelInfo)
}

// DebugEnabled reports whether debug messages are written.
func (l *Logger) DebugEnabled() bool {
	return l.level.Level() <= slog.LevelDebug
}

func (l *Logger) Info(msg string)    { l.log.Info(msg) }
func (l *Logger) Warning(msg string) { l.log.Warn(msg) }
func (l *Logger) Severe(msg string)  { l.log.Error(msg) }
func (l *Logger) Debug(msg string)   { l.log.Debug(msg) }

func (l *Logger) Infof(format string, a ...any)    { l.log.Info(fmt.Sprintf(format, a...)) }
func (l *Logger) Warningf(format string, a ...any) { l.log.Warn(fmt.Sprintf(format, a...)) }
func (l *Logger) Severef(format string, a ...any)  { l.log.Error(fmt.Sprintf(format, a...)) }

// Debugf formats only when debug output is enabled.
func (l *Logger) Debugf(format string, a ...any) {
	if !l.DebugEnabled() {
		return
	}
	l.log.Debug(fmt.Sprintf(format, a...))
}
