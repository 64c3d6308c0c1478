package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kingrea/pipectx/internal/config"
)

// Logger appends structured lines to .pipectx/logs/pipectx.log so users can
// inspect why the integration disabled itself after the host has closed.
type Logger struct {
	file  *os.File
	sugar *zap.SugaredLogger
	debug bool
}

// New creates (or reuses) the log file for the given root directory. Debug
// lines are only written when debug is true.
func New(rootDir string, debug bool) (*Logger, error) {
	logDir := filepath.Join(rootDir, config.Dir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logDir, "pipectx.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(f), level)
	return &Logger{
		file:  f,
		sugar: zap.New(core).Sugar(),
		debug: debug,
	}, nil
}

// FromZap wraps an existing zap logger, e.g. zaptest or a development logger.
func FromZap(l *zap.Logger, debug bool) *Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &Logger{sugar: l.Sugar(), debug: debug}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return FromZap(zap.NewNop(), false)
}

// Close flushes and releases the file handle.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	if l.sugar != nil {
		_ = l.sugar.Sync()
	}
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	if l == nil || l.sugar == nil {
		return nil
	}
	return l.sugar.Sync()
}

// Printf writes a single info line.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.sugar == nil {
		return
	}
	l.sugar.Info(strings.TrimRight(fmt.Sprintf(format, args...), "\n"))
}

// Debugf writes a debug line when debug logging is enabled.
func (l *Logger) Debugf(format string, args ...any) {
	if l == nil || l.sugar == nil || !l.debug {
		return
	}
	l.sugar.Debugf(format, args...)
}

// Infow logs a message with key/value pairs.
func (l *Logger) Infow(msg string, keysAndValues ...any) {
	if l == nil || l.sugar == nil {
		return
	}
	l.sugar.Infow(msg, keysAndValues...)
}

// Warnw logs a warning with key/value pairs.
func (l *Logger) Warnw(msg string, keysAndValues ...any) {
	if l == nil || l.sugar == nil {
		return
	}
	l.sugar.Warnw(msg, keysAndValues...)
}

// Errorw logs an error with key/value pairs.
func (l *Logger) Errorw(msg string, keysAndValues ...any) {
	if l == nil || l.sugar == nil {
		return
	}
	l.sugar.Errorw(msg, keysAndValues...)
}

// With returns a child logger carrying the given fields.
func (l *Logger) With(keysAndValues ...any) *Logger {
	if l == nil || l.sugar == nil {
		return l
	}
	return &Logger{sugar: l.sugar.With(keysAndValues...), debug: l.debug}
}
