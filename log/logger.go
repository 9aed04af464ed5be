// Package log wraps zap with the fields every devsync entry carries: the
// session ID, the serial port and, when set, the operator's device label.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SessionMeta identifies the session every log entry belongs to.
type SessionMeta struct {
	SessionID string
	Port      string
	Device    string
}

func (m SessionMeta) fields() []zap.Field {
	fs := []zap.Field{zap.String("session_id", m.SessionID), zap.String("port", m.Port)}
	if m.Device != "" {
		fs = append(fs, zap.String("device", m.Device))
	}
	return fs
}

// Options selects where and how entries are written. The zero value writes
// JSON at info level to stderr.
type Options struct {
	Output io.Writer
	Format string // json or console
	Level  string // debug, info, warn or error
}

// Logger writes structured entries. Per-call fields are nested under a
// "fields" key so they never collide with the session fields.
type Logger struct {
	zap *zap.Logger
}

// NewLoggerWithOptions builds a Logger for one session.
func NewLoggerWithOptions(meta SessionMeta, opts Options) (*Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	enc, err := encoderFor(opts.Format)
	if err != nil {
		return nil, err
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(out), level)
	return &Logger{zap: zap.New(core, zap.Fields(meta.fields()...))}, nil
}

// Nop discards everything.
func Nop() *Logger { return &Logger{zap: zap.NewNop()} }

var levels = map[string]zapcore.Level{
	"":        zapcore.InfoLevel,
	"info":    zapcore.InfoLevel,
	"debug":   zapcore.DebugLevel,
	"warn":    zapcore.WarnLevel,
	"warning": zapcore.WarnLevel,
	"error":   zapcore.ErrorLevel,
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if l, ok := levels[strings.ToLower(s)]; ok {
		return l, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("log level %q: want debug, info, warn or error", s)
}

func encoderFor(format string) (zapcore.Encoder, error) {
	cfg := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	switch strings.ToLower(format) {
	case "", "json":
		return zapcore.NewJSONEncoder(cfg), nil
	case "console":
		// Short clock and colored levels for an operator at a terminal.
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(cfg), nil
	}
	return nil, fmt.Errorf("log format %q: want json or console", format)
}

// With returns a Logger that adds fields at the top level of every entry.
func (l *Logger) With(fields map[string]any) *Logger {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	return &Logger{zap: l.zap.With(zf...)}
}

func (l *Logger) Debug(msg string, fields map[string]any) { l.zap.Debug(msg, nested(fields)) }
func (l *Logger) Info(msg string, fields map[string]any)  { l.zap.Info(msg, nested(fields)) }
func (l *Logger) Warn(msg string, fields map[string]any)  { l.zap.Warn(msg, nested(fields)) }
func (l *Logger) Error(msg string, fields map[string]any) { l.zap.Error(msg, nested(fields)) }

func nested(fields map[string]any) zap.Field {
	if len(fields) == 0 {
		return zap.Skip()
	}
	return zap.Any("fields", fields)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error { return l.zap.Sync() }
