package logger

import (
	"io"
	"os"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	json bool
	zap  *zap.Logger
}

func New(jsonOutput bool) *Logger {
	return NewWithWriter(jsonOutput, os.Stdout)
}

// NewWithWriter builds a logger that writes to w; JSON lines carry ts, level and msg.
func NewWithWriter(jsonOutput bool, w io.Writer) *Logger {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
	}
	var enc zapcore.Encoder
	if jsonOutput {
		enc = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg.TimeKey = ""
		enc = zapcore.NewConsoleEncoder(cfg)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(w), zapcore.DebugLevel)
	return &Logger{json: jsonOutput, zap: zap.New(core)}
}

func (l *Logger) Info(msg string, fields map[string]any)  { l.zap.Info(msg, toZap(fields)...) }
func (l *Logger) Warn(msg string, fields map[string]any)  { l.zap.Warn(msg, toZap(fields)...) }
func (l *Logger) Error(msg string, fields map[string]any) { l.zap.Error(msg, toZap(fields)...) }

// Sync flushes buffered entries.
func (l *Logger) Sync() error { return l.zap.Sync() }

// JSONEnabled reports whether this logger is configured to emit JSON output.
func (l *Logger) JSONEnabled() bool { return l.json }

func toZap(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}
