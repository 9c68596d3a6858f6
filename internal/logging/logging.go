// Package logging builds the console's zap logger.
package logging

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggerKey struct{}

// New creates a JSON logger writing to stdout.
//
// Level conventions:
//   - error: storage failures, 5xx responses
//   - warn:  degraded operation (no write sink, unreadable frame, failed save)
//   - info:  device connect/disconnect, layout saves, server lifecycle
//   - debug: per-document derivation, sent patches
func New(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:    zap.NewAtomicLevelAt(lvl),
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return cfg.Build()
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger stored in the context, or fallback.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// RedactToken hides the application token in a device socket URL of the
// form .../ws/applications/{token}/...
func RedactToken(url string) string {
	const marker = "/applications/"
	i := strings.Index(url, marker)
	if i < 0 {
		return url
	}
	start := i + len(marker)
	end := strings.IndexAny(url[start:], "/?")
	if end < 0 {
		end = len(url) - start
	}
	if end == 0 {
		return url
	}
	return url[:start] + "[REDACTED]" + url[start+end:]
}
