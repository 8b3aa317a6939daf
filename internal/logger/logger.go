package logger

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/flexprice/entitlements/internal/config"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/fluent/fluent-logger-golang/fluent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const fluentTag = "entitlements.logs"

// Logger is a sugared zap logger. When fluentd forwarding is enabled every
// entry is teed to the fluentd agent as well as stdout.
type Logger struct {
	*zap.SugaredLogger
	fluent *fluent.Fluent
}

func NewLogger(cfg *config.Configuration) (*Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Logging.Level == types.LogLevelDebug {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(zapLevel(cfg.Logging.Level))
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.DisableStacktrace = true

	base, err := zcfg.Build()
	if err != nil {
		return nil, err
	}

	l := &Logger{}
	if cfg.Logging.FluentdEnabled {
		l.fluent, err = dialFluentd(cfg.Logging)
		if err != nil {
			base.Warn("fluentd unavailable, logging to stdout only", zap.Error(err))
		} else {
			core := newFluentCore(zcfg.Level, l.fluent, string(cfg.Deployment.Mode))
			base = base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
				return zapcore.NewTee(c, core)
			}))
		}
	}
	l.SugaredLogger = base.Sugar()
	return l, nil
}

func dialFluentd(cfg config.LoggingConfig) (*fluent.Fluent, error) {
	return fluent.New(fluent.Config{
		FluentHost:   cfg.FluentdHost,
		FluentPort:   cfg.FluentdPort,
		Async:        true,
		BufferLimit:  8 << 20,
		WriteTimeout: 3 * time.Second,
		RetryWait:    500,
		MaxRetry:     5,
	})
}

func zapLevel(level types.LogLevel) zapcore.Level {
	switch level {
	case types.LogLevelDebug:
		return zapcore.DebugLevel
	case types.LogLevelWarn:
		return zapcore.WarnLevel
	case types.LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewNoopLogger discards everything.
func NewNoopLogger() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// WithContext tags entries with the request scope carried by ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return l.With(
		"request_id", types.GetRequestID(ctx),
		"tenant_id", types.GetTenantID(ctx),
		"environment_id", types.GetEnvironmentID(ctx),
	)
}

func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(keysAndValues...), fluent: l.fluent}
}

func (l *Logger) Close() error {
	_ = l.SugaredLogger.Sync()
	if l.fluent == nil {
		return nil
	}
	return l.fluent.Close()
}

// GinWriter routes gin's debug output through the logger.
func (l *Logger) GinWriter() io.Writer {
	return ginWriter{l}
}

type ginWriter struct{ l *Logger }

func (w ginWriter) Write(p []byte) (int, error) {
	w.l.Info(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
