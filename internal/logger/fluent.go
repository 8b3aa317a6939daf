package logger

import (
	"time"

	"go.uber.org/zap/zapcore"
)

type fluentPoster interface {
	Post(tag string, message interface{}) error
}

// fluentCore is a zapcore.Core that posts each entry to fluentd as a flat
// record of its fields plus level, message, service and timestamp.
type fluentCore struct {
	zapcore.LevelEnabler
	poster  fluentPoster
	service string
	fields  []zapcore.Field
}

func newFluentCore(level zapcore.LevelEnabler, poster fluentPoster, service string) *fluentCore {
	return &fluentCore{LevelEnabler: level, poster: poster, service: service}
}

func (c *fluentCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &fluentCore{LevelEnabler: c.LevelEnabler, poster: c.poster, service: c.service, fields: merged}
}

func (c *fluentCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *fluentCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	record := enc.Fields
	record["level"] = ent.Level.String()
	record["message"] = ent.Message
	record["service"] = c.service
	record["timestamp"] = ent.Time.UTC().Format(time.RFC3339)
	return c.poster.Post(fluentTag, record)
}

// Sync is a no-op; the fluent client flushes on Close.
func (c *fluentCore) Sync() error { return nil }
