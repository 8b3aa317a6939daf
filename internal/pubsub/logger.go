package pubsub

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/flexprice/entitlements/internal/logger"
)

// watermillLogger routes watermill's logs through the service logger.
type watermillLogger struct {
	log    *logger.Logger
	fields watermill.LogFields
}

func newWatermillLogger(log *logger.Logger) watermill.LoggerAdapter {
	return &watermillLogger{log: log, fields: watermill.LogFields{}}
}

func (w *watermillLogger) keysAndValues(fields watermill.LogFields) []interface{} {
	all := w.fields.Add(fields)
	out := make([]interface{}, 0, len(all)*2)
	for k, v := range all {
		out = append(out, k, v)
	}
	return out
}

func (w *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.log.Errorw(msg, append(w.keysAndValues(fields), "error", err)...)
}

func (w *watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.log.Infow(msg, w.keysAndValues(fields)...)
}

func (w *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.log.Debugw(msg, w.keysAndValues(fields)...)
}

// Trace is folded into debug.
func (w *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.log.Debugw(msg, w.keysAndValues(fields)...)
}

func (w *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{log: w.log, fields: w.fields.Add(fields)}
}
