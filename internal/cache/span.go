package cache

import (
	"context"
	"encoding/json"

	"github.com/getsentry/sentry-go"
)

// UnmarshalCacheValue turns whatever a backend handed back into *T: memory
// returns the stored pointer, redis the JSON text.
func UnmarshalCacheValue[T any](value interface{}) (*T, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case *T:
		return v, true
	case string:
		out := new(T)
		if json.Unmarshal([]byte(v), out) != nil {
			return nil, false
		}
		return out, true
	}
	return nil, false
}

// StartCacheSpan opens a cache.<op> span tagged with the backend. Without a
// sentry hub on ctx it returns nil and the other span helpers become no-ops.
func StartCacheSpan(ctx context.Context, backend, op string, data map[string]interface{}) *sentry.Span {
	if sentry.GetHubFromContext(ctx) == nil {
		return nil
	}

	span := sentry.StartSpan(ctx, "cache."+op)
	span.Description = backend + " " + op
	span.SetData("cache.backend", backend)
	for k, v := range data {
		span.SetData("cache."+k, v)
	}
	return span
}

func FinishSpan(span *sentry.Span) {
	if span == nil {
		return
	}
	span.Finish()
}

func SetSpanError(span *sentry.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.Status = sentry.SpanStatusInternalError
	span.SetData("error", err.Error())
}

func SetSpanSuccess(span *sentry.Span) {
	if span == nil {
		return
	}
	span.Status = sentry.SpanStatusOK
}
