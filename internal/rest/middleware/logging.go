package middleware

import (
	"net/http"
	"time"

	"github.com/flexprice/entitlements/internal/logger"
	"github.com/gin-gonic/gin"
)

// LoggingMiddleware writes one access line per request after the handler
// chain completes. It relies on ScopeMiddleware having run first.
func LoggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()
		kv := []interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"latency_ms", time.Since(began).Milliseconds(),
			"bytes", c.Writer.Size(),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			kv = append(kv, "query", q)
		}
		if customerID := c.GetString(customerIDKey); customerID != "" {
			kv = append(kv, "customer_id", customerID)
		}
		if len(c.Errors) > 0 {
			kv = append(kv, "errors", c.Errors.String())
		}

		reqLog := log.WithContext(c.Request.Context())
		switch {
		case status >= http.StatusInternalServerError:
			reqLog.Errorw("request completed", kv...)
		case status >= http.StatusBadRequest:
			reqLog.Warnw("request completed", kv...)
		default:
			reqLog.Infow("request completed", kv...)
		}
	}
}
