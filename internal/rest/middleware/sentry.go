package middleware

import (
	"time"

	"github.com/flexprice/entitlements/internal/config"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
)

const sentryFlushTimeout = 2 * time.Second

// SentryMiddleware attaches a sentry hub to each request and re-panics after
// reporting so gin.Recovery still answers with a 500. It passes requests
// through untouched when sentry is off.
func SentryMiddleware(cfg *config.Configuration) gin.HandlerFunc {
	if !cfg.Sentry.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return sentrygin.New(sentrygin.Options{Repanic: true, Timeout: sentryFlushTimeout})
}

// SentryTenantContextMiddleware copies the request scope onto the hub so
// reported errors are searchable by tenant. Run it after ScopeMiddleware.
func SentryTenantContextMiddleware(c *gin.Context) {
	if hub := sentrygin.GetHubFromContext(c); hub != nil {
		ctx := c.Request.Context()
		hub.ConfigureScope(func(scope *sentry.Scope) {
			tags := map[string]string{
				"tenant_id":      types.GetTenantID(ctx),
				"environment_id": types.GetEnvironmentID(ctx),
				"request_id":     types.GetRequestID(ctx),
			}
			for k, v := range tags {
				if v != "" {
					scope.SetTag(k, v)
				}
			}
		})
	}
	c.Next()
}
