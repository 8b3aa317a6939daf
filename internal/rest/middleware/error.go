package middleware

import (
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/logger"
	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the last error a handler attached with c.Error. Lock
// contention is returned as a retryable conflict.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status := ierr.HTTPStatusFromErr(err)

		if status >= 500 {
			log.WithContext(c.Request.Context()).Errorw("request failed",
				"path", c.Request.URL.Path,
				"code", ierr.Code(err),
				"error", err,
			)
			if hub := sentrygin.GetHubFromContext(c); hub != nil {
				hub.WithScope(func(scope *sentry.Scope) {
					scope.SetExtras(ierr.ReportableDetails(err))
					hub.CaptureException(err)
				})
			}
		}

		c.JSON(status, ierr.NewErrorResponse(err))
	}
}
