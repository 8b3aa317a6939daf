package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/logger"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ScopeMiddleware, ErrorHandler(logger.NewNoopLogger()))
	r.GET("/test", handler)
	return r
}

func TestErrorHandlerStatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{
			name:   "validation",
			err:    ierr.NewError("bad").WithHint("Bad input").Mark(ierr.ErrValidation),
			status: http.StatusBadRequest,
			code:   ierr.ErrCodeValidation,
		},
		{
			name:   "not found",
			err:    ierr.NewError("missing").Mark(ierr.ErrNotFound),
			status: http.StatusNotFound,
			code:   ierr.ErrCodeNotFound,
		},
		{
			name:   "insufficient balance",
			err:    ierr.NewError("short").Mark(ierr.ErrInsufficientBalance),
			status: http.StatusPaymentRequired,
			code:   ierr.ErrCodeInsufficientBalance,
		},
		{
			name:      "lock contention",
			err:       ierr.NewError("busy").Mark(ierr.ErrLockContention),
			status:    http.StatusConflict,
			code:      ierr.ErrCodeLockContention,
			retryable: true,
		},
		{
			name:   "billing failure",
			err:    ierr.NewError("stripe down").Mark(ierr.ErrBillingSideEffectFailed),
			status: http.StatusBadGateway,
			code:   ierr.ErrCodeBillingSideEffectFailed,
		},
		{
			name:   "invalid entitlement state",
			err:    ierr.NewError("negative allowance").Mark(ierr.ErrInvalidEntitlementState),
			status: http.StatusInternalServerError,
			code:   ierr.ErrCodeInvalidEntitlementState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestEngine(func(c *gin.Context) { c.Error(tt.err) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

			assert.Equal(t, tt.status, w.Code)
			var body ierr.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Equal(t, tt.retryable, body.Error.Retryable)
		})
	}
}

func TestScopeMiddleware(t *testing.T) {
	var tenantID, environmentID, requestID string
	r := newTestEngine(func(c *gin.Context) {
		ctx := c.Request.Context()
		tenantID = types.GetTenantID(ctx)
		environmentID = types.GetEnvironmentID(ctx)
		requestID = types.GetRequestID(ctx)
		c.Status(http.StatusNoContent)
	})

	t.Run("headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(types.HeaderTenant, "tenant_a")
		req.Header.Set(types.HeaderEnvironment, "env_a")
		req.Header.Set(types.HeaderRequestID, "req_fixed")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "tenant_a", tenantID)
		assert.Equal(t, "env_a", environmentID)
		assert.Equal(t, "req_fixed", requestID)
		assert.Equal(t, "req_fixed", w.Header().Get(types.HeaderRequestID))
	})

	t.Run("defaults", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, types.DefaultTenantID, tenantID)
		assert.Empty(t, environmentID)
		assert.NotEmpty(t, requestID)
	})
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }
	ctx := types.SetTenantID(context.Background(), "tenant_a")

	require.NoError(t, rl.Allow(ctx, "cus_1"))
	require.NoError(t, rl.Allow(ctx, "cus_1"))

	err := rl.Allow(ctx, "cus_1")
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, ierr.HTTPStatusFromErr(err))

	assert.NoError(t, rl.Allow(ctx, "cus_2"), "buckets are per customer")
	assert.NoError(t, rl.Allow(types.SetTenantID(ctx, "tenant_b"), "cus_1"), "and per tenant")

	now = now.Add(time.Second)
	assert.NoError(t, rl.Allow(ctx, "cus_1"))

	var disabled *RateLimiter
	assert.Nil(t, NewRateLimiter(0, 10))
	assert.NoError(t, disabled.Allow(ctx, "cus_1"))
}
