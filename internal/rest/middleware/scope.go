package middleware

import (
	"github.com/flexprice/entitlements/internal/types"
	"github.com/gin-gonic/gin"
)

// customerIDKey is set on the gin context by handlers that know the customer.
const customerIDKey = "customer_id"

// ScopeMiddleware copies the request id, tenant and environment headers onto
// the request context. Requests without a tenant run in the default tenant.
func ScopeMiddleware(c *gin.Context) {
	requestID := c.GetHeader(types.HeaderRequestID)
	if requestID == "" {
		requestID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_REQUEST)
	}
	tenantID := c.GetHeader(types.HeaderTenant)
	if tenantID == "" {
		tenantID = types.DefaultTenantID
	}

	ctx := types.SetRequestID(c.Request.Context(), requestID)
	ctx = types.SetTenantID(ctx, tenantID)
	ctx = types.SetEnvironmentID(ctx, c.GetHeader(types.HeaderEnvironment))
	c.Request = c.Request.WithContext(ctx)

	c.Header(types.HeaderRequestID, requestID)
	c.Next()
}

// SetCustomerID records the customer a request acts on for rate limiting and logs.
func SetCustomerID(c *gin.Context, customerID string) {
	c.Set(customerIDKey, customerID)
}
