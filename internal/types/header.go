package types

// Request headers that scope a call to a tenant and environment.
const (
	HeaderEnvironment = "X-Environment-ID"
	HeaderTenant      = "X-Tenant-ID"
	HeaderRequestID   = "X-Request-ID"
)
