package config

import (
	"testing"
	"time"

	"github.com/flexprice/entitlements/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, types.ModeLocal, cfg.Deployment.Mode)
	assert.Equal(t, LockBackendMemory, cfg.Locks.Backend)
	assert.Equal(t, 30*time.Second, cfg.Locks.TTL)
	assert.Equal(t, types.DeductionOrderNormal, cfg.Ledger.DeductionOrder)
	assert.True(t, cfg.Billing.MinimumAmount.IsZero())
	assert.Equal(t, "memory", cfg.Ledger.Store)
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("ENTITLEMENTS_LOCKS_BACKEND", "redis")
	t.Setenv("ENTITLEMENTS_LOCKS_TTL", "5s")
	t.Setenv("ENTITLEMENTS_LEDGER_DEDUCTION_ORDER", "reversed")
	t.Setenv("ENTITLEMENTS_BILLING_MINIMUM_AMOUNT", "0.50")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, LockBackendRedis, cfg.Locks.Backend)
	assert.Equal(t, 5*time.Second, cfg.Locks.TTL)
	assert.Equal(t, types.DeductionOrderReversed, cfg.Ledger.DeductionOrder)
	assert.Equal(t, "0.5", cfg.Billing.MinimumAmount.String())
}

func TestValidateRejectsUnknownLockBackend(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Locks.Backend = "etcd"
	assert.Error(t, cfg.Validate())
}

func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=disable", cfg.GetDSN())
}
