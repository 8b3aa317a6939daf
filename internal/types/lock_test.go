package types

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeatureLedgerLockKey(t *testing.T) {
	ctx := SetEnvironmentID(SetTenantID(context.Background(), "tenant_1"), "env_1")

	t.Run("scoped by tenant and environment", func(t *testing.T) {
		assert.Equal(t, "lock:ledger:tenant_1:env_1:cus_1:feat_1", FeatureLedgerLockKey(ctx, "cus_1", "feat_1"))
	})

	t.Run("features never share a key", func(t *testing.T) {
		assert.NotEqual(t, FeatureLedgerLockKey(ctx, "cus_1", "feat_1"), FeatureLedgerLockKey(ctx, "cus_1", "feat_2"))
	})

	t.Run("tenants never share a key", func(t *testing.T) {
		other := SetEnvironmentID(SetTenantID(context.Background(), "tenant_2"), "env_1")
		assert.NotEqual(t,
			FeatureLedgerLockKey(ctx, "cus_1", "feat_1"),
			FeatureLedgerLockKey(other, "cus_1", "feat_1"))
	})
}
