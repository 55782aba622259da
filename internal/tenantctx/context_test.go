package tenantctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	_, ok = FromContext(nil)
	assert.False(t, ok)
}

func TestRoundTrip(t *testing.T) {
	tc := Context{ActorID: 42, TenantID: 7, Role: RoleEmployee}
	ctx := WithContext(context.Background(), tc)

	got, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, tc, got)
	assert.False(t, got.IsAdmin())
}

func TestAdminHasNoTenant(t *testing.T) {
	ctx := WithContext(context.Background(), Context{ActorID: 1, Role: RoleAdmin})

	got, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.True(t, got.IsAdmin())
	assert.Zero(t, got.TenantID)
}
