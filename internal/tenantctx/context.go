package tenantctx

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Role is the coarse actor role used for scoping decisions.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleHR       Role = "hr"
	RoleEmployee Role = "employee"
	RoleCoach    Role = "coach"
)

// Context identifies the authenticated actor for a single request.
// It is immutable once bound and never persisted.
type Context struct {
	ActorID  snowflake.ID
	TenantID snowflake.ID // zero for platform administrators
	Role     Role
}

// IsAdmin reports whether the actor operates across tenants.
func (c Context) IsAdmin() bool {
	return c.Role == RoleAdmin
}

type contextKey struct{}

// WithContext binds the tenant context to the request context. Handlers call
// this exactly once after authentication; everything downstream reads it via
// FromContext.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

// FromContext returns the bound tenant context. The false return is the
// sentinel for calls that originate outside authenticated request handling
// (background jobs, seeds); those paths must pass scoping fields explicitly.
func FromContext(ctx context.Context) (Context, bool) {
	if ctx == nil {
		return Context{}, false
	}
	tc, ok := ctx.Value(contextKey{}).(Context)
	return tc, ok
}
