package scope

import (
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/fiscoach/fiscoach/internal/tenantctx"
)

var (
	// ErrContextNotEstablished means a scoped operation ran without a bound
	// tenant context. This is a programming-contract violation, not a
	// recoverable business error.
	ErrContextNotEstablished = errors.New("tenant context not established")

	// ErrAccessDenied means the actor's role is categorically forbidden from
	// the entity type, regardless of tenant match.
	ErrAccessDenied = errors.New("access denied")
)

// Class describes how an entity type is confined to the acting tenant.
type Class int

const (
	// Global entities carry no tenant filter (coaches, slots, lookup data).
	Global Class = iota
	// TenantScoped entities are always filtered and stamped by tenant.
	TenantScoped
	// OwnerScoped entities are tenant-scoped and, for employee actors,
	// additionally confined to rows the actor owns.
	OwnerScoped
)

// Policy is the per-entity-type tenancy table entry. Entities declare their
// own policy instead of the store hand-writing per-type logic.
type Policy struct {
	Class        Class
	TenantColumn string
	OwnerColumn  string
	DeniedRoles  []tenantctx.Role
}

func (p Policy) denies(role tenantctx.Role) bool {
	for _, denied := range p.DeniedRoles {
		if denied == role {
			return true
		}
	}
	return false
}

// Entity is implemented by every persisted type served through the scoped
// store.
type Entity interface {
	ScopePolicy() Policy
}

// TenantStamped entities receive their tenant id from the bound context on
// every write. Caller-supplied values are discarded, never merged.
type TenantStamped interface {
	StampTenant(id snowflake.ID)
}

// OwnerStamped entities additionally receive the acting employee's id.
type OwnerStamped interface {
	StampOwner(id snowflake.ID)
}
