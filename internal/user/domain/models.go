package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fiscoach/fiscoach/internal/scope"
	"github.com/fiscoach/fiscoach/internal/tenantctx"
)

// User is an authenticated platform actor. Platform administrators carry a
// zero OrgID; everyone else belongs to exactly one organization.
type User struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID   `gorm:"column:org_id;index" json:"organization_id"`
	Email       string         `gorm:"not null;uniqueIndex" json:"email"`
	DisplayName string         `gorm:"not null" json:"display_name"`
	Role        tenantctx.Role `gorm:"type:text;not null" json:"role"`
	TokenHash   string         `gorm:"column:token_hash;type:text;not null;index" json:"-"`
	IsActive    bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (User) TableName() string { return "users" }

func (User) ScopePolicy() scope.Policy {
	return scope.Policy{
		Class:        scope.TenantScoped,
		TenantColumn: "org_id",
	}
}

func (u *User) StampTenant(id snowflake.ID) { u.OrgID = id }
