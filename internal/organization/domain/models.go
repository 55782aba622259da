package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fiscoach/fiscoach/internal/scope"
	"gorm.io/datatypes"
)

// Organization is a tenant: a company enrolled on the platform.
type Organization struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name         string            `gorm:"not null" json:"name"`
	Slug         string            `gorm:"not null;uniqueIndex" json:"slug"`
	ContactEmail string            `gorm:"not null" json:"contact_email"`
	IsDefault    bool              `gorm:"not null;default:false" json:"is_default"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Organization) TableName() string { return "organizations" }

// ScopePolicy confines non-admin actors to their own organization row.
func (Organization) ScopePolicy() scope.Policy {
	return scope.Policy{
		Class:        scope.TenantScoped,
		TenantColumn: "id",
	}
}

func (o *Organization) StampTenant(id snowflake.ID) { o.ID = id }
