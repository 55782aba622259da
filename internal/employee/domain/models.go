package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fiscoach/fiscoach/internal/scope"
)

// EmployeeProfile is HR-managed roster data for one enrolled employee.
type EmployeeProfile struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID          snowflake.ID `gorm:"column:org_id;not null;index" json:"organization_id"`
	UserID         snowflake.ID `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`
	FullName       string       `gorm:"not null" json:"full_name"`
	Department     string       `gorm:"type:text" json:"department,omitempty"`
	EmployeeNumber string       `gorm:"column:employee_number;type:text" json:"employee_number,omitempty"`
	HiredAt        *time.Time   `gorm:"column:hired_at" json:"hired_at,omitempty"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (EmployeeProfile) TableName() string { return "employee_profiles" }

func (EmployeeProfile) ScopePolicy() scope.Policy {
	return scope.Policy{
		Class:        scope.TenantScoped,
		TenantColumn: "org_id",
	}
}

func (e *EmployeeProfile) StampTenant(id snowflake.ID) { e.OrgID = id }

type CreateProfileRequest struct {
	UserID         string
	FullName       string
	Department     string
	EmployeeNumber string
	HiredAt        *time.Time
}

type Service interface {
	Create(ctx context.Context, req CreateProfileRequest) (EmployeeProfile, error)
	GetByID(ctx context.Context, id string) (EmployeeProfile, error)
	List(ctx context.Context) ([]EmployeeProfile, error)
	Delete(ctx context.Context, id string) error
}

var (
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidUserID = errors.New("invalid_user_id")
	ErrInvalidID     = errors.New("invalid_id")
	ErrNotFound      = errors.New("not_found")
)
