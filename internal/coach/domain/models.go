package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fiscoach/fiscoach/internal/scope"
	"gorm.io/datatypes"
)

// Coach is a platform-level financial coach. Coaches serve employees across
// every tenant, so the directory is global lookup data.
type Coach struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID      snowflake.ID      `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`
	DisplayName string            `gorm:"not null" json:"display_name"`
	Email       string            `gorm:"not null" json:"email"`
	Bio         string            `gorm:"type:text" json:"bio,omitempty"`
	Specialties datatypes.JSONMap `gorm:"type:jsonb" json:"specialties,omitempty"`
	IsActive    bool              `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Coach) TableName() string { return "coaches" }

func (Coach) ScopePolicy() scope.Policy {
	return scope.Policy{Class: scope.Global}
}

type CreateCoachRequest struct {
	UserID      string
	DisplayName string
	Email       string
	Bio         string
	Specialties map[string]any
}

type Service interface {
	Create(ctx context.Context, req CreateCoachRequest) (Coach, error)
	GetByID(ctx context.Context, id string) (Coach, error)
	GetByUserID(ctx context.Context, userID snowflake.ID) (Coach, error)
	List(ctx context.Context) ([]Coach, error)
	Deactivate(ctx context.Context, id string) error
}

var (
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidEmail  = errors.New("invalid_email")
	ErrInvalidUserID = errors.New("invalid_user_id")
	ErrInvalidID     = errors.New("invalid_id")
	ErrCoachExists   = errors.New("coach_exists")
	ErrNotFound      = errors.New("not_found")
)
