package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fiscoach/fiscoach/internal/scope"
)

// GoalStatus is the lifecycle state of a savings goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalAchieved  GoalStatus = "achieved"
	GoalAbandoned GoalStatus = "abandoned"
)

// Goal is an employee's savings target.
type Goal struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID `gorm:"column:org_id;not null;index" json:"organization_id"`
	OwnerID     snowflake.ID `gorm:"column:owner_id;not null;index" json:"owner_id"`
	Name        string       `gorm:"not null" json:"name"`
	TargetMinor int64        `gorm:"column:target_minor;not null" json:"target_minor"`
	SavedMinor  int64        `gorm:"column:saved_minor;not null;default:0" json:"saved_minor"`
	Currency    string       `gorm:"not null;default:'usd'" json:"currency"`
	TargetDate  *time.Time   `gorm:"column:target_date" json:"target_date,omitempty"`
	Status      GoalStatus   `gorm:"not null;default:'active'" json:"status"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Goal) TableName() string { return "goals" }

func (Goal) ScopePolicy() scope.Policy {
	return scope.Policy{
		Class:        scope.OwnerScoped,
		TenantColumn: "org_id",
		OwnerColumn:  "owner_id",
	}
}

func (g *Goal) StampTenant(id snowflake.ID) { g.OrgID = id }
func (g *Goal) StampOwner(id snowflake.ID)  { g.OwnerID = id }

type CreateGoalRequest struct {
	Name        string
	TargetMinor int64
	Currency    string
	TargetDate  *time.Time
}

type UpdateGoalRequest struct {
	Name       *string
	SavedMinor *int64
	Status     *GoalStatus
}

type Service interface {
	Create(ctx context.Context, req CreateGoalRequest) (Goal, error)
	GetByID(ctx context.Context, id string) (Goal, error)
	List(ctx context.Context) ([]Goal, error)
	Update(ctx context.Context, id string, req UpdateGoalRequest) (Goal, error)
	Delete(ctx context.Context, id string) error
}

var (
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidTarget = errors.New("invalid_target")
	ErrInvalidStatus = errors.New("invalid_status")
	ErrInvalidID     = errors.New("invalid_id")
	ErrNotFound      = errors.New("not_found")
)
