package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fiscoach/fiscoach/internal/scope"
	"github.com/fiscoach/fiscoach/internal/tenantctx"
	"gorm.io/datatypes"
)

// MonthlySummary is a per-employee rollup of one calendar month of
// transactions. Rollups are keyed by the month's UTC instant range;
// the Month string is derived from that range, never the other way around.
type MonthlySummary struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID      `gorm:"column:org_id;not null;index" json:"organization_id"`
	OwnerID     snowflake.ID      `gorm:"column:owner_id;not null;uniqueIndex:idx_summaries_owner_month" json:"owner_id"`
	Month       string            `gorm:"not null;uniqueIndex:idx_summaries_owner_month" json:"month"`
	PeriodStart time.Time         `gorm:"column:period_start;not null" json:"period_start"`
	PeriodEnd   time.Time         `gorm:"column:period_end;not null" json:"period_end"`
	IncomeMinor int64             `gorm:"column:income_minor;not null;default:0" json:"income_minor"`
	SpendMinor  int64             `gorm:"column:spend_minor;not null;default:0" json:"spend_minor"`
	NetMinor    int64             `gorm:"column:net_minor;not null;default:0" json:"net_minor"`
	TxnCount    int64             `gorm:"column:txn_count;not null;default:0" json:"txn_count"`
	ByCategory  datatypes.JSONMap `gorm:"type:jsonb" json:"by_category,omitempty"`
	ComputedAt  time.Time         `gorm:"column:computed_at;not null" json:"computed_at"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (MonthlySummary) TableName() string { return "monthly_summaries" }

func (MonthlySummary) ScopePolicy() scope.Policy {
	return scope.Policy{
		Class:        scope.OwnerScoped,
		TenantColumn: "org_id",
		OwnerColumn:  "owner_id",
		DeniedRoles:  []tenantctx.Role{tenantctx.RoleHR},
	}
}

func (m *MonthlySummary) StampTenant(id snowflake.ID) { m.OrgID = id }
func (m *MonthlySummary) StampOwner(id snowflake.ID)  { m.OwnerID = id }

type Service interface {
	// Compute rolls up the caller's transactions for the given month
	// ("2006-01") and upserts the summary.
	Compute(ctx context.Context, month string) (MonthlySummary, error)
	Get(ctx context.Context, month string) (MonthlySummary, error)
	List(ctx context.Context) ([]MonthlySummary, error)
}

var (
	ErrInvalidMonth = errors.New("invalid_month")
	ErrNotFound     = errors.New("not_found")
)
