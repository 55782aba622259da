package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fiscoach/fiscoach/internal/scope"
)

// AccountKind classifies the linked financial account.
type AccountKind string

const (
	AccountChecking   AccountKind = "checking"
	AccountSavings    AccountKind = "savings"
	AccountCreditCard AccountKind = "credit_card"
	AccountInvestment AccountKind = "investment"
	AccountOther      AccountKind = "other"
)

// Account is a financial account an employee has linked for coaching.
// Balances are integral minor units in the account's currency.
type Account struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID `gorm:"column:org_id;not null;index" json:"organization_id"`
	OwnerID      snowflake.ID `gorm:"column:owner_id;not null;index" json:"owner_id"`
	Name         string       `gorm:"not null" json:"name"`
	Kind         AccountKind  `gorm:"not null;default:'checking'" json:"kind"`
	Currency     string       `gorm:"not null;default:'usd'" json:"currency"`
	BalanceMinor int64        `gorm:"column:balance_minor;not null;default:0" json:"balance_minor"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

func (Account) ScopePolicy() scope.Policy {
	return scope.Policy{
		Class:        scope.OwnerScoped,
		TenantColumn: "org_id",
		OwnerColumn:  "owner_id",
	}
}

func (a *Account) StampTenant(id snowflake.ID) { a.OrgID = id }
func (a *Account) StampOwner(id snowflake.ID)  { a.OwnerID = id }

type CreateAccountRequest struct {
	Name     string
	Kind     AccountKind
	Currency string
}

type UpdateAccountRequest struct {
	Name         *string
	BalanceMinor *int64
}

type Service interface {
	Create(ctx context.Context, req CreateAccountRequest) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
	List(ctx context.Context) ([]Account, error)
	Update(ctx context.Context, id string, req UpdateAccountRequest) (Account, error)
	Delete(ctx context.Context, id string) error
}

var (
	ErrInvalidName = errors.New("invalid_name")
	ErrInvalidKind = errors.New("invalid_kind")
	ErrInvalidID   = errors.New("invalid_id")
	ErrNotFound    = errors.New("not_found")
)

// ValidKind reports whether k names a supported account kind.
func ValidKind(k AccountKind) bool {
	switch k {
	case AccountChecking, AccountSavings, AccountCreditCard, AccountInvestment, AccountOther:
		return true
	}
	return false
}
