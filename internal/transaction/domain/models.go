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

// Transaction is a single spend or income record on a linked account.
// Amounts are integral minor units; negative means money out.
//
// HR never reads or writes transactions. The denial lives on the scope
// policy so it holds on every access path, not just the HTTP surface.
type Transaction struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID      `gorm:"column:org_id;not null;index" json:"organization_id"`
	OwnerID     snowflake.ID      `gorm:"column:owner_id;not null;index:idx_transactions_owner_occurred" json:"owner_id"`
	AccountID   snowflake.ID      `gorm:"column:account_id;not null;index" json:"account_id"`
	BatchID     snowflake.ID      `gorm:"column:batch_id;index" json:"batch_id,omitempty"`
	AmountMinor int64             `gorm:"column:amount_minor;not null" json:"amount_minor"`
	Currency    string            `gorm:"not null;default:'usd'" json:"currency"`
	Category    string            `gorm:"type:text" json:"category,omitempty"`
	Merchant    string            `gorm:"type:text" json:"merchant,omitempty"`
	OccurredAt  time.Time         `gorm:"column:occurred_at;not null;index:idx_transactions_owner_occurred" json:"occurred_at"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Transaction) TableName() string { return "transactions" }

func (Transaction) ScopePolicy() scope.Policy {
	return scope.Policy{
		Class:        scope.OwnerScoped,
		TenantColumn: "org_id",
		OwnerColumn:  "owner_id",
		DeniedRoles:  []tenantctx.Role{tenantctx.RoleHR},
	}
}

func (t *Transaction) StampTenant(id snowflake.ID) { t.OrgID = id }
func (t *Transaction) StampOwner(id snowflake.ID)  { t.OwnerID = id }

// BatchStatus tracks an upload batch through its lifecycle.
type BatchStatus string

const (
	BatchPending  BatchStatus = "pending"
	BatchImported BatchStatus = "imported"
	BatchFailed   BatchStatus = "failed"
)

// UploadBatch records one spreadsheet import of transactions. The batch row
// is tenant-scoped; the rows it produced are owner-scoped transactions.
type UploadBatch struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"column:org_id;not null;index" json:"organization_id"`
	OwnerID   snowflake.ID `gorm:"column:owner_id;not null" json:"owner_id"`
	Reference string       `gorm:"not null;uniqueIndex" json:"reference"`
	FileName  string       `gorm:"column:file_name;not null" json:"file_name"`
	RowCount  int          `gorm:"column:row_count;not null;default:0" json:"row_count"`
	Status    BatchStatus  `gorm:"not null;default:'pending'" json:"status"`
	Error     string       `gorm:"type:text" json:"error,omitempty"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (UploadBatch) TableName() string { return "upload_batches" }

func (UploadBatch) ScopePolicy() scope.Policy {
	return scope.Policy{
		Class:        scope.TenantScoped,
		TenantColumn: "org_id",
	}
}

func (b *UploadBatch) StampTenant(id snowflake.ID) { b.OrgID = id }

type CreateTransactionRequest struct {
	AccountID   string
	AmountMinor int64
	Currency    string
	Category    string
	Merchant    string
	OccurredAt  time.Time
	Metadata    map[string]any
}

type ListTransactionRequest struct {
	AccountID string
	From      time.Time
	To        time.Time
	PageToken string
	PageSize  int
}

type CreateBatchRequest struct {
	FileName string
	Rows     []CreateTransactionRequest
}

type Service interface {
	Create(ctx context.Context, req CreateTransactionRequest) (Transaction, error)
	GetByID(ctx context.Context, id string) (Transaction, error)
	List(ctx context.Context, req ListTransactionRequest) ([]Transaction, string, error)
	Delete(ctx context.Context, id string) error

	ImportBatch(ctx context.Context, req CreateBatchRequest) (UploadBatch, error)
	GetBatch(ctx context.Context, id string) (UploadBatch, error)
	ListBatches(ctx context.Context) ([]UploadBatch, error)
}

var (
	ErrInvalidAccount  = errors.New("invalid_account")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidOccurred = errors.New("invalid_occurred_at")
	ErrInvalidID       = errors.New("invalid_id")
	ErrEmptyBatch      = errors.New("empty_batch")
	ErrNotFound        = errors.New("not_found")
)
