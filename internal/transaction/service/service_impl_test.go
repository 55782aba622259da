package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/fiscoach/fiscoach/internal/scope"
	"github.com/fiscoach/fiscoach/internal/tenantctx"
	"github.com/fiscoach/fiscoach/internal/transaction/domain"
)

type txnFixture struct {
	db   *gorm.DB
	svc  domain.Service
	node *snowflake.Node

	orgID   snowflake.ID
	ownerID snowflake.ID
}

func newTxnFixture(t *testing.T) *txnFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&domain.Transaction{}, &domain.UploadBatch{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:    db,
		Log:   zaptest.NewLogger(t),
		GenID: node,
	})

	return &txnFixture{
		db:      db,
		svc:     svc,
		node:    node,
		orgID:   node.Generate(),
		ownerID: node.Generate(),
	}
}

func (f *txnFixture) employeeCtx() context.Context {
	return f.ctxFor(f.ownerID, tenantctx.RoleEmployee)
}

func (f *txnFixture) ctxFor(actorID snowflake.ID, role tenantctx.Role) context.Context {
	return tenantctx.WithContext(context.Background(), tenantctx.Context{
		ActorID:  actorID,
		TenantID: f.orgID,
		Role:     role,
	})
}

func (f *txnFixture) createReq(amount int64) domain.CreateTransactionRequest {
	return domain.CreateTransactionRequest{
		AccountID:   f.node.Generate().String(),
		AmountMinor: amount,
		Currency:    "USD",
		Category:    "groceries",
		OccurredAt:  time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestCreateValidatesInput(t *testing.T) {
	f := newTxnFixture(t)
	ctx := f.employeeCtx()

	req := f.createReq(-5_000)
	req.AccountID = "not-an-id"
	_, err := f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)

	req = f.createReq(0)
	_, err = f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	req = f.createReq(-5_000)
	req.OccurredAt = time.Time{}
	_, err = f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidOccurred)
}

func TestCreateStampsOwnerAndNormalizesCurrency(t *testing.T) {
	f := newTxnFixture(t)

	txn, err := f.svc.Create(f.employeeCtx(), f.createReq(-5_000))
	require.NoError(t, err)
	assert.Equal(t, f.ownerID, txn.OwnerID)
	assert.Equal(t, f.orgID, txn.OrgID)
	assert.Equal(t, "usd", txn.Currency)

	got, err := f.svc.GetByID(f.employeeCtx(), txn.ID.String())
	require.NoError(t, err)
	assert.Equal(t, txn.ID, got.ID)

	// Another employee probing the same id reads a miss.
	_, err = f.svc.GetByID(f.ctxFor(f.node.Generate(), tenantctx.RoleEmployee), txn.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransactionsDeniedForHR(t *testing.T) {
	f := newTxnFixture(t)
	hrCtx := f.ctxFor(f.node.Generate(), tenantctx.RoleHR)

	_, err := f.svc.Create(hrCtx, f.createReq(-5_000))
	assert.ErrorIs(t, err, scope.ErrAccessDenied)

	_, _, err = f.svc.List(hrCtx, domain.ListTransactionRequest{})
	assert.ErrorIs(t, err, scope.ErrAccessDenied)
}

func TestListPaginatesWithCursor(t *testing.T) {
	f := newTxnFixture(t)
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.db.Create(&domain.Transaction{
			ID:          f.node.Generate(),
			OrgID:       f.orgID,
			OwnerID:     f.ownerID,
			AccountID:   f.node.Generate(),
			AmountMinor: -1_000,
			Currency:    "usd",
			OccurredAt:  base.Add(time.Duration(i) * time.Hour),
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		}).Error)
	}

	first, next, err := f.svc.List(f.employeeCtx(), domain.ListTransactionRequest{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NotEmpty(t, next)

	second, next, err := f.svc.List(f.employeeCtx(), domain.ListTransactionRequest{PageSize: 2, PageToken: next})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Empty(t, next)
	assert.NotEqual(t, first[0].ID, second[0].ID)
	assert.NotEqual(t, first[1].ID, second[0].ID)
}

func TestListFiltersByOccurredRange(t *testing.T) {
	f := newTxnFixture(t)
	ctx := f.employeeCtx()

	in := f.createReq(-1_000)
	in.OccurredAt = time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	_, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	out := f.createReq(-2_000)
	out.OccurredAt = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	_, err = f.svc.Create(ctx, out)
	require.NoError(t, err)

	items, _, err := f.svc.List(ctx, domain.ListTransactionRequest{
		From: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(-1_000), items[0].AmountMinor)
}

func TestImportBatch(t *testing.T) {
	f := newTxnFixture(t)
	ctx := f.employeeCtx()

	batch, err := f.svc.ImportBatch(ctx, domain.CreateBatchRequest{
		FileName: "february.csv",
		Rows: []domain.CreateTransactionRequest{
			f.createReq(-5_000),
			f.createReq(250_000),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.BatchImported, batch.Status)
	assert.Equal(t, 2, batch.RowCount)
	assert.Len(t, batch.Reference, 26)
	assert.Equal(t, f.ownerID, batch.OwnerID)

	items, _, err := f.svc.List(ctx, domain.ListTransactionRequest{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Equal(t, batch.ID, item.BatchID)
	}

	got, err := f.svc.GetBatch(ctx, batch.ID.String())
	require.NoError(t, err)
	assert.Equal(t, batch.Reference, got.Reference)
}

func TestImportBatchRejectsEmptyAndBadRows(t *testing.T) {
	f := newTxnFixture(t)
	ctx := f.employeeCtx()

	_, err := f.svc.ImportBatch(ctx, domain.CreateBatchRequest{FileName: "empty.csv"})
	assert.ErrorIs(t, err, domain.ErrEmptyBatch)

	bad := f.createReq(0)
	_, err = f.svc.ImportBatch(ctx, domain.CreateBatchRequest{
		FileName: "bad.csv",
		Rows:     []domain.CreateTransactionRequest{bad},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	// Row validation happens before anything is written.
	batches, err := f.svc.ListBatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestImportBatchRequiresContext(t *testing.T) {
	f := newTxnFixture(t)
	_, err := f.svc.ImportBatch(context.Background(), domain.CreateBatchRequest{
		FileName: "x.csv",
		Rows:     []domain.CreateTransactionRequest{f.createReq(-1)},
	})
	assert.ErrorIs(t, err, scope.ErrContextNotEstablished)
}

func TestBatchesSharedWithinTenantOnly(t *testing.T) {
	f := newTxnFixture(t)
	ctx := f.employeeCtx()

	_, err := f.svc.ImportBatch(ctx, domain.CreateBatchRequest{
		FileName: "shared.csv",
		Rows:     []domain.CreateTransactionRequest{f.createReq(-1_000)},
	})
	require.NoError(t, err)

	// A colleague in the same org sees the batch.
	colleague := f.ctxFor(f.node.Generate(), tenantctx.RoleEmployee)
	batches, err := f.svc.ListBatches(colleague)
	require.NoError(t, err)
	assert.Len(t, batches, 1)

	// A different org does not.
	otherOrg := tenantctx.WithContext(context.Background(), tenantctx.Context{
		ActorID:  f.node.Generate(),
		TenantID: f.node.Generate(),
		Role:     tenantctx.RoleEmployee,
	})
	batches, err = f.svc.ListBatches(otherOrg)
	require.NoError(t, err)
	assert.Empty(t, batches)
}
