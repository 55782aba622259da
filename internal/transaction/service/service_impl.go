package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fiscoach/fiscoach/internal/scope"
	"github.com/fiscoach/fiscoach/internal/tenantctx"
	"github.com/fiscoach/fiscoach/internal/transaction/domain"
	"github.com/fiscoach/fiscoach/pkg/db/option"
	"github.com/fiscoach/fiscoach/pkg/db/pagination"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	store      *scope.Store[domain.Transaction]
	batchStore *scope.Store[domain.UploadBatch]
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("transaction.service"),
		genID:      p.GenID,
		store:      scope.NewStore[domain.Transaction](p.DB),
		batchStore: scope.NewStore[domain.UploadBatch](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateTransactionRequest) (domain.Transaction, error) {
	txn, err := s.buildTransaction(req, 0)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := s.store.Create(ctx, &txn); err != nil {
		return domain.Transaction{}, err
	}
	return txn, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Transaction, error) {
	parsed, err := parseID(id)
	if err != nil {
		return domain.Transaction{}, err
	}
	txn, err := s.store.FindOne(ctx, &domain.Transaction{ID: parsed})
	if err != nil {
		return domain.Transaction{}, err
	}
	if txn == nil {
		return domain.Transaction{}, domain.ErrNotFound
	}
	return *txn, nil
}

func (s *Service) List(ctx context.Context, req domain.ListTransactionRequest) ([]domain.Transaction, string, error) {
	filter := &domain.Transaction{}
	if strings.TrimSpace(req.AccountID) != "" {
		accountID, err := snowflake.ParseString(strings.TrimSpace(req.AccountID))
		if err != nil {
			return nil, "", domain.ErrInvalidAccount
		}
		filter.AccountID = accountID
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	if page.PageSize <= 0 {
		page.PageSize = 50
	}

	opts := []option.QueryOption{
		option.WithOrder("created_at desc, id desc"),
		option.ApplyPagination(page),
	}
	if !req.From.IsZero() {
		opts = append(opts, option.WithWhere("occurred_at >= ?", req.From.UTC()))
	}
	if !req.To.IsZero() {
		opts = append(opts, option.WithWhere("occurred_at < ?", req.To.UTC()))
	}

	items, err := s.store.Find(ctx, filter, opts...)
	if err != nil {
		return nil, "", err
	}

	info := pagination.BuildCursorPageInfo(items, page.PageSize, func(t *domain.Transaction) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        t.ID.String(),
			CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		return token
	})
	if len(items) > page.PageSize {
		items = items[:page.PageSize]
	}

	txns := make([]domain.Transaction, 0, len(items))
	for _, item := range items {
		txns = append(txns, *item)
	}
	next := ""
	if info.HasMore {
		next = info.NextPageToken
	}
	return txns, next, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	parsed, err := parseID(id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, parsed); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}

// ImportBatch records the batch row first, then inserts its rows in one
// transaction. The batch row survives a row failure, marked failed with the
// error, so broken imports stay visible.
func (s *Service) ImportBatch(ctx context.Context, req domain.CreateBatchRequest) (domain.UploadBatch, error) {
	if len(req.Rows) == 0 {
		return domain.UploadBatch{}, domain.ErrEmptyBatch
	}
	tc, ok := tenantctx.FromContext(ctx)
	if !ok {
		return domain.UploadBatch{}, scope.ErrContextNotEstablished
	}

	now := time.Now().UTC()
	batch := domain.UploadBatch{
		ID:        s.genID.Generate(),
		OwnerID:   tc.ActorID,
		Reference: ulid.Make().String(),
		FileName:  strings.TrimSpace(req.FileName),
		RowCount:  len(req.Rows),
		Status:    domain.BatchPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	rows := make([]domain.Transaction, 0, len(req.Rows))
	for _, rowReq := range req.Rows {
		txn, err := s.buildTransaction(rowReq, batch.ID)
		if err != nil {
			return domain.UploadBatch{}, err
		}
		rows = append(rows, txn)
	}

	if err := s.batchStore.Create(ctx, &batch); err != nil {
		return domain.UploadBatch{}, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rowStore := s.store.WithTrx(tx)
		for i := range rows {
			if err := rowStore.Create(ctx, &rows[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.markBatch(ctx, &batch, domain.BatchFailed, err.Error())
		return domain.UploadBatch{}, err
	}

	s.markBatch(ctx, &batch, domain.BatchImported, "")
	return batch, nil
}

func (s *Service) markBatch(ctx context.Context, batch *domain.UploadBatch, status domain.BatchStatus, errText string) {
	now := time.Now().UTC()
	values := map[string]any{
		"status":     status,
		"error":      errText,
		"updated_at": now,
	}
	if err := s.batchStore.Update(ctx, batch.ID, values); err != nil {
		s.log.Warn("batch status update failed",
			zap.String("batch_id", batch.ID.String()),
			zap.Error(err),
		)
		return
	}
	batch.Status = status
	batch.Error = errText
	batch.UpdatedAt = now
}

func (s *Service) GetBatch(ctx context.Context, id string) (domain.UploadBatch, error) {
	parsed, err := parseID(id)
	if err != nil {
		return domain.UploadBatch{}, err
	}
	batch, err := s.batchStore.FindOne(ctx, &domain.UploadBatch{ID: parsed})
	if err != nil {
		return domain.UploadBatch{}, err
	}
	if batch == nil {
		return domain.UploadBatch{}, domain.ErrNotFound
	}
	return *batch, nil
}

func (s *Service) ListBatches(ctx context.Context) ([]domain.UploadBatch, error) {
	items, err := s.batchStore.Find(ctx, &domain.UploadBatch{}, option.WithOrder("created_at desc, id desc"))
	if err != nil {
		return nil, err
	}
	batches := make([]domain.UploadBatch, 0, len(items))
	for _, item := range items {
		batches = append(batches, *item)
	}
	return batches, nil
}

func (s *Service) buildTransaction(req domain.CreateTransactionRequest, batchID snowflake.ID) (domain.Transaction, error) {
	accountID, err := snowflake.ParseString(strings.TrimSpace(req.AccountID))
	if err != nil || accountID == 0 {
		return domain.Transaction{}, domain.ErrInvalidAccount
	}
	if req.AmountMinor == 0 {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}
	if req.OccurredAt.IsZero() {
		return domain.Transaction{}, domain.ErrInvalidOccurred
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}
	return domain.Transaction{
		ID:          s.genID.Generate(),
		AccountID:   accountID,
		BatchID:     batchID,
		AmountMinor: req.AmountMinor,
		Currency:    currency,
		Category:    strings.TrimSpace(req.Category),
		Merchant:    strings.TrimSpace(req.Merchant),
		OccurredAt:  req.OccurredAt.UTC(),
		Metadata:    datatypes.JSONMap(req.Metadata),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
