package service

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	"github.com/fiscoach/fiscoach/internal/clock"
	"github.com/fiscoach/fiscoach/internal/scope"
	"github.com/fiscoach/fiscoach/internal/summary/domain"
	txdomain "github.com/fiscoach/fiscoach/internal/transaction/domain"
	"github.com/fiscoach/fiscoach/pkg/db/option"
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
	Clock clock.Clock
}

type Service struct {
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	store    *scope.Store[domain.MonthlySummary]
	txnStore *scope.Store[txdomain.Transaction]
}

func New(p Params) domain.Service {
	return &Service{
		log:      p.Log.Named("summary.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		store:    scope.NewStore[domain.MonthlySummary](p.DB),
		txnStore: scope.NewStore[txdomain.Transaction](p.DB),
	}
}

// Compute aggregates the month's transactions and upserts the summary row.
// The query runs on the month's UTC instant bounds; both stores enforce the
// caller's scope, so an HR actor is rejected before any aggregation happens.
func (s *Service) Compute(ctx context.Context, month string) (domain.MonthlySummary, error) {
	start, end, err := domain.MonthBounds(month)
	if err != nil {
		return domain.MonthlySummary{}, err
	}

	txns, err := s.txnStore.Find(ctx, &txdomain.Transaction{},
		option.WithWhere("occurred_at >= ?", start),
		option.WithWhere("occurred_at < ?", end),
	)
	if err != nil {
		return domain.MonthlySummary{}, err
	}

	var income, spend, net int64
	byCategory := datatypes.JSONMap{}
	for _, txn := range txns {
		net += txn.AmountMinor
		if txn.AmountMinor >= 0 {
			income += txn.AmountMinor
		} else {
			spend += -txn.AmountMinor
		}
		category := txn.Category
		if category == "" {
			category = "uncategorized"
		}
		prev, _ := byCategory[category].(int64)
		byCategory[category] = prev + txn.AmountMinor
	}

	now := s.clock.Now()
	existing, err := s.store.FindOne(ctx, &domain.MonthlySummary{Month: month})
	if err != nil {
		return domain.MonthlySummary{}, err
	}
	if existing != nil {
		// Marshal the category map ourselves: inside a map-based update the
		// JSONMap valuer does not run, and the amounts would land in the
		// column as JSON strings instead of numbers.
		rawCategories, err := json.Marshal(byCategory)
		if err != nil {
			return domain.MonthlySummary{}, err
		}
		values := map[string]any{
			"income_minor": income,
			"spend_minor":  spend,
			"net_minor":    net,
			"txn_count":    int64(len(txns)),
			"by_category":  datatypes.JSON(rawCategories),
			"computed_at":  now,
			"updated_at":   now,
		}
		if err := s.store.Update(ctx, existing.ID, values); err != nil {
			return domain.MonthlySummary{}, err
		}
		return s.Get(ctx, month)
	}

	summary := domain.MonthlySummary{
		ID:          s.genID.Generate(),
		Month:       month,
		PeriodStart: start,
		PeriodEnd:   end,
		IncomeMinor: income,
		SpendMinor:  spend,
		NetMinor:    net,
		TxnCount:    int64(len(txns)),
		ByCategory:  byCategory,
		ComputedAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, &summary); err != nil {
		return domain.MonthlySummary{}, err
	}
	return summary, nil
}

func (s *Service) Get(ctx context.Context, month string) (domain.MonthlySummary, error) {
	if _, _, err := domain.MonthBounds(month); err != nil {
		return domain.MonthlySummary{}, err
	}
	summary, err := s.store.FindOne(ctx, &domain.MonthlySummary{Month: month})
	if err != nil {
		return domain.MonthlySummary{}, err
	}
	if summary == nil {
		return domain.MonthlySummary{}, domain.ErrNotFound
	}
	return *summary, nil
}

func (s *Service) List(ctx context.Context) ([]domain.MonthlySummary, error) {
	items, err := s.store.Find(ctx, &domain.MonthlySummary{}, option.WithOrder("month desc, id desc"))
	if err != nil {
		return nil, err
	}
	summaries := make([]domain.MonthlySummary, 0, len(items))
	for _, item := range items {
		summaries = append(summaries, *item)
	}
	return summaries, nil
}
