package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fiscoach/fiscoach/internal/account/domain"
	"github.com/fiscoach/fiscoach/internal/scope"
	"github.com/fiscoach/fiscoach/pkg/db/option"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	store *scope.Store[domain.Account]
}

func New(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("account.service"),
		genID: p.GenID,
		store: scope.NewStore[domain.Account](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateAccountRequest) (domain.Account, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Account{}, domain.ErrInvalidName
	}
	kind := req.Kind
	if kind == "" {
		kind = domain.AccountChecking
	}
	if !domain.ValidKind(kind) {
		return domain.Account{}, domain.ErrInvalidKind
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}

	now := time.Now().UTC()
	account := domain.Account{
		ID:        s.genID.Generate(),
		Name:      name,
		Kind:      kind,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, &account); err != nil {
		return domain.Account{}, err
	}
	return account, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Account, error) {
	parsed, err := parseID(id)
	if err != nil {
		return domain.Account{}, err
	}
	account, err := s.store.FindOne(ctx, &domain.Account{ID: parsed})
	if err != nil {
		return domain.Account{}, err
	}
	if account == nil {
		return domain.Account{}, domain.ErrNotFound
	}
	return *account, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Account, error) {
	items, err := s.store.Find(ctx, &domain.Account{}, option.WithOrder("created_at asc, id asc"))
	if err != nil {
		return nil, err
	}
	accounts := make([]domain.Account, 0, len(items))
	for _, item := range items {
		accounts = append(accounts, *item)
	}
	return accounts, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdateAccountRequest) (domain.Account, error) {
	parsed, err := parseID(id)
	if err != nil {
		return domain.Account{}, err
	}

	values := map[string]any{"updated_at": time.Now().UTC()}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Account{}, domain.ErrInvalidName
		}
		values["name"] = name
	}
	if req.BalanceMinor != nil {
		values["balance_minor"] = *req.BalanceMinor
	}

	if err := s.store.Update(ctx, parsed, values); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, err
	}
	return s.GetByID(ctx, id)
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

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
