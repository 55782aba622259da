package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fiscoach/fiscoach/internal/coach/domain"
	"github.com/fiscoach/fiscoach/internal/scope"
	"github.com/fiscoach/fiscoach/pkg/db"
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
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	store *scope.Store[domain.Coach]
}

func New(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("coach.service"),
		genID: p.GenID,
		store: scope.NewStore[domain.Coach](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCoachRequest) (domain.Coach, error) {
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return domain.Coach{}, domain.ErrInvalidName
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.Coach{}, domain.ErrInvalidEmail
	}
	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil || userID == 0 {
		return domain.Coach{}, domain.ErrInvalidUserID
	}

	now := time.Now().UTC()
	coach := domain.Coach{
		ID:          s.genID.Generate(),
		UserID:      userID,
		DisplayName: name,
		Email:       email,
		Bio:         strings.TrimSpace(req.Bio),
		Specialties: datatypes.JSONMap(req.Specialties),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, &coach); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Coach{}, domain.ErrCoachExists
		}
		return domain.Coach{}, err
	}
	return coach, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Coach, error) {
	parsed, err := parseID(id)
	if err != nil {
		return domain.Coach{}, err
	}
	coach, err := s.store.FindOne(ctx, &domain.Coach{ID: parsed})
	if err != nil {
		return domain.Coach{}, err
	}
	if coach == nil {
		return domain.Coach{}, domain.ErrNotFound
	}
	return *coach, nil
}

func (s *Service) GetByUserID(ctx context.Context, userID snowflake.ID) (domain.Coach, error) {
	coach, err := s.store.FindOne(ctx, &domain.Coach{UserID: userID})
	if err != nil {
		return domain.Coach{}, err
	}
	if coach == nil {
		return domain.Coach{}, domain.ErrNotFound
	}
	return *coach, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Coach, error) {
	items, err := s.store.Find(ctx, &domain.Coach{IsActive: true}, option.WithOrder("display_name asc, id asc"))
	if err != nil {
		return nil, err
	}
	coaches := make([]domain.Coach, 0, len(items))
	for _, item := range items {
		coaches = append(coaches, *item)
	}
	return coaches, nil
}

func (s *Service) Deactivate(ctx context.Context, id string) error {
	parsed, err := parseID(id)
	if err != nil {
		return err
	}
	err = s.store.Update(ctx, parsed, map[string]any{
		"is_active":  false,
		"updated_at": time.Now().UTC(),
	})
	if err != nil {
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
