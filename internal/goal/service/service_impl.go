package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fiscoach/fiscoach/internal/goal/domain"
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
	store *scope.Store[domain.Goal]
}

func New(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("goal.service"),
		genID: p.GenID,
		store: scope.NewStore[domain.Goal](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateGoalRequest) (domain.Goal, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Goal{}, domain.ErrInvalidName
	}
	if req.TargetMinor <= 0 {
		return domain.Goal{}, domain.ErrInvalidTarget
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}

	now := time.Now().UTC()
	goal := domain.Goal{
		ID:          s.genID.Generate(),
		Name:        name,
		TargetMinor: req.TargetMinor,
		Currency:    currency,
		TargetDate:  req.TargetDate,
		Status:      domain.GoalActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, &goal); err != nil {
		return domain.Goal{}, err
	}
	return goal, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Goal, error) {
	parsed, err := parseID(id)
	if err != nil {
		return domain.Goal{}, err
	}
	goal, err := s.store.FindOne(ctx, &domain.Goal{ID: parsed})
	if err != nil {
		return domain.Goal{}, err
	}
	if goal == nil {
		return domain.Goal{}, domain.ErrNotFound
	}
	return *goal, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Goal, error) {
	items, err := s.store.Find(ctx, &domain.Goal{}, option.WithOrder("created_at asc, id asc"))
	if err != nil {
		return nil, err
	}
	goals := make([]domain.Goal, 0, len(items))
	for _, item := range items {
		goals = append(goals, *item)
	}
	return goals, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdateGoalRequest) (domain.Goal, error) {
	parsed, err := parseID(id)
	if err != nil {
		return domain.Goal{}, err
	}

	values := map[string]any{"updated_at": time.Now().UTC()}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Goal{}, domain.ErrInvalidName
		}
		values["name"] = name
	}
	if req.SavedMinor != nil {
		values["saved_minor"] = *req.SavedMinor
	}
	if req.Status != nil {
		switch *req.Status {
		case domain.GoalActive, domain.GoalAchieved, domain.GoalAbandoned:
			values["status"] = *req.Status
		default:
			return domain.Goal{}, domain.ErrInvalidStatus
		}
	}

	if err := s.store.Update(ctx, parsed, values); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Goal{}, domain.ErrNotFound
		}
		return domain.Goal{}, err
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
