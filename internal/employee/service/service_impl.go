package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fiscoach/fiscoach/internal/employee/domain"
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
	store *scope.Store[domain.EmployeeProfile]
}

func New(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("employee.service"),
		genID: p.GenID,
		store: scope.NewStore[domain.EmployeeProfile](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateProfileRequest) (domain.EmployeeProfile, error) {
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		return domain.EmployeeProfile{}, domain.ErrInvalidName
	}
	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil || userID == 0 {
		return domain.EmployeeProfile{}, domain.ErrInvalidUserID
	}

	now := time.Now().UTC()
	profile := domain.EmployeeProfile{
		ID:             s.genID.Generate(),
		UserID:         userID,
		FullName:       fullName,
		Department:     strings.TrimSpace(req.Department),
		EmployeeNumber: strings.TrimSpace(req.EmployeeNumber),
		HiredAt:        req.HiredAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, &profile); err != nil {
		return domain.EmployeeProfile{}, err
	}
	return profile, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.EmployeeProfile, error) {
	parsed, err := parseID(id)
	if err != nil {
		return domain.EmployeeProfile{}, err
	}
	profile, err := s.store.FindOne(ctx, &domain.EmployeeProfile{ID: parsed})
	if err != nil {
		return domain.EmployeeProfile{}, err
	}
	if profile == nil {
		return domain.EmployeeProfile{}, domain.ErrNotFound
	}
	return *profile, nil
}

func (s *Service) List(ctx context.Context) ([]domain.EmployeeProfile, error) {
	items, err := s.store.Find(ctx, &domain.EmployeeProfile{}, option.WithOrder("full_name asc, id asc"))
	if err != nil {
		return nil, err
	}
	profiles := make([]domain.EmployeeProfile, 0, len(items))
	for _, item := range items {
		profiles = append(profiles, *item)
	}
	return profiles, nil
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
