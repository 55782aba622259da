package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fiscoach/fiscoach/internal/organization/domain"
	"github.com/fiscoach/fiscoach/internal/scope"
	"github.com/fiscoach/fiscoach/pkg/db"
	"github.com/fiscoach/fiscoach/pkg/db/option"
	"github.com/gosimple/slug"
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
	store *scope.Store[domain.Organization]
}

func New(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("organization.service"),
		genID: p.GenID,
		store: scope.NewStore[domain.Organization](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateOrganizationRequest) (domain.Organization, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Organization{}, domain.ErrInvalidName
	}
	email := strings.TrimSpace(req.ContactEmail)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Organization{}, domain.ErrInvalidEmail
	}

	now := time.Now().UTC()
	org := domain.Organization{
		ID:           s.genID.Generate(),
		Name:         name,
		Slug:         slug.Make(name),
		ContactEmail: email,
		Metadata:     datatypes.JSONMap{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, &org); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Organization{}, domain.ErrSlugTaken
		}
		return domain.Organization{}, err
	}
	return org, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Organization, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return domain.Organization{}, domain.ErrInvalidID
	}
	org, err := s.store.FindOne(ctx, &domain.Organization{ID: parsed})
	if err != nil {
		return domain.Organization{}, err
	}
	if org == nil {
		return domain.Organization{}, domain.ErrNotFound
	}
	return *org, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Organization, error) {
	items, err := s.store.Find(ctx, &domain.Organization{}, option.WithOrder("created_at desc, id desc"))
	if err != nil {
		return nil, err
	}
	orgs := make([]domain.Organization, 0, len(items))
	for _, item := range items {
		orgs = append(orgs, *item)
	}
	return orgs, nil
}
