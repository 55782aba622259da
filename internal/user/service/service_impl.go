package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fiscoach/fiscoach/internal/scope"
	"github.com/fiscoach/fiscoach/internal/tenantctx"
	"github.com/fiscoach/fiscoach/internal/user/domain"
	"github.com/fiscoach/fiscoach/pkg/db"
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
	log    *zap.Logger
	genID  *snowflake.Node
	store  *scope.Store[domain.User]
	system *scope.UnscopedSystemStore[domain.User]
}

func New(p Params) domain.Service {
	return &Service{
		log:    p.Log.Named("user.service"),
		genID:  p.GenID,
		store:  scope.NewStore[domain.User](p.DB),
		system: scope.UnscopedSystemAccess[domain.User](p.DB),
	}
}

// Authenticate runs before any tenant context exists, so it goes through the
// unscoped system store.
func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.User, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, domain.ErrInvalidToken
	}
	user, err := s.system.FindOne(ctx, &domain.User{TokenHash: domain.HashToken(rawToken)})
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, domain.ErrInvalidToken
	}
	return user, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateUserRequest) (domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, domain.ErrInvalidEmail
	}
	switch req.Role {
	case tenantctx.RoleHR, tenantctx.RoleEmployee, tenantctx.RoleCoach, tenantctx.RoleAdmin:
	default:
		return domain.User{}, domain.ErrInvalidRole
	}
	if strings.TrimSpace(req.RawToken) == "" {
		return domain.User{}, domain.ErrInvalidToken
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:          s.genID.Generate(),
		Email:       email,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Role:        req.Role,
		TokenHash:   domain.HashToken(req.RawToken),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, &user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.User{}, domain.ErrUserExists
		}
		return domain.User{}, err
	}
	return user, nil
}

func (s *Service) List(ctx context.Context, req domain.ListUserRequest) ([]domain.User, error) {
	filter := &domain.User{}
	if req.Role != "" {
		filter.Role = req.Role
	}
	items, err := s.store.Find(ctx, filter, option.WithOrder("created_at desc, id desc"))
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(items))
	for _, item := range items {
		users = append(users, *item)
	}
	return users, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.User, error) {
	parsed, err := parseID(id)
	if err != nil {
		return domain.User{}, err
	}
	user, err := s.store.FindOne(ctx, &domain.User{ID: parsed})
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrNotFound
	}
	return *user, nil
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
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
