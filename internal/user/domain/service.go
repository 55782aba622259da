package domain

import (
	"context"
	"errors"

	"github.com/fiscoach/fiscoach/internal/tenantctx"
)

type CreateUserRequest struct {
	Email       string
	DisplayName string
	Role        tenantctx.Role
	RawToken    string
}

type ListUserRequest struct {
	Role      tenantctx.Role
	PageToken string
	PageSize  int
}

type Service interface {
	// Authenticate resolves a raw bearer token to an active user. Runs before
	// any tenant context exists, so it must not require one.
	Authenticate(ctx context.Context, rawToken string) (*User, error)
	Create(ctx context.Context, req CreateUserRequest) (User, error)
	List(ctx context.Context, req ListUserRequest) ([]User, error)
	GetByID(ctx context.Context, id string) (User, error)
	Deactivate(ctx context.Context, id string) error
}

var (
	ErrInvalidToken = errors.New("invalid_token")
	ErrInvalidEmail = errors.New("invalid_email")
	ErrInvalidRole  = errors.New("invalid_role")
	ErrInvalidID    = errors.New("invalid_id")
	ErrUserExists   = errors.New("user_exists")
	ErrNotFound     = errors.New("not_found")
)
