package domain

import (
	"context"
	"errors"
)

type CreateOrganizationRequest struct {
	Name         string
	ContactEmail string
}

type Service interface {
	// Create provisions a new tenant. Platform administrators only.
	Create(ctx context.Context, req CreateOrganizationRequest) (Organization, error)
	Get(ctx context.Context, id string) (Organization, error)
	List(ctx context.Context) ([]Organization, error)
}

var (
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidEmail = errors.New("invalid_email")
	ErrInvalidID    = errors.New("invalid_id")
	ErrSlugTaken    = errors.New("slug_taken")
	ErrNotFound     = errors.New("not_found")
)
