package authorization

import (
	"context"
	"errors"
)

var (
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrForbidden           = errors.New("forbidden")
)

// Service answers route-level capability checks. The data-layer denial in
// internal/scope stays authoritative; this layer rejects obviously
// unauthorized requests before they reach a handler.
type Service interface {
	Authorize(ctx context.Context, actor string, orgID string, object string, action string) error
}
