package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	accountdomain "github.com/fiscoach/fiscoach/internal/account/domain"
	"github.com/fiscoach/fiscoach/internal/authorization"
	bookingdomain "github.com/fiscoach/fiscoach/internal/booking/domain"
	coachdomain "github.com/fiscoach/fiscoach/internal/coach/domain"
	employeedomain "github.com/fiscoach/fiscoach/internal/employee/domain"
	goaldomain "github.com/fiscoach/fiscoach/internal/goal/domain"
	organizationdomain "github.com/fiscoach/fiscoach/internal/organization/domain"
	"github.com/fiscoach/fiscoach/internal/scope"
	summarydomain "github.com/fiscoach/fiscoach/internal/summary/domain"
	transactiondomain "github.com/fiscoach/fiscoach/internal/transaction/domain"
	userdomain "github.com/fiscoach/fiscoach/internal/user/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, userdomain.ErrInvalidToken):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, scope.ErrAccessDenied),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, bookingdomain.ErrReservationTimeout):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "reservation_timeout",
			Message: "reservation timed out, retry",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		// scope.ErrContextNotEstablished lands here on purpose: a handler
		// reached a scoped store without binding the actor first, which is a
		// server bug rather than a client error.
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case errors.Is(err, organizationdomain.ErrInvalidName),
		errors.Is(err, organizationdomain.ErrInvalidEmail),
		errors.Is(err, organizationdomain.ErrInvalidID):
		return true
	case errors.Is(err, userdomain.ErrInvalidEmail),
		errors.Is(err, userdomain.ErrInvalidRole),
		errors.Is(err, userdomain.ErrInvalidID):
		return true
	case errors.Is(err, employeedomain.ErrInvalidName),
		errors.Is(err, employeedomain.ErrInvalidUserID),
		errors.Is(err, employeedomain.ErrInvalidID):
		return true
	case errors.Is(err, accountdomain.ErrInvalidName),
		errors.Is(err, accountdomain.ErrInvalidKind),
		errors.Is(err, accountdomain.ErrInvalidID):
		return true
	case errors.Is(err, transactiondomain.ErrInvalidAccount),
		errors.Is(err, transactiondomain.ErrInvalidAmount),
		errors.Is(err, transactiondomain.ErrInvalidOccurred),
		errors.Is(err, transactiondomain.ErrInvalidID),
		errors.Is(err, transactiondomain.ErrEmptyBatch):
		return true
	case errors.Is(err, summarydomain.ErrInvalidMonth):
		return true
	case errors.Is(err, goaldomain.ErrInvalidName),
		errors.Is(err, goaldomain.ErrInvalidTarget),
		errors.Is(err, goaldomain.ErrInvalidStatus),
		errors.Is(err, goaldomain.ErrInvalidID):
		return true
	case errors.Is(err, coachdomain.ErrInvalidName),
		errors.Is(err, coachdomain.ErrInvalidEmail),
		errors.Is(err, coachdomain.ErrInvalidUserID),
		errors.Is(err, coachdomain.ErrInvalidID):
		return true
	case errors.Is(err, bookingdomain.ErrInvalidWindow),
		errors.Is(err, bookingdomain.ErrInvalidID):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, userdomain.ErrUserExists),
		errors.Is(err, organizationdomain.ErrSlugTaken),
		errors.Is(err, coachdomain.ErrCoachExists),
		errors.Is(err, bookingdomain.ErrSlotUnavailable),
		errors.Is(err, bookingdomain.ErrNotCancellable),
		errors.Is(err, bookingdomain.ErrNotCompletable):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, bookingdomain.ErrSlotUnavailable):
		return "slot is no longer available"
	case errors.Is(err, bookingdomain.ErrNotCancellable):
		return "reservation cannot be cancelled"
	case errors.Is(err, bookingdomain.ErrNotCompletable):
		return "reservation cannot be completed"
	default:
		return "conflict"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, organizationdomain.ErrNotFound),
		errors.Is(err, userdomain.ErrNotFound),
		errors.Is(err, employeedomain.ErrNotFound),
		errors.Is(err, accountdomain.ErrNotFound),
		errors.Is(err, transactiondomain.ErrNotFound),
		errors.Is(err, summarydomain.ErrNotFound),
		errors.Is(err, goaldomain.ErrNotFound),
		errors.Is(err, coachdomain.ErrNotFound),
		errors.Is(err, bookingdomain.ErrSlotNotFound),
		errors.Is(err, bookingdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "empty_batch":
		return "batch has no rows"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog feeds the request logger with a coarse error class so
// dashboards can split client mistakes from real failures without parsing
// messages.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if vErr := asValidationErrors(err); vErr != nil && len(vErr.Errors) > 0 {
		return "validation_error", vErr.Errors[0].Code
	}
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		if errors.Is(err, scope.ErrContextNotEstablished) {
			return payload.Type, "context_not_established"
		}
		return payload.Type, "internal"
	}
	return payload.Type, payload.Type
}
