package meeting

import (
	"context"
	"time"
)

// Window is the appointment window a meeting link is allocated for.
type Window struct {
	Start time.Time
	End   time.Time
}

// Provider allocates a meeting link for a booked appointment. Callers treat
// allocation failure as non-fatal and fall back to a placeholder reference.
type Provider interface {
	AllocateLink(ctx context.Context, coachEmail, employeeEmail string, window Window) (string, error)
}

// NoOpProvider returns an empty ref without calling anywhere. Used in tests
// and when no meeting API is configured.
type NoOpProvider struct{}

func (p *NoOpProvider) AllocateLink(ctx context.Context, coachEmail, employeeEmail string, window Window) (string, error) {
	return "", nil
}
