package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fiscoach/fiscoach/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyReserveActor = "booking:reserve:actor:%s"
	keyOutboxDrain  = "notification:outbox:drain"
)

// ReserveLimiter throttles booking attempts per actor. Lock contention on a
// hot slot is already bounded by the row lock; the limiter keeps one client
// from hammering the reserve endpoint.
type ReserveLimiter struct {
	enabled bool

	bucket *TokenBucket
	lease  *LeaseLocker

	rate    float64
	burst   int
	lockTTL time.Duration
}

func NewReserveLimiter(cfg config.Config) (*ReserveLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.ReserveRate <= 0 || limitCfg.ReserveBurst <= 0 {
		return nil, errors.New("reserve rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &ReserveLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		lease:   NewLeaseLocker(client),
		rate:    limitCfg.ReserveRate,
		burst:   limitCfg.ReserveBurst,
		lockTTL: 30 * time.Second,
	}, nil
}

func (l *ReserveLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowActor admits one reserve attempt for the actor, or reports how long
// to back off.
func (l *ReserveLimiter) AllowActor(ctx context.Context, actorID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyReserveActor, strings.TrimSpace(actorID)), l.rate, l.burst)
}

// AcquireDrainLease takes the cross-replica outbox drain lease. The outbox
// worker holds it for the span of one drain pass so the claimed rows are
// never re-claimed by a sibling replica while their sends are in flight.
// Disabled limiters always grant the lease; a single replica needs no fence.
func (l *ReserveLimiter) AcquireDrainLease(ctx context.Context) (Lease, bool, error) {
	if !l.Enabled() {
		return Lease{}, true, nil
	}
	return l.lease.Acquire(ctx, keyOutboxDrain, l.lockTTL)
}

// ReleaseDrainLease hands the drain lease back after a pass.
func (l *ReserveLimiter) ReleaseDrainLease(ctx context.Context, lease Lease) error {
	if !l.Enabled() {
		return nil
	}
	return l.lease.Release(ctx, lease)
}
