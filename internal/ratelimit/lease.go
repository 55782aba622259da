package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Release compares the stored token before deleting, so a holder whose
// lease expired mid-flight never removes a successor's lock.
const leaseReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Lease is a held advisory lock. The token proves ownership on release.
type Lease struct {
	Key   string
	Token string
}

// LeaseLocker hands out expiring advisory locks backed by redis SET NX.
// The TTL bounds how long a crashed holder can wedge the key.
type LeaseLocker struct {
	client  *redis.Client
	release *redis.Script
}

func NewLeaseLocker(client *redis.Client) *LeaseLocker {
	if client == nil {
		return nil
	}
	return &LeaseLocker{
		client:  client,
		release: redis.NewScript(leaseReleaseScript),
	}
}

// Acquire takes the lease when nobody holds it. A held lease reports
// ok=false without error.
func (l *LeaseLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	if l == nil || l.client == nil {
		return Lease{}, false, errors.New("lease client not configured")
	}
	if key == "" {
		return Lease{}, false, errors.New("lease key is empty")
	}
	if ttl <= 0 {
		return Lease{}, false, errors.New("lease ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return Lease{}, false, err
	}
	if !ok {
		return Lease{}, false, nil
	}
	return Lease{Key: key, Token: token}, true, nil
}

func (l *LeaseLocker) Release(ctx context.Context, lease Lease) error {
	if l == nil || l.client == nil {
		return nil
	}
	if lease.Key == "" || lease.Token == "" {
		return nil
	}
	return l.release.Run(ctx, l.client, []string{lease.Key}, lease.Token).Err()
}
