package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only while it is still held by the caller's token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// LeaseClient is the subset of the Redis API a Lease needs. *redis.Client satisfies it.
type LeaseClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Lease is a best-effort mutual exclusion lock across replicas, backed by SET NX PX.
// The TTL bounds how long a crashed holder can block others.
type Lease struct {
	client LeaseClient
	key    string
	ttl    time.Duration
}

// NewLease builds a lease on name. The key is namespaced with KeyPrefix.
func NewLease(client LeaseClient, name string, ttl time.Duration) (*Lease, error) {
	if client == nil {
		return nil, errors.New("lease: client is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("lease: name is required")
	}
	if ttl <= 0 {
		return nil, errors.New("lease: ttl must be positive")
	}
	return &Lease{client: client, key: KeyPrefix + "lease:" + name, ttl: ttl}, nil
}

// Key returns the Redis key guarding this lease.
func (l *Lease) Key() string {
	return l.key
}

// TryAcquire attempts to take the lease. When acquired, release must be called
// to give it up early; otherwise it lapses after the TTL.
func (l *Lease) TryAcquire(ctx context.Context) (release func(context.Context) error, acquired bool, err error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lease: acquire %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func(ctx context.Context) error {
		if err := l.client.Eval(ctx, releaseScript, []string{l.key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("lease: release %s: %w", l.key, err)
		}
		return nil
	}
	return release, true, nil
}
