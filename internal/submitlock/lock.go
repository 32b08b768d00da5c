// Package submitlock serializes submissions of the same fiscal document
// across instances. The lock is advisory; the conditional state update in the
// invoice store remains the authoritative guard against double submission.
package submitlock

import (
	"context"
	"time"

	"github.com/arandulabs/kuatia/internal/config"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "kuatia:submit:"
	defaultTTL = 2 * time.Minute
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker takes a short-lived per-CDC lock via SetNX. A nil Locker is valid
// and grants every acquisition, for deployments without redis.
type Locker struct {
	client *redis.Client
	script *redis.Script
}

func NewLocker(cfg config.Config) *Locker {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	return NewLockerWithClient(client)
}

func NewLockerWithClient(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(releaseScript),
	}
}

// Acquire attempts to take the lock for a control code. The returned token
// must be passed back to Release; an empty ok means another instance holds
// the lock.
func (l *Locker) Acquire(ctx context.Context, cdc string) (token string, ok bool, err error) {
	if l == nil || l.client == nil {
		return "", true, nil
	}
	if cdc == "" {
		return "", false, nil
	}

	token = uuid.NewString()
	ok, err = l.client.SetNX(ctx, keyPrefix+cdc, token, defaultTTL).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release frees the lock if this holder still owns it. Releasing an expired
// or stolen lock is a no-op.
func (l *Locker) Release(ctx context.Context, cdc, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if cdc == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{keyPrefix + cdc}, token).Err()
}
