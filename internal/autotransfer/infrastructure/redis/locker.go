package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	autotransfer "rentflow-cloud/internal/autotransfer/domain"
)

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker is a per-key lock backed by SET NX PX, shared across instances.
type Locker struct {
	client goredis.UniversalClient
	prefix string
}

// NewLocker constructs a Redis locker.
func NewLocker(client goredis.UniversalClient, prefix string) (*Locker, error) {
	if client == nil {
		return nil, errors.New("redis locker: nil client")
	}
	return &Locker{client: client, prefix: prefix}, nil
}

// Lock acquires key for ttl or returns autotransfer.ErrContractBusy.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l == nil || l.client == nil {
		return nil, errors.New("redis locker: nil client")
	}
	fullKey := l.prefix + key
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, autotransfer.ErrContractBusy
	}
	return func() {
		// The caller's context may already be done; release must still run.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{fullKey}, token).Err()
	}, nil
}
