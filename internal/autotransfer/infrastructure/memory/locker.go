package memory

import (
	"context"
	"sync"
	"time"

	autotransfer "rentflow-cloud/internal/autotransfer/domain"
)

// Locker is a process-local per-key lock with expiry.
type Locker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	nowFn func() time.Time
}

// NewLocker constructs a Locker.
func NewLocker() *Locker {
	return &Locker{held: make(map[string]time.Time), nowFn: time.Now}
}

// Lock acquires key or returns autotransfer.ErrContractBusy.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowFn()
	if expires, ok := l.held[key]; ok && now.Before(expires) {
		return nil, autotransfer.ErrContractBusy
	}
	expires := now.Add(ttl)
	l.held[key] = expires
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(expires) {
			delete(l.held, key)
		}
	}, nil
}
