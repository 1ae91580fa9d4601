package cache

import (
	"context"
	"sync"
	"time"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/ports"
)

// MemoryRunLock is a process-local run lock for single-instance deployments
type MemoryRunLock struct {
	mu    sync.Mutex
	held  map[string]time.Time // key -> expiry
	owner map[string]uint64
	seq   uint64
	now   func() time.Time
}

// NewMemoryRunLock creates an empty lock table
func NewMemoryRunLock() *MemoryRunLock {
	return &MemoryRunLock{
		held:  make(map[string]time.Time),
		owner: make(map[string]uint64),
		now:   time.Now,
	}
}

var _ ports.RunLock = (*MemoryRunLock)(nil)

func (l *MemoryRunLock) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if expiry, ok := l.held[key]; ok && l.now().Before(expiry) {
		return nil, domain.ErrRunInProgress
	}
	l.seq++
	id := l.seq
	l.held[key] = l.now().Add(ttl)
	l.owner[key] = id

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.owner[key] == id {
			delete(l.held, key)
			delete(l.owner, key)
		}
		return nil
	}, nil
}
