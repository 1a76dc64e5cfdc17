// internal/guard/guard.go
package guard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited means a reset for this tenant ran inside the cooldown
// window; even a fresh, valid confirmation token does not override it.
var ErrRateLimited = errors.New("tenant is in reset cooldown")

// CooldownStore records per-tenant cooldown marks. Acquire must be atomic:
// it checks and sets the mark in one step so two racing executes cannot
// both pass.
type CooldownStore interface {
	Acquire(ctx context.Context, tenantID string, window time.Duration) (bool, error)
}

// Guard is the blunt circuit breaker in front of the executor. It fires on
// attempted executions, not only successful ones, and never limits previews.
type Guard struct {
	store  CooldownStore
	window time.Duration
}

func New(store CooldownStore, window time.Duration) *Guard {
	return &Guard{store: store, window: window}
}

// Allow acquires the tenant's cooldown slot or fails with ErrRateLimited.
func (g *Guard) Allow(ctx context.Context, tenantID string) error {
	ok, err := g.store.Acquire(ctx, tenantID, g.window)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}

// MemoryCooldownStore is the in-process implementation.
type MemoryCooldownStore struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func NewMemoryCooldownStore() *MemoryCooldownStore {
	return &MemoryCooldownStore{last: map[string]time.Time{}, now: time.Now}
}

func (m *MemoryCooldownStore) Acquire(ctx context.Context, tenantID string, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if at, ok := m.last[tenantID]; ok && now.Sub(at) < window {
		return false, nil
	}
	m.last[tenantID] = now
	return true, nil
}

// RedisCooldownStore shares the cooldown across controller instances.
type RedisCooldownStore struct {
	rdb *redis.Client
}

func NewRedisCooldownStore(rdb *redis.Client) *RedisCooldownStore {
	return &RedisCooldownStore{rdb: rdb}
}

func (r *RedisCooldownStore) Acquire(ctx context.Context, tenantID string, window time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, "resetctl:cooldown:"+tenantID, time.Now().UTC().Format(time.RFC3339), window).Result()
}
