// Package idempotency guards external payment references. A bank may deliver
// the same notification several times, through different import runs; the
// first delivery claims the reference and later ones are refused.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/gobd-ledger/pkg/redis"
)

var (
	errScopeRequired = errors.New("scope is required")
	errKeyRequired   = errors.New("idempotency key is required")
)

// Manager claims caller supplied keys per scope using Redis SETNX with a TTL.
// The stored value is the claim time.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

// NewManager builds a guard that holds claims for ttl; zero keeps them forever.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// Claim returns true if key was already claimed in scope and otherwise claims
// it with the configured TTL.
func (m *Manager) Claim(ctx context.Context, scope, key string) (bool, error) {
	full, err := m.key(scope, key)
	if err != nil {
		return false, err
	}
	set, err := m.store.SetNX(ctx, full, m.now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", full, err)
	}
	return !set, nil
}

// FirstSeen returns when key was claimed. The zero time is returned when no
// claim exists or it predates timestamped claims.
func (m *Manager) FirstSeen(ctx context.Context, scope, key string) (time.Time, error) {
	full, err := m.key(scope, key)
	if err != nil {
		return time.Time{}, err
	}
	raw, err := m.store.Get(ctx, full)
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read claim %s: %w", full, err)
	}
	seen, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, nil
	}
	return seen, nil
}

// Release drops a claim so that a failed operation can be retried.
func (m *Manager) Release(ctx context.Context, scope, key string) error {
	full, err := m.key(scope, key)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, full)
}

// Normalize folds a bank reference to the form claims are keyed by: inner
// whitespace removed and letters upper-cased, so "sepa 2026-01" and
// "SEPA2026-01" are one notification.
func Normalize(key string) string {
	return strings.ToUpper(strings.Join(strings.Fields(key), ""))
}

func (m *Manager) key(scope, key string) (string, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return "", errScopeRequired
	}
	key = Normalize(key)
	if key == "" {
		return "", errKeyRequired
	}
	return m.store.IdempotencyKey(scope, key), nil
}
