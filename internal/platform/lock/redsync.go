// Package lock provides a Redis backed distributed mutex.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by a release whose lock already expired or was
// taken over.
var ErrNotHeld = errors.New("platform/lock: lock not held")

// Manager hands out single-attempt Redis locks.
type Manager struct {
	rs     *redsync.Redsync
	prefix string
}

// New builds a Manager on top of an existing Redis client.
func New(client redis.UniversalClient, prefix string) *Manager {
	return &Manager{rs: redsync.New(goredis.NewPool(client)), prefix: prefix}
}

// TryLock attempts the lock once. Contention returns ok=false and no error.
func (m *Manager) TryLock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	if strings.TrimSpace(name) == "" {
		return nil, false, errors.New("platform/lock: empty lock name")
	}
	mutex := m.rs.NewMutex(m.prefix+name, redsync.WithExpiry(ttl), redsync.WithTries(1))
	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("platform/lock: acquire %s: %w", name, err)
	}
	release := func(ctx context.Context) error {
		ok, err := mutex.UnlockContext(ctx)
		if err != nil {
			return fmt.Errorf("platform/lock: release %s: %w", name, err)
		}
		if !ok {
			return ErrNotHeld
		}
		return nil
	}
	return release, true, nil
}
