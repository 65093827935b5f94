package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "ledger:"), mr
}

func TestTryLockContention(t *testing.T) {
	ctx := context.Background()
	m, mr := newManager(t)

	release, ok, err := m.TryLock(ctx, "recurrence", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, mr.Exists("ledger:recurrence"))

	_, ok, err = m.TryLock(ctx, "recurrence", time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "second holder must be refused without error")

	require.NoError(t, release(ctx))
	require.False(t, mr.Exists("ledger:recurrence"))

	release, ok, err = m.TryLock(ctx, "recurrence", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, release(ctx))
}

func TestReleaseAfterExpiry(t *testing.T) {
	ctx := context.Background()
	m, mr := newManager(t)

	release, ok, err := m.TryLock(ctx, "budget", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	mr.FastForward(2 * time.Second)

	require.Error(t, release(ctx), "an expired lock cannot be released")
}

func TestTryLockRejectsEmptyName(t *testing.T) {
	m, _ := newManager(t)
	_, _, err := m.TryLock(context.Background(), " ", time.Second)
	require.Error(t, err)
}
