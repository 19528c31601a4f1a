package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisLockerExclusive(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	locker := NewRedisLocker(client, time.Minute, 0)
	release, err := locker.Acquire(ctx, "settlement:PAYABLE_AGENCY:2024-01:A:lock")
	require.NoError(t, err)
	require.True(t, mr.Exists("settlement:PAYABLE_AGENCY:2024-01:A:lock"))

	_, err = locker.Acquire(ctx, "settlement:PAYABLE_AGENCY:2024-01:A:lock")
	require.ErrorIs(t, err, ErrKeyLocked)

	other, err := locker.Acquire(ctx, "settlement:PAYABLE_AGENCY:2024-01:B:lock")
	require.NoError(t, err)
	other()

	release()
	require.False(t, mr.Exists("settlement:PAYABLE_AGENCY:2024-01:A:lock"))

	again, err := locker.Acquire(ctx, "settlement:PAYABLE_AGENCY:2024-01:A:lock")
	require.NoError(t, err)
	again()
}

func TestRedisLockerReleaseKeepsForeignClaim(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	locker := NewRedisLocker(client, time.Second, 0)
	release, err := locker.Acquire(ctx, "k")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("k", "someone-else"))

	release()
	got, err := mr.Get("k")
	require.NoError(t, err)
	require.Equal(t, "someone-else", got)
}

func TestRedisLockerWaitsForRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	locker := NewRedisLocker(client, time.Minute, 2*time.Second)
	release, err := locker.Acquire(ctx, "k")
	require.NoError(t, err)
	go func() {
		time.Sleep(100 * time.Millisecond)
		release()
	}()

	second, err := locker.Acquire(ctx, "k")
	require.NoError(t, err)
	second()
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker(0)

	release, err := locker.Acquire(ctx, "k")
	require.NoError(t, err)
	_, err = locker.Acquire(ctx, "k")
	require.ErrorIs(t, err, ErrKeyLocked)
	release()

	waiting := NewLocalLocker(50 * time.Millisecond)
	hold, err := waiting.Acquire(ctx, "k")
	require.NoError(t, err)
	_, err = waiting.Acquire(ctx, "k")
	require.ErrorIs(t, err, ErrKeyLocked)
	hold()

	slow := NewLocalLocker(time.Minute)
	hold, err = slow.Acquire(ctx, "k")
	require.NoError(t, err)
	defer hold()
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = slow.Acquire(cancelled, "k")
	require.ErrorIs(t, err, context.Canceled)
}
