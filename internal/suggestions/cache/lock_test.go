package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T) (*MergeLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewMergeLock(client, 30*time.Second), mr
}

func TestMergeLock_SingleOwner(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLock(t)

	ok, err := l.Acquire(ctx, 7, "admin-a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, mr.TTL(mergeLockKey(7)))

	ok, err = l.Acquire(ctx, 7, "admin-b")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Acquire(ctx, 8, "admin-b")
	require.NoError(t, err)
	assert.True(t, ok, "locks are per source suggestion")
}

func TestMergeLock_ReleaseOnlyByOwner(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLock(t)

	_, err := l.Acquire(ctx, 7, "admin-a")
	require.NoError(t, err)

	require.NoError(t, l.Release(ctx, 7, "admin-b"))
	assert.True(t, mr.Exists(mergeLockKey(7)))

	require.NoError(t, l.Release(ctx, 7, "admin-a"))
	assert.False(t, mr.Exists(mergeLockKey(7)))

	require.NoError(t, l.Release(ctx, 7, "admin-a"))
}

func TestMergeLock_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLock(t)

	_, err := l.Acquire(ctx, 7, "admin-a")
	require.NoError(t, err)
	mr.FastForward(31 * time.Second)

	ok, err := l.Acquire(ctx, 7, "admin-b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMergeLock_Concurrent(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLock(t)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := l.Acquire(ctx, 7, string(rune('a'+i)))
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}
