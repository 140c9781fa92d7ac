package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSerializesHolders(t *testing.T) {
	locker := NewLocal()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "doc")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			assert.NoError(t, unlock(context.Background()))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestLocalHonorsContext(t *testing.T) {
	locker := NewLocal()
	unlock, err := locker.Lock(context.Background(), "doc")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "doc")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := locker.Lock(context.Background(), "other")
	require.NoError(t, err, "distinct keys must not contend")
	require.NoError(t, other(context.Background()))

	require.NoError(t, unlock(context.Background()))
	assert.ErrorIs(t, unlock(context.Background()), ErrNotHeld)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker, err := NewRedis(client, WithTTL(time.Second), WithRetryInterval(5*time.Millisecond))
	require.NoError(t, err)
	return mr, locker
}

func TestRedisLockAndRelease(t *testing.T) {
	mr, locker := newTestRedis(t)

	unlock, err := locker.Lock(context.Background(), "newsletter")
	require.NoError(t, err)
	assert.True(t, mr.Exists(defaultRedisKeyPrefix+"newsletter"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "newsletter")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock(context.Background()))
	assert.False(t, mr.Exists(defaultRedisKeyPrefix+"newsletter"))

	again, err := locker.Lock(context.Background(), "newsletter")
	require.NoError(t, err)
	require.NoError(t, again(context.Background()))
}

func TestRedisReleaseAfterExpiry(t *testing.T) {
	mr, locker := newTestRedis(t)

	unlock, err := locker.Lock(context.Background(), "newsletter")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	other, err := locker.Lock(context.Background(), "newsletter")
	require.NoError(t, err)

	assert.ErrorIs(t, unlock(context.Background()), ErrNotHeld, "stale holder must not delete the new holder's key")
	require.NoError(t, other(context.Background()))
}

func TestChainReleasesInReverse(t *testing.T) {
	_, redisLocker := newTestRedis(t)
	chain := Chain{NewLocal(), redisLocker}

	unlock, err := chain.Lock(context.Background(), "doc")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = chain.Lock(ctx, "doc")
	require.Error(t, err)

	require.NoError(t, unlock(context.Background()))
	unlock, err = chain.Lock(context.Background(), "doc")
	require.NoError(t, err)
	require.NoError(t, unlock(context.Background()))
}

func TestNewRedisRequiresClient(t *testing.T) {
	_, err := NewRedis(nil)
	require.Error(t, err)
}

func TestRedisKeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	custom, err := NewRedis(client, WithKeyPrefix("club-a:"))
	require.NoError(t, err)
	unlock, err := custom.Lock(context.Background(), "newsletter")
	require.NoError(t, err)
	assert.Equal(t, []string{"club-a:newsletter"}, mr.Keys())
	require.NoError(t, unlock(context.Background()))

	blank, err := NewRedis(client, WithKeyPrefix("  "))
	require.NoError(t, err)
	unlock, err = blank.Lock(context.Background(), "newsletter")
	require.NoError(t, err)
	assert.True(t, mr.Exists(defaultRedisKeyPrefix+"newsletter"))
	require.NoError(t, unlock(context.Background()))
}
