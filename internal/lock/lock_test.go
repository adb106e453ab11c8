package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseMutualExclusion(t *testing.T, l Locker) {
	t.Helper()

	var (
		wg      sync.WaitGroup
		inside  int32
		maxSeen int32
		counter int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "table:t1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			atomic.AddInt32(&counter, 1)
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
	assert.Equal(t, int32(20), atomic.LoadInt32(&counter))
}

func TestLocal_MutualExclusion(t *testing.T) {
	exerciseMutualExclusion(t, NewLocal())
}

func TestLocal_ContextCancel(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	_, err = l.Lock(context.Background(), "other")
	assert.NoError(t, err, "unrelated keys do not block each other")

	unlock()
	unlock()

	again, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedis_MutualExclusion(t *testing.T) {
	exerciseMutualExclusion(t, NewRedis(setupRedis(t), 5*time.Second))
}

func TestRedis_UnlockOnlyOwnKey(t *testing.T) {
	client := setupRedis(t)
	l := NewRedis(client, 5*time.Second)
	l.wait = 50 * time.Millisecond

	unlock, err := l.Lock(context.Background(), "settle:res-1")
	require.NoError(t, err)

	_, err = l.Lock(context.Background(), "settle:res-1")
	assert.True(t, errors.Is(err, ErrLockTimeout))

	require.NoError(t, client.Set(context.Background(), "tableside:lock:settle:res-1", "someone-else", 0).Err())
	unlock()

	val, err := client.Get(context.Background(), "tableside:lock:settle:res-1").Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}
