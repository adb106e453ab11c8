package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout возвращается, если ключ не удалось захватить за отведённое время.
var ErrLockTimeout = errors.New("lock wait timeout")

// Снятие блокировки выполняется, только если ключ всё ещё принадлежит владельцу.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis реализует Locker поверх SET NX с ограниченным временем жизни ключа.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
	wait   time.Duration
}

// NewRedis создаёт распределённый блокировщик.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		prefix: "tableside:lock:",
		ttl:    ttl,
		retry:  25 * time.Millisecond,
		wait:   5 * time.Second,
	}
}

// Lock захватывает ключ, повторяя попытки до таймаута ожидания или отмены контекста.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := r.prefix + key
	token := uuid.NewString()

	deadline := time.NewTimer(r.wait)
	defer deadline.Stop()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = unlockScript.Run(ctx, r.client, []string{redisKey}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("acquire lock %s: %w", key, ErrLockTimeout)
		case <-time.After(r.retry):
		}
	}
}
