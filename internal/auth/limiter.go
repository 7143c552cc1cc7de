package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginLimiter считает неудачные попытки входа по ключу (телефон + IP).
type LoginLimiter interface {
	Blocked(ctx context.Context, key string) (bool, error)
	Fail(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// MemoryLimiter — счётчики в памяти процесса; подходит для одного экземпляра.
type MemoryLimiter struct {
	mu     sync.Mutex
	byKey  map[string]*attempts
	limit  int
	window time.Duration
	now    func() time.Time
}

type attempts struct {
	count   int
	expires time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{byKey: make(map[string]*attempts), limit: limit, window: window, now: time.Now}
}

func (l *MemoryLimiter) entry(key string) *attempts {
	a, ok := l.byKey[key]
	if ok && l.now().After(a.expires) {
		delete(l.byKey, key)
		return nil
	}
	return a
}

func (l *MemoryLimiter) Blocked(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.entry(key)
	return a != nil && a.count >= l.limit, nil
}

func (l *MemoryLimiter) Fail(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.entry(key)
	if a == nil {
		a = &attempts{expires: l.now().Add(l.window)}
		l.byKey[key] = a
	}
	a.count++
	return nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.byKey, key)
	l.mu.Unlock()
	return nil
}

// RedisLimiter хранит счётчики в Redis (INCR + EXPIRE), общие для всех экземпляров.
type RedisLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	prefix string
}

func NewRedisLimiter(rdb *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limit: limit, window: window, prefix: "attendance:login:"}
}

func (l *RedisLimiter) Blocked(ctx context.Context, key string) (bool, error) {
	n, err := l.rdb.Get(ctx, l.prefix+key).Int()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get: %w", err)
	}
	return n >= l.limit, nil
}

func (l *RedisLimiter) Fail(ctx context.Context, key string) error {
	k := l.prefix + key
	n, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("redis incr: %w", err)
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, k, l.window).Err(); err != nil {
			return fmt.Errorf("redis expire: %w", err)
		}
	}
	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.rdb.Del(ctx, l.prefix+key).Err()
}

// NewRedisClient — клиент go-redis с проверкой соединения.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
