package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// KV is the read-through cache used for caretaker relationship lookups.
// Values are JSON-encoded relationship lists.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Cache keys for a user's caretaker lookups. Every relationship write must
// synchronously clear both keys for both involved users.
func CaretakersKey(userID uint) string {
	return fmt.Sprintf("caretakers_%d", userID)
}

func CaretakingKey(userID uint) string {
	return fmt.Sprintf("caretaking_%d", userID)
}

type redisKV struct {
	client *redis.Client
}

func NewRedis(addr, password string, database int) KV {
	return &redisKV{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       database,
		}),
	}
}

func (r *redisKV) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := r.client.Get(ctx, key).Bytes()

	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}

	if err != nil {
		return nil, err
	}

	return raw, nil
}

func (r *redisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	return r.client.Del(ctx, keys...).Err()
}

type memoryItem struct {
	value   []byte
	expires time.Time // zero = no ttl
}

type memoryKV struct {
	mu   sync.Mutex
	data map[string]memoryItem
}

// NewMemory returns an in-process KV used when no Redis address is
// configured, and by tests.
func NewMemory() KV {
	return &memoryKV{data: make(map[string]memoryItem)}
}

func (m *memoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.data[key]
	if !ok {
		return nil, ErrMiss
	}

	if !item.expires.IsZero() && time.Now().After(item.expires) {
		delete(m.data, key)
		return nil, ErrMiss
	}

	value := make([]byte, len(item.value))
	copy(value, item.value)

	return value, nil
}

func (m *memoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	m.data[key] = memoryItem{value: stored, expires: expires}
	return nil
}

func (m *memoryKV) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.data, key)
	}

	return nil
}
