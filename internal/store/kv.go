package store

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ErrAbsent is returned by Load when nothing was saved under the key.
var ErrAbsent = errors.New("key absent")

// KV is the durable key-value collaborator used for snapshots.
type KV interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

// RedisKV stores values as plain Redis strings.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV wraps a redis client.
func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (k *RedisKV) Load(ctx context.Context, key string) ([]byte, error) {
	b, err := k.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrAbsent
	}
	return b, err
}

func (k *RedisKV) Save(ctx context.Context, key string, value []byte) error {
	return k.client.Set(ctx, key, value, 0).Err()
}

func (k *RedisKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return k.client.Del(ctx, keys...).Err()
}

// MemoryKV is a process-local KV for dev and tests.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV returns an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (k *MemoryKV) Load(_ context.Context, key string) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	v, ok := k.data[key]
	if !ok {
		return nil, ErrAbsent
	}
	return append([]byte(nil), v...), nil
}

func (k *MemoryKV) Save(_ context.Context, key string, value []byte) error {
	k.mu.Lock()
	k.data[key] = append([]byte(nil), value...)
	k.mu.Unlock()
	return nil
}

func (k *MemoryKV) Delete(_ context.Context, keys ...string) error {
	k.mu.Lock()
	for _, key := range keys {
		delete(k.data, key)
	}
	k.mu.Unlock()
	return nil
}
