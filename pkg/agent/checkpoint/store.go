// Package checkpoint persists agent state between node transitions so an
// interrupted conversation resumes on the next message of the same thread.
package checkpoint

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Store is the durable key-value interface. Keys are thread ids (the inbound
// handle by default); values are opaque serialized agent state.
type Store interface {
	Put(ctx context.Context, threadID string, state []byte) error
	Get(ctx context.Context, threadID string) ([]byte, bool, error)
	Delete(ctx context.Context, threadID string) error
}

// MemoryStore is the in-process store used by tests and single-node runs.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Put stores a copy of the state bytes.
func (s *MemoryStore) Put(_ context.Context, threadID string, state []byte) error {
	copied := make([]byte, len(state))
	copy(copied, state)
	s.mu.Lock()
	s.data[threadID] = copied
	s.mu.Unlock()
	return nil
}

// Get returns the stored state, if any.
func (s *MemoryStore) Get(_ context.Context, threadID string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.data[threadID]
	return state, ok, nil
}

// Delete removes a thread's state.
func (s *MemoryStore) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	delete(s.data, threadID)
	s.mu.Unlock()
	return nil
}

const redisKeyPrefix = "gestor:checkpoint:"

// RedisStore persists checkpoints in Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store over an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisStoreFromURL parses a redis URL and connects.
func NewRedisStoreFromURL(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

// Put stores the state without expiry: conversations are long-lived.
func (s *RedisStore) Put(ctx context.Context, threadID string, state []byte) error {
	return s.client.Set(ctx, redisKeyPrefix+threadID, state, 0).Err()
}

// Get returns the stored state, if any.
func (s *RedisStore) Get(ctx context.Context, threadID string) ([]byte, bool, error) {
	state, err := s.client.Get(ctx, redisKeyPrefix+threadID).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return state, true, nil
}

// Delete removes a thread's state.
func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	return s.client.Del(ctx, redisKeyPrefix+threadID).Err()
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
