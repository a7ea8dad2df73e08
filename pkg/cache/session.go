package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenSet records entity keys already promoted for one caller session. It is
// caller-scoped and passed by reference into Promote, so its lifecycle is
// tied to the session rather than the process. Entries expire with the
// promotion TTL: a fresh entry suppresses re-promotion, a lapsed one does
// not.
type SeenSet interface {
	// Fresh reports whether the key was promoted within the TTL window.
	Fresh(ctx context.Context, key string) (bool, error)

	// Mark records the key as promoted now.
	Mark(ctx context.Context, key string) error

	// Forget drops the key, forcing the next promotion through.
	Forget(ctx context.Context, key string) error
}

// MemorySeenSet keeps promotion timestamps in process memory.
type MemorySeenSet struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemorySeenSet creates a seen-set with the given freshness window.
func NewMemorySeenSet(ttl time.Duration) *MemorySeenSet {
	return &MemorySeenSet{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *MemorySeenSet) Fresh(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if s.now().Sub(at) >= s.ttl {
		delete(s.entries, key)
		return false, nil
	}
	return true, nil
}

func (s *MemorySeenSet) Mark(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = s.now()
	return nil
}

func (s *MemorySeenSet) Forget(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// keyPrefixSeen namespaces seen-set entries per session in Redis.
const keyPrefixSeen = "engram:seen:"

// RedisSeenSet keeps the session's seen keys in Redis with native key
// expiry, so freshness survives process restarts and is shared between
// replicas serving the same session.
type RedisSeenSet struct {
	client    *redis.Client
	sessionID string
	ttl       time.Duration
}

// NewRedisSeenSet creates a Redis-backed seen-set scoped to sessionID.
func NewRedisSeenSet(client *redis.Client, sessionID string, ttl time.Duration) *RedisSeenSet {
	return &RedisSeenSet{client: client, sessionID: sessionID, ttl: ttl}
}

func (s *RedisSeenSet) key(entityKey string) string {
	return keyPrefixSeen + s.sessionID + ":" + entityKey
}

func (s *RedisSeenSet) Fresh(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("checking seen key %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisSeenSet) Mark(ctx context.Context, key string) error {
	if err := s.client.Set(ctx, s.key(key), "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("marking seen key %s: %w", key, err)
	}
	return nil
}

func (s *RedisSeenSet) Forget(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("forgetting seen key %s: %w", key, err)
	}
	return nil
}

var (
	_ SeenSet = (*MemorySeenSet)(nil)
	_ SeenSet = (*RedisSeenSet)(nil)
)
