// Package pending holds each principal's unpaid booking intent between
// submission and settlement.
package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/model"
)

// Store keeps at most one intent per principal. Put overwrites; Get on an
// expired or absent intent returns ok=false without an error.
type Store interface {
	Put(ctx context.Context, principalID string, intent model.PendingBooking) error
	Get(ctx context.Context, principalID string) (model.PendingBooking, bool, error)
	Clear(ctx context.Context, principalID string) error
}

const DefaultTTL = 30 * time.Minute

type RedisStore struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl, prefix: "booking:pending:"}
}

func (s *RedisStore) key(principalID string) string {
	return s.prefix + principalID
}

func (s *RedisStore) Put(ctx context.Context, principalID string, intent model.PendingBooking) error {
	raw, err := json.Marshal(intent)
	if err != nil {
		return err
	}
	// SET with an expiry replaces value and TTL in one command.
	if err := s.rdb.Set(ctx, s.key(principalID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("pending put: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, principalID string) (model.PendingBooking, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(principalID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.PendingBooking{}, false, nil
		}
		return model.PendingBooking{}, false, fmt.Errorf("pending get: %w", err)
	}
	var intent model.PendingBooking
	if err := json.Unmarshal(raw, &intent); err != nil {
		return model.PendingBooking{}, false, fmt.Errorf("pending decode: %w", err)
	}
	return intent, true, nil
}

func (s *RedisStore) Clear(ctx context.Context, principalID string) error {
	if err := s.rdb.Del(ctx, s.key(principalID)).Err(); err != nil {
		return fmt.Errorf("pending clear: %w", err)
	}
	return nil
}

// MemoryStore is the single-instance fallback used when no Redis is configured.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	intent    model.PendingBooking
	expiresAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, entries: map[string]memoryEntry{}}
}

func (s *MemoryStore) Put(_ context.Context, principalID string, intent model.PendingBooking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.evictLocked(now)
	s.entries[principalID] = memoryEntry{intent: intent, expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, principalID string) (model.PendingBooking, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[principalID]
	if !ok {
		return model.PendingBooking{}, false, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, principalID)
		return model.PendingBooking{}, false, nil
	}
	return e.intent, true, nil
}

func (s *MemoryStore) Clear(_ context.Context, principalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, principalID)
	return nil
}

func (s *MemoryStore) evictLocked(now time.Time) {
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
