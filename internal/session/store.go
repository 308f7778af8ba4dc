package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linkstudio/affitrack/internal/models"
)

// Store holds per-session attribution context. The carrier is
// write-then-consume: Take returns the stored context and deletes it
// in one step, so a context feeds at most one click.
type Store interface {
	// Put stores ac under sessionID, replacing any previous value.
	Put(ctx context.Context, sessionID string, ac *models.AttributionContext) error
	// Take returns and deletes the context for sessionID, or nil
	// when none is stored (or it has expired).
	Take(ctx context.Context, sessionID string) (*models.AttributionContext, error)
}

// ===========================================
// REDIS STORE
// ===========================================

// RedisStore implements Store on Redis with per-key TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(sessionID string) string {
	return "session:attr:" + sessionID
}

func (s *RedisStore) Put(ctx context.Context, sessionID string, ac *models.AttributionContext) error {
	data, err := json.Marshal(ac)
	if err != nil {
		return fmt.Errorf("failed to marshal attribution context: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store attribution context: %w", err)
	}
	return nil
}

func (s *RedisStore) Take(ctx context.Context, sessionID string) (*models.AttributionContext, error) {
	data, err := s.client.GetDel(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take attribution context: %w", err)
	}
	var ac models.AttributionContext
	if err := json.Unmarshal(data, &ac); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attribution context: %w", err)
	}
	return &ac, nil
}

// ===========================================
// MEMORY STORE
// ===========================================

type memoryEntry struct {
	ac        models.AttributionContext
	expiresAt time.Time
}

// MemoryStore is an in-memory Store for development and testing.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Put(ctx context.Context, sessionID string, ac *models.AttributionContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionID] = memoryEntry{ac: *ac, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Take(ctx context.Context, sessionID string) (*models.AttributionContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sessionID]
	if !ok {
		return nil, nil
	}
	delete(s.entries, sessionID)
	if s.now().After(e.expiresAt) {
		return nil, nil
	}
	ac := e.ac
	return &ac, nil
}
