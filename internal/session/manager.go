package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aesop-bio/aesop/internal/circuitbreaker"
	"github.com/aesop-bio/aesop/internal/metrics"
)

const (
	// localCacheTTL bounds how long a local mirror entry is trusted
	// before Redis is consulted again.
	localCacheTTL = 30 * time.Second

	defaultMaxLocalSessions = 1000
)

// Manager stores session contexts in Redis behind a circuit breaker,
// with a small local mirror to absorb repeated reads within a turn.
type Manager struct {
	redis  *circuitbreaker.RedisWrapper
	logger *zap.Logger
	ttl    time.Duration

	mu          sync.RWMutex
	local       map[string]*Context
	localAccess map[string]time.Time
	maxLocal    int
}

// NewManager wraps the given Redis client. A zero ttl falls back to
// DefaultTTL.
func NewManager(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		redis:       circuitbreaker.NewRedisWrapper(client, "session-redis", "session", logger),
		logger:      logger,
		ttl:         ttl,
		local:       make(map[string]*Context),
		localAccess: make(map[string]time.Time),
		maxLocal:    defaultMaxLocalSessions,
	}
}

// Get loads a session. Reading a session slides its TTL. Returns
// ErrSessionNotFound when the key is absent or expired.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Context, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	if sctx := m.getLocal(sessionID); sctx != nil {
		metrics.SessionCacheHits.Inc()
		// Still slide the Redis TTL so local hits keep the session alive.
		if err := m.redis.Expire(ctx, Key(sessionID), m.ttl).Err(); err != nil {
			m.logger.Debug("Session TTL refresh failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		return sctx, nil
	}
	metrics.SessionCacheMisses.Inc()

	data, err := m.redis.Get(ctx, Key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}

	var sctx Context
	if err := json.Unmarshal([]byte(data), &sctx); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}

	if err := m.redis.Expire(ctx, Key(sessionID), m.ttl).Err(); err != nil {
		m.logger.Debug("Session TTL refresh failed", zap.String("session_id", sessionID), zap.Error(err))
	}

	m.putLocal(&sctx)
	return &sctx, nil
}

// Save persists a session, applying the summary and paper caps, and
// resets its TTL.
func (m *Manager) Save(ctx context.Context, sctx *Context) error {
	if sctx == nil || sctx.SessionID == "" {
		return fmt.Errorf("save session: missing session id")
	}

	now := time.Now().UTC()
	if sctx.CreatedAt.IsZero() {
		sctx.CreatedAt = now
		metrics.SessionsCreated.Inc()
	}
	sctx.UpdatedAt = now

	sctx.SynthesisSummary = truncateRunes(sctx.SynthesisSummary, MaxSummaryChars)
	if len(sctx.RetrievedPapers) > MaxCachedPapers {
		sctx.RetrievedPapers = sctx.RetrievedPapers[:MaxCachedPapers]
	}

	data, err := json.Marshal(sctx)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sctx.SessionID, err)
	}

	if err := m.redis.Set(ctx, Key(sctx.SessionID), data, m.ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", sctx.SessionID, err)
	}

	m.putLocal(sctx)
	return nil
}

// Touch slides the TTL without rewriting the payload. Missing sessions
// are not an error.
func (m *Manager) Touch(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := m.redis.Expire(ctx, Key(sessionID), m.ttl).Err(); err != nil {
		return fmt.Errorf("touch session %s: %w", sessionID, err)
	}
	return nil
}

// Delete removes a session. Deleting an absent session succeeds.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	m.mu.Lock()
	delete(m.local, sessionID)
	delete(m.localAccess, sessionID)
	metrics.SessionCacheSize.Set(float64(len(m.local)))
	m.mu.Unlock()

	if err := m.redis.Del(ctx, Key(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// Ping checks Redis connectivity for health reporting.
func (m *Manager) Ping(ctx context.Context) error {
	return m.redis.Ping(ctx).Err()
}

func (m *Manager) getLocal(sessionID string) *Context {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sctx, ok := m.local[sessionID]
	if !ok {
		return nil
	}
	if time.Since(m.localAccess[sessionID]) > localCacheTTL {
		return nil
	}
	return sctx
}

func (m *Manager) putLocal(sctx *Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.local) >= m.maxLocal {
		m.evictOldestLocked()
	}
	m.local[sctx.SessionID] = sctx
	m.localAccess[sctx.SessionID] = time.Now()
	metrics.SessionCacheSize.Set(float64(len(m.local)))
}

// evictOldestLocked drops the least recently touched local entry.
func (m *Manager) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, at := range m.localAccess {
		if oldestID == "" || at.Before(oldest) {
			oldestID = id
			oldest = at
		}
	}
	if oldestID != "" {
		delete(m.local, oldestID)
		delete(m.localAccess, oldestID)
		metrics.SessionCacheEvictions.Inc()
	}
}
