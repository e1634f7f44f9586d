package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Manager tracks every live session, enforces the concurrent session cap and
// mirrors session metadata into Redis when one is available.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	redis          *redis.Client
	logger         *zap.Logger
	maxSessions    int
	sessionTimeout time.Duration
}

func NewManager(redisClient *redis.Client, logger *zap.Logger, maxSessions int, sessionTimeout time.Duration) *Manager {
	return &Manager{
		sessions:       make(map[string]*Session),
		redis:          redisClient,
		logger:         logger,
		maxSessions:    maxSessions,
		sessionTimeout: sessionTimeout,
	}
}

// NewID mints a session identifier.
func NewID() string {
	return uuid.New().String()
}

// Register adds a session to the registry, rejecting it when the cap is hit.
func (sm *Manager) Register(ctx context.Context, s *Session) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= sm.maxSessions {
		return fmt.Errorf("maximum sessions reached (%d)", sm.maxSessions)
	}

	sm.sessions[s.ID] = s

	if sm.redis != nil {
		sm.redis.HSet(ctx, "session:"+s.ID, map[string]interface{}{
			"user_id":       s.User.UserID,
			"mode":          s.Mode,
			"created_at":    s.CreatedAt().Format(time.RFC3339),
			"last_activity": s.LastActivity().Format(time.RFC3339),
			"status":        "active",
		})
		sm.redis.SAdd(ctx, "active_sessions", s.ID)
		sm.redis.Expire(ctx, "session:"+s.ID, sm.sessionTimeout)
	}

	return nil
}

// Get retrieves a session by ID.
func (sm *Manager) Get(sessionID string) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	s, exists := sm.sessions[sessionID]
	return s, exists
}

// Remove stops a session and drops its registry and Redis entries. Removing
// an unknown ID is a no-op.
func (sm *Manager) Remove(ctx context.Context, sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s, exists := sm.sessions[sessionID]
	if !exists {
		return
	}

	s.Stop()
	delete(sm.sessions, sessionID)
	sm.dropMetadata(ctx, sessionID)
}

// ActiveCount returns the current number of registered sessions.
func (sm *Manager) ActiveCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// CleanupStale stops sessions whose last activity is past the timeout.
func (sm *Manager) CleanupStale(ctx context.Context) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	for id, s := range sm.sessions {
		if now.Sub(s.LastActivity()) > sm.sessionTimeout {
			sm.logger.Info("Stopping stale session",
				zap.String("session_id", id),
				zap.Time("last_activity", s.LastActivity()))
			s.Stop()
			delete(sm.sessions, id)
			sm.dropMetadata(ctx, id)
		}
	}
}

// StartCleanupRoutine sweeps for stale sessions once a minute until the
// context ends.
func (sm *Manager) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.CleanupStale(ctx)
		}
	}
}

// Shutdown stops every session and releases the Redis client.
func (sm *Manager) Shutdown() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ctx := context.Background()
	for id, s := range sm.sessions {
		s.Stop()
		delete(sm.sessions, id)
		sm.dropMetadata(ctx, id)
	}

	if sm.redis != nil {
		sm.redis.Close()
	}
}

func (sm *Manager) dropMetadata(ctx context.Context, sessionID string) {
	if sm.redis == nil {
		return
	}
	sm.redis.Del(ctx, "session:"+sessionID)
	sm.redis.SRem(ctx, "active_sessions", sessionID)
}
