package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vndeals/backend/internal/models"
	"github.com/vndeals/backend/pkg/random"
)

const tokenBytes = 32 // 256-bit tokens, 64 hex chars

// Session is an in-memory authenticated session. The user snapshot is frozen
// at login time.
type Session struct {
	Token        string
	UserID       string
	User         models.UserData
	CreatedAt    time.Time
	LastAccessAt time.Time
	ExpiresAt    time.Time
}

// Registry maps tokens to sessions with sliding expiry. A session is valid
// strictly before its expiry; reads close to expiry extend it.
type Registry struct {
	mu               sync.Mutex
	sessions         map[string]*Session
	timeout          time.Duration
	refreshThreshold time.Duration
	logger           *slog.Logger
	now              func() time.Time
}

type Config struct {
	Timeout          time.Duration
	RefreshThreshold time.Duration
}

func NewRegistry(cfg Config, logger *slog.Logger) *Registry {
	return &Registry{
		sessions:         make(map[string]*Session),
		timeout:          cfg.Timeout,
		refreshThreshold: cfg.RefreshThreshold,
		logger:           logger,
		now:              time.Now,
	}
}

// Create allocates a fresh random token and stores a new session.
func (r *Registry) Create(userID string, user models.UserData) (string, error) {
	token, err := random.Hex(tokenBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sessions[token] = &Session{
		Token:        token,
		UserID:       userID,
		User:         user,
		CreatedAt:    now,
		LastAccessAt: now,
		ExpiresAt:    now.Add(r.timeout),
	}
	return token, nil
}

// Get looks up a session by token. Expired entries are evicted and reported
// absent. When autoRefresh is set and the remaining lifetime has dropped
// below the refresh threshold, expiry slides forward by the full timeout.
func (r *Registry) Get(token string, autoRefresh bool) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok {
		return Session{}, false
	}

	now := r.now()
	if !now.Before(s.ExpiresAt) {
		delete(r.sessions, token)
		return Session{}, false
	}

	if autoRefresh && s.ExpiresAt.Sub(now) < r.refreshThreshold {
		s.ExpiresAt = now.Add(r.timeout)
	}
	s.LastAccessAt = now

	return *s, true
}

// Delete removes a session. Missing tokens are a no-op.
func (r *Registry) Delete(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, token)
}

// Sweep evicts expired sessions and returns the number removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for token, s := range r.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(r.sessions, token)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Info("session sweep completed", slog.Int("removed", removed))
	}
	return removed
}

// Len returns the number of live entries, expired or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// SetClock overrides the time source. Test hook.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}
