package services

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/vndeals/backend/internal/models"
	"github.com/vndeals/backend/internal/repositories"
)

// LockoutRepository defines the persistence operations the lockout service
// needs. The store evaluates every timestamp comparison in UTC.
type LockoutRepository interface {
	GetLockState(ctx context.Context, id string) (*repositories.LockState, error)
	ClearExpiredLock(ctx context.Context, id string) (bool, error)
	IncrementFailedAttempts(ctx context.Context, id string, maxAttempts, lockMinutes int) (*repositories.LockState, error)
	ClearLockout(ctx context.Context, id string) error
}

// LockoutConfig holds the lockout thresholds.
type LockoutConfig struct {
	MaxAttempts     int
	LockoutDuration time.Duration
}

// LockStatus is the answer to "is this account locked right now".
type LockStatus struct {
	IsLocked         bool
	LockedUntil      *time.Time
	RemainingMinutes int
	Attempts         int
}

// LockoutService tracks failed login attempts against the admin store.
// Store failures fall through as "not locked": a database outage must not
// lock every admin out of the panel.
type LockoutService struct {
	repo   LockoutRepository
	config LockoutConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewLockoutService(repo LockoutRepository, config LockoutConfig, logger *slog.Logger) *LockoutService {
	return &LockoutService{
		repo:   repo,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// CheckLocked reports the lock state for an account. A lock that has
// already expired is cleared on read so stale locked_until values never
// linger.
func (s *LockoutService) CheckLocked(ctx context.Context, userID string) LockStatus {
	st, err := s.repo.GetLockState(ctx, userID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to read lock state", slog.Any("error", err), slog.String("user_id", userID))
		}
		return LockStatus{}
	}

	if st.Locked {
		return LockStatus{
			IsLocked:         true,
			LockedUntil:      st.LockedUntil,
			RemainingMinutes: s.remainingMinutes(st.LockedUntil),
			Attempts:         st.FailedLoginAttempts,
		}
	}

	if st.LockedUntil != nil {
		if _, err := s.repo.ClearExpiredLock(ctx, userID); err != nil {
			s.logger.Error("failed to clear expired lock", slog.Any("error", err), slog.String("user_id", userID))
		}
	}

	return LockStatus{Attempts: st.FailedLoginAttempts}
}

// RegisterFailure records one failed login attempt. When the increment
// does not apply because the account is locked right now, the standing lock
// is returned unchanged: repeated attempts never extend a lock.
func (s *LockoutService) RegisterFailure(ctx context.Context, userID string) LockStatus {
	lockMinutes := int(s.config.LockoutDuration.Minutes())
	st, err := s.repo.IncrementFailedAttempts(ctx, userID, s.config.MaxAttempts, lockMinutes)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Either the account is actively locked or it vanished; the
			// re-read distinguishes the two.
			return s.CheckLocked(ctx, userID)
		}
		s.logger.Error("failed to record login failure", slog.Any("error", err), slog.String("user_id", userID))
		return LockStatus{}
	}

	status := LockStatus{
		IsLocked:    st.Locked,
		LockedUntil: st.LockedUntil,
		Attempts:    st.FailedLoginAttempts,
	}
	if st.Locked {
		status.RemainingMinutes = s.remainingMinutes(st.LockedUntil)
		s.logger.Warn("account locked after repeated failures",
			slog.String("user_id", userID),
			slog.Int("attempts", st.FailedLoginAttempts),
		)
	}
	return status
}

// Clear resets the counter and lifts any lock. Called on successful login
// and by admin unlock.
func (s *LockoutService) Clear(ctx context.Context, userID string) error {
	if err := s.repo.ClearLockout(ctx, userID); err != nil {
		s.logger.Error("failed to clear lockout", slog.Any("error", err), slog.String("user_id", userID))
		return err
	}
	return nil
}

// RemainingAttempts reports how many failures are left before a lock.
func (s *LockoutService) RemainingAttempts(attempts int) int {
	remaining := s.config.MaxAttempts - attempts
	if remaining < 0 {
		return 0
	}
	return remaining
}

// MaxAttempts exposes the configured threshold for response payloads.
func (s *LockoutService) MaxAttempts() int {
	return s.config.MaxAttempts
}

func (s *LockoutService) remainingMinutes(until *time.Time) int {
	if until == nil {
		return 0
	}
	mins := math.Ceil(until.Sub(s.now().UTC()).Minutes())
	if mins < 0 {
		return 0
	}
	return int(mins)
}

// SetClock overrides the time source. Test hook.
func (s *LockoutService) SetClock(now func() time.Time) {
	s.now = now
}
