package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vndeals/backend/internal/models"
	"github.com/vndeals/backend/internal/session"
	pkglogger "github.com/vndeals/backend/pkg/logger"
	"github.com/vndeals/backend/pkg/password"
)

// PasswordChangeRole marks the one-shot session issued when an account has
// no password yet. It grants access to the change-password endpoint and
// nothing else.
const PasswordChangeRole = "password-change"

// AuthUserRepository defines the user store operations the auth service needs.
type AuthUserRepository interface {
	GetByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	GetByID(ctx context.Context, id string) (*models.AdminUser, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// SessionStore is the in-memory session registry surface used here.
type SessionStore interface {
	Create(userID string, user models.UserData) (string, error)
	Get(token string, autoRefresh bool) (session.Session, bool)
	Delete(token string)
}

// LoginOutcome enumerates the terminal states of a login attempt.
type LoginOutcome int

const (
	LoginOK LoginOutcome = iota
	LoginLocked
	LoginDisabled
	LoginBadCredentials
	LoginPasswordChangeRequired
)

// LoginResult carries the outcome plus whatever the response body needs.
type LoginResult struct {
	Outcome LoginOutcome
	Token   string
	User    models.UserData

	// Locked outcome
	Lock LockStatus

	// BadCredentials outcome
	Attempts          int
	MaxAttempts       int
	RemainingAttempts int
}

// PasswordPolicyError reports a rejected new password with the full list of
// failed rules.
type PasswordPolicyError struct {
	Errors []string
}

func (e *PasswordPolicyError) Error() string {
	return "password does not meet policy: " + strings.Join(e.Errors, "; ")
}

// AuthService implements the login state machine, session issuance, and
// password changes.
type AuthService struct {
	users    AuthUserRepository
	sessions SessionStore
	lockout  *LockoutService
	logger   *slog.Logger
	env      string
}

func NewAuthService(users AuthUserRepository, sessions SessionStore, lockout *LockoutService, env string, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		lockout:  lockout,
		logger:   logger,
		env:      env,
	}
}

// Login walks the login state machine: lock check, status check, missing
// password hash, second lock check, then password verification. The lock is
// re-checked after the user fetch so a lock set by a concurrent attempt is
// honored before the counter moves.
func (s *AuthService) Login(ctx context.Context, username, plainPassword string) (*LoginResult, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Unknown usernames get the generic 401 with no counter state.
			return &LoginResult{
				Outcome:           LoginBadCredentials,
				MaxAttempts:       s.lockout.MaxAttempts(),
				RemainingAttempts: s.lockout.MaxAttempts(),
			}, nil
		}
		return nil, fmt.Errorf("failed to load user for login: %w", err)
	}

	if lock := s.lockout.CheckLocked(ctx, user.ID); lock.IsLocked {
		return &LoginResult{Outcome: LoginLocked, Lock: lock}, nil
	}

	if user.Status != "active" {
		s.logger.Warn("login attempt against inactive account",
			pkglogger.RedactedAttr("username", username, s.env))
		return &LoginResult{Outcome: LoginDisabled}, nil
	}

	if user.PasswordHash == "" {
		token, err := s.sessions.Create(user.ID, models.UserData{
			ID:       user.ID,
			Username: user.Username,
			Role:     PasswordChangeRole,
		})
		if err != nil {
			return nil, err
		}
		return &LoginResult{Outcome: LoginPasswordChangeRequired, Token: token}, nil
	}

	if lock := s.lockout.CheckLocked(ctx, user.ID); lock.IsLocked {
		return &LoginResult{Outcome: LoginLocked, Lock: lock}, nil
	}

	if !password.Verify(plainPassword, user.PasswordHash) {
		status := s.lockout.RegisterFailure(ctx, user.ID)
		if status.IsLocked {
			return &LoginResult{Outcome: LoginLocked, Lock: status}, nil
		}
		return &LoginResult{
			Outcome:           LoginBadCredentials,
			Attempts:          status.Attempts,
			MaxAttempts:       s.lockout.MaxAttempts(),
			RemainingAttempts: s.lockout.RemainingAttempts(status.Attempts),
		}, nil
	}

	if err := s.lockout.Clear(ctx, user.ID); err != nil {
		// Non-fatal: the user proved their identity.
		s.logger.Error("failed to reset lockout after login", slog.Any("error", err))
	}

	data := models.UserData{
		ID:          user.ID,
		Username:    user.Username,
		Role:        user.RoleName,
		Permissions: user.Permissions,
	}
	token, err := s.sessions.Create(user.ID, data)
	if err != nil {
		return nil, err
	}

	s.logger.Info("login succeeded", slog.String("username", pkglogger.SanitizedUsername(username)))
	return &LoginResult{Outcome: LoginOK, Token: token, User: data}, nil
}

// Logout deletes the session for a token. Unknown tokens are a no-op.
func (s *AuthService) Logout(token string) {
	s.sessions.Delete(token)
}

// ChangePassword verifies the current password (skipped when none is set),
// enforces the strength policy, and stores the new hash. The lockout counter
// is reset on success.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if user.PasswordHash != "" && !password.Verify(currentPassword, user.PasswordHash) {
		return models.ErrInvalidCredentials
	}

	if result := password.ValidateStrength(newPassword); !result.OK {
		return &PasswordPolicyError{Errors: result.Errors}
	}

	hash, err := password.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash new password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	if err := s.lockout.Clear(ctx, userID); err != nil {
		s.logger.Error("failed to reset lockout after password change", slog.Any("error", err))
	}

	s.logger.Info("password changed", slog.String("user_id", userID))
	return nil
}
