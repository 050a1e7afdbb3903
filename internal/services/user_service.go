package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vndeals/backend/internal/models"
	"github.com/vndeals/backend/pkg/password"
)

// UserRepository defines the interface for admin user data access
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	List(ctx context.Context, limit, offset int) ([]*models.AdminUser, error)
	Create(ctx context.Context, user *models.AdminUser) (*models.AdminUser, error)
}

// UserService handles admin user management
type UserService struct {
	repo    UserRepository
	lockout *LockoutService
	logger  *slog.Logger
}

func NewUserService(repo UserRepository, lockout *LockoutService, logger *slog.Logger) *UserService {
	return &UserService{
		repo:    repo,
		lockout: lockout,
		logger:  logger,
	}
}

// ListUsers retrieves admin users with pagination
func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]*models.AdminUser, error) {
	users, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list users", slog.Int("limit", limit), slog.Int("offset", offset), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return users, nil
}

// CreateUser creates an admin account. An empty password leaves the hash
// unset, which forces a password change on first login.
func (s *UserService) CreateUser(ctx context.Context, username, plainPassword, roleID string) (*models.AdminUser, error) {
	user := &models.AdminUser{
		Username: username,
		RoleID:   roleID,
		Status:   "active",
	}

	if plainPassword != "" {
		if result := password.ValidateStrength(plainPassword); !result.OK {
			return nil, &PasswordPolicyError{Errors: result.Errors}
		}
		hash, err := password.Hash(plainPassword)
		if err != nil {
			s.logger.Error("failed to hash password", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		user.PasswordHash = hash
	}

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("admin user created", slog.String("user_id", created.ID))
	return created, nil
}

// UnlockUser lifts an account lock and resets the failure counter. Admins
// unlock by username, which is what the lockout response surfaces.
func (s *UserService) UnlockUser(ctx context.Context, username string) error {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if err := s.lockout.Clear(ctx, user.ID); err != nil {
		return models.ErrInternalServer
	}
	s.logger.Info("account unlocked by admin", slog.String("user_id", user.ID))
	return nil
}
