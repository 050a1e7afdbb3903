package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/vndeals/backend/internal/middleware"
	"github.com/vndeals/backend/internal/models"
	"github.com/vndeals/backend/internal/services"
	"github.com/vndeals/backend/pkg/httpx"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, username, password string) (*services.LoginResult, error)
	Logout(token string)
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service AuthServiceInterface
}

func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=1,max=64"`
	Password string `json:"password" validate:"required"`
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

type loginData struct {
	Token string          `json:"token"`
	User  models.UserData `json:"user"`
}

type lockData struct {
	Locked           bool       `json:"locked"`
	LockedUntil      *time.Time `json:"lockedUntil"`
	RemainingMinutes int        `json:"remainingMinutes"`
}

type badCredentialsData struct {
	RemainingAttempts int `json:"remainingAttempts"`
	Attempts          int `json:"attempts"`
	MaxAttempts       int `json:"maxAttempts"`
}

type passwordChangeData struct {
	RequiresPasswordChange bool   `json:"requiresPasswordChange"`
	Token                  string `json:"token"`
}

// Login handles admin login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}
	if err := ValidateRequest(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	req.Username = strings.TrimSpace(req.Username)

	result, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "Login failed", "")
		return
	}

	switch result.Outcome {
	case services.LoginOK:
		httpx.WriteSuccess(w, http.StatusOK, loginData{Token: result.Token, User: result.User}, "Login successful")
	case services.LoginLocked:
		httpx.WriteErrorData(w, http.StatusLocked, lockData{
			Locked:           true,
			LockedUntil:      result.Lock.LockedUntil,
			RemainingMinutes: result.Lock.RemainingMinutes,
		}, "Account temporarily locked due to repeated failed logins")
	case services.LoginDisabled:
		httpx.WriteError(w, http.StatusUnauthorized, "Account is inactive", "")
	case services.LoginPasswordChangeRequired:
		httpx.WriteErrorData(w, http.StatusForbidden, passwordChangeData{
			RequiresPasswordChange: true,
			Token:                  result.Token,
		}, "Password change required before login")
	default:
		httpx.WriteErrorData(w, http.StatusUnauthorized, badCredentialsData{
			RemainingAttempts: result.RemainingAttempts,
			Attempts:          result.Attempts,
			MaxAttempts:       result.MaxAttempts,
		}, "Invalid username or password")
	}
}

// Logout deletes the caller's session
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.TokenFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "Authentication required", "")
		return
	}
	h.service.Logout(token)
	httpx.WriteSuccess(w, http.StatusOK, nil, "Logged out")
}

// Me returns the session's user snapshot
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "Authentication required", "")
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, user, "")
}

// ChangePassword updates the caller's password. A one-shot password-change
// session is consumed by the operation; the user logs in again afterwards.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "Authentication required", "")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}
	if err := ValidateRequest(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	err := h.service.ChangePassword(r.Context(), s.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		var policyErr *services.PasswordPolicyError
		switch {
		case errors.As(err, &policyErr):
			httpx.WriteErrorData(w, http.StatusBadRequest, policyErr.Errors, "Password does not meet requirements")
		case errors.Is(err, models.ErrInvalidCredentials):
			httpx.WriteError(w, http.StatusUnauthorized, "Current password is incorrect", "")
		case errors.Is(err, models.ErrNotFound):
			httpx.WriteError(w, http.StatusNotFound, "User not found", "")
		default:
			httpx.WriteError(w, http.StatusInternalServerError, "Failed to change password", "")
		}
		return
	}

	if s.User.Role == services.PasswordChangeRole {
		if token, ok := middleware.TokenFromContext(r.Context()); ok {
			h.service.Logout(token)
		}
	}
	httpx.WriteSuccess(w, http.StatusOK, nil, "Password changed")
}
