package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vndeals/backend/internal/handlers"
	"github.com/vndeals/backend/internal/models"
	"github.com/vndeals/backend/internal/services"
	"github.com/vndeals/backend/internal/session"
)

type envelope struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Message string         `json:"message"`
}

func TestLoginHandler_Success(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, username, password string) (*services.LoginResult, error) {
			return &services.LoginResult{
				Outcome: services.LoginOK,
				Token:   "token123",
				User:    models.UserData{ID: "u1", Username: username, Role: "admin"},
			}, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth)
	req := handlers.NewTestRequest(t, "POST", "/api/auth/login", handlers.LoginRequest{
		Username: "admin",
		Password: "Sup3r$ecret",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp envelope
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "token123", resp.Data["token"])
}

func TestLoginHandler_BadCredentials(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, username, password string) (*services.LoginResult, error) {
			return &services.LoginResult{
				Outcome:           services.LoginBadCredentials,
				Attempts:          2,
				MaxAttempts:       5,
				RemainingAttempts: 3,
			}, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth)
	req := handlers.NewTestRequest(t, "POST", "/api/auth/login", handlers.LoginRequest{
		Username: "admin",
		Password: "wrong",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp envelope
	handlers.AssertJSONResponse(t, w, http.StatusUnauthorized, &resp)
	assert.False(t, resp.Success)
	assert.Equal(t, float64(3), resp.Data["remainingAttempts"])
	assert.Equal(t, float64(5), resp.Data["maxAttempts"])
}

func TestLoginHandler_Locked(t *testing.T) {
	until := time.Now().Add(30 * time.Minute)
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, username, password string) (*services.LoginResult, error) {
			return &services.LoginResult{
				Outcome: services.LoginLocked,
				Lock: services.LockStatus{
					IsLocked:         true,
					LockedUntil:      &until,
					RemainingMinutes: 30,
				},
			}, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth)
	req := handlers.NewTestRequest(t, "POST", "/api/auth/login", handlers.LoginRequest{
		Username: "admin",
		Password: "whatever",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp envelope
	handlers.AssertJSONResponse(t, w, http.StatusLocked, &resp)
	assert.False(t, resp.Success)
	assert.Equal(t, true, resp.Data["locked"])
	assert.Equal(t, float64(30), resp.Data["remainingMinutes"])
	assert.NotEmpty(t, resp.Data["lockedUntil"])
}

func TestLoginHandler_PasswordChangeRequired(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, username, password string) (*services.LoginResult, error) {
			return &services.LoginResult{
				Outcome: services.LoginPasswordChangeRequired,
				Token:   "temp-token",
			}, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth)
	req := handlers.NewTestRequest(t, "POST", "/api/auth/login", handlers.LoginRequest{
		Username: "admin",
		Password: "whatever",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp envelope
	handlers.AssertJSONResponse(t, w, http.StatusForbidden, &resp)
	assert.Equal(t, true, resp.Data["requiresPasswordChange"])
	assert.Equal(t, "temp-token", resp.Data["token"])
}

func TestLoginHandler_InactiveAccount(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, username, password string) (*services.LoginResult, error) {
			return &services.LoginResult{Outcome: services.LoginDisabled}, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth)
	req := handlers.NewTestRequest(t, "POST", "/api/auth/login", handlers.LoginRequest{
		Username: "admin",
		Password: "whatever",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp envelope
	handlers.AssertJSONResponse(t, w, http.StatusUnauthorized, &resp)
	assert.Equal(t, "Account is inactive", resp.Message)
}

func TestLoginHandler_MissingFields(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthService{})
	req := handlers.NewTestRequest(t, "POST", "/api/auth/login", handlers.LoginRequest{
		Username: "admin",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogoutHandler_DeletesSession(t *testing.T) {
	var deleted string
	mockAuth := &handlers.MockAuthService{
		LogoutFunc: func(token string) { deleted = token },
	}

	sessions := handlers.StaticSessions{
		"token123": session.Session{Token: "token123", UserID: "u1", User: models.UserData{ID: "u1", Role: "admin"}},
	}

	handler := handlers.Authed(handlers.NewAuthHandler(mockAuth).Logout, sessions)
	req := handlers.NewTestRequest(t, "POST", "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer token123")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "token123", deleted)
}

func TestMeHandler_ReturnsSnapshot(t *testing.T) {
	sessions := handlers.StaticSessions{
		"token123": session.Session{
			Token:  "token123",
			UserID: "u1",
			User:   models.UserData{ID: "u1", Username: "admin", Role: "admin", Permissions: []string{"security.manage"}},
		},
	}

	handler := handlers.Authed(handlers.NewAuthHandler(&handlers.MockAuthService{}).Me, sessions)
	req := handlers.NewTestRequest(t, "GET", "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer token123")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var resp envelope
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "admin", resp.Data["username"])
}

func TestMeHandler_NoToken(t *testing.T) {
	handler := handlers.Authed(handlers.NewAuthHandler(&handlers.MockAuthService{}).Me, handlers.StaticSessions{})
	req := handlers.NewTestRequest(t, "GET", "/api/auth/me", nil)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChangePasswordHandler_PolicyFailure(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		ChangePasswordFunc: func(ctx context.Context, userID, current, next string) error {
			return &services.PasswordPolicyError{Errors: []string{"Password must be at least 8 characters long"}}
		},
	}

	sessions := handlers.StaticSessions{
		"token123": session.Session{Token: "token123", UserID: "u1", User: models.UserData{ID: "u1", Role: "admin"}},
	}

	handler := handlers.Authed(handlers.NewAuthHandler(mockAuth).ChangePassword, sessions)
	req := handlers.NewTestRequest(t, "PUT", "/api/auth/change-password", handlers.ChangePasswordRequest{
		CurrentPassword: "old",
		NewPassword:     "weak",
	})
	req.Header.Set("Authorization", "Bearer token123")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChangePasswordHandler_ConsumesOneShotSession(t *testing.T) {
	var loggedOut string
	mockAuth := &handlers.MockAuthService{
		ChangePasswordFunc: func(ctx context.Context, userID, current, next string) error { return nil },
		LogoutFunc:         func(token string) { loggedOut = token },
	}

	sessions := handlers.StaticSessions{
		"temp-token": session.Session{
			Token:  "temp-token",
			UserID: "u1",
			User:   models.UserData{ID: "u1", Role: services.PasswordChangeRole},
		},
	}

	handler := handlers.Authed(handlers.NewAuthHandler(mockAuth).ChangePassword, sessions)
	req := handlers.NewTestRequest(t, "PUT", "/api/auth/change-password", handlers.ChangePasswordRequest{
		NewPassword: "N3w!Str0ngKey",
	})
	req.Header.Set("Authorization", "Bearer temp-token")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "temp-token", loggedOut)
}
