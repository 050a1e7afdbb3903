package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/vndeals/backend/internal/middleware"
	"github.com/vndeals/backend/internal/models"
	"github.com/vndeals/backend/internal/services"
	"github.com/vndeals/backend/internal/session"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// StaticSessions is a fixed token→session lookup for handler tests.
type StaticSessions map[string]session.Session

func (s StaticSessions) Get(token string, _ bool) (session.Session, bool) {
	v, ok := s[token]
	return v, ok
}

// Authed wraps a handler with the real session middleware backed by a
// static lookup, so tests exercise the same context plumbing as production.
func Authed(h http.HandlerFunc, sessions StaticSessions) http.Handler {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	return middleware.Authenticate(sessions, logger)(h)
}

// WithChiRouteContext adds chi URL parameters to request context for testing
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc          func(ctx context.Context, username, password string) (*services.LoginResult, error)
	LogoutFunc         func(token string)
	ChangePasswordFunc func(ctx context.Context, userID, currentPassword, newPassword string) error
}

func (m *MockAuthService) Login(ctx context.Context, username, password string) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return &services.LoginResult{Outcome: services.LoginBadCredentials}, nil
	}
	return m.LoginFunc(ctx, username, password)
}

func (m *MockAuthService) Logout(token string) {
	if m.LogoutFunc != nil {
		m.LogoutFunc(token)
	}
}

func (m *MockAuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if m.ChangePasswordFunc == nil {
		return nil
	}
	return m.ChangePasswordFunc(ctx, userID, currentPassword, newPassword)
}

// MockUserService implements UserServiceInterface for testing
type MockUserService struct {
	ListUsersFunc  func(ctx context.Context, limit, offset int) ([]*models.AdminUser, error)
	CreateUserFunc func(ctx context.Context, username, password, roleID string) (*models.AdminUser, error)
	UnlockUserFunc func(ctx context.Context, username string) error
}

func (m *MockUserService) ListUsers(ctx context.Context, limit, offset int) ([]*models.AdminUser, error) {
	if m.ListUsersFunc == nil {
		return []*models.AdminUser{}, nil
	}
	return m.ListUsersFunc(ctx, limit, offset)
}

func (m *MockUserService) CreateUser(ctx context.Context, username, password, roleID string) (*models.AdminUser, error) {
	if m.CreateUserFunc == nil {
		return nil, models.ErrConflict
	}
	return m.CreateUserFunc(ctx, username, password, roleID)
}

func (m *MockUserService) UnlockUser(ctx context.Context, username string) error {
	if m.UnlockUserFunc == nil {
		return models.ErrNotFound
	}
	return m.UnlockUserFunc(ctx, username)
}

// MockCatalogService implements CatalogServiceInterface and
// CatalogAdminInterface for testing
type MockCatalogService struct {
	PublicCategoriesFunc func(ctx context.Context) ([]*models.Category, error)
	SavedProductsFunc    func(ctx context.Context, page int) (*models.ProductPage, error)
	CreateCategoryFunc   func(ctx context.Context, name, slug string, visible bool) (*models.Category, error)
}

func (m *MockCatalogService) CreateCategory(ctx context.Context, name, slug string, visible bool) (*models.Category, error) {
	if m.CreateCategoryFunc == nil {
		return &models.Category{ID: "c1", Name: name, Slug: slug, Visible: visible}, nil
	}
	return m.CreateCategoryFunc(ctx, name, slug, visible)
}

func (m *MockCatalogService) PublicCategories(ctx context.Context) ([]*models.Category, error) {
	if m.PublicCategoriesFunc == nil {
		return []*models.Category{}, nil
	}
	return m.PublicCategoriesFunc(ctx)
}

func (m *MockCatalogService) SavedProducts(ctx context.Context, page int) (*models.ProductPage, error) {
	if m.SavedProductsFunc == nil {
		return &models.ProductPage{Items: []*models.Product{}, Page: page}, nil
	}
	return m.SavedProductsFunc(ctx, page)
}

// MockAffiliateClient implements AffiliateClientInterface for testing
type MockAffiliateClient struct {
	QueryFunc func(ctx context.Context, body []byte) (map[string]any, error)
}

func (m *MockAffiliateClient) Query(ctx context.Context, body []byte) (map[string]any, error) {
	if m.QueryFunc == nil {
		return map[string]any{}, nil
	}
	return m.QueryFunc(ctx, body)
}
