package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vndeals/backend/internal/affiliate"
	"github.com/vndeals/backend/internal/guard"
	"github.com/vndeals/backend/internal/models"
	"github.com/vndeals/backend/internal/respcache"
	"github.com/vndeals/backend/internal/services"
	"github.com/vndeals/backend/pkg/httpx"
)

// UserServiceInterface defines admin user management operations
type UserServiceInterface interface {
	ListUsers(ctx context.Context, limit, offset int) ([]*models.AdminUser, error)
	CreateUser(ctx context.Context, username, password, roleID string) (*models.AdminUser, error)
	UnlockUser(ctx context.Context, username string) error
}

// CatalogAdminInterface defines the catalog mutations the console exposes
type CatalogAdminInterface interface {
	CreateCategory(ctx context.Context, name, slug string, visible bool) (*models.Category, error)
}

// AffiliateClientInterface defines the outbound affiliate query surface
type AffiliateClientInterface interface {
	Query(ctx context.Context, body []byte) (map[string]any, error)
}

// AdminHandler serves the security console: blocked IPs, the whitelist,
// cache invalidation, catalog writes, account management, and affiliate
// searches.
type AdminHandler struct {
	engine    *guard.Engine
	cache     *respcache.Cache
	users     UserServiceInterface
	catalog   CatalogAdminInterface
	affiliate AffiliateClientInterface
}

func NewAdminHandler(engine *guard.Engine, cache *respcache.Cache, users UserServiceInterface, catalog CatalogAdminInterface, affiliateClient AffiliateClientInterface) *AdminHandler {
	return &AdminHandler{
		engine:    engine,
		cache:     cache,
		users:     users,
		catalog:   catalog,
		affiliate: affiliateClient,
	}
}

// Request DTOs

// BlockIPRequest represents the request body for blocking an IP
type BlockIPRequest struct {
	IP              string `json:"ip" validate:"required,ip"`
	DurationMinutes int    `json:"durationMinutes" validate:"gte=0"`
	Reason          string `json:"reason" validate:"required,max=200"`
}

// WhitelistRequest represents the request body for whitelisting an IP
type WhitelistRequest struct {
	IP string `json:"ip" validate:"required,ip"`
}

// CacheClearRequest represents the request body for cache invalidation
type CacheClearRequest struct {
	Pattern string `json:"pattern" validate:"max=200"`
}

// CreateUserRequest represents the request body for creating an admin user
type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password"`
	RoleID   string `json:"roleId"`
}

// CreateCategoryRequest represents the request body for creating a category
type CreateCategoryRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	Slug    string `json:"slug" validate:"required,max=120"`
	Visible bool   `json:"visible"`
}

// UnlockAccountRequest represents the request body for unlocking an account
type UnlockAccountRequest struct {
	Username string `json:"username" validate:"required,max=64"`
}

// SearchRequest represents the affiliate search request body
type SearchRequest struct {
	Query string `json:"query" validate:"required,max=4000"`
}

type userView struct {
	ID                  string     `json:"id"`
	Username            string     `json:"username"`
	Status              string     `json:"status"`
	Role                string     `json:"role"`
	FailedLoginAttempts int        `json:"failedLoginAttempts"`
	LockedUntil         *time.Time `json:"lockedUntil"`
	CreatedAt           time.Time  `json:"createdAt"`
}

func toUserView(u *models.AdminUser) userView {
	return userView{
		ID:                  u.ID,
		Username:            u.Username,
		Status:              u.Status,
		Role:                u.RoleName,
		FailedLoginAttempts: u.FailedLoginAttempts,
		LockedUntil:         u.LockedUntil,
		CreatedAt:           u.CreatedAt,
	}
}

// ListBlockedIPs returns every active block
func (h *AdminHandler) ListBlockedIPs(w http.ResponseWriter, r *http.Request) {
	httpx.WriteSuccess(w, http.StatusOK, h.engine.BlockedEntries(), "")
}

// BlockIP creates an admin block
func (h *AdminHandler) BlockIP(w http.ResponseWriter, r *http.Request) {
	var req BlockIPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}
	if err := ValidateRequest(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	duration := time.Duration(req.DurationMinutes) * time.Minute
	if duration == 0 {
		duration = time.Hour
	}

	record := h.engine.Block(req.IP, duration, req.Reason)
	httpx.WriteSuccess(w, http.StatusCreated, record, "IP blocked")
}

// UnblockIP lifts a block
func (h *AdminHandler) UnblockIP(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	if !h.engine.Unblock(ip) {
		httpx.WriteError(w, http.StatusNotFound, "IP is not blocked", "")
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, nil, "IP unblocked")
}

// ListWhitelist returns the whitelist
func (h *AdminHandler) ListWhitelist(w http.ResponseWriter, r *http.Request) {
	httpx.WriteSuccess(w, http.StatusOK, h.engine.WhitelistEntries(), "")
}

// AddWhitelist adds an IP to the whitelist, lifting any standing block
func (h *AdminHandler) AddWhitelist(w http.ResponseWriter, r *http.Request) {
	var req WhitelistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}
	if err := ValidateRequest(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	h.engine.Whitelist(req.IP)
	httpx.WriteSuccess(w, http.StatusCreated, nil, "IP whitelisted")
}

// RemoveWhitelist removes an IP from the whitelist
func (h *AdminHandler) RemoveWhitelist(w http.ResponseWriter, r *http.Request) {
	h.engine.Unwhitelist(chi.URLParam(r, "ip"))
	httpx.WriteSuccess(w, http.StatusOK, nil, "IP removed from whitelist")
}

// ClearCache invalidates cached responses by substring pattern
func (h *AdminHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	var req CacheClearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	removed := h.cache.Clear(req.Pattern)
	httpx.WriteSuccess(w, http.StatusOK, map[string]int{"removed": removed}, "Cache cleared")
}

// CreateCategory adds a storefront category and drops every cached category
// listing so the next public read sees it.
func (h *AdminHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CreateCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}
	if err := ValidateRequest(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	category, err := h.catalog.CreateCategory(r.Context(), req.Name, req.Slug, req.Visible)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			httpx.WriteError(w, http.StatusConflict, "Category slug already exists", "")
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "Failed to create category", "")
		return
	}

	h.cache.Clear("GET:/api/categories")
	httpx.WriteSuccess(w, http.StatusCreated, category, "Category created")
}

// ListUsers lists admin accounts
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	users, err := h.users.ListUsers(r.Context(), limit, offset)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "Failed to list users", "")
		return
	}

	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, toUserView(u))
	}
	httpx.WriteSuccess(w, http.StatusOK, views, "")
}

// CreateUser creates an admin account
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}
	if err := ValidateRequest(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	user, err := h.users.CreateUser(r.Context(), req.Username, req.Password, req.RoleID)
	if err != nil {
		var policyErr *services.PasswordPolicyError
		switch {
		case errors.As(err, &policyErr):
			httpx.WriteErrorData(w, http.StatusBadRequest, policyErr.Errors, "Password does not meet requirements")
		case errors.Is(err, models.ErrConflict):
			httpx.WriteError(w, http.StatusConflict, "Username already exists", "")
		default:
			httpx.WriteError(w, http.StatusInternalServerError, "Failed to create user", "")
		}
		return
	}
	httpx.WriteSuccess(w, http.StatusCreated, toUserView(user), "User created")
}

// UnlockAccount resets the failure counter and lifts the lock for a user
func (h *AdminHandler) UnlockAccount(w http.ResponseWriter, r *http.Request) {
	var req UnlockAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}
	if err := ValidateRequest(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	if err := h.users.UnlockUser(r.Context(), req.Username); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "User not found", "")
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "Failed to unlock account", "")
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, nil, "Account unlocked")
}

// AffiliateSearch forwards a signed GraphQL query to the partner API
func (h *AdminHandler) AffiliateSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}
	if err := ValidateRequest(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	body, err := json.Marshal(map[string]string{"query": req.Query})
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "Failed to build query", "")
		return
	}

	result, err := h.affiliate.Query(r.Context(), body)
	if err != nil {
		var upstream *affiliate.UpstreamError
		if errors.As(err, &upstream) {
			// The upstream status and body never leak to the caller.
			httpx.WriteError(w, http.StatusInternalServerError, "Affiliate API request failed", "")
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "Affiliate API unreachable", "")
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, result, "")
}
