package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/vndeals/backend/internal/models"
	"github.com/vndeals/backend/pkg/httpx"
)

// CatalogServiceInterface defines the storefront read surface
type CatalogServiceInterface interface {
	PublicCategories(ctx context.Context) ([]*models.Category, error)
	SavedProducts(ctx context.Context, page int) (*models.ProductPage, error)
}

// CatalogHandler serves the public storefront endpoints. Both sit behind the
// response cache, so repeated reads are served from memory.
type CatalogHandler struct {
	service CatalogServiceInterface
}

func NewCatalogHandler(service CatalogServiceInterface) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// PublicCategories lists visible categories
func (h *CatalogHandler) PublicCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.PublicCategories(r.Context())
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "Failed to load categories", "")
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, categories, "")
}

// SavedProducts lists saved affiliate products, newest first
func (h *CatalogHandler) SavedProducts(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httpx.WriteError(w, http.StatusBadRequest, "Invalid page parameter", "")
			return
		}
		page = parsed
	}

	products, err := h.service.SavedProducts(r.Context(), page)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "Failed to load products", "")
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, products, "")
}
