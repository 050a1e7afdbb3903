package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vndeals/backend/internal/models"
)

// CatalogRepository defines the persistence surface of the product catalog.
type CatalogRepository interface {
	ListVisibleCategories(ctx context.Context) ([]*models.Category, error)
	ListSavedProducts(ctx context.Context, page, pageSize int) (*models.ProductPage, error)
	CreateCategory(ctx context.Context, name, slug string, visible bool) (*models.Category, error)
}

const defaultPageSize = 24

// CatalogService serves the public storefront reads.
type CatalogService struct {
	repo   CatalogRepository
	logger *slog.Logger
}

func NewCatalogService(repo CatalogRepository, logger *slog.Logger) *CatalogService {
	return &CatalogService{repo: repo, logger: logger}
}

func (s *CatalogService) PublicCategories(ctx context.Context) ([]*models.Category, error) {
	categories, err := s.repo.ListVisibleCategories(ctx)
	if err != nil {
		s.logger.Error("failed to list categories", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return categories, nil
}

// CreateCategory adds a storefront category. Duplicate slugs surface as a
// conflict.
func (s *CatalogService) CreateCategory(ctx context.Context, name, slug string, visible bool) (*models.Category, error) {
	category, err := s.repo.CreateCategory(ctx, name, slug, visible)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create category", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return category, nil
}

func (s *CatalogService) SavedProducts(ctx context.Context, page int) (*models.ProductPage, error) {
	products, err := s.repo.ListSavedProducts(ctx, page, defaultPageSize)
	if err != nil {
		s.logger.Error("failed to list products", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return products, nil
}
