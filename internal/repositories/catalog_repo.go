package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vndeals/backend/internal/database"
	"github.com/vndeals/backend/internal/models"
)

type CatalogRepository struct {
	pool *pgxpool.Pool
}

func NewCatalogRepository(db *database.DB) *CatalogRepository {
	return &CatalogRepository{pool: db.Pool}
}

func (r *CatalogRepository) ListVisibleCategories(ctx context.Context) ([]*models.Category, error) {
	query := `
		SELECT id, name, slug, visible, created_at, updated_at
		FROM categories WHERE visible = true ORDER BY name
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]*models.Category, 0)
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Visible, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, database.MapPostgresError(err)
		}
		categories = append(categories, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return categories, nil
}

func (r *CatalogRepository) CreateCategory(ctx context.Context, name, slug string, visible bool) (*models.Category, error) {
	query := `
		INSERT INTO categories (name, slug, visible)
		VALUES ($1, $2, $3)
		RETURNING id, name, slug, visible, created_at, updated_at
	`

	var c models.Category
	err := r.pool.QueryRow(ctx, query, name, slug, visible).
		Scan(&c.ID, &c.Name, &c.Slug, &c.Visible, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &c, nil
}

func (r *CatalogRepository) ListSavedProducts(ctx context.Context, page, pageSize int) (*models.ProductPage, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&total); err != nil {
		return nil, database.MapPostgresError(err)
	}

	query := `
		SELECT id, name, category_id, price, image_url, offer_link, created_at, updated_at
		FROM products ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]*models.Product, 0)
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.CategoryID, &p.Price, &p.ImageURL, &p.OfferLink, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, database.MapPostgresError(err)
		}
		products = append(products, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &models.ProductPage{Items: products, Total: total, Page: page}, nil
}
