package models

import "time"

// Category is a curated product category shown on the storefront.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Visible   bool      `json:"visible"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Product is a saved offer from the affiliate feed.
type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	CategoryID *string   `json:"categoryId"`
	Price      int64     `json:"price"` // minor currency units
	ImageURL   string    `json:"imageUrl"`
	OfferLink  string    `json:"offerLink"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ProductPage is a paginated product listing.
type ProductPage struct {
	Items []*Product `json:"data"`
	Total int        `json:"total"`
	Page  int        `json:"page"`
}
