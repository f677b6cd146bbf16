// Package source defines how the storefront reads the catalog backend.
package source

import (
	"context"
	"net/url"

	"github.com/utafrali/storefront/internal/domain"
)

// Pagination is the backend's page metadata.
type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Pages   int `json:"pages"`
	Total   int `json:"total"`
}

// ProductPage is one backend page of products.
type ProductPage struct {
	Products   []domain.Product `json:"products"`
	Pagination Pagination       `json:"pagination"`
}

// Source is a catalog backend. ListProducts receives the query built by
// the listing's translator (page, per_page, sort_by, order, category_id,
// brand_id, min_price, max_price, search, min_rating, min_discount and any
// profile base parameters).
type Source interface {
	ListProducts(ctx context.Context, q url.Values) (*ProductPage, error)
	Categories(ctx context.Context) ([]domain.Category, error)
	Brands(ctx context.Context) ([]domain.Brand, error)
}

// Pinger is implemented by sources that can report backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
