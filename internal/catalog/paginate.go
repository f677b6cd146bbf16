package catalog

import (
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/pagination"
)

// PageInfo describes one page of a listing.
type PageInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPageInfo derives TotalPages from total and clamps page into range.
func NewPageInfo(page, perPage, total int) PageInfo {
	pages := pagination.TotalPages(total, perPage)
	return PageInfo{
		Page:       pagination.Clamp(page, pages),
		PerPage:    perPage,
		Total:      max(total, 0),
		TotalPages: pages,
	}
}

// Paginate slices items to the requested page, clamping the page when it
// falls outside [1, TotalPages].
func Paginate(items []domain.Product, page, perPage int) ([]domain.Product, PageInfo) {
	pageItems, page := pagination.Slice(items, page, perPage)
	info := NewPageInfo(page, perPage, len(items))
	return pageItems, info
}
