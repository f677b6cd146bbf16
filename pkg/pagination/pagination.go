package pagination

import (
	"net/url"
	"strconv"
)

// Params holds pagination parameters extracted from query strings.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Offset  int `json:"-"`
}

// FromValues reads page and per_page from q. Missing or malformed values fall
// back to page 1 and defaultPerPage; per_page is capped at maxPerPage.
func FromValues(q url.Values, defaultPerPage, maxPerPage int) Params {
	p := Params{Page: 1, PerPage: defaultPerPage}

	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(q.Get("per_page")); err == nil && v > 0 {
		p.PerPage = min(v, maxPerPage)
	}

	p.Offset = (p.Page - 1) * p.PerPage
	return p
}

// TotalPages returns ceil(total/perPage), never less than 1.
func TotalPages(total, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 1
	}
	return max(1, (total+perPage-1)/perPage)
}

// Clamp bounds page to [1, max(1, totalPages)].
func Clamp(page, totalPages int) int {
	return min(max(page, 1), max(totalPages, 1))
}

// Slice returns the items of the given 1-based page. The page is clamped
// first, so the returned page number may differ from the requested one.
func Slice[T any](items []T, page, perPage int) ([]T, int) {
	if perPage <= 0 {
		return items, 1
	}
	page = Clamp(page, TotalPages(len(items), perPage))

	start := (page - 1) * perPage
	if start >= len(items) {
		return []T{}, page
	}
	end := min(start+perPage, len(items))
	return items[start:end], page
}
