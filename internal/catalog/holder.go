package catalog

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/pagination"
)

// URL query keys the listing state is mirrored into.
const (
	ParamCategory = "category"
	ParamBrand    = "brand"
	ParamSearch   = "search"
	ParamMinPrice = "min_price"
	ParamMaxPrice = "max_price"
	ParamSort     = "sort"
	ParamRating   = "rating"
	ParamDiscount = "discount"
)

const (
	maxRating   = 5
	maxDiscount = 100
)

// Holder owns a listing's State and applies the transitions a shopper can
// trigger. Every transition except SetPage and SetTotalPages sends the
// listing back to page 1. A Holder is not safe for concurrent use.
type Holder struct {
	state      State
	bounds     PriceRange
	mode       BrandMode
	totalPages int
}

// NewHolder returns a holder at DefaultState for the given price bounds.
func NewHolder(bounds PriceRange, mode BrandMode) *Holder {
	if bounds.Max.LessThan(bounds.Min) {
		bounds.Min, bounds.Max = bounds.Max, bounds.Min
	}
	return &Holder{
		state:      DefaultState(bounds),
		bounds:     bounds,
		mode:       mode,
		totalPages: 1,
	}
}

// State returns a copy of the current state.
func (h *Holder) State() State { return h.state.Clone() }

// Bounds returns the price domain of the listing.
func (h *Holder) Bounds() PriceRange { return h.bounds }

// TotalPages returns the last page count recorded with SetTotalPages.
func (h *Holder) TotalPages() int { return h.totalPages }

// SetCategory selects a category. The empty ID clears the filter.
func (h *Holder) SetCategory(id domain.ID) {
	h.state.Category = id
	h.state.Page = 1
}

// ToggleBrand flips id in the brand selection according to the brand mode.
func (h *Holder) ToggleBrand(id domain.ID) {
	defer h.resetPage()
	if id.IsZero() {
		return
	}

	if h.mode == BrandSingle {
		if h.state.HasBrand(id) {
			h.state.Brands = []domain.ID{}
		} else {
			h.state.Brands = []domain.ID{id}
		}
		return
	}

	if i := slices.Index(h.state.Brands, id); i >= 0 {
		h.state.Brands = slices.Delete(slices.Clone(h.state.Brands), i, i+1)
		return
	}
	h.state.Brands = append(slices.Clone(h.state.Brands), id)
}

// SetPriceRange swaps an inverted pair and clamps both ends to the bounds.
func (h *Holder) SetPriceRange(lo, hi decimal.Decimal) {
	if hi.LessThan(lo) {
		lo, hi = hi, lo
	}
	h.state.Price = PriceRange{Min: h.clampPrice(lo), Max: h.clampPrice(hi)}
	h.state.Page = 1
}

func (h *Holder) clampPrice(v decimal.Decimal) decimal.Decimal {
	return decimal.Min(decimal.Max(v, h.bounds.Min), h.bounds.Max)
}

// SetRating sets the minimum star rating. Re-applying the current value
// clears it.
func (h *Holder) SetRating(stars int) {
	h.state.Rating = toggleThreshold(h.state.Rating, stars, maxRating)
	h.state.Page = 1
}

// SetDiscount sets the minimum discount percent. Re-applying the current
// value clears it.
func (h *Holder) SetDiscount(pct int) {
	h.state.Discount = toggleThreshold(h.state.Discount, pct, maxDiscount)
	h.state.Page = 1
}

func toggleThreshold(current, next, upper int) int {
	next = min(max(next, 0), upper)
	if next == current {
		return 0
	}
	return next
}

// SetSearch replaces the search text.
func (h *Holder) SetSearch(text string) {
	h.state.Search = strings.TrimSpace(text)
	h.state.Page = 1
}

// SetSort changes the order. Unknown keys fall back to newest.
func (h *Holder) SetSort(key SortKey) {
	if _, ok := ParseSortKey(string(key)); !ok {
		key = SortNewest
	}
	h.state.Sort = key
	h.state.Page = 1
}

// SetPage moves to page n clamped to [1, TotalPages] and returns the page
// actually stored.
func (h *Holder) SetPage(n int) int {
	h.state.Page = pagination.Clamp(n, h.totalPages)
	return h.state.Page
}

// SetTotalPages records the page count of the latest result and re-clamps
// the current page against it.
func (h *Holder) SetTotalPages(n int) {
	h.totalPages = max(n, 1)
	h.state.Page = pagination.Clamp(h.state.Page, h.totalPages)
}

// Reset restores every field to its default.
func (h *Holder) Reset() {
	h.state = DefaultState(h.bounds)
}

func (h *Holder) resetPage() { h.state.Page = 1 }

// Resolver maps a URL category value (id or slug) to a category id.
type Resolver func(value string) (domain.ID, bool)

// Hydrate replaces the state with the one mirrored in q. Values are read
// with the same transitions a shopper would use, so hydrating the output
// of Values reproduces the state that produced it. Malformed values are
// ignored. resolve may be nil, in which case category values are taken as
// ids.
func (h *Holder) Hydrate(q url.Values, resolve Resolver) {
	h.Reset()

	if v := strings.TrimSpace(q.Get(ParamCategory)); v != "" {
		id := domain.ID(v)
		if resolve != nil {
			if resolved, ok := resolve(v); ok {
				id = resolved
			}
		}
		h.SetCategory(id)
	}

	for _, id := range splitList(q[ParamBrand]) {
		if h.mode == BrandSingle && len(h.state.Brands) > 0 {
			break
		}
		if !h.state.HasBrand(id) {
			h.ToggleBrand(id)
		}
	}

	h.SetSearch(q.Get(ParamSearch))

	lo, hi := h.bounds.Min, h.bounds.Max
	if v, err := decimal.NewFromString(strings.TrimSpace(q.Get(ParamMinPrice))); err == nil {
		lo = v
	}
	if v, err := decimal.NewFromString(strings.TrimSpace(q.Get(ParamMaxPrice))); err == nil {
		hi = v
	}
	h.SetPriceRange(lo, hi)

	if k, ok := ParseSortKey(q.Get(ParamSort)); ok {
		h.SetSort(k)
	}
	if n, err := strconv.Atoi(q.Get(ParamRating)); err == nil {
		h.SetRating(n)
	}
	if n, err := strconv.Atoi(q.Get(ParamDiscount)); err == nil {
		h.SetDiscount(n)
	}
}

// Values mirrors the state into URL query parameters. Fields at their
// defaults are omitted. The page is never mirrored.
func (h *Holder) Values() url.Values {
	return StateValues(h.state, h.bounds)
}

// StateValues mirrors s into URL query parameters relative to bounds.
func StateValues(s State, bounds PriceRange) url.Values {
	q := url.Values{}
	if !s.Category.IsZero() {
		q.Set(ParamCategory, s.Category.String())
	}
	if len(s.Brands) > 0 {
		q.Set(ParamBrand, joinIDs(s.Brands))
	}
	if s.Search != "" {
		q.Set(ParamSearch, s.Search)
	}
	if s.Price.Min.GreaterThan(bounds.Min) {
		q.Set(ParamMinPrice, s.Price.Min.String())
	}
	if s.Price.Max.LessThan(bounds.Max) {
		q.Set(ParamMaxPrice, s.Price.Max.String())
	}
	if s.Sort != "" && s.Sort != SortNewest {
		q.Set(ParamSort, string(s.Sort))
	}
	if s.Rating > 0 {
		q.Set(ParamRating, strconv.Itoa(s.Rating))
	}
	if s.Discount > 0 {
		q.Set(ParamDiscount, strconv.Itoa(s.Discount))
	}
	return q
}

// splitList flattens repeated and comma-separated values, dropping blanks.
func splitList(values []string) []domain.ID {
	var out []domain.ID
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, domain.ID(part))
			}
		}
	}
	return out
}

func joinIDs(ids []domain.ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}
