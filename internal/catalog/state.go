// Package catalog holds the pure parts of a product listing: the filter
// state and its transitions, the translation of that state into a backend
// query or local predicates, sorting, pagination, the category tree and
// the page-number window. Nothing in this package performs I/O.
package catalog

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
)

// SortKey selects the listing order.
type SortKey string

const (
	SortNewest    SortKey = "newest"
	SortOldest    SortKey = "oldest"
	SortPriceDesc SortKey = "price-desc"
	SortPriceAsc  SortKey = "price-asc"
	SortNameAsc   SortKey = "name-asc"
	SortNameDesc  SortKey = "name-desc"
)

// SortKeys returns every supported sort key, default first.
func SortKeys() []SortKey {
	return []SortKey{SortNewest, SortOldest, SortPriceDesc, SortPriceAsc, SortNameAsc, SortNameDesc}
}

// ParseSortKey returns the key named by s. Unknown names report false.
func ParseSortKey(s string) (SortKey, bool) {
	k := SortKey(s)
	return k, slices.Contains(SortKeys(), k)
}

// ServerParams maps the key to the backend's sort_by/order pair.
func (k SortKey) ServerParams() (sortBy, order string) {
	switch k {
	case SortOldest:
		return "created_at", "asc"
	case SortPriceDesc:
		return "selling_price", "desc"
	case SortPriceAsc:
		return "selling_price", "asc"
	case SortNameAsc:
		return "name", "asc"
	case SortNameDesc:
		return "name", "desc"
	default:
		return "created_at", "desc"
	}
}

// BrandMode controls how ToggleBrand treats the brand set.
type BrandMode int

const (
	// BrandMulti adds an absent brand and removes a present one.
	BrandMulti BrandMode = iota
	// BrandSingle replaces the selection; toggling the selected brand clears it.
	BrandSingle
)

// PriceRange is an inclusive [Min, Max] price interval.
type PriceRange struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

// DefaultPriceBounds is the widest range a listing accepts.
func DefaultPriceBounds() PriceRange {
	return PriceRange{Min: decimal.Zero, Max: decimal.NewFromInt(1_000_000)}
}

// Equal compares both bounds numerically.
func (r PriceRange) Equal(o PriceRange) bool {
	return r.Min.Equal(o.Min) && r.Max.Equal(o.Max)
}

// Contains reports whether v lies within the range.
func (r PriceRange) Contains(v decimal.Decimal) bool {
	return v.GreaterThanOrEqual(r.Min) && v.LessThanOrEqual(r.Max)
}

// State is the complete filter, sort and page selection of one listing.
type State struct {
	Search   string      `json:"search"`
	Category domain.ID   `json:"category"`
	Brands   []domain.ID `json:"brands"`
	Price    PriceRange  `json:"price"`
	Rating   int         `json:"rating"`
	Discount int         `json:"discount"`
	Sort     SortKey     `json:"sort"`
	Page     int         `json:"page"`
}

// DefaultState returns the state of a freshly mounted listing.
func DefaultState(bounds PriceRange) State {
	return State{
		Brands: []domain.ID{},
		Price:  bounds,
		Sort:   SortNewest,
		Page:   1,
	}
}

// Clone returns a copy that shares no memory with s.
func (s State) Clone() State {
	s.Brands = slices.Clone(s.Brands)
	if s.Brands == nil {
		s.Brands = []domain.ID{}
	}
	return s
}

// Equal reports whether both states select the same listing. Brand order
// is significant because the brand set keeps insertion order.
func (s State) Equal(o State) bool {
	return s.Search == o.Search &&
		s.Category == o.Category &&
		slices.Equal(s.Brands, o.Brands) &&
		s.Price.Equal(o.Price) &&
		s.Rating == o.Rating &&
		s.Discount == o.Discount &&
		s.Sort == o.Sort &&
		s.Page == o.Page
}

// HasBrand reports whether id is selected.
func (s State) HasBrand(id domain.ID) bool {
	return slices.Contains(s.Brands, id)
}
