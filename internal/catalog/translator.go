package catalog

import (
	"maps"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
)

// Capabilities lists the filters a listing's backend endpoint enforces.
// Anything not listed is applied locally to the fetched products.
type Capabilities struct {
	Category bool `json:"category"`
	Brand    bool `json:"brand"`
	Price    bool `json:"price"`
	Rating   bool `json:"rating"`
	Discount bool `json:"discount"`
	Search   bool `json:"search"`
	// Paging means the backend slices and sorts; otherwise one large page
	// is fetched and sorted and sliced locally.
	Paging bool `json:"paging"`
}

// AllServer enforces every filter on the backend.
func AllServer() Capabilities {
	return Capabilities{Category: true, Brand: true, Price: true, Rating: true, Discount: true, Search: true, Paging: true}
}

// Translator turns a State into a backend query and local predicates.
type Translator struct {
	Caps       Capabilities
	Bounds     PriceRange
	PerPage    int
	FetchLimit int
	// Base is merged into every query, e.g. featured=true.
	Base url.Values
}

// ServerQuery builds the backend query for s. Only narrowing parameters
// are included so equal listings produce equal, cacheable URLs.
func (t Translator) ServerQuery(s State) url.Values {
	q := url.Values{}
	maps.Copy(q, t.Base)

	if t.Caps.Paging {
		q.Set("page", strconv.Itoa(max(s.Page, 1)))
		q.Set("per_page", strconv.Itoa(t.PerPage))
		sortBy, order := s.Sort.ServerParams()
		q.Set("sort_by", sortBy)
		q.Set("order", order)
	} else {
		q.Set("page", "1")
		q.Set("per_page", strconv.Itoa(t.FetchLimit))
	}

	if t.Caps.Category && !s.Category.IsZero() {
		q.Set("category_id", s.Category.String())
	}
	if t.Caps.Brand && len(s.Brands) > 0 {
		q.Set("brand_id", joinIDs(s.Brands))
	}
	if t.Caps.Price {
		if s.Price.Min.GreaterThan(t.Bounds.Min) {
			q.Set("min_price", s.Price.Min.String())
		}
		if s.Price.Max.LessThan(t.Bounds.Max) {
			q.Set("max_price", s.Price.Max.String())
		}
	}
	if t.Caps.Search && s.Search != "" {
		q.Set("search", s.Search)
	}
	if t.Caps.Rating && s.Rating > 0 {
		q.Set("min_rating", strconv.Itoa(s.Rating))
	}
	if t.Caps.Discount && s.Discount > 0 {
		q.Set("min_discount", strconv.Itoa(s.Discount))
	}
	return q
}

// Predicate decides whether a product stays in the visible list.
type Predicate func(domain.Product) bool

// DiscountAtLeast keeps products whose discount is defined and at least pct.
func DiscountAtLeast(pct int) Predicate {
	threshold := decimal.NewFromInt(int64(pct))
	return func(p domain.Product) bool {
		d, ok := p.DiscountPercent()
		return ok && d.GreaterThanOrEqual(threshold)
	}
}

// RatingAtLeast keeps products rated at least stars. A missing rating
// counts as 0.
func RatingAtLeast(stars int) Predicate {
	return func(p domain.Product) bool {
		return p.RatingValue() >= float64(stars)
	}
}

// InCategories keeps products whose category is one of ids.
func InCategories(ids []domain.ID) Predicate {
	set := make(map[domain.ID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(p domain.Product) bool {
		_, ok := set[p.CategoryID]
		return ok
	}
}

// HasBrand keeps products of any of the given brands.
func HasBrand(ids []domain.ID) Predicate {
	set := make(map[domain.ID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(p domain.Product) bool {
		_, ok := set[p.BrandID]
		return ok
	}
}

// PriceWithin keeps products priced inside r.
func PriceWithin(r PriceRange) Predicate {
	return func(p domain.Product) bool { return r.Contains(p.Price) }
}

// NameContains keeps products whose name contains text, ignoring case.
func NameContains(text string) Predicate {
	needle := strings.ToLower(text)
	return func(p domain.Product) bool {
		return strings.Contains(strings.ToLower(p.Name), needle)
	}
}

// ClientPredicates returns, in application order, the predicates for every
// active filter the backend does not enforce: discount, rating, category,
// brand, price, then search. tree expands a category to its descendants
// and may be nil.
func (t Translator) ClientPredicates(s State, tree *Tree) []Predicate {
	var preds []Predicate
	if !t.Caps.Discount && s.Discount > 0 {
		preds = append(preds, DiscountAtLeast(s.Discount))
	}
	if !t.Caps.Rating && s.Rating > 0 {
		preds = append(preds, RatingAtLeast(s.Rating))
	}
	if !t.Caps.Category && !s.Category.IsZero() {
		ids := []domain.ID{s.Category}
		if tree != nil {
			ids = append(ids, tree.Descendants(s.Category)...)
		}
		preds = append(preds, InCategories(ids))
	}
	if !t.Caps.Brand && len(s.Brands) > 0 {
		preds = append(preds, HasBrand(s.Brands))
	}
	if !t.Caps.Price && !s.Price.Equal(t.Bounds) {
		preds = append(preds, PriceWithin(s.Price))
	}
	if !t.Caps.Search && s.Search != "" {
		preds = append(preds, NameContains(s.Search))
	}
	return preds
}

// ApplyClientFilters derives the visible list from original. It always
// starts from original and returns a new slice, so repeated application
// with the same state yields the same result.
func (t Translator) ApplyClientFilters(original []domain.Product, s State, tree *Tree) []domain.Product {
	return Filter(original, t.ClientPredicates(s, tree)...)
}

// Filter returns the products satisfying every predicate, in input order.
func Filter(products []domain.Product, preds ...Predicate) []domain.Product {
	out := make([]domain.Product, 0, len(products))
next:
	for _, p := range products {
		for _, keep := range preds {
			if !keep(p) {
				continue next
			}
		}
		out = append(out, p)
	}
	return out
}
