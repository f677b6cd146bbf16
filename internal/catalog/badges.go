package catalog

import (
	"fmt"

	"github.com/utafrali/storefront/internal/domain"
)

// Badge fields, one per narrowing part of the state.
const (
	BadgeCategory = "category"
	BadgeBrand    = "brand"
	BadgePrice    = "price"
	BadgeRating   = "rating"
	BadgeDiscount = "discount"
	BadgeSearch   = "search"
)

// Badge is one active filter shown above the grid. Value identifies what
// clearing it removes (the brand id for brand badges).
type Badge struct {
	Field string `json:"field"`
	Label string `json:"label"`
	Value string `json:"value,omitempty"`
}

// Badges lists the active filters of s in a stable order. Names come from
// tree and brands when known; unknown ids are shown as-is.
func Badges(s State, bounds PriceRange, tree *Tree, brands []domain.Brand) []Badge {
	var out []Badge

	if !s.Category.IsZero() {
		label := s.Category.String()
		if tree != nil {
			if c, ok := tree.Lookup(s.Category); ok {
				label = c.Name
			}
		}
		out = append(out, Badge{Field: BadgeCategory, Label: label, Value: s.Category.String()})
	}

	names := make(map[domain.ID]string, len(brands))
	for _, b := range brands {
		names[b.ID] = b.Name
	}
	for _, id := range s.Brands {
		label, ok := names[id]
		if !ok {
			label = id.String()
		}
		out = append(out, Badge{Field: BadgeBrand, Label: label, Value: id.String()})
	}

	if !s.Price.Equal(bounds) {
		out = append(out, Badge{Field: BadgePrice, Label: fmt.Sprintf("%s - %s", s.Price.Min, s.Price.Max)})
	}
	if s.Rating > 0 {
		out = append(out, Badge{Field: BadgeRating, Label: fmt.Sprintf("%d+ stars", s.Rating)})
	}
	if s.Discount > 0 {
		out = append(out, Badge{Field: BadgeDiscount, Label: fmt.Sprintf("%d%%+ off", s.Discount)})
	}
	if s.Search != "" {
		out = append(out, Badge{Field: BadgeSearch, Label: fmt.Sprintf("%q", s.Search)})
	}
	return out
}
