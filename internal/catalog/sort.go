package catalog

import (
	"cmp"
	"slices"
	"strings"

	"github.com/utafrali/storefront/internal/domain"
)

// SortProducts returns a sorted copy of products. The sort is stable and
// products is left untouched. A missing creation time sorts as the epoch.
func SortProducts(products []domain.Product, key SortKey) []domain.Product {
	out := slices.Clone(products)
	if out == nil {
		out = []domain.Product{}
	}
	slices.SortStableFunc(out, comparator(key))
	return out
}

func comparator(key SortKey) func(a, b domain.Product) int {
	switch key {
	case SortOldest:
		return func(a, b domain.Product) int {
			return cmp.Compare(a.CreatedAt.UnixMilli(), b.CreatedAt.UnixMilli())
		}
	case SortPriceDesc:
		return func(a, b domain.Product) int { return b.Price.Cmp(a.Price) }
	case SortPriceAsc:
		return func(a, b domain.Product) int { return a.Price.Cmp(b.Price) }
	case SortNameAsc:
		return func(a, b domain.Product) int { return compareNames(a.Name, b.Name) }
	case SortNameDesc:
		return func(a, b domain.Product) int { return compareNames(b.Name, a.Name) }
	default:
		return func(a, b domain.Product) int {
			return cmp.Compare(b.CreatedAt.UnixMilli(), a.CreatedAt.UnixMilli())
		}
	}
}

func compareNames(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}
