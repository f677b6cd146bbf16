package catalog

import (
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
)

func money(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func rating(v float64) *float64 { return &v }

func product(id string, price string, original string, r *float64) domain.Product {
	p := domain.Product{ID: domain.ID(id), Name: "Product " + id, Price: decimal.RequireFromString(price), Rating: r}
	if original != "" {
		p.OriginalPrice = money(original)
	}
	return p
}

func ids(products []domain.Product) []domain.ID {
	out := make([]domain.ID, len(products))
	for i, p := range products {
		out[i] = p.ID
	}
	return out
}

// ============================================================================
// Server Query Tests
// ============================================================================

func TestServerQuery_AllServer(t *testing.T) {
	tr := Translator{
		Caps:    AllServer(),
		Bounds:  DefaultPriceBounds(),
		PerPage: 16,
		Base:    url.Values{"featured": {"true"}},
	}
	s := DefaultState(DefaultPriceBounds())
	s.Category = "5"
	s.Brands = []domain.ID{"12", "13"}
	s.Price = PriceRange{Min: d(100), Max: d(1_000_000)}
	s.Search = "shoe"
	s.Rating = 4
	s.Discount = 30
	s.Sort = SortPriceDesc
	s.Page = 2

	q := tr.ServerQuery(s)

	want := url.Values{
		"featured":     {"true"},
		"page":         {"2"},
		"per_page":     {"16"},
		"sort_by":      {"selling_price"},
		"order":        {"desc"},
		"category_id":  {"5"},
		"brand_id":     {"12,13"},
		"min_price":    {"100"},
		"search":       {"shoe"},
		"min_rating":   {"4"},
		"min_discount": {"30"},
	}
	assert.Equal(t, want, q)
	assert.Len(t, tr.Base, 1, "base values are not modified")
}

func TestServerQuery_DefaultsAreOmitted(t *testing.T) {
	tr := Translator{Caps: AllServer(), Bounds: DefaultPriceBounds(), PerPage: 16}

	q := tr.ServerQuery(DefaultState(DefaultPriceBounds()))
	assert.Equal(t, url.Values{
		"page":     {"1"},
		"per_page": {"16"},
		"sort_by":  {"created_at"},
		"order":    {"desc"},
	}, q)
}

func TestServerQuery_ClientModeFieldsAreNotSent(t *testing.T) {
	tr := Translator{
		Caps:       Capabilities{Category: true, Search: true},
		Bounds:     DefaultPriceBounds(),
		PerPage:    12,
		FetchLimit: 200,
	}
	s := DefaultState(DefaultPriceBounds())
	s.Category = "5"
	s.Rating = 4
	s.Discount = 20
	s.Brands = []domain.ID{"1"}
	s.Page = 3

	q := tr.ServerQuery(s)
	assert.Equal(t, url.Values{
		"page":        {"1"},
		"per_page":    {"200"},
		"category_id": {"5"},
	}, q)
}

func TestSortKey_ServerParams(t *testing.T) {
	tests := map[SortKey][2]string{
		SortNewest:    {"created_at", "desc"},
		SortOldest:    {"created_at", "asc"},
		SortPriceDesc: {"selling_price", "desc"},
		SortPriceAsc:  {"selling_price", "asc"},
		SortNameAsc:   {"name", "asc"},
		SortNameDesc:  {"name", "desc"},
	}
	for key, want := range tests {
		by, order := key.ServerParams()
		assert.Equal(t, want, [2]string{by, order}, string(key))
	}
}

// ============================================================================
// Client Filter Tests
// ============================================================================

func TestDiscountAtLeast(t *testing.T) {
	discounted := product("1", "700", "1000", nil)
	plain := product("2", "700", "", nil)

	assert.True(t, DiscountAtLeast(30)(discounted))
	assert.False(t, DiscountAtLeast(40)(discounted))
	for _, threshold := range []int{1, 10, 50} {
		assert.False(t, DiscountAtLeast(threshold)(plain))
	}
	assert.False(t, DiscountAtLeast(10)(product("3", "900", "800", nil)), "original below price has no discount")
}

func TestRatingAtLeast_MissingRatingIsZero(t *testing.T) {
	assert.False(t, RatingAtLeast(1)(product("1", "10", "", nil)))
	assert.True(t, RatingAtLeast(4)(product("2", "10", "", rating(4))))
	assert.False(t, RatingAtLeast(5)(product("3", "10", "", rating(4.9))))
}

func clientTranslator() Translator {
	return Translator{Caps: Capabilities{Paging: false}, Bounds: DefaultPriceBounds(), PerPage: 16, FetchLimit: 100}
}

func TestApplyClientFilters_Idempotent(t *testing.T) {
	original := []domain.Product{
		product("1", "700", "1000", rating(4.5)),
		product("2", "900", "1000", rating(5)),
		product("3", "500", "1000", nil),
		product("4", "100", "", rating(4)),
		product("5", "300", "600", rating(3)),
	}
	snapshot := append([]domain.Product{}, original...)

	s := DefaultState(DefaultPriceBounds())
	s.Discount = 30
	s.Rating = 4
	tr := clientTranslator()

	once := tr.ApplyClientFilters(original, s, nil)
	twice := tr.ApplyClientFilters(original, s, nil)

	assert.Equal(t, []domain.ID{"1"}, ids(once))
	assert.Equal(t, once, twice)
	assert.Equal(t, snapshot, original, "original products are not mutated")

	filteredAgain := tr.ApplyClientFilters(once, s, nil)
	assert.Equal(t, once, filteredAgain)
}

func TestApplyClientFilters_ThresholdChangeStartsFromOriginal(t *testing.T) {
	original := []domain.Product{
		product("1", "700", "1000", rating(2)),
		product("2", "500", "1000", rating(5)),
	}
	tr := clientTranslator()
	s := DefaultState(DefaultPriceBounds())

	s.Rating = 5
	assert.Equal(t, []domain.ID{"2"}, ids(tr.ApplyClientFilters(original, s, nil)))

	s.Rating = 0
	assert.Equal(t, []domain.ID{"1", "2"}, ids(tr.ApplyClientFilters(original, s, nil)))
}

func TestApplyClientFilters_ReturnsNewSlice(t *testing.T) {
	original := []domain.Product{product("1", "10", "", nil)}
	out := clientTranslator().ApplyClientFilters(original, DefaultState(DefaultPriceBounds()), nil)
	require.Len(t, out, 1)

	out[0].Name = "changed"
	assert.Equal(t, "Product 1", original[0].Name)
}

func TestApplyClientFilters_CategoryIncludesDescendants(t *testing.T) {
	tree := NewTree([]domain.Category{
		{ID: "2", Name: "Shoes", Children: []domain.Category{{ID: "23", Name: "Running"}}},
		{ID: "9", Name: "Bags"},
	})
	a := product("a", "10", "", nil)
	a.CategoryID = "2"
	b := product("b", "10", "", nil)
	b.CategoryID = "23"
	c := product("c", "10", "", nil)
	c.CategoryID = "9"

	s := DefaultState(DefaultPriceBounds())
	s.Category = "2"
	out := clientTranslator().ApplyClientFilters([]domain.Product{a, b, c}, s, tree)
	assert.Equal(t, []domain.ID{"a", "b"}, ids(out))
}

func TestApplyClientFilters_BrandPriceSearch(t *testing.T) {
	a := product("a", "50", "", nil)
	a.BrandID, a.Name = "1", "Trail Runner"
	b := product("b", "150", "", nil)
	b.BrandID, b.Name = "1", "Trail Boot"
	c := product("c", "60", "", nil)
	c.BrandID, c.Name = "2", "Trail Sandal"

	s := DefaultState(DefaultPriceBounds())
	s.Brands = []domain.ID{"1"}
	s.Price = PriceRange{Min: d(0), Max: d(100)}
	s.Search = "trail"

	out := clientTranslator().ApplyClientFilters([]domain.Product{a, b, c}, s, nil)
	assert.Equal(t, []domain.ID{"a"}, ids(out))
}

func TestApplyClientFilters_ServerHandledFiltersAreSkipped(t *testing.T) {
	original := []domain.Product{product("1", "10", "", nil)}
	s := DefaultState(DefaultPriceBounds())
	s.Rating = 5
	s.Search = "nothing matches"

	tr := Translator{Caps: AllServer(), Bounds: DefaultPriceBounds(), PerPage: 16}
	assert.Empty(t, tr.ClientPredicates(s, nil))
	assert.Len(t, tr.ApplyClientFilters(original, s, nil), 1)
}

// ============================================================================
// Sort Tests
// ============================================================================

func sortFixture() []domain.Product {
	at := func(day int) domain.Timestamp {
		return domain.Timestamp{Time: time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)}
	}
	return []domain.Product{
		{ID: "a", Name: "banana", Price: d(20), CreatedAt: at(2)},
		{ID: "b", Name: "Apple", Price: d(10), CreatedAt: at(3)},
		{ID: "c", Name: "cherry", Price: d(20)},
		{ID: "d", Name: "apple", Price: d(5), CreatedAt: at(1)},
	}
}

func TestSortProducts(t *testing.T) {
	tests := []struct {
		key  SortKey
		want []domain.ID
	}{
		{SortNewest, []domain.ID{"b", "a", "d", "c"}},
		{SortOldest, []domain.ID{"c", "d", "a", "b"}},
		{SortPriceAsc, []domain.ID{"d", "b", "a", "c"}},
		{SortPriceDesc, []domain.ID{"a", "c", "b", "d"}},
		{SortNameAsc, []domain.ID{"b", "d", "a", "c"}},
		{SortNameDesc, []domain.ID{"c", "a", "b", "d"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			assert.Equal(t, tt.want, ids(SortProducts(sortFixture(), tt.key)))
		})
	}
}

func TestSortProducts_DoesNotMutateAndIsRepeatable(t *testing.T) {
	input := sortFixture()
	snapshot := sortFixture()

	for _, key := range SortKeys() {
		first := SortProducts(input, key)
		second := SortProducts(input, key)

		assert.Equal(t, first, second, string(key))
		assert.ElementsMatch(t, ids(input), ids(first), string(key))
		assert.Equal(t, snapshot, input, string(key))
	}
}

func TestSortProducts_Nil(t *testing.T) {
	assert.NotNil(t, SortProducts(nil, SortNewest))
}

// ============================================================================
// Pagination Tests
// ============================================================================

func TestPaginate(t *testing.T) {
	items := make([]domain.Product, 50)
	for i := range items {
		items[i] = domain.Product{ID: domain.ID(strconv.Itoa(i))}
	}

	page, info := Paginate(items, 5, 16)
	assert.Equal(t, 4, info.Page)
	assert.Equal(t, 4, info.TotalPages)
	assert.Equal(t, 50, info.Total)
	assert.Len(t, page, 2)

	page, info = Paginate(items, 0, 16)
	assert.Equal(t, 1, info.Page)
	assert.Len(t, page, 16)

	page, info = Paginate(nil, 3, 16)
	assert.Equal(t, 1, info.Page)
	assert.Equal(t, 1, info.TotalPages)
	assert.Empty(t, page)
}

func TestServerPagination_EndToEnd(t *testing.T) {
	info := NewPageInfo(1, 16, 50)
	require.Equal(t, 4, info.TotalPages)

	h := NewHolder(DefaultPriceBounds(), BrandMulti)
	h.SetTotalPages(info.TotalPages)

	assert.Equal(t, 4, h.SetPage(5))
	assert.Equal(t, 1, h.SetPage(0))
}
