package listing

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/catalog"
)

func TestDefaultProfiles(t *testing.T) {
	reg := NewRegistry(DefaultProfiles(Defaults{PerPage: 16, FetchLimit: 100, Bounds: catalog.DefaultPriceBounds()})...)

	assert.Equal(t, []string{"featured", "new", "products", "promo", "search", "shop", "wholesale"}, reg.Names())
	assert.Len(t, reg.All(), 7)
	assert.Equal(t, "products", reg.All()[0].Name)

	promo, ok := reg.Lookup("promo")
	require.True(t, ok)
	assert.True(t, promo.SingleBrand())
	assert.False(t, promo.Caps.Paging)

	search, _ := reg.Lookup("search")
	assert.True(t, search.Suggestions)

	_, ok = reg.Lookup("clearance")
	assert.False(t, ok)
}

func TestProfile_TranslatorMergesScope(t *testing.T) {
	reg := NewRegistry(DefaultProfiles(Defaults{PerPage: 16, FetchLimit: 100, Bounds: catalog.DefaultPriceBounds()})...)
	shop, _ := reg.Lookup("shop")

	scope, err := shop.ScopeValues(url.Values{"shop_id": {" 42 "}})
	require.NoError(t, err)

	tr := shop.Translator(scope)
	q := tr.ServerQuery(catalog.DefaultState(catalog.DefaultPriceBounds()))
	assert.Equal(t, "42", q.Get("shop_id"))
	assert.Empty(t, shop.Base.Get("shop_id"), "profile base is not modified")
}

func TestRegistry_LaterDuplicateWins(t *testing.T) {
	reg := NewRegistry(Profile{Name: "a", Title: "first"}, Profile{Name: "a", Title: "second"})
	p, _ := reg.Lookup("a")
	assert.Equal(t, "second", p.Title)
	assert.Len(t, reg.All(), 1)
}
