package rest

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	cfg.Timeout = 2 * time.Second
	cb := httpclient.NewCircuitBreakerClient(httpclient.New(cfg), httpclient.DefaultCircuitBreakerConfig("catalog-test"), discard)
	return New(srv.URL+"/", cb, discard)
}

// ============================================================================
// ListProducts
// ============================================================================

func TestListProducts_DecodesPage(t *testing.T) {
	var gotPath string
	var gotQuery url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{
			"products": [
				{"id": 1, "name": "Lamp", "price": "19.90", "original_price": 29.90, "stock": 3,
				 "category_id": 7, "brand_id": "b1", "rating": 4.5, "review_count": 12,
				 "created_at": "2024-03-01T10:00:00Z", "image_url": "/lamp.png", "is_new": true,
				 "attributes": [{"name": "color", "value": "red"}]}
			],
			"pagination": {"page": 2, "per_page": 20, "pages": 3, "total": 41}
		}`))
	})

	q := url.Values{"page": {"2"}, "per_page": {"20"}, "search": {"lamp"}}
	page, err := c.ListProducts(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, "/products", gotPath)
	assert.Equal(t, "lamp", gotQuery.Get("search"))

	require.Len(t, page.Products, 1)
	p := page.Products[0]
	assert.Equal(t, domain.ID("1"), p.ID)
	assert.Equal(t, "19.9", p.Price.String())
	require.NotNil(t, p.OriginalPrice)
	assert.Equal(t, "29.9", p.OriginalPrice.String())
	assert.Equal(t, 3, p.Stock)
	assert.Equal(t, domain.ID("7"), p.CategoryID)
	assert.Equal(t, domain.ID("b1"), p.BrandID)
	assert.InDelta(t, 4.5, p.RatingValue(), 0.0001)
	assert.Equal(t, 12, p.ReviewCount)
	assert.True(t, p.IsNew)
	assert.Equal(t, "/lamp.png", p.ImageURL)
	assert.Equal(t, []domain.Attribute{{Name: "color", Value: "red"}}, p.Attributes)
	assert.False(t, p.CreatedAt.IsZero())

	assert.Equal(t, 2, page.Pagination.Page)
	assert.Equal(t, 20, page.Pagination.PerPage)
	assert.Equal(t, 3, page.Pagination.Pages)
	assert.Equal(t, 41, page.Pagination.Total)
}

func TestListProducts_LenientFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": {"products": [
			{"id": "a", "title": "Chair", "selling_price": 120, "original_price": null,
			 "rating": "bogus", "stock": "x", "created_at": "not a date", "image": "/chair.png",
			 "is_new": "true", "attributes": "n/a"},
			{"id": "b", "name": "Desk", "price": -5, "rating": 9, "images": ["/desk-1.png", "/desk-2.png"]}
		]}}`))
	})

	page, err := c.ListProducts(context.Background(), url.Values{"per_page": {"10"}})
	require.NoError(t, err)
	require.Len(t, page.Products, 2)

	chair := page.Products[0]
	assert.Equal(t, "Chair", chair.Name)
	assert.Equal(t, "120", chair.Price.String())
	assert.Nil(t, chair.OriginalPrice)
	assert.Nil(t, chair.Rating)
	assert.Equal(t, 0, chair.Stock)
	assert.True(t, chair.CreatedAt.IsZero())
	assert.Equal(t, "/chair.png", chair.ImageURL)
	assert.True(t, chair.IsNew)
	assert.Empty(t, chair.Attributes)

	desk := page.Products[1]
	assert.True(t, desk.Price.IsZero())
	assert.InDelta(t, 5.0, desk.RatingValue(), 0.0001)
	assert.Equal(t, "/desk-1.png", desk.ImageURL)

	// Pagination absent: derived from the request and the products received.
	assert.Equal(t, 1, page.Pagination.Page)
	assert.Equal(t, 10, page.Pagination.PerPage)
	assert.Equal(t, 2, page.Pagination.Total)
	assert.Equal(t, 1, page.Pagination.Pages)
}

func TestListProducts_NotFoundMapsToAppError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"no such shop"}}`))
	})

	_, err := c.ListProducts(context.Background(), url.Values{"shop_id": {"9"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, apperrors.HTTPStatus(err))
}

func TestListProducts_ServerErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   int
	}{
		{"internal error is bad gateway", http.StatusInternalServerError, http.StatusBadGateway},
		{"unavailable stays unavailable", http.StatusServiceUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := c.ListProducts(context.Background(), nil)
			require.Error(t, err)
			assert.Equal(t, tt.want, apperrors.HTTPStatus(err))
		})
	}
}

func TestListProducts_MalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})
	_, err := c.ListProducts(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode products response")
}

// ============================================================================
// Taxonomy
// ============================================================================

func TestCategories_Envelopes(t *testing.T) {
	bodies := map[string]string{
		"bare array":    `[{"id":1,"name":"Home","children":[{"id":2,"name":"Lighting","parent_id":1}]}]`,
		"data envelope": `{"data":[{"id":1,"name":"Home","children":[{"id":2,"name":"Lighting","parent_id":1}]}]}`,
		"named list":    `{"categories":[{"id":1,"name":"Home","children":[{"id":2,"name":"Lighting","parent_id":1}]}]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/categories/all", r.URL.Path)
				_, _ = w.Write([]byte(body))
			})
			cats, err := c.Categories(context.Background())
			require.NoError(t, err)
			require.Len(t, cats, 1)
			assert.Equal(t, "Home", cats[0].Name)
			require.Len(t, cats[0].Children, 1)
			assert.Equal(t, domain.ID("1"), cats[0].Children[0].ParentID)
		})
	}
}

func TestBrands(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/brands/", r.URL.Path)
		_, _ = w.Write([]byte(`{"brands":[{"id":"b1","name":"Acme","slug":"acme"},{"id":"b2","name":"Globex"}]}`))
	})
	brands, err := c.Brands(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Brand{
		{ID: "b1", Name: "Acme", Slug: "acme"},
		{ID: "b2", Name: "Globex"},
	}, brands)
}

func TestBrands_UnknownEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total": 2}`))
	})
	_, err := c.Brands(context.Background())
	require.Error(t, err)
}

// ============================================================================
// Ping
// ============================================================================

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	up := New(srv.URL, nil, discard)
	require.NoError(t, up.Ping(context.Background()))

	srv.Close()
	assert.Error(t, up.Ping(context.Background()))
}
