package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/listing"
	"github.com/utafrali/storefront/internal/session"
	"github.com/utafrali/storefront/internal/source"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/pagination"
)

// --- Fake catalog source ---

type fakeSource struct {
	mu       sync.Mutex
	products []domain.Product
	queries  []url.Values
}

func (f *fakeSource) ListProducts(_ context.Context, q url.Values) (*source.ProductPage, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	params := pagination.FromValues(q, 20, 100)
	items, page := pagination.Slice(f.products, params.Page, params.PerPage)
	return &source.ProductPage{
		Products: items,
		Pagination: source.Pagination{
			Page:    page,
			PerPage: params.PerPage,
			Pages:   pagination.TotalPages(len(f.products), params.PerPage),
			Total:   len(f.products),
		},
	}, nil
}

func (f *fakeSource) Categories(context.Context) ([]domain.Category, error) {
	return []domain.Category{
		{ID: "2", Name: "Lighting", Children: []domain.Category{{ID: "21", Name: "Lamps"}}},
		{ID: "5", Name: "Bags"},
	}, nil
}

func (f *fakeSource) Brands(context.Context) ([]domain.Brand, error) {
	return []domain.Brand{{ID: "b1", Name: "Lumen"}, {ID: "b2", Name: "Carry"}}, nil
}

func (f *fakeSource) last() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

// --- Test helpers ---

type envelope struct {
	Data  json.RawMessage         `json:"data"`
	Error *httputil.ErrorResponse `json:"error"`
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(t *testing.T) (http.Handler, *fakeSource) {
	t.Helper()

	products := make([]domain.Product, 5)
	for i := range products {
		products[i] = domain.Product{
			ID:    domain.ID(strconv.Itoa(i + 1)),
			Name:  fmt.Sprintf("Desk lamp %d", i+1),
			Price: decimal.NewFromInt(int64(40 + i)),
		}
	}
	src := &fakeSource{products: products}

	profiles := listing.NewRegistry(listing.DefaultProfiles(listing.Defaults{
		PerPage:    2,
		FetchLimit: 100,
		Bounds:     catalog.DefaultPriceBounds(),
	})...)
	factory := func(p listing.Profile) *listing.Pipeline {
		return listing.New(p, listing.Deps{Source: src, Logger: testLogger()})
	}
	store := session.NewStore(factory, time.Minute, 10, testLogger())
	t.Cleanup(store.Close)

	cfg := &config.Config{
		ServiceName:         "storefront-test",
		RequestTimeout:      5 * time.Second,
		CORSAllowedOrigins:  []string{"http://localhost:3000"},
		MetricsAllowedCIDRs: []string{"127.0.0.0/8"},
		PprofAllowedCIDRs:   []string{"127.0.0.1/32"},
	}
	limiter := middleware.NewRateLimiter(10000, 20000, time.Minute)
	h := NewListingHandler(profiles, store, factory, testLogger())

	return NewRouter(cfg, h, health.NewHandler(), limiter, testLogger()), src
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func decodeView(t *testing.T, raw json.RawMessage) listing.View {
	t.Helper()
	var v listing.View
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func mountSession(t *testing.T, h http.Handler, profile string) string {
	t.Helper()
	rec, env := do(t, h, http.MethodPost, "/api/v1/listings/"+profile+"/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

// ============================================================================
// Profiles and one-shot renders
// ============================================================================

func TestListProfiles(t *testing.T) {
	h, _ := newTestRouter(t)

	rec, env := do(t, h, http.MethodGet, "/api/v1/listings", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var profiles []struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &profiles))
	names := make([]string, 0, len(profiles))
	for _, p := range profiles {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"products", "new", "featured", "promo", "search", "shop", "wholesale"}, names)
}

func TestRender(t *testing.T) {
	h, src := newTestRouter(t)

	rec, env := do(t, h, http.MethodGet, "/api/v1/listings/products?category=21&sort=price-asc", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "public, max-age=30", rec.Header().Get("Cache-Control"))

	view := decodeView(t, env.Data)
	assert.Equal(t, "products", view.Profile)
	assert.Equal(t, listing.StatusReady, view.Status)
	assert.Len(t, view.Products, 2)
	assert.Equal(t, 1, view.Pagination.Page)
	assert.Equal(t, 3, view.Pagination.TotalPages)
	assert.Equal(t, domain.ID("21"), view.State.Category)
	assert.Contains(t, view.Expanded, domain.ID("2"))

	q := src.last()
	assert.Equal(t, "1", q.Get("page"))
	assert.Equal(t, "2", q.Get("per_page"))
	assert.Equal(t, "21", q.Get("category_id"))
}

func TestRender_UnknownProfile(t *testing.T) {
	h, _ := newTestRouter(t)

	rec, env := do(t, h, http.MethodGet, "/api/v1/listings/clearance", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestRender_ShopRequiresScope(t *testing.T) {
	h, _ := newTestRouter(t)

	rec, env := do(t, h, http.MethodGet, "/api/v1/listings/shop", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Message, "shop_id")
}

// ============================================================================
// Sessions
// ============================================================================

func TestSession_Lifecycle(t *testing.T) {
	h, src := newTestRouter(t)

	rec, env := do(t, h, http.MethodPost, "/api/v1/listings/products/sessions?brand=b1", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var mounted struct {
		SessionID string       `json:"session_id"`
		View      listing.View `json:"view"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &mounted))
	assert.Equal(t, "/api/v1/sessions/"+mounted.SessionID, rec.Header().Get("Location"))
	assert.Equal(t, []domain.ID{"b1"}, mounted.View.State.Brands)

	path := "/api/v1/sessions/" + mounted.SessionID

	rec, env = do(t, h, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, listing.StatusReady, decodeView(t, env.Data).Status)

	rec, env = do(t, h, http.MethodPost, path+"/actions", `{"type":"set_page","value":3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decodeView(t, env.Data)
	assert.Equal(t, 3, view.Pagination.Page)
	assert.Equal(t, "3", src.last().Get("page"))
	assert.Equal(t, "b1", src.last().Get("brand_id"))

	rec, env = do(t, h, http.MethodPost, path+"/retry", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Greater(t, decodeView(t, env.Data).Generation, view.Generation)

	rec, _ = do(t, h, http.MethodGet, path+"?wait=true", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = do(t, h, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestDispatch_PriceRange(t *testing.T) {
	h, src := newTestRouter(t)
	id := mountSession(t, h, "products")

	rec, env := do(t, h, http.MethodPost, "/api/v1/sessions/"+id+"/actions",
		`{"type":"set_price_range","min":"10.50","max":"99"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	view := decodeView(t, env.Data)
	assert.True(t, view.State.Price.Min.Equal(decimal.RequireFromString("10.50")))
	assert.Equal(t, "10.5", src.last().Get("min_price"))
}

func TestDispatch_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		code  string
		field string
	}{
		{"unknown type", `{"type":"explode"}`, "VALIDATION_ERROR", "type"},
		{"missing type", `{"value":"x"}`, "VALIDATION_ERROR", "type"},
		{"negative min", `{"type":"set_price_range","min":"-1"}`, "VALIDATION_ERROR", "min"},
		{"unknown field", `{"type":"reset","extra":true}`, "INVALID_INPUT", ""},
		{"object value", `{"type":"set_search","value":{"q":"x"}}`, "INVALID_INPUT", ""},
		{"malformed", `{"type":`, "INVALID_INPUT", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestRouter(t)
			id := mountSession(t, h, "products")

			rec, env := do(t, h, http.MethodPost, "/api/v1/sessions/"+id+"/actions", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
			if tt.field != "" {
				assert.Contains(t, env.Error.Fields, tt.field)
			}
		})
	}
}

func TestSession_InvalidID(t *testing.T) {
	h, _ := newTestRouter(t)

	rec, env := do(t, h, http.MethodGet, "/api/v1/sessions/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_PARAMETER", env.Error.Code)

	rec, _ = do(t, h, http.MethodDelete, "/api/v1/sessions/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuggestions(t *testing.T) {
	h, _ := newTestRouter(t)
	id := mountSession(t, h, "search")

	rec, env := do(t, h, http.MethodGet, "/api/v1/sessions/"+id+"/suggestions?q=lamps&limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var suggestions []catalog.Suggestion
	require.NoError(t, json.Unmarshal(env.Data, &suggestions))
	assert.LessOrEqual(t, len(suggestions), 3)
	assert.NotEmpty(t, suggestions)
}

func TestSuggestions_Errors(t *testing.T) {
	h, _ := newTestRouter(t)

	search := mountSession(t, h, "search")
	rec, env := do(t, h, http.MethodGet, "/api/v1/sessions/"+search+"/suggestions?q=x&limit=50", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_PARAMETER", env.Error.Code)

	products := mountSession(t, h, "products")
	rec, env = do(t, h, http.MethodGet, "/api/v1/sessions/"+products+"/suggestions?q=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Message, "suggestions are not enabled")
}

// ============================================================================
// Infrastructure routes
// ============================================================================

func TestHealthLive(t *testing.T) {
	h, _ := newTestRouter(t)

	rec, _ := do(t, h, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetrics_IPAllowlist(t *testing.T) {
	h, _ := newTestRouter(t)

	// httptest requests come from 192.0.2.1.
	rec, _ := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	allowed := httptest.NewRecorder()
	h.ServeHTTP(allowed, req)
	assert.Equal(t, http.StatusOK, allowed.Code)
}
