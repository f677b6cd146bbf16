// Package rest reads the catalog from the product service's REST API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/source"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/pkg/pagination"
	"github.com/utafrali/storefront/pkg/tracing"
)

const (
	upstream   = "catalog"
	tracerName = "github.com/utafrali/storefront/internal/source/rest"
	maxBody    = 8 << 20
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client is a source.Source backed by the catalog REST API.
type Client struct {
	baseURL string
	http    HTTPDoer
	logger  *slog.Logger
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, doer HTTPDoer, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    doer,
		logger:  logger,
	}
}

var _ source.Source = (*Client)(nil)

// ListProducts fetches one page of products matching q.
func (c *Client) ListProducts(ctx context.Context, q url.Values) (page *source.ProductPage, err error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "catalog.ListProducts",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("catalog.query", q.Encode())),
	)
	defer func() { tracing.End(span, err) }()

	body, err := c.get(ctx, "/products", q)
	if err != nil {
		return nil, err
	}

	var resp productsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode products response: %w", err)
	}
	if resp.Products == nil && resp.Data != nil {
		resp.productsPayload = *resp.Data
	}

	products := make([]domain.Product, 0, len(resp.Products))
	for _, w := range resp.Products {
		products = append(products, w.product())
	}

	meta := resp.Pagination.normalize(q, len(products))
	span.SetAttributes(attribute.Int("catalog.total", meta.Total))
	return &source.ProductPage{Products: products, Pagination: meta}, nil
}

// Categories fetches the full category tree.
func (c *Client) Categories(ctx context.Context) (cats []domain.Category, err error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "catalog.Categories", trace.WithSpanKind(trace.SpanKindClient))
	defer func() { tracing.End(span, err) }()

	body, err := c.get(ctx, "/categories/all", nil)
	if err != nil {
		return nil, err
	}
	cats, err = decodeList[domain.Category](body, "categories")
	if err != nil {
		return nil, fmt.Errorf("decode categories response: %w", err)
	}
	return cats, nil
}

// Brands fetches every brand.
func (c *Client) Brands(ctx context.Context) (brands []domain.Brand, err error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "catalog.Brands", trace.WithSpanKind(trace.SpanKindClient))
	defer func() { tracing.End(span, err) }()

	body, err := c.get(ctx, "/brands/", nil)
	if err != nil {
		return nil, err
	}
	brands, err = decodeList[domain.Brand](body, "brands")
	if err != nil {
		return nil, fmt.Errorf("decode brands response: %w", err)
	}
	return brands, nil
}

// Ping checks that the catalog host accepts connections.
func (c *Client) Ping(ctx context.Context) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("parse catalog url: %w", err)
	}
	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}

	d := net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return fmt.Errorf("dial catalog: %w", err)
	}
	return conn.Close()
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		c.logger.WarnContext(ctx, "catalog request failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, httpclient.AsAppError(fmt.Errorf("call catalog service: %w", err), upstream)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpclient.ParseResponseError(resp, upstream)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read catalog response: %w", err)
	}
	return body, nil
}

type productsPayload struct {
	Products   []productWire  `json:"products"`
	Pagination paginationWire `json:"pagination"`
}

type productsResponse struct {
	productsPayload
	Data *productsPayload `json:"data"`
}

type paginationWire struct {
	Page       flexInt `json:"page"`
	PerPage    flexInt `json:"per_page"`
	Pages      flexInt `json:"pages"`
	TotalPages flexInt `json:"total_pages"`
	Total      flexInt `json:"total"`
}

// normalize fills metadata the backend left out from the request and the
// number of products received.
func (p paginationWire) normalize(q url.Values, received int) source.Pagination {
	req := pagination.FromValues(q, max(received, 1), 1<<20)
	out := source.Pagination{
		Page:    int(p.Page),
		PerPage: int(p.PerPage),
		Pages:   int(p.Pages),
		Total:   int(p.Total),
	}
	if out.Page <= 0 {
		out.Page = req.Page
	}
	if out.PerPage <= 0 {
		out.PerPage = req.PerPage
	}
	if out.Total <= 0 && received > 0 {
		out.Total = (out.Page-1)*out.PerPage + received
	}
	if out.Pages <= 0 {
		out.Pages = int(p.TotalPages)
	}
	if out.Pages <= 0 {
		out.Pages = pagination.TotalPages(out.Total, out.PerPage)
	}
	return out
}

// productWire accepts the shapes the product service has used over time.
// Malformed optional fields decode to their zero value.
type productWire struct {
	ID            domain.ID        `json:"id"`
	Name          string           `json:"name"`
	Title         string           `json:"title"`
	Slug          string           `json:"slug"`
	Price         json.RawMessage  `json:"price"`
	SellingPrice  json.RawMessage  `json:"selling_price"`
	OriginalPrice json.RawMessage  `json:"original_price"`
	Stock         flexInt          `json:"stock"`
	CategoryID    domain.ID        `json:"category_id"`
	BrandID       domain.ID        `json:"brand_id"`
	Attributes    json.RawMessage  `json:"attributes"`
	Rating        json.RawMessage  `json:"rating"`
	ReviewCount   flexInt          `json:"review_count"`
	CreatedAt     domain.Timestamp `json:"created_at"`
	Image         string           `json:"image"`
	ImageURL      string           `json:"image_url"`
	Images        json.RawMessage  `json:"images"`
	IsNew         flexBool         `json:"is_new"`
	IsBuiltIn     flexBool         `json:"is_built_in"`
	Featured      flexBool         `json:"featured"`
}

func (w productWire) product() domain.Product {
	p := domain.Product{
		ID:          w.ID,
		Name:        w.Name,
		Slug:        w.Slug,
		Stock:       max(int(w.Stock), 0),
		CategoryID:  w.CategoryID,
		BrandID:     w.BrandID,
		ReviewCount: max(int(w.ReviewCount), 0),
		CreatedAt:   w.CreatedAt,
		ImageURL:    w.ImageURL,
		IsNew:       bool(w.IsNew),
		IsBuiltIn:   bool(w.IsBuiltIn),
		Featured:    bool(w.Featured),
	}
	if p.Name == "" {
		p.Name = w.Title
	}
	if p.ImageURL == "" {
		p.ImageURL = w.Image
	}
	if p.ImageURL == "" {
		var images []string
		if json.Unmarshal(w.Images, &images) == nil && len(images) > 0 {
			p.ImageURL = images[0]
		}
	}

	price, ok := parseDecimal(w.Price)
	if !ok {
		price, _ = parseDecimal(w.SellingPrice)
	}
	if price.IsNegative() {
		price = decimal.Zero
	}
	p.Price = price

	if orig, ok := parseDecimal(w.OriginalPrice); ok && orig.IsPositive() {
		p.OriginalPrice = &orig
	}
	if r, ok := parseDecimal(w.Rating); ok {
		v, _ := r.Float64()
		v = min(max(v, 0), 5)
		p.Rating = &v
	}

	var attrs []domain.Attribute
	if json.Unmarshal(w.Attributes, &attrs) == nil {
		for _, a := range attrs {
			if a.Name != "" {
				p.Attributes = append(p.Attributes, a)
			}
		}
	}
	return p
}

// parseDecimal reads a JSON number or numeric string.
func parseDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Zero, false
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// flexInt decodes numbers, numeric strings and null. Anything else is 0.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	d, ok := parseDecimal(data)
	if !ok {
		*n = 0
		return nil
	}
	*n = flexInt(d.IntPart())
	return nil
}

// flexBool decodes booleans, "true"/"false" strings and 0/1.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	v, err := strconv.ParseBool(s)
	*b = flexBool(err == nil && v)
	return nil
}

// decodeList accepts a bare array, a {"data": [...]} envelope or an object
// keyed by key.
func decodeList[T any](body []byte, key string) ([]T, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}
	if body[0] == '[' {
		var items []T
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	for _, k := range []string{key, "data", "items"} {
		raw, ok := envelope[k]
		if !ok {
			continue
		}
		return decodeList[T](raw, key)
	}
	return nil, fmt.Errorf("no %q list in response", key)
}
