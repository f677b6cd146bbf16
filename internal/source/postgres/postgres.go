// Package postgres reads the catalog straight from the product database,
// for deployments that run next to a read replica.
package postgres

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/source"
	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/pagination"
)

const (
	defaultPerPage = 20
	maxPerPage     = 1000
)

// productColumns is the SELECT list shared by every product query.
const productColumns = `p.id, p.name, p.slug, p.base_price, p.original_price, p.stock,
	p.category_id, p.brand_id, p.rating, p.review_count, p.image_url,
	p.is_new, p.is_built_in, p.featured, p.created_at`

// sortColumns whitelists sort_by values.
var sortColumns = map[string]string{
	"created_at":    "p.created_at",
	"selling_price": "p.base_price",
	"name":          "lower(p.name)",
}

// flagConditions whitelists boolean listing parameters.
var flagConditions = map[string]string{
	"is_new":    "p.is_new",
	"featured":  "p.featured",
	"promo":     "p.original_price > p.base_price",
	"wholesale": "p.wholesale",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Source implements source.Source over the product schema.
type Source struct {
	pool database.DBTX
}

// New creates a PostgreSQL-backed catalog source.
func New(pool database.DBTX) *Source {
	return &Source{pool: pool}
}

var _ source.Source = (*Source)(nil)

// ListProducts returns one page of published products matching q.
func (s *Source) ListProducts(ctx context.Context, q url.Values) (page *source.ProductPage, err error) {
	where, args, err := buildConditions(q)
	if err != nil {
		return nil, err
	}

	params := pagination.FromValues(q, defaultPerPage, maxPerPage)
	orderBy, err := buildOrder(q)
	if err != nil {
		return nil, err
	}

	filter := strings.Join(where, " AND ")
	filterArgs := slices.Clone(args)

	argIndex := len(args) + 1
	query := fmt.Sprintf(`
		SELECT %s,
			   count(*) OVER() AS total_count
		FROM products p
		WHERE %s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`,
		productColumns, filter, orderBy, argIndex, argIndex+1,
	)
	args = append(args, params.PerPage, params.Offset)

	ctx, end := database.TraceQuery(ctx, "ListProducts", query)
	defer func() { end(err) }()

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var (
		products   = []domain.Product{}
		totalCount int
	)
	for rows.Next() {
		var (
			p                           domain.Product
			id                          string
			basePrice                   int64
			originalPrice               *int64
			categoryID, brandID, imgURL *string
			createdAt                   time.Time
		)
		if err := rows.Scan(
			&id,
			&p.Name,
			&p.Slug,
			&basePrice,
			&originalPrice,
			&p.Stock,
			&categoryID,
			&brandID,
			&p.Rating,
			&p.ReviewCount,
			&imgURL,
			&p.IsNew,
			&p.IsBuiltIn,
			&p.Featured,
			&createdAt,
			&totalCount,
		); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}

		p.ID = domain.ID(id)
		p.Price = decimal.New(basePrice, -2)
		if originalPrice != nil && *originalPrice > 0 {
			orig := decimal.New(*originalPrice, -2)
			p.OriginalPrice = &orig
		}
		p.CategoryID = optionalID(categoryID)
		p.BrandID = optionalID(brandID)
		if imgURL != nil {
			p.ImageURL = *imgURL
		}
		p.CreatedAt = domain.Timestamp{Time: createdAt.UTC()}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	rows.Close()

	// A page past the end carries no window count.
	if len(products) == 0 && params.Offset > 0 {
		countQuery := fmt.Sprintf(`SELECT count(*) FROM products p WHERE %s`, filter)
		if err := s.pool.QueryRow(ctx, countQuery, filterArgs...).Scan(&totalCount); err != nil {
			return nil, fmt.Errorf("count products: %w", err)
		}
	}

	return &source.ProductPage{
		Products: products,
		Pagination: source.Pagination{
			Page:    params.Page,
			PerPage: params.PerPage,
			Pages:   pagination.TotalPages(totalCount, params.PerPage),
			Total:   totalCount,
		},
	}, nil
}

// Categories returns the active categories as a flat list in display
// order. Parents are linked through ParentID.
func (s *Source) Categories(ctx context.Context) (cats []domain.Category, err error) {
	query := `
		SELECT id, name, slug, icon_url, parent_id
		FROM categories
		WHERE is_active = true
		ORDER BY sort_order, name`

	ctx, end := database.TraceQuery(ctx, "Categories", query)
	defer func() { end(err) }()

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	cats = []domain.Category{}
	for rows.Next() {
		var (
			c              domain.Category
			id             string
			icon, parentID *string
		)
		if err := rows.Scan(&id, &c.Name, &c.Slug, &icon, &parentID); err != nil {
			return nil, fmt.Errorf("scan category row: %w", err)
		}
		c.ID = domain.ID(id)
		c.ParentID = optionalID(parentID)
		if icon != nil {
			c.Icon = *icon
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category rows: %w", err)
	}
	return cats, nil
}

// Brands returns every brand ordered by name.
func (s *Source) Brands(ctx context.Context) (brands []domain.Brand, err error) {
	query := `SELECT id, name, slug FROM brands ORDER BY name`

	ctx, end := database.TraceQuery(ctx, "Brands", query)
	defer func() { end(err) }()

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list brands: %w", err)
	}
	defer rows.Close()

	brands = []domain.Brand{}
	for rows.Next() {
		var (
			b  domain.Brand
			id string
		)
		if err := rows.Scan(&id, &b.Name, &b.Slug); err != nil {
			return nil, fmt.Errorf("scan brand row: %w", err)
		}
		b.ID = domain.ID(id)
		brands = append(brands, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate brand rows: %w", err)
	}
	return brands, nil
}

// buildConditions translates listing parameters into WHERE conditions and
// their positional arguments.
func buildConditions(q url.Values) ([]string, []any, error) {
	var (
		conditions = []string{"p.status = 'published'"}
		args       []any
		argIndex   = 1
	)
	next := func(v any) int {
		args = append(args, v)
		argIndex++
		return argIndex - 1
	}

	for _, key := range []string{"is_new", "featured", "promo", "wholesale"} {
		if v := q.Get(key); v != "" {
			on, err := strconv.ParseBool(v)
			if err != nil {
				return nil, nil, apperrors.InvalidParameter(key, v)
			}
			if on {
				conditions = append(conditions, flagConditions[key])
			}
		}
	}

	if v := q.Get("shop_id"); v != "" {
		conditions = append(conditions, fmt.Sprintf("p.shop_id = $%d", next(v)))
	}

	if v := q.Get("category_id"); v != "" {
		// The selected category matches its whole subtree.
		conditions = append(conditions, fmt.Sprintf(`p.category_id IN (
			WITH RECURSIVE subtree AS (
				SELECT id FROM categories WHERE id = $%d
				UNION ALL
				SELECT c.id FROM categories c JOIN subtree s ON c.parent_id = s.id
			)
			SELECT id FROM subtree)`, next(v)))
	}

	if v := q.Get("brand_id"); v != "" {
		var ids []string
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			conditions = append(conditions, fmt.Sprintf("p.brand_id = ANY($%d)", next(ids)))
		}
	}

	if v := q.Get("min_price"); v != "" {
		cents, err := parseCents("min_price", v)
		if err != nil {
			return nil, nil, err
		}
		conditions = append(conditions, fmt.Sprintf("p.base_price >= $%d", next(cents)))
	}
	if v := q.Get("max_price"); v != "" {
		cents, err := parseCents("max_price", v)
		if err != nil {
			return nil, nil, err
		}
		conditions = append(conditions, fmt.Sprintf("p.base_price <= $%d", next(cents)))
	}

	if v := strings.TrimSpace(q.Get("search")); v != "" {
		conditions = append(conditions, fmt.Sprintf(`p.name ILIKE $%d ESCAPE '\'`, next("%"+likeEscaper.Replace(v)+"%")))
	}

	if v := q.Get("min_rating"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, nil, apperrors.InvalidParameter("min_rating", v)
		}
		conditions = append(conditions, fmt.Sprintf("COALESCE(p.rating, 0) >= $%d", next(n)))
	}

	if v := q.Get("min_discount"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, nil, apperrors.InvalidParameter("min_discount", v)
		}
		idx := next(n)
		conditions = append(conditions, fmt.Sprintf(
			"p.original_price > p.base_price AND (p.original_price - p.base_price) * 100 >= $%d * p.original_price", idx))
	}

	return conditions, args, nil
}

func buildOrder(q url.Values) (string, error) {
	sortBy := q.Get("sort_by")
	if sortBy == "" {
		sortBy = "created_at"
	}
	column, ok := sortColumns[sortBy]
	if !ok {
		return "", apperrors.InvalidParameter("sort_by", sortBy)
	}

	direction := "DESC"
	switch order := strings.ToLower(q.Get("order")); order {
	case "", "desc":
	case "asc":
		direction = "ASC"
	default:
		return "", apperrors.InvalidParameter("order", order)
	}
	return fmt.Sprintf("%s %s, p.id", column, direction), nil
}

func parseCents(name, v string) (int64, error) {
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		return 0, apperrors.InvalidParameter(name, v)
	}
	return d.Shift(2).Round(0).IntPart(), nil
}

func optionalID(s *string) domain.ID {
	if s == nil {
		return ""
	}
	return domain.ID(*s)
}
