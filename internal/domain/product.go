package domain

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Attribute is one attribute selection on a product, e.g. color=red.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Product is the read-only listing view of a catalog product.
type Product struct {
	ID            ID               `json:"id"`
	Name          string           `json:"name"`
	Slug          string           `json:"slug,omitempty"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"original_price,omitempty"`
	Stock         int              `json:"stock"`
	CategoryID    ID               `json:"category_id,omitempty"`
	BrandID       ID               `json:"brand_id,omitempty"`
	Attributes    []Attribute      `json:"attributes,omitempty"`
	Rating        *float64         `json:"rating,omitempty"`
	ReviewCount   int              `json:"review_count"`
	CreatedAt     Timestamp        `json:"created_at"`
	ImageURL      string           `json:"image_url,omitempty"`
	IsNew         bool             `json:"is_new"`
	IsBuiltIn     bool             `json:"is_built_in"`
	Featured      bool             `json:"featured"`
}

// DiscountPercent returns (original-price)/original*100. ok is false unless
// an original price is present and strictly greater than the price.
func (p Product) DiscountPercent() (pct decimal.Decimal, ok bool) {
	if p.OriginalPrice == nil || !p.OriginalPrice.IsPositive() || !p.OriginalPrice.GreaterThan(p.Price) {
		return decimal.Zero, false
	}
	orig := *p.OriginalPrice
	return orig.Sub(p.Price).Div(orig).Mul(hundred), true
}

// RatingValue returns the aggregate rating, 0 when absent.
func (p Product) RatingValue() float64 {
	if p.Rating == nil {
		return 0
	}
	return *p.Rating
}

