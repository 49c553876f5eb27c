package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog. Products are never deleted,
// only deactivated, so existing orders keep a valid product reference.
type Product struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	Description   string          `json:"description" db:"description"`
	Price         decimal.Decimal `json:"price" db:"price"`
	Discount      decimal.Decimal `json:"discount" db:"discount"`
	Category      string          `json:"category" db:"category"`
	Brand         string          `json:"brand" db:"brand"`
	ImageURL      string          `json:"image_url" db:"image_url"`
	Stock         int             `json:"stock" db:"stock"`
	Sold          int             `json:"sold" db:"sold"`
	RatingAverage decimal.Decimal `json:"rating_average" db:"rating_average"`
	RatingCount   int             `json:"rating_count" db:"rating_count"`
	IsFeatured    bool            `json:"is_featured" db:"is_featured"`
	IsActive      bool            `json:"is_active" db:"is_active"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// DiscountedPrice returns the effective unit price after the discount
// percentage is applied. Discount is a percentage in [0,100].
func (p *Product) DiscountedPrice() decimal.Decimal {
	if p.Discount.IsPositive() {
		factor := decimal.NewFromInt(1).Sub(p.Discount.Div(decimal.NewFromInt(100)))
		return p.Price.Mul(factor).Round(2)
	}
	return p.Price
}

// Available reports whether the product can be sold in the requested
// quantity. Inactive products are never available.
func (p *Product) Available(quantity int) bool {
	return p.IsActive && p.Stock >= quantity
}
