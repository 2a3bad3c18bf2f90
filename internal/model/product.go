package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry. The ledger reads it but never changes it.
type Product struct {
	ID             int64               `json:"id"`
	OrganizationID int64               `json:"organization_id"`
	CategoryID     *int64              `json:"category_id,omitempty"`
	Name           string              `json:"name"`
	BasePrice      decimal.Decimal     `json:"base_price"`
	MinPrice       decimal.NullDecimal `json:"min_price"`
	MaxPrice       decimal.NullDecimal `json:"max_price"`
	IsActive       bool                `json:"is_active"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// ClampToMax caps price at the product's maximum price, if it has one.
func (p *Product) ClampToMax(price decimal.Decimal) decimal.Decimal {
	if p.MaxPrice.Valid && price.GreaterThan(p.MaxPrice.Decimal) {
		return p.MaxPrice.Decimal
	}
	return price
}

// Category groups products within an organization.
type Category struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organization_id"`
	Name           string `json:"name"`
}

// BarStation is a point of sale within an organization.
type BarStation struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organization_id"`
	Name           string `json:"name"`
	IsActive       bool   `json:"is_active"`
}
