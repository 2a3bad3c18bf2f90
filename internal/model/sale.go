package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxSaleItems bounds the number of line items in one checkout.
const MaxSaleItems = 100

// SaleItem is one requested line of a checkout.
type SaleItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// SaleRequest is a checkout of one or more line items.
type SaleRequest struct {
	Items          []SaleItem `json:"items"`
	BarStationID   *int64     `json:"bar_station_id,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
}

// SaleLine is the outcome of one sold line item.
type SaleLine struct {
	ProductID  int64           `json:"product_id"`
	Name       string          `json:"name"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// Sale summarizes a processed checkout.
type Sale struct {
	SaleID      string          `json:"sale_id"`
	Items       []SaleLine      `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Notes       string          `json:"notes,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}
