package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Inventory is the current-state record for one product within an organization.
type Inventory struct {
	ID             int64           `json:"id"`
	OrganizationID int64           `json:"organization_id"`
	ProductID      int64           `json:"product_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	Version        int64           `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	// Joined fields (not always populated).
	ProductName string              `json:"product_name,omitempty"`
	BasePrice   decimal.NullDecimal `json:"base_price"`
	MinPrice    decimal.NullDecimal `json:"min_price"`
	MaxPrice    decimal.NullDecimal `json:"max_price"`
}

// Transaction types.
const (
	TransactionPurchase   = "PURCHASE"
	TransactionSale       = "SALE"
	TransactionAdjustment = "ADJUSTMENT"
	TransactionInitial    = "INITIAL"
)

// Transaction is an immutable ledger entry describing one change to an
// inventory record.
type Transaction struct {
	ID              int64           `json:"id"`
	InventoryID     int64           `json:"inventory_id"`
	OrganizationID  int64           `json:"organization_id"`
	TransactionType string          `json:"transaction_type"`
	QuantityChange  decimal.Decimal `json:"quantity_change"`
	QuantityBefore  decimal.Decimal `json:"quantity_before"`
	QuantityAfter   decimal.Decimal `json:"quantity_after"`
	PriceBefore     decimal.Decimal `json:"price_before"`
	PriceAfter      decimal.Decimal `json:"price_after"`
	ReferenceID     string          `json:"reference_id,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedBy       *int64          `json:"created_by,omitempty"`
	BarStationID    *int64          `json:"bar_station_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`

	// Joined fields (not always populated).
	ProductID      int64  `json:"product_id,omitempty"`
	CreatedByName  string `json:"created_by_name,omitempty"`
	CreatedByEmail string `json:"created_by_email,omitempty"`
}

// Mutation is a new state for one inventory record together with the ledger
// entries that explain how it was reached.
type Mutation struct {
	Inventory    Inventory
	Transactions []Transaction
}
