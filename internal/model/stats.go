package model

import "github.com/shopspring/decimal"

// UserSalesStats aggregates the sales one user made at one station.
type UserSalesStats struct {
	UserID         int64           `json:"user_id"`
	UserName       string          `json:"user_name"`
	UserEmail      string          `json:"user_email"`
	SalesCount     int             `json:"sales_count"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	ChargedRevenue decimal.Decimal `json:"charged_revenue"`
	BarStationID   *int64          `json:"bar_station_id,omitempty"`
	BarStationName string          `json:"bar_station_name,omitempty"`
}

// StationSalesStats aggregates the sales made at one station.
type StationSalesStats struct {
	BarStationID   int64           `json:"bar_station_id"`
	BarStationName string          `json:"bar_station_name,omitempty"`
	SalesCount     int             `json:"sales_count"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	ChargedRevenue decimal.Decimal `json:"charged_revenue"`
}
