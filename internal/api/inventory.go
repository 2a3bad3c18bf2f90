package api

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/borsibaar/ledger/internal/ledger"
	"github.com/borsibaar/ledger/internal/stats"
)

// InventoryHandler handles stock, pricing and statistics endpoints.
type InventoryHandler struct {
	Ledger *ledger.Service
	Stats  *stats.Aggregator
}

type addStockRequest struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Notes     string          `json:"notes"`
}

type removeStockRequest struct {
	ProductID   int64           `json:"product_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	ReferenceID string          `json:"reference_id"`
	Notes       string          `json:"notes"`
}

type adjustRequest struct {
	ProductID   int64            `json:"product_id"`
	NewQuantity *decimal.Decimal `json:"new_quantity"`
	Notes       string           `json:"notes"`
}

type priceRequest struct {
	ProductID int64            `json:"product_id"`
	NewPrice  *decimal.Decimal `json:"new_price"`
	Notes     string           `json:"notes"`
}

// List handles GET /api/inventory[?categoryId=].
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	var categoryID *int64
	if raw := r.URL.Query().Get("categoryId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid categoryId")
			return
		}
		categoryID = &id
	}

	items, err := h.Ledger.ListInventory(r.Context(), actor(r), categoryID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, items)
}

// Get handles GET /api/inventory/product/{productId}.
func (h *InventoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(r, "productId")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	inv, err := h.Ledger.GetInventory(r.Context(), actor(r), productID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, inv)
}

// History handles GET /api/inventory/product/{productId}/history.
func (h *InventoryHandler) History(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(r, "productId")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	// Resolves the product first so foreign products answer 403, not 404.
	a := actor(r)
	if _, err := h.Ledger.GetInventory(r.Context(), a, productID); err != nil {
		writeError(w, r, err)
		return
	}

	history, err := h.Stats.TransactionHistory(r.Context(), a.OrganizationID, productID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, history)
}

// AddStock handles POST /api/inventory/add.
func (h *InventoryHandler) AddStock(w http.ResponseWriter, r *http.Request) {
	var req addStockRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID <= 0 {
		jsonError(w, http.StatusBadRequest, "product_id is required")
		return
	}

	inv, err := h.Ledger.AddStock(r.Context(), actor(r), req.ProductID, req.Quantity, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, inv)
}

// RemoveStock handles POST /api/inventory/remove.
func (h *InventoryHandler) RemoveStock(w http.ResponseWriter, r *http.Request) {
	var req removeStockRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID <= 0 {
		jsonError(w, http.StatusBadRequest, "product_id is required")
		return
	}

	inv, err := h.Ledger.RemoveStock(r.Context(), actor(r), req.ProductID, req.Quantity, req.ReferenceID, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, inv)
}

// Adjust handles POST /api/inventory/adjust.
func (h *InventoryHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID <= 0 || req.NewQuantity == nil {
		jsonError(w, http.StatusBadRequest, "product_id and new_quantity are required")
		return
	}

	inv, err := h.Ledger.AdjustStock(r.Context(), actor(r), req.ProductID, *req.NewQuantity, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, inv)
}

// UpdatePrice handles POST /api/inventory/price.
func (h *InventoryHandler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID <= 0 || req.NewPrice == nil {
		jsonError(w, http.StatusBadRequest, "product_id and new_price are required")
		return
	}

	inv, err := h.Ledger.UpdatePrice(r.Context(), actor(r), req.ProductID, *req.NewPrice, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, inv)
}

// SalesStats handles GET /api/inventory/sales-stats.
func (h *InventoryHandler) SalesStats(w http.ResponseWriter, r *http.Request) {
	result, err := h.Stats.UserSalesStats(r.Context(), actor(r).OrganizationID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, result)
}

// StationSalesStats handles GET /api/inventory/station-sales-stats.
func (h *InventoryHandler) StationSalesStats(w http.ResponseWriter, r *http.Request) {
	result, err := h.Stats.StationSalesStats(r.Context(), actor(r).OrganizationID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, result)
}
