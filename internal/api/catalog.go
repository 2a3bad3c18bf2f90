package api

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/borsibaar/ledger/internal/model"
	"github.com/borsibaar/ledger/internal/store"
)

// CatalogHandler handles products, categories and bar stations.
type CatalogHandler struct {
	Store *store.Store
}

type createProductRequest struct {
	Name       string              `json:"name"`
	CategoryID *int64              `json:"category_id"`
	BasePrice  decimal.Decimal     `json:"base_price"`
	MinPrice   decimal.NullDecimal `json:"min_price"`
	MaxPrice   decimal.NullDecimal `json:"max_price"`
}

type nameRequest struct {
	Name string `json:"name"`
}

// CreateProduct handles POST /api/products.
func (h *CatalogHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.Store.CreateProduct(r.Context(), model.Product{
		OrganizationID: actor(r).OrganizationID,
		CategoryID:     req.CategoryID,
		Name:           req.Name,
		BasePrice:      req.BasePrice,
		MinPrice:       req.MinPrice,
		MaxPrice:       req.MaxPrice,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("product created", "product_id", p.ID, "name", p.Name, "organization", p.OrganizationID)
	jsonResponse(w, http.StatusCreated, p)
}

// ownProduct loads a product of the caller's organization.
func (h *CatalogHandler) ownProduct(r *http.Request, id int64) (*model.Product, error) {
	p, err := h.Store.GetProduct(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, model.Errorf(model.ErrNotFound, "Product not found: %d", id)
	}
	if p.OrganizationID != actor(r).OrganizationID {
		return nil, model.Errorf(model.ErrForbidden, "Product does not belong to your organization")
	}
	return p, nil
}

// GetProduct handles GET /api/products/{id}.
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	p, err := h.ownProduct(r, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// DeleteProduct handles DELETE /api/products/{id}. The product is only
// deactivated; its inventory and history remain.
func (h *CatalogHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	p, err := h.ownProduct(r, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Store.SetProductActive(r.Context(), p.ID, false); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("product deactivated", "product_id", p.ID, "name", p.Name)
	w.WriteHeader(http.StatusNoContent)
}

// CreateCategory handles POST /api/categories.
func (h *CatalogHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.Store.CreateCategory(r.Context(), actor(r).OrganizationID, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, c)
}

// CreateStation handles POST /api/stations.
func (h *CatalogHandler) CreateStation(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	st, err := h.Store.CreateStation(r.Context(), actor(r).OrganizationID, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, st)
}
