package api

import (
	"net/http"

	"github.com/borsibaar/ledger/internal/ledger"
	"github.com/borsibaar/ledger/internal/model"
)

// SalesHandler handles point-of-sale checkouts.
type SalesHandler struct {
	Ledger *ledger.Service
}

// Create handles POST /api/sales. An Idempotency-Key header is used when the
// body carries no key of its own.
func (h *SalesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	sale, err := h.Ledger.ProcessSale(r.Context(), actor(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, sale)
}
