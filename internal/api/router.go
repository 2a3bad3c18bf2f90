package api

import (
	"net/http"

	"github.com/borsibaar/ledger/internal/ledger"
	"github.com/borsibaar/ledger/internal/model"
	"github.com/borsibaar/ledger/internal/stats"
	"github.com/borsibaar/ledger/internal/store"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(st *store.Store, svc *ledger.Service, agg *stats.Aggregator, jwtSecret string) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{Store: st, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{Store: st}
	catalogHandler := &CatalogHandler{Store: st}
	inventoryHandler := &InventoryHandler{Ledger: svc, Stats: agg}
	salesHandler := &SalesHandler{Ledger: svc}

	authMW := AuthMiddleware(jwtSecret, st)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	// Public.
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := st.DB().PingContext(r.Context()); err != nil {
			jsonError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))

	// Catalog: read (all roles), write (manager+).
	mux.Handle("POST /api/products", authMW(requireManager(http.HandlerFunc(catalogHandler.CreateProduct))))
	mux.Handle("GET /api/products/{id}", authMW(http.HandlerFunc(catalogHandler.GetProduct)))
	mux.Handle("DELETE /api/products/{id}", authMW(requireManager(http.HandlerFunc(catalogHandler.DeleteProduct))))
	mux.Handle("POST /api/categories", authMW(requireManager(http.HandlerFunc(catalogHandler.CreateCategory))))
	mux.Handle("POST /api/stations", authMW(requireManager(http.HandlerFunc(catalogHandler.CreateStation))))

	// Inventory: read (all), write (manager+).
	mux.Handle("GET /api/inventory", authMW(http.HandlerFunc(inventoryHandler.List)))
	mux.Handle("GET /api/inventory/product/{productId}", authMW(http.HandlerFunc(inventoryHandler.Get)))
	mux.Handle("GET /api/inventory/product/{productId}/history", authMW(http.HandlerFunc(inventoryHandler.History)))
	mux.Handle("POST /api/inventory/add", authMW(requireManager(http.HandlerFunc(inventoryHandler.AddStock))))
	mux.Handle("POST /api/inventory/remove", authMW(requireManager(http.HandlerFunc(inventoryHandler.RemoveStock))))
	mux.Handle("POST /api/inventory/adjust", authMW(requireManager(http.HandlerFunc(inventoryHandler.Adjust))))
	mux.Handle("POST /api/inventory/price", authMW(requireManager(http.HandlerFunc(inventoryHandler.UpdatePrice))))
	mux.Handle("GET /api/inventory/sales-stats", authMW(http.HandlerFunc(inventoryHandler.SalesStats)))
	mux.Handle("GET /api/inventory/station-sales-stats", authMW(http.HandlerFunc(inventoryHandler.StationSalesStats)))

	// Sales (all roles).
	mux.Handle("POST /api/sales", authMW(http.HandlerFunc(salesHandler.Create)))

	return mux
}
