package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/borsibaar/ledger/internal/auth"
	"github.com/borsibaar/ledger/internal/db"
	"github.com/borsibaar/ledger/internal/ledger"
	"github.com/borsibaar/ledger/internal/model"
	"github.com/borsibaar/ledger/internal/stats"
	"github.com/borsibaar/ledger/internal/store"
)

const testJWTSecret = "test-secret"

type keyGuard struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (g *keyGuard) Acquire(ctx context.Context, organizationID int64, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := fmt.Sprintf("%d:%s", organizationID, key)
	if g.keys[k] {
		return false, nil
	}
	g.keys[k] = true
	return true, nil
}

func (g *keyGuard) Release(ctx context.Context, organizationID int64, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, fmt.Sprintf("%d:%s", organizationID, key))
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	st := store.New(db.NewTestDB(t), db.SQLite)
	svc := ledger.NewService(st, st, ledger.DefaultConfig(),
		ledger.WithIdempotencyGuard(&keyGuard{keys: make(map[string]bool)}))
	server := httptest.NewServer(NewRouter(st, svc, stats.New(st), testJWTSecret))
	t.Cleanup(server.Close)
	return server, st
}

func setupTestServer(t *testing.T) (*httptest.Server, *store.Store, string) {
	t.Helper()
	server, st := newTestServer(t)

	// Create admin user.
	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if _, err := st.CreateUser(ctx, 1, "Admin", "admin@example.com", string(hash), model.RoleAdmin); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	// Get token.
	body, _ := json.Marshal(map[string]string{"email": "admin@example.com", "password": "password"})
	resp, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	json.NewDecoder(resp.Body).Decode(&loginResp)
	if loginResp.Token == "" {
		t.Fatal("empty token from login")
	}

	return server, st, loginResp.Token
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// do sends an authenticated request, checks the status and decodes the body into out.
func do(t *testing.T, method, url, token string, body any, wantStatus int, out any) {
	t.Helper()
	req, _ := authRequest(method, url, token, body)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		var msg map[string]string
		json.NewDecoder(resp.Body).Decode(&msg)
		t.Fatalf("%s %s: expected %d, got %d (%s)", method, url, wantStatus, resp.StatusCode, msg["error"])
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
	}
}

func createProduct(t *testing.T, server *httptest.Server, token string, body map[string]any) model.Product {
	t.Helper()
	var p model.Product
	do(t, "POST", server.URL+"/api/products", token, body, http.StatusCreated, &p)
	return p
}

func TestLoginEndpoint(t *testing.T) {
	server, _, _ := setupTestServer(t)

	// Test invalid credentials.
	body, _ := json.Marshal(map[string]string{"email": "admin@example.com", "password": "wrong"})
	resp, _ := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	body, _ = json.Marshal(map[string]string{"email": "nobody@example.com", "password": "password"})
	resp, _ = http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unknown user, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestInventoryAPIFlow(t *testing.T) {
	server, _, token := setupTestServer(t)

	var station model.BarStation
	do(t, "POST", server.URL+"/api/stations", token, map[string]string{"name": "Main Bar"}, http.StatusCreated, &station)

	p := createProduct(t, server, token, map[string]any{"name": "Beer", "base_price": "2.00", "max_price": "3.00"})

	var inv model.Inventory
	do(t, "POST", server.URL+"/api/inventory/add", token,
		map[string]any{"product_id": p.ID, "quantity": "10"}, http.StatusOK, &inv)
	if !inv.Quantity.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected quantity 10, got %s", inv.Quantity)
	}

	var sale model.Sale
	do(t, "POST", server.URL+"/api/sales", token, map[string]any{
		"items":          []map[string]any{{"product_id": p.ID, "quantity": "2"}},
		"bar_station_id": station.ID,
	}, http.StatusCreated, &sale)
	if !sale.TotalAmount.Equal(decimal.RequireFromString("4.00")) {
		t.Errorf("expected total 4.00, got %s", sale.TotalAmount)
	}

	do(t, "GET", fmt.Sprintf("%s/api/inventory/product/%d", server.URL, p.ID), token, nil, http.StatusOK, &inv)
	if !inv.Quantity.Equal(decimal.NewFromInt(8)) || !inv.CurrentPrice.Equal(decimal.RequireFromString("2.50")) {
		t.Errorf("expected 8 @ 2.50, got %s @ %s", inv.Quantity, inv.CurrentPrice)
	}

	var list []model.Inventory
	do(t, "GET", server.URL+"/api/inventory", token, nil, http.StatusOK, &list)
	if len(list) != 1 || list[0].ProductName != "Beer" {
		t.Errorf("unexpected inventory list %+v", list)
	}

	var history []model.Transaction
	do(t, "GET", fmt.Sprintf("%s/api/inventory/product/%d/history", server.URL, p.ID), token, nil, http.StatusOK, &history)
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
	if history[0].TransactionType != model.TransactionSale || history[0].CreatedByName != "Admin" {
		t.Errorf("unexpected newest entry %+v", history[0])
	}

	var userStats []model.UserSalesStats
	do(t, "GET", server.URL+"/api/inventory/sales-stats", token, nil, http.StatusOK, &userStats)
	if len(userStats) != 1 || userStats[0].SalesCount != 1 {
		t.Errorf("unexpected user stats %+v", userStats)
	}

	var stationStats []model.StationSalesStats
	do(t, "GET", server.URL+"/api/inventory/station-sales-stats", token, nil, http.StatusOK, &stationStats)
	if len(stationStats) != 1 || stationStats[0].BarStationName != "Main Bar" {
		t.Errorf("unexpected station stats %+v", stationStats)
	}
}

func TestCategoryFilter(t *testing.T) {
	server, _, token := setupTestServer(t)

	var cat model.Category
	do(t, "POST", server.URL+"/api/categories", token, map[string]string{"name": "Snacks"}, http.StatusCreated, &cat)

	chips := createProduct(t, server, token, map[string]any{"name": "Chips", "base_price": "1.50", "category_id": cat.ID})
	beer := createProduct(t, server, token, map[string]any{"name": "Beer", "base_price": "2.00"})
	for _, id := range []int64{chips.ID, beer.ID} {
		do(t, "POST", server.URL+"/api/inventory/add", token, map[string]any{"product_id": id, "quantity": "1"}, http.StatusOK, nil)
	}

	var list []model.Inventory
	do(t, "GET", fmt.Sprintf("%s/api/inventory?categoryId=%d", server.URL, cat.ID), token, nil, http.StatusOK, &list)
	if len(list) != 1 || list[0].ProductID != chips.ID {
		t.Errorf("expected only chips, got %+v", list)
	}

	do(t, "GET", server.URL+"/api/inventory?categoryId=abc", token, nil, http.StatusBadRequest, nil)
}

func TestErrorStatusCodes(t *testing.T) {
	server, st, token := setupTestServer(t)

	p := createProduct(t, server, token, map[string]any{"name": "Wine", "base_price": "5.00", "min_price": "4.00"})
	do(t, "POST", server.URL+"/api/inventory/add", token, map[string]any{"product_id": p.ID, "quantity": "1"}, http.StatusOK, nil)

	// Insufficient stock.
	do(t, "POST", server.URL+"/api/inventory/remove", token,
		map[string]any{"product_id": p.ID, "quantity": "5"}, http.StatusBadRequest, nil)
	do(t, "POST", server.URL+"/api/sales", token,
		map[string]any{"items": []map[string]any{{"product_id": p.ID, "quantity": "2"}}}, http.StatusBadRequest, nil)

	// Price bound.
	do(t, "POST", server.URL+"/api/inventory/price", token,
		map[string]any{"product_id": p.ID, "new_price": "3.99"}, http.StatusBadRequest, nil)
	do(t, "POST", server.URL+"/api/inventory/price", token,
		map[string]any{"product_id": p.ID}, http.StatusBadRequest, nil)

	// Unknown product.
	do(t, "POST", server.URL+"/api/inventory/add", token,
		map[string]any{"product_id": 9999, "quantity": "1"}, http.StatusNotFound, nil)
	do(t, "GET", server.URL+"/api/products/9999", token, nil, http.StatusNotFound, nil)

	// Product of another organization.
	foreign, err := st.CreateProduct(context.Background(), model.Product{
		OrganizationID: 2, Name: "Foreign", BasePrice: decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	do(t, "POST", server.URL+"/api/inventory/add", token,
		map[string]any{"product_id": foreign.ID, "quantity": "1"}, http.StatusForbidden, nil)
	do(t, "GET", fmt.Sprintf("%s/api/products/%d", server.URL, foreign.ID), token, nil, http.StatusForbidden, nil)

	// Duplicate product name.
	do(t, "POST", server.URL+"/api/products", token, map[string]any{"name": "wine", "base_price": "5.00"}, http.StatusConflict, nil)
}

func TestSaleIdempotencyHeader(t *testing.T) {
	server, _, token := setupTestServer(t)

	p := createProduct(t, server, token, map[string]any{"name": "Beer", "base_price": "2.00"})
	do(t, "POST", server.URL+"/api/inventory/add", token, map[string]any{"product_id": p.ID, "quantity": "5"}, http.StatusOK, nil)

	body := map[string]any{"items": []map[string]any{{"product_id": p.ID, "quantity": "1"}}}
	send := func() int {
		req, _ := authRequest("POST", server.URL+"/api/sales", token, body)
		req.Header.Set("Idempotency-Key", "till-7-0042")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("sale request: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if got := send(); got != http.StatusCreated {
		t.Fatalf("expected 201, got %d", got)
	}
	if got := send(); got != http.StatusConflict {
		t.Errorf("expected 409 for repeated key, got %d", got)
	}
}

func TestDeleteProductDeactivates(t *testing.T) {
	server, _, token := setupTestServer(t)

	p := createProduct(t, server, token, map[string]any{"name": "Beer", "base_price": "2.00"})
	do(t, "POST", server.URL+"/api/inventory/add", token, map[string]any{"product_id": p.ID, "quantity": "5"}, http.StatusOK, nil)

	do(t, "DELETE", fmt.Sprintf("%s/api/products/%d", server.URL, p.ID), token, nil, http.StatusNoContent, nil)

	var got model.Product
	do(t, "GET", fmt.Sprintf("%s/api/products/%d", server.URL, p.ID), token, nil, http.StatusOK, &got)
	if got.IsActive {
		t.Error("expected product to be inactive")
	}

	do(t, "POST", server.URL+"/api/inventory/add", token,
		map[string]any{"product_id": p.ID, "quantity": "1"}, http.StatusBadRequest, nil)

	// History survives deactivation.
	var history []model.Transaction
	do(t, "GET", fmt.Sprintf("%s/api/inventory/product/%d/history", server.URL, p.ID), token, nil, http.StatusOK, &history)
	if len(history) != 2 {
		t.Errorf("expected 2 entries, got %d", len(history))
	}
}

func TestUsersAPI(t *testing.T) {
	server, _, token := setupTestServer(t)

	var user model.User
	do(t, "POST", server.URL+"/api/users", token, map[string]string{
		"name": "Bartender", "email": "bar@example.com", "password": "long-enough", "role": model.RoleUser,
	}, http.StatusCreated, &user)
	if user.OrganizationID != 1 {
		t.Errorf("expected new user in organization 1, got %d", user.OrganizationID)
	}

	do(t, "POST", server.URL+"/api/users", token, map[string]string{
		"name": "Again", "email": "bar@example.com", "password": "long-enough", "role": model.RoleUser,
	}, http.StatusConflict, nil)

	var users []model.User
	do(t, "GET", server.URL+"/api/users", token, nil, http.StatusOK, &users)
	if len(users) != 2 {
		t.Errorf("expected 2 users, got %d", len(users))
	}
}

func TestChangePassword(t *testing.T) {
	server, _, token := setupTestServer(t)

	do(t, "PUT", server.URL+"/api/auth/password", token,
		map[string]string{"current_password": "password", "new_password": "short"}, http.StatusBadRequest, nil)
	do(t, "PUT", server.URL+"/api/auth/password", token,
		map[string]string{"current_password": "wrong", "new_password": "new-password"}, http.StatusUnauthorized, nil)
	do(t, "PUT", server.URL+"/api/auth/password", token,
		map[string]string{"current_password": "password", "new_password": "new-password"}, http.StatusOK, nil)

	body, _ := json.Marshal(map[string]string{"email": "admin@example.com", "password": "new-password"})
	resp, _ := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected login with new password to succeed, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLogoutRevokesToken(t *testing.T) {
	server, _, token := setupTestServer(t)

	do(t, "GET", server.URL+"/api/inventory", token, nil, http.StatusOK, nil)
	do(t, "POST", server.URL+"/api/auth/logout", token, nil, http.StatusNoContent, nil)
	do(t, "GET", server.URL+"/api/inventory", token, nil, http.StatusUnauthorized, nil)
}

func TestUnauthenticatedAccess(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := http.Get(server.URL + "/api/inventory")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unauthenticated request, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRoleBasedAccess(t *testing.T) {
	server, st := newTestServer(t)

	// Create a regular user.
	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("pass"), bcrypt.MinCost)
	user, _ := st.CreateUser(ctx, 1, "User", "user1@example.com", string(hash), model.RoleUser)

	userToken, _ := auth.GenerateToken(testJWTSecret, user)

	// Regular user should not be able to create products (manager+ required).
	do(t, "POST", server.URL+"/api/products", userToken, map[string]any{"name": "Test", "base_price": "1"}, http.StatusForbidden, nil)
	do(t, "POST", server.URL+"/api/inventory/add", userToken, map[string]any{"product_id": 1, "quantity": "1"}, http.StatusForbidden, nil)

	// Regular user should not access /api/users.
	do(t, "GET", server.URL+"/api/users", userToken, nil, http.StatusForbidden, nil)

	// But may sell.
	do(t, "POST", server.URL+"/api/sales", userToken,
		map[string]any{"items": []map[string]any{{"product_id": 1, "quantity": "1"}}}, http.StatusNotFound, nil)
}
