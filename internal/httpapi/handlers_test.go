package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"barvault/backend/internal/domain"
	"barvault/backend/internal/service"
	"barvault/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, 0)
	auth := NewAuthManager("handler-test-secret-with-enough-length", time.Hour, repo)

	return New(svc, auth, "*")
}

func loginAs(t *testing.T, handler http.Handler, email, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = fmt.Sprintf("203.0.113.%d:51000", len(email)%250)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d %s", email, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func authedRequest(t *testing.T, handler http.Handler, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	token := loginAs(t, handler, "admin@borealis.bar", "admin123")
	if token == "" {
		t.Fatalf("expected access token")
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"email":    "admin@borealis.bar",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleLogin_RateLimit(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	// The loginLimiter allows 5 attempts per minute per client address.
	payload, _ := json.Marshal(map[string]string{
		"email":    "admin@borealis.bar",
		"password": "badpass",
	})

	var lastCode int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after 6 attempts, got %d", lastCode)
	}
}

func TestHandleMe_ReturnsCallerAccount(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "staff@borealis.bar", "staff123")

	rec := authedRequest(t, handler, token, http.MethodGet, "/api/v1/auth/me", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var account domain.UserAccount
	if err := json.NewDecoder(rec.Body).Decode(&account); err != nil {
		t.Fatalf("decode account: %v", err)
	}
	if account.Email != "staff@borealis.bar" || account.Role != domain.RoleStaff || account.OrganizationID != 1 {
		t.Fatalf("unexpected account: %+v", account)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	unauth := httptest.NewRecorder()
	handler.ServeHTTP(unauth, req)
	if unauth.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", unauth.Code)
	}
}

func TestHandleUsers_CreateAndLogin(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	staffToken := loginAs(t, handler, "staff@borealis.bar", "staff123")
	adminToken := loginAs(t, handler, "admin@borealis.bar", "admin123")

	create := map[string]any{
		"email":    "barback@borealis.bar",
		"name":     "Bar Back",
		"password": "well-stocked",
	}

	rec := authedRequest(t, handler, staffToken, http.MethodPost, "/api/v1/users", create)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff create, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = authedRequest(t, handler, adminToken, http.MethodPost, "/api/v1/users", create)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var account domain.UserAccount
	if err := json.NewDecoder(rec.Body).Decode(&account); err != nil {
		t.Fatalf("decode account: %v", err)
	}
	if account.Role != domain.RoleStaff || account.OrganizationID != 1 {
		t.Fatalf("unexpected account: %+v", account)
	}

	rec = authedRequest(t, handler, adminToken, http.MethodPost, "/api/v1/users", create)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	newToken := loginAs(t, handler, "barback@borealis.bar", "well-stocked")
	rec = authedRequest(t, handler, newToken, http.MethodGet, "/api/v1/auth/me", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for created account, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleSales_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", bytes.NewReader([]byte(`{"items":[]}`)))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleSales_SettlesAndReturnsReceipt(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "staff@borealis.bar", "staff123")

	rec := authedRequest(t, handler, token, http.MethodPost, "/api/v1/sales", map[string]any{
		"items": []map[string]any{
			{"product_id": 1, "quantity": "2"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var receipt domain.SaleReceipt
	if err := json.NewDecoder(rec.Body).Decode(&receipt); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if receipt.SaleReferenceID == "" {
		t.Fatalf("expected sale reference id")
	}
	if len(receipt.Items) != 1 {
		t.Fatalf("expected 1 receipt item, got %d", len(receipt.Items))
	}
	if !receipt.Items[0].UnitPrice.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("unexpected unit price %s", receipt.Items[0].UnitPrice)
	}
	if !receipt.TotalAmount.Equal(decimal.RequireFromString("20.00")) {
		t.Fatalf("unexpected total %s", receipt.TotalAmount)
	}
}

func TestHandleSales_ErrorStatuses(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "staff@borealis.bar", "staff123")

	cases := []struct {
		name      string
		productID int64
		quantity  string
		want      int
	}{
		{"unknown product", 999, "1", http.StatusNotFound},
		{"cross-tenant product", 6, "1", http.StatusForbidden},
		{"deactivated product", 4, "1", http.StatusGone},
		{"missing inventory", 5, "1", http.StatusNotFound},
		{"insufficient stock", 1, "100", http.StatusBadRequest},
		{"zero quantity", 1, "0", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := authedRequest(t, handler, token, http.MethodPost, "/api/v1/sales", map[string]any{
				"items": []map[string]any{
					{"product_id": tc.productID, "quantity": tc.quantity},
				},
			})
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d (body: %s)", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandleInventory_ListAndFilter(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "staff@borealis.bar", "staff123")

	rec := authedRequest(t, handler, token, http.MethodGet, "/api/v1/inventory", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var items []domain.InventoryItem
	if err := json.NewDecoder(rec.Body).Decode(&items); err != nil {
		t.Fatalf("decode items: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("expected 4 inventory rows, got %d", len(items))
	}

	rec = authedRequest(t, handler, token, http.MethodGet, "/api/v1/inventory?category_id=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	items = items[:0]
	if err := json.NewDecoder(rec.Body).Decode(&items); err != nil {
		t.Fatalf("decode items: %v", err)
	}
	if len(items) != 1 || items[0].ProductName != "Bar Pretzel" {
		t.Fatalf("unexpected filtered rows: %+v", items)
	}

	rec = authedRequest(t, handler, token, http.MethodGet, "/api/v1/inventory?category_id=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad category_id, got %d", rec.Code)
	}
}

func TestHandleStockEndpoints(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "admin@borealis.bar", "admin123")

	rec := authedRequest(t, handler, token, http.MethodPost, "/api/v1/inventory/add", map[string]any{
		"product_id": 3,
		"quantity":   "25",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add stock: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var item domain.InventoryItem
	if err := json.NewDecoder(rec.Body).Decode(&item); err != nil {
		t.Fatalf("decode item: %v", err)
	}
	if !item.Quantity.Equal(decimal.RequireFromString("75")) {
		t.Fatalf("expected quantity 75 after add, got %s", item.Quantity)
	}

	rec = authedRequest(t, handler, token, http.MethodPost, "/api/v1/inventory/remove", map[string]any{
		"product_id": 3,
		"quantity":   "5",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("remove stock: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = authedRequest(t, handler, token, http.MethodPost, "/api/v1/inventory/adjust", map[string]any{
		"product_id":   3,
		"new_quantity": "40",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("adjust stock: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	item = domain.InventoryItem{}
	if err := json.NewDecoder(rec.Body).Decode(&item); err != nil {
		t.Fatalf("decode item: %v", err)
	}
	if !item.Quantity.Equal(decimal.RequireFromString("40")) {
		t.Fatalf("expected quantity 40 after adjust, got %s", item.Quantity)
	}

	rec = authedRequest(t, handler, token, http.MethodGet, "/api/v1/inventory/product/3/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var history []domain.InventoryTransaction
	if err := json.NewDecoder(rec.Body).Decode(&history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(history))
	}
	if history[0].TransactionType != domain.TxTypeAdd || history[2].TransactionType != domain.TxTypeAdjust {
		t.Fatalf("unexpected transaction order: %+v", history)
	}
}

func TestHandleProducts_AdminOnlyMutations(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	staffToken := loginAs(t, handler, "staff@borealis.bar", "staff123")
	adminToken := loginAs(t, handler, "admin@borealis.bar", "admin123")

	create := map[string]any{
		"category_id": 1,
		"name":        "Amber Ale",
		"base_price":  "8.00",
		"max_price":   "12.00",
	}

	rec := authedRequest(t, handler, staffToken, http.MethodPost, "/api/v1/products", create)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff create, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = authedRequest(t, handler, adminToken, http.MethodPost, "/api/v1/products", create)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var product domain.Product
	if err := json.NewDecoder(rec.Body).Decode(&product); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	if product.Name != "Amber Ale" || !product.Active {
		t.Fatalf("unexpected product: %+v", product)
	}

	rec = authedRequest(t, handler, adminToken, http.MethodDelete, fmt.Sprintf("/api/v1/products/%d", product.ID), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = authedRequest(t, handler, adminToken, http.MethodGet, "/api/v1/products/abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric id, got %d", rec.Code)
	}
}

func TestHandleSales_RejectsUnknownFields(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "staff@borealis.bar", "staff123")

	rec := authedRequest(t, handler, token, http.MethodPost, "/api/v1/sales", map[string]any{
		"items":    []map[string]any{{"product_id": 1, "quantity": "1"}},
		"discount": "0.10",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}
