package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"warungku/backend/internal/cache"
	"warungku/backend/internal/domain"
	"warungku/backend/internal/reporting"
	"warungku/backend/internal/service"
	"warungku/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	reports := reporting.NewEngine(repo, cache.NoopReportCache{}, time.Second)
	svc := service.New(repo, reports)
	auth := NewAuthManager("test-secret-key", time.Hour, "135799", repo)

	return New(svc, auth, "*")
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

// doJSON performs an authenticated JSON request against the API and returns the recorder.
func doJSON(t *testing.T, api *API, method, path, token, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
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
	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"username": "admin",
		"password": "admin123",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["access_token"] == "" || body["access_token"] == nil {
		t.Fatalf("expected access_token in response, got %v", body)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/products", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body domain.ProductListResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Products) == 0 {
		t.Fatalf("expected seeded products in response")
	}
}

func TestStaffCannotCreateProducts(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/products", token, csrf, domain.ProductCreateRequest{
		SKU:        "SKU-NEW-01",
		Name:       "Krupuk",
		Category:   "snack",
		PriceCents: 5000,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff product create, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCreateSaleEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, csrf, domain.SaleCreateRequest{
		DiscountPercent: 10,
		TaxPercent:      5,
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-KOPI-01", Qty: 2},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body domain.SaleResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Sale.InvoiceNumber != "INV-00001" {
		t.Fatalf("expected INV-00001, got %s", body.Sale.InvoiceNumber)
	}
	if body.Sale.SubtotalCents != 5200 {
		t.Fatalf("expected subtotal 5200, got %d", body.Sale.SubtotalCents)
	}

	// The sale is retrievable by id afterwards.
	getRec := doJSON(t, api, http.MethodGet, "/api/v1/sales/"+body.Sale.ID, token, "", nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching sale, got %d", getRec.Code)
	}
}

func TestCreateSaleEndpoint_InsufficientStock(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, csrf, domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-KOPI-01", Qty: 999},
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] == "" {
		t.Fatalf("expected error message in body")
	}
}

func TestCancelSaleEndpoint(t *testing.T) {
	api := newTestAPI(t)
	staffToken := loginAs(t, api, "staff", "staff123")
	managerToken := loginAs(t, api, "manager", "manager123")
	csrf := fetchCSRFToken(t, api)

	created := doJSON(t, api, http.MethodPost, "/api/v1/sales", staffToken, csrf, domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{SKU: "SKU-MIE-01", Qty: 1}},
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("sale create failed: %d %s", created.Code, created.Body.String())
	}
	var sale domain.SaleResponse
	if err := json.NewDecoder(created.Body).Decode(&sale); err != nil {
		t.Fatalf("decode sale: %v", err)
	}

	// Staff cannot cancel.
	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales/"+sale.Sale.ID+"/cancel", staffToken, csrf, domain.SaleCancelRequest{
		Reason:     "wrong item",
		ManagerPIN: "135799",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff cancel, got %d", rec.Code)
	}

	// Manager with wrong PIN is rejected.
	rec = doJSON(t, api, http.MethodPost, "/api/v1/sales/"+sale.Sale.ID+"/cancel", managerToken, csrf, domain.SaleCancelRequest{
		Reason:     "wrong item",
		ManagerPIN: "000000",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong pin, got %d", rec.Code)
	}

	// Manager with the right PIN cancels.
	rec = doJSON(t, api, http.MethodPost, "/api/v1/sales/"+sale.Sale.ID+"/cancel", managerToken, csrf, domain.SaleCancelRequest{
		Reason:     "wrong item",
		ManagerPIN: "135799",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for cancel, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp domain.SaleCancelResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode cancel response: %v", err)
	}
	if resp.Status != domain.SaleStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", resp.Status)
	}

	// Second cancel conflicts.
	rec = doJSON(t, api, http.MethodPost, "/api/v1/sales/"+sale.Sale.ID+"/cancel", managerToken, csrf, domain.SaleCancelRequest{
		Reason:     "again",
		ManagerPIN: "135799",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on second cancel, got %d", rec.Code)
	}
}

func TestUsersEndpointIsAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	managerToken := loginAs(t, api, "manager", "manager123")
	adminToken := loginAs(t, api, "admin", "admin123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/users", managerToken, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for manager on users, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/users", adminToken, csrf, domain.UserCreateRequest{
		Username: "kasirbaru",
		Password: "rahasia1",
		Role:     domain.RoleStaff,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating user, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// The new account can log in right away.
	if token := loginAs(t, api, "kasirbaru", "rahasia1"); token == "" {
		t.Fatalf("expected new user to log in")
	}
}

func TestSalesSummaryEndpoint(t *testing.T) {
	api := newTestAPI(t)
	staffToken := loginAs(t, api, "staff", "staff123")
	managerToken := loginAs(t, api, "manager", "manager123")
	csrf := fetchCSRFToken(t, api)

	created := doJSON(t, api, http.MethodPost, "/api/v1/sales", staffToken, csrf, domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{SKU: "SKU-TEH-01", Qty: 2}},
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("sale create failed: %d", created.Code)
	}

	// Staff lacks report:read.
	rec := doJSON(t, api, http.MethodGet, "/api/v1/reports/sales-summary", staffToken, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff report read, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/reports/sales-summary", managerToken, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var summary domain.SalesSummary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Transactions != 1 {
		t.Fatalf("expected 1 transaction, got %d", summary.Transactions)
	}
}

// TestMustHashPassword verifies that the test helper produces valid bcrypt hashes
// (used to confirm test infrastructure is sound).
func TestMustHashPassword(t *testing.T) {
	hash := mustHashPassword(t, "secret")
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")); err != nil {
		t.Fatalf("hash verification failed: %v", err)
	}
}
