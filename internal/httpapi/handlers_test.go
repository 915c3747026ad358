package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shopbook/backend/internal/domain"
	"shopbook/backend/internal/events"
	"shopbook/backend/internal/service"
	"shopbook/backend/internal/store/memory"
)

type testEnv struct {
	handler      http.Handler
	repo         *memory.Store
	adminToken   string
	cashierToken string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := memory.New()
	ctx := context.Background()
	for _, u := range []domain.UserAccount{
		{Username: "admin", Password: "admin-password", Role: "admin", Active: true},
		{Username: "cashier", Password: "cashier-password", Role: "cashier", Active: true},
	} {
		if err := repo.CreateUser(ctx, u); err != nil {
			t.Fatalf("seed user failed: %v", err)
		}
	}

	svc := service.New(repo, events.NewBus(), nil)
	auth := NewAuthManager("test-secret-long-enough-for-hmac!", time.Hour, repo)
	api := New(svc, auth, "", nil)

	env := &testEnv{handler: api.Handler(), repo: repo}
	env.adminToken = login(t, env.handler, "admin", "admin-password")
	env.cashierToken = login(t, env.handler, "cashier", "cashier-password")
	return env
}

func login(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s failed: %d %s", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func (e *testEnv) do(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
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
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestItemsRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/items", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreateItemIsAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	payload := domain.ItemCreateRequest{Name: "Gula 1kg", Quantity: 10, SellPrice: 17400}

	rec := env.do(t, http.MethodPost, "/api/v1/items", env.cashierToken, payload)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cashier must be forbidden, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/items", env.adminToken, payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin create failed: %d %s", rec.Code, rec.Body.String())
	}
}

func TestSaleRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/items", env.adminToken,
		domain.ItemCreateRequest{Name: "Kopi Sachet", Quantity: 10, SellPrice: 2600})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create item failed: %d", rec.Code)
	}
	var created struct {
		Item domain.Item `json:"item"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode item: %v", err)
	}

	saleReq := domain.SaleRequest{SaleID: "sale-http-1", ItemID: created.Item.ID, Quantity: 4}
	rec = env.do(t, http.MethodPost, "/api/v1/sales", env.cashierToken, saleReq)
	if rec.Code != http.StatusCreated {
		t.Fatalf("record sale failed: %d %s", rec.Code, rec.Body.String())
	}
	var result domain.SaleResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode sale result: %v", err)
	}
	if result.Sale.Total != 4*2600 || result.Duplicate {
		t.Fatalf("unexpected result: %+v", result)
	}

	// Replay answers 200 with the duplicate flag.
	rec = env.do(t, http.MethodPost, "/api/v1/sales", env.cashierToken, saleReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("replay must answer 200, got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode replay result: %v", err)
	}
	if !result.Duplicate {
		t.Fatalf("replay must be flagged duplicate")
	}

	// Oversell answers 409 with the remaining quantity.
	rec = env.do(t, http.MethodPost, "/api/v1/sales", env.cashierToken,
		domain.SaleRequest{SaleID: "sale-http-2", ItemID: created.Item.ID, Quantity: 99})
	if rec.Code != http.StatusConflict {
		t.Fatalf("oversell must answer 409, got %d", rec.Code)
	}
	var conflict struct {
		Remaining int `json:"remaining"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &conflict); err != nil {
		t.Fatalf("decode conflict: %v", err)
	}
	if conflict.Remaining != 6 {
		t.Fatalf("expected remaining 6, got %d", conflict.Remaining)
	}
}

func TestDebtPaymentOverBalance(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/debts", env.cashierToken, domain.DebtCreateRequest{
		CustomerName: "Pak Budi",
		Total:        10000,
		DueDate:      time.Now().UTC().AddDate(0, 0, 7),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create debt failed: %d %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Debt domain.DebtView `json:"debt"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode debt: %v", err)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/debts/"+created.Debt.ID+"/payments", env.cashierToken,
		domain.PaymentRequest{Amount: 10001})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("over-balance payment must answer 422, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/debts/"+created.Debt.ID+"/payments", env.cashierToken,
		domain.PaymentRequest{Amount: 10000})
	if rec.Code != http.StatusOK {
		t.Fatalf("exact payment failed: %d %s", rec.Code, rec.Body.String())
	}
	var paid struct {
		Debt domain.DebtView `json:"debt"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &paid); err != nil {
		t.Fatalf("decode paid debt: %v", err)
	}
	if paid.Debt.Status != domain.CreditStatusPaid {
		t.Fatalf("debt must settle: %+v", paid.Debt)
	}
}

func TestWhatsAppLinkEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/debts", env.cashierToken, domain.DebtCreateRequest{
		CustomerName: "Bu Siti",
		Phone:        "+628123456789",
		Total:        5000,
		DueDate:      time.Now().UTC().AddDate(0, 0, -1),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create debt failed: %d", rec.Code)
	}
	var created struct {
		Debt domain.DebtView `json:"debt"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode debt: %v", err)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/debts/"+created.Debt.ID+"/whatsapp-link", env.cashierToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("whatsapp link failed: %d %s", rec.Code, rec.Body.String())
	}
	var link struct {
		Link    string `json:"link"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &link); err != nil {
		t.Fatalf("decode link: %v", err)
	}
	if link.Link == "" || link.Message == "" {
		t.Fatalf("empty link or message: %+v", link)
	}
}

func TestSalesExportCSV(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/items", env.adminToken,
		domain.ItemCreateRequest{Name: "Roti Tawar", Quantity: 5, SellPrice: 17800})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create item failed: %d", rec.Code)
	}
	var created struct {
		Item domain.Item `json:"item"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode item: %v", err)
	}
	rec = env.do(t, http.MethodPost, "/api/v1/sales", env.cashierToken,
		domain.SaleRequest{SaleID: "sale-csv", ItemID: created.Item.ID, Quantity: 1})
	if rec.Code != http.StatusCreated {
		t.Fatalf("record sale failed: %d", rec.Code)
	}

	day := time.Now().UTC().Format("2006-01-02")
	rec = env.do(t, http.MethodGet, "/api/v1/sales/export?day="+day, env.cashierToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export failed: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("expected text/csv, got %s", ct)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("Roti Tawar")) {
		t.Fatalf("export missing sale row: %s", rec.Body.String())
	}
}
