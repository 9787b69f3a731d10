package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"shopdesk/backend/internal/domain"
	"shopdesk/backend/internal/report"
	"shopdesk/backend/internal/service"
	"shopdesk/backend/internal/store"
	"shopdesk/backend/internal/store/memory"
	"shopdesk/backend/internal/telemetry"
)

// newTestAPI builds a full API over the seeded in-memory store so handler
// tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	recorder := telemetry.NewRecorder()
	svc := service.New(repo, service.Options{Recorder: recorder})
	auth := NewAuthManager(context.Background(), "test-secret-key", time.Hour, repo)

	return New(svc, auth, Options{AllowedOrigin: "*", Recorder: recorder})
}

type session struct {
	t       *testing.T
	handler http.Handler
	token   string
	csrf    string
}

func newSession(t *testing.T, api *API, email string, password string) *session {
	t.Helper()
	handler := api.Handler()
	return &session{
		t:       t,
		handler: handler,
		token:   login(t, handler, email, password),
		csrf:    fetchCSRFToken(t, handler),
	}
}

func (s *session) do(method string, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("X-CSRF-Token", s.csrf)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v (body: %s)", err, rec.Body.String())
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	decodeBody(t, rec, &body)
	code, _ := body["code"].(string)
	return code
}

func commitBody(qty int, price int64) map[string]any {
	return map[string]any{
		"customer_name": "Rahim",
		"lines": []map[string]any{
			{"product_id": "prd-galaxy-a15", "quantity": qty, "unit_price": price},
		},
	}
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
	decodeBody(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"email":    "admin@shop.local",
		"password": "admin123",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body domain.LoginResponse
	decodeBody(t, rec, &body)
	if body.AccessToken == "" || body.Role != domain.RoleAdmin {
		t.Fatalf("unexpected login response %+v", body)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"email":    "admin@shop.local",
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

func TestHandleProducts_ListAndFilter(t *testing.T) {
	s := newSession(t, newTestAPI(t), "employee@shop.local", "employee123")

	rec := s.do(http.MethodGet, "/api/v1/products", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var all struct {
		Products []domain.InventoryItem `json:"products"`
	}
	decodeBody(t, rec, &all)
	if len(all.Products) != 9 {
		t.Fatalf("expected 9 seeded products, got %d", len(all.Products))
	}

	rec = s.do(http.MethodGet, "/api/v1/products?status=out_of_stock", nil)
	var out struct {
		Products []domain.InventoryItem `json:"products"`
	}
	decodeBody(t, rec, &out)
	if len(out.Products) != 1 || out.Products[0].ID != "prd-symphony-b69" {
		t.Fatalf("expected only the out of stock product, got %+v", out.Products)
	}

	rec = s.do(http.MethodGet, "/api/v1/products?status=sold", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestEmployeeCannotMutateCatalog(t *testing.T) {
	s := newSession(t, newTestAPI(t), "employee@shop.local", "employee123")

	rec := s.do(http.MethodPost, "/api/v1/products", map[string]any{
		"category": "Airbuds", "brand": "QCY", "model_name": "T20", "price": 2000, "quantity": 5,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodGet, "/api/v1/metrics/monthly", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on admin dashboard, got %d", rec.Code)
	}
}

func TestAdminProductLifecycle(t *testing.T) {
	s := newSession(t, newTestAPI(t), "admin@shop.local", "admin123")

	rec := s.do(http.MethodPost, "/api/v1/products", map[string]any{
		"category": "Airbuds", "brand": "QCY", "model_name": "T20", "price": 2000, "quantity": 5,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Product domain.Product `json:"product"`
	}
	decodeBody(t, rec, &created)

	rec = s.do(http.MethodPut, "/api/v1/products/"+created.Product.ID, map[string]any{
		"category": "Airbuds", "brand": "QCY", "model_name": "T20", "price": 2100, "quantity": 7,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on update, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodDelete, "/api/v1/products/"+created.Product.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on delete, got %d", rec.Code)
	}

	rec = s.do(http.MethodGet, "/api/v1/products/"+created.Product.ID, nil)
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != string(domain.CodeProductNotFound) {
		t.Fatalf("expected product_not_found 404, got %d", rec.Code)
	}

	rec = s.do(http.MethodPost, "/api/v1/products", map[string]any{"brand": "QCY", "model_name": "T20"})
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != string(domain.CodeInvalidProduct) {
		t.Fatalf("expected invalid_product 400, got %d", rec.Code)
	}
}

func TestCommitSaleDecrementsStock(t *testing.T) {
	s := newSession(t, newTestAPI(t), "employee@shop.local", "employee123")

	rec := s.do(http.MethodPost, "/api/v1/sales", commitBody(2, 16000))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var committed struct {
		Sale domain.SaleRecord `json:"sale"`
	}
	decodeBody(t, rec, &committed)
	if !committed.Sale.TotalAmount.Equal(decimal.NewFromInt(32000)) || !committed.Sale.DueAmount.IsZero() {
		t.Fatalf("unexpected sale %+v", committed.Sale)
	}

	rec = s.do(http.MethodGet, "/api/v1/products/prd-galaxy-a15", nil)
	var product struct {
		Product domain.Product `json:"product"`
	}
	decodeBody(t, rec, &product)
	if product.Product.Quantity != 10 {
		t.Fatalf("expected stock 10 after sale, got %d", product.Product.Quantity)
	}

	rec = s.do(http.MethodGet, "/api/v1/sales/"+committed.Sale.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected sale lookup 200, got %d", rec.Code)
	}

	rec = s.do(http.MethodGet, "/api/v1/sales/recent", nil)
	var recent struct {
		Sales []domain.SaleRecord `json:"sales"`
	}
	decodeBody(t, rec, &recent)
	if len(recent.Sales) != 1 {
		t.Fatalf("expected the new sale among recent sales, got %d", len(recent.Sales))
	}
}

func TestCommitSaleValidationErrors(t *testing.T) {
	s := newSession(t, newTestAPI(t), "employee@shop.local", "employee123")

	rec := s.do(http.MethodPost, "/api/v1/sales", commitBody(13, 16000))
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != string(domain.CodeInsufficientStock) {
		t.Fatalf("expected insufficient_stock 400, got %d", rec.Code)
	}

	rec = s.do(http.MethodPost, "/api/v1/sales", commitBody(1, 100))
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != string(domain.CodePriceBelowCost) {
		t.Fatalf("expected price_below_cost 400, got %d", rec.Code)
	}

	body := commitBody(1, 16000)
	body["paid_amount"] = 6000
	rec = s.do(http.MethodPost, "/api/v1/sales", body)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != string(domain.CodePhoneRequiredForDue) {
		t.Fatalf("expected phone_required_for_due 400, got %d", rec.Code)
	}

	rec = s.do(http.MethodPost, "/api/v1/cart/validate", map[string]any{"lines": []any{}})
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != string(domain.CodeEmptyCart) {
		t.Fatalf("expected empty_cart 400, got %d", rec.Code)
	}
}

func TestDuePaymentFlow(t *testing.T) {
	s := newSession(t, newTestAPI(t), "employee@shop.local", "employee123")

	body := commitBody(1, 16000)
	body["customer_phone"] = "01712345678"
	body["paid_amount"] = 6000
	body["commitment_date"] = "2020-01-01"
	rec := s.do(http.MethodPost, "/api/v1/sales", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var committed struct {
		Sale domain.SaleRecord `json:"sale"`
	}
	decodeBody(t, rec, &committed)
	paymentsPath := "/api/v1/sales/" + committed.Sale.ID + "/payments"

	rec = s.do(http.MethodGet, "/api/v1/dues/overdue", nil)
	var overdue struct {
		Dues []domain.OverdueDue `json:"dues"`
	}
	decodeBody(t, rec, &overdue)
	if len(overdue.Dues) != 1 || overdue.Dues[0].SaleID != committed.Sale.ID {
		t.Fatalf("expected the sale to be overdue, got %+v", overdue.Dues)
	}

	rec = s.do(http.MethodPost, paymentsPath, map[string]any{"amount": 20000})
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != string(domain.CodeAmountExceedsDue) {
		t.Fatalf("expected amount_exceeds_due 400, got %d", rec.Code)
	}

	rec = s.do(http.MethodPost, paymentsPath, map[string]any{"amount": 10000})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var paid struct {
		Sale domain.SaleRecord `json:"sale"`
	}
	decodeBody(t, rec, &paid)
	if !paid.Sale.DueAmount.IsZero() || paid.Sale.CommitmentDate != "" {
		t.Fatalf("expected settled sale, got %+v", paid.Sale)
	}

	rec = s.do(http.MethodPost, "/api/v1/sales/sale-missing/payments", map[string]any{"amount": 1})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown sale, got %d", rec.Code)
	}
}

func TestAdminDashboards(t *testing.T) {
	s := newSession(t, newTestAPI(t), "admin@shop.local", "admin123")
	if rec := s.do(http.MethodPost, "/api/v1/sales", commitBody(1, 16000)); rec.Code != http.StatusCreated {
		t.Fatalf("commit failed: %d", rec.Code)
	}

	rec := s.do(http.MethodGet, "/api/v1/metrics/monthly", nil)
	var monthly struct {
		Metrics []domain.SalesMetric `json:"metrics"`
	}
	decodeBody(t, rec, &monthly)
	if len(monthly.Metrics) != 12 {
		t.Fatalf("expected 12 months, got %d", len(monthly.Metrics))
	}

	rec = s.do(http.MethodGet, "/api/v1/metrics/monthly?year=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad year, got %d", rec.Code)
	}

	rec = s.do(http.MethodGet, "/api/v1/dashboard/daily?format=csv", nil)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("expected csv export, got %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "summary,orders,1") {
		t.Fatalf("expected one order in csv, got %s", rec.Body.String())
	}

	rec = s.do(http.MethodGet, "/api/v1/inventory/summary", nil)
	var summary domain.InventorySummary
	decodeBody(t, rec, &summary)
	if summary.TotalItems != 9 || summary.OutOfStockCount != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	rec = s.do(http.MethodGet, "/api/v1/inventory/valuation", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected valuation 200, got %d", rec.Code)
	}

	for _, path := range []string{"/api/v1/reports/monthly.xlsx", "/api/v1/reports/sales.xlsx?status=paid"} {
		rec = s.do(http.MethodGet, path, nil)
		if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != report.ContentType {
			t.Fatalf("expected workbook from %s, got %d %q", path, rec.Code, rec.Header().Get("Content-Type"))
		}
		if rec.Body.Len() == 0 {
			t.Fatalf("expected workbook bytes from %s", path)
		}
	}
}

func TestTaxonomyEndpoints(t *testing.T) {
	s := newSession(t, newTestAPI(t), "admin@shop.local", "admin123")

	rec := s.do(http.MethodGet, "/api/v1/taxonomy?category=Smartphone", nil)
	var body struct {
		Taxonomy       domain.Taxonomy `json:"taxonomy"`
		CategoryBrands []string        `json:"category_brands"`
	}
	decodeBody(t, rec, &body)
	if len(body.CategoryBrands) != 2 {
		t.Fatalf("expected Samsung and Xiaomi smartphones, got %v", body.CategoryBrands)
	}

	rec = s.do(http.MethodDelete, "/api/v1/taxonomy/brand/Anker", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	rec = s.do(http.MethodDelete, "/api/v1/taxonomy/brand/Anker", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 once removed, got %d", rec.Code)
	}
	rec = s.do(http.MethodDelete, "/api/v1/taxonomy/colour/Red", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", rec.Code)
	}

	rec = s.do(http.MethodPost, "/api/v1/refresh", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected refresh 200, got %d", rec.Code)
	}
	rec = s.do(http.MethodGet, "/api/v1/taxonomy", nil)
	decodeBody(t, rec, &body)
	found := false
	for _, brand := range body.Taxonomy.Brands {
		found = found || brand == "Anker"
	}
	if !found {
		t.Fatalf("expected Anker back after refresh, got %v", body.Taxonomy.Brands)
	}
}

func TestTaxonomyRemoveDecodesValueOnce(t *testing.T) {
	s := newSession(t, newTestAPI(t), "admin@shop.local", "admin123")

	rec := s.do(http.MethodPost, "/api/v1/products", map[string]any{
		"category": "Airbuds", "brand": "50% Off", "model_name": "Promo", "price": 900, "quantity": 3,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodDelete, "/api/v1/taxonomy/brand/50%25%20Off", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for percent-encoded brand, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	rec = s.do(http.MethodDelete, "/api/v1/taxonomy/brand/50%25%20Off", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 once removed, got %d", rec.Code)
	}
}

func TestEmployeeManagement(t *testing.T) {
	api := newTestAPI(t)
	s := newSession(t, api, "admin@shop.local", "admin123")

	rec := s.do(http.MethodPost, "/api/v1/employees", map[string]any{"name": "Karim", "email": "not-an-email", "password": "pass1234"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid email, got %d", rec.Code)
	}

	rec = s.do(http.MethodPost, "/api/v1/employees", map[string]any{"name": "Karim", "email": "karim@shop.local", "password": "pass1234"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	rec = s.do(http.MethodPost, "/api/v1/employees", map[string]any{"name": "Karim", "email": "karim@shop.local", "password": "pass1234"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", rec.Code)
	}

	rec = s.do(http.MethodGet, "/api/v1/employees", nil)
	var list struct {
		Employees []domain.Employee `json:"employees"`
	}
	decodeBody(t, rec, &list)
	if len(list.Employees) != 2 {
		t.Fatalf("expected seeded and new employee, got %+v", list.Employees)
	}

	rec = s.do(http.MethodDelete, "/api/v1/employees/karim%40shop.local", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = s.do(http.MethodDelete, "/api/v1/employees/admin@shop.local", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected admin deletion refused with 404, got %d", rec.Code)
	}
}

func TestMetricsEndpointExposesRequestCounters(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `http_requests_total{method="GET",path="/healthz",status="200"} 1`) {
		t.Fatalf("expected healthz request counted, got:\n%s", rec.Body.String())
	}
}

func TestWriteServiceErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", nil)

	cases := []struct {
		err    error
		status int
	}{
		{domain.ErrSaleNotFound, http.StatusNotFound},
		{domain.ErrInvalidPaidAmount, http.StatusBadRequest},
		{service.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("%w: %w", service.ErrCommitFailed, store.ErrInsufficientStock), http.StatusConflict},
		{fmt.Errorf("%w: %w", service.ErrPaymentFailed, store.ErrStaleRecord), http.StatusConflict},
		{fmt.Errorf("%w: %w", service.ErrCommitFailed, errors.New("connection refused")), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		api.writeServiceError(rec, req, tc.err)
		if rec.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	api.writeServiceError(rec, req, errors.New("pq: password authentication failed"))
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("expected storage details hidden, got %s", rec.Body.String())
	}
}
