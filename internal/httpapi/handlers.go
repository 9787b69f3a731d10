package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shopdesk/backend/internal/domain"
	"shopdesk/backend/internal/taxonomy"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a token for the X-CSRF-Token header of mutating
// requests.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter, err := productFilterFromQuery(r.URL.Query())
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		items, err := a.service.ListProducts(r.Context(), filter)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": items})
	case http.MethodPost:
		var req domain.ProductInput
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r.URL.Path, "/api/v1/products/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, errors.New("product not found"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		product, err := a.service.GetProduct(r.Context(), id)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case http.MethodPut:
		var req domain.ProductInput
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.UpdateProduct(r.Context(), id, req)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case http.MethodDelete:
		if err := a.service.DeleteProduct(r.Context(), id); err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleTaxonomy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	tax, err := a.service.Taxonomy(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	resp := map[string]any{"taxonomy": tax}

	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		brands, err := a.service.BrandsForCategory(r.Context(), category)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		resp["category_brands"] = brands
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleTaxonomyRemove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	kindRaw, valueRaw, ok := strings.Cut(pathTail(r.URL.EscapedPath(), "/api/v1/taxonomy/"), "/")
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("taxonomy value not found"))
		return
	}
	kindName, err := url.PathUnescape(kindRaw)
	if err != nil {
		writeError(w, http.StatusNotFound, errors.New("taxonomy value not found"))
		return
	}
	kind, ok := taxonomy.ParseKind(kindName)
	if !ok {
		a.writeServiceError(w, r, badRequest("kind", "kind must be category, brand or model"))
		return
	}
	value, err := url.PathUnescape(valueRaw)
	if err != nil || strings.TrimSpace(value) == "" {
		a.writeServiceError(w, r, badRequest("value", "value is required"))
		return
	}

	removed, err := a.service.RemoveTaxonomyValue(r.Context(), kind, value)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, errors.New("taxonomy value not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCartValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req struct {
		Lines []domain.CartLineInput `json:"lines"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.ValidateCart(r.Context(), req.Lines)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter, err := salesFilterFromQuery(r.URL.Query())
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		history, err := a.service.SalesHistory(r.Context(), filter)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, history)
	case http.MethodPost:
		var req domain.CommitSaleRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sale, err := a.service.CommitSale(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	tail := pathTail(r.URL.Path, "/api/v1/sales/")

	if tail == "recent" {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		sales, err := a.service.RecentSales(r.Context())
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
		return
	}

	if id, ok := strings.CutSuffix(tail, "/payments"); ok {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.PaymentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sale, err := a.service.ApplyPayment(r.Context(), id, req)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
		return
	}

	if tail == "" || strings.Contains(tail, "/") {
		writeError(w, http.StatusNotFound, errors.New("sale not found"))
		return
	}
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	sale, err := a.service.GetSale(r.Context(), tail)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleOverdueDues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	dues, err := a.service.OverdueDues(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dues": dues})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if err := a.service.Refresh(r.Context()); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	st, err := a.service.State(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"products":  len(st.Products),
		"sales":     len(st.Sales),
		"loaded_at": st.LoadedAt.Format(time.RFC3339),
	})
}

func (a *API) handleEmployees(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"employees": a.auth.ListEmployees(r.Context())})
	case http.MethodPost:
		var req domain.EmployeeCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := a.service.ValidateStruct(domain.CodeInvalidRequest, req); err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		employee, err := a.auth.CreateEmployee(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		a.logger.WithField("audit", true).WithField("action", "employee_create").WithField("entity_id", employee.Email).Info("audit")
		writeJSON(w, http.StatusCreated, map[string]any{"employee": employee})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleEmployeeActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	email, err := url.PathUnescape(pathTail(r.URL.EscapedPath(), "/api/v1/employees/"))
	if err != nil || email == "" {
		writeError(w, http.StatusNotFound, ErrEmployeeNotFound)
		return
	}
	if err := a.auth.DeleteEmployee(r.Context(), email); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.logger.WithField("audit", true).WithField("action", "employee_delete").WithField("entity_id", email).Info("audit")
	w.WriteHeader(http.StatusNoContent)
}

func pathTail(path string, prefix string) string {
	return strings.Trim(strings.TrimSpace(strings.TrimPrefix(path, prefix)), "/")
}

func productFilterFromQuery(q url.Values) (domain.ProductFilter, error) {
	filter := domain.ProductFilter{
		Category: strings.TrimSpace(q.Get("category")),
		Brand:    strings.TrimSpace(q.Get("brand")),
	}
	raw := strings.TrimSpace(q.Get("status"))
	if raw == "" {
		return filter, nil
	}
	normalized := strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToLower(raw))
	for _, status := range []domain.StockStatus{domain.StockStatusInStock, domain.StockStatusLowStock, domain.StockStatusOutOfStock} {
		if strings.ToLower(string(status)) == normalized {
			filter.Status = status
			return filter, nil
		}
	}
	return filter, badRequest("status", "status must be In Stock, Low Stock or Out of Stock")
}

func salesFilterFromQuery(q url.Values) (domain.SalesFilter, error) {
	filter := domain.SalesFilter{
		Date:     strings.TrimSpace(q.Get("date")),
		Category: strings.TrimSpace(q.Get("category")),
		Brand:    strings.TrimSpace(q.Get("brand")),
	}
	switch strings.ToLower(strings.TrimSpace(q.Get("status"))) {
	case "":
	case "paid":
		filter.Status = domain.PaymentStatusPaid
	case "due":
		filter.Status = domain.PaymentStatusDue
	default:
		return filter, badRequest("status", "status must be Paid or Due")
	}
	return filter, nil
}
