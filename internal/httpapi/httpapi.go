package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"shopdesk/backend/internal/domain"
	"shopdesk/backend/internal/logging"
	"shopdesk/backend/internal/service"
	"shopdesk/backend/internal/telemetry"
)

type Options struct {
	AllowedOrigin string
	Logger        *logrus.Logger
	Recorder      *telemetry.Recorder
}

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	logger        *logrus.Logger
	recorder      *telemetry.Recorder
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: opts.AllowedOrigin,
		logger:        opts.Logger,
		recorder:      opts.Recorder,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes the hex HMAC-SHA256 token for one hour bucket.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	bucket := time.Now().UTC().Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken accepts tokens from the current or previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	currentBucket := time.Now().UTC().Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(currentBucket))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(prevBucket)))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, a.instrument(pattern, h))
	}
	staff := []string{domain.RoleAdmin, domain.RoleEmployee}

	handle("/healthz", a.handleHealth)
	if a.recorder != nil {
		mux.Handle("/metrics", a.recorder.Handler())
	}
	handle("/api/v1/auth/login", a.handleLogin)
	handle("/api/v1/auth/csrf-token", a.handleCSRFToken)

	handle("/api/v1/products", a.requireAuth(a.handleProducts, staff...))
	handle("/api/v1/products/", a.requireAuth(a.handleProductActions, staff...))
	handle("/api/v1/taxonomy", a.requireAuth(a.handleTaxonomy, staff...))
	handle("/api/v1/taxonomy/", a.requireAuth(a.handleTaxonomyRemove, domain.RoleAdmin))
	handle("/api/v1/cart/validate", a.requireAuth(a.handleCartValidate, staff...))
	handle("/api/v1/sales", a.requireAuth(a.handleSales, staff...))
	handle("/api/v1/sales/", a.requireAuth(a.handleSaleActions, staff...))
	handle("/api/v1/dues/overdue", a.requireAuth(a.handleOverdueDues, staff...))
	handle("/api/v1/refresh", a.requireAuth(a.handleRefresh, staff...))

	handle("/api/v1/metrics/monthly", a.requireAuth(a.handleMonthlyMetrics, domain.RoleAdmin))
	handle("/api/v1/dashboard/daily", a.requireAuth(a.handleDailyDashboard, domain.RoleAdmin))
	handle("/api/v1/inventory/summary", a.requireAuth(a.handleInventorySummary, domain.RoleAdmin))
	handle("/api/v1/inventory/valuation", a.requireAuth(a.handleStockValuation, domain.RoleAdmin))
	handle("/api/v1/reports/monthly.xlsx", a.requireAuth(a.handleMonthlyWorkbook, domain.RoleAdmin))
	handle("/api/v1/reports/sales.xlsx", a.requireAuth(a.handleSalesWorkbook, domain.RoleAdmin))
	handle("/api/v1/employees", a.requireAuth(a.handleEmployees, domain.RoleAdmin))
	handle("/api/v1/employees/", a.requireAuth(a.handleEmployeeActions, domain.RoleAdmin))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

// csrfExemptPaths are reachable without first fetching a CSRF token.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF enforces the CSRF header on every state-changing method.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) statusCode() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// instrument records request count and latency under the route pattern,
// so ids in the path do not multiply label values.
func (a *API) instrument(route string, next http.HandlerFunc) http.Handler {
	if a.recorder == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		startedAt := time.Now()
		next(sw, r)
		a.recorder.ObserveRequest(r.Method, route, sw.statusCode(), time.Since(startedAt))
	})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		sw := &statusWriter{ResponseWriter: w}
		startedAt := time.Now()
		next.ServeHTTP(sw, r)
		a.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      sw.statusCode(),
			"duration_ms": time.Since(startedAt).Milliseconds(),
		}).Info("request")
	})
}

// writeServiceError maps service and store failures onto HTTP statuses.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if ve, ok := domain.AsValidation(err); ok {
		status := http.StatusBadRequest
		if ve.NotFound() {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]any{
			"error": ve.Message,
			"code":  ve.Code,
			"field": ve.Field,
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err)
	case service.IsConsistencyError(err):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, ErrEmployeeExists):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, ErrEmployeeNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		logging.LogError(a.logger, "httpapi", "writeServiceError", r.Method+" "+r.URL.Path, nil, err)
		writeError(w, http.StatusServiceUnavailable, err)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func badRequest(field string, message string) error {
	return domain.Invalid(domain.CodeInvalidRequest, field, message)
}

func parseYear(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 1 || year > 9999 {
		return 0, badRequest("year", "year must be a four digit number")
	}
	return year, nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError returns the error text for 4xx responses and only the status
// text for 5xx responses.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		msg = strings.ToLower(http.StatusText(status))
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
