package httpapi

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"shopdesk/backend/internal/domain"
	"shopdesk/backend/internal/logging"
	"shopdesk/backend/internal/report"
)

func (a *API) handleMonthlyMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	year, err := parseYear(r.URL.Query().Get("year"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	monthly, err := a.service.MonthlyMetrics(r.Context(), year, r.URL.Query().Get("month"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"metrics": monthly})
}

func (a *API) handleDailyDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	stats, err := a.service.DailyStats(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	if strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("format")), "csv") {
		body, err := dailyStatsToCSV(stats)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=daily-%s.csv", stats.Date))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleInventorySummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	summary, err := a.service.InventorySummary(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleStockValuation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	valuation, err := a.service.StockValuation(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, valuation)
}

func (a *API) handleMonthlyWorkbook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	year, err := parseYear(r.URL.Query().Get("year"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	monthly, err := a.service.MonthlyMetrics(r.Context(), year, "")
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	f, err := report.MonthlyMetrics(monthly)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.writeWorkbook(w, r, f, "monthly-metrics.xlsx")
}

func (a *API) handleSalesWorkbook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
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
	f, err := report.SalesHistory(history)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.writeWorkbook(w, r, f, "sales-history.xlsx")
}

// writeWorkbook buffers the workbook first so a write failure can still be
// reported with a proper status.
func (a *API) writeWorkbook(w http.ResponseWriter, r *http.Request, f *excelize.File, filename string) {
	defer func() {
		if err := f.Close(); err != nil {
			logging.LogError(a.logger, "httpapi", "writeWorkbook", "close workbook", filename, err)
		}
	}()
	buf, err := f.WriteToBuffer()
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func dailyStatsToCSV(stats domain.DailyStats) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	records := [][]string{
		{"section", "key", "value"},
		{"summary", "date", stats.Date},
		{"summary", "orders", strconv.Itoa(stats.TotalOrders)},
		{"summary", "units_sold", strconv.Itoa(stats.TotalSales)},
		{"summary", "revenue", stats.Revenue.StringFixed(2)},
		{"summary", "profit", stats.TotalProfit.StringFixed(2)},
	}
	for _, item := range stats.SoldItems {
		key := item.ProductName
		if item.Brand != "" {
			key = item.Brand + " " + item.ProductName
		}
		records = append(records,
			[]string{"item", key + " quantity", strconv.Itoa(item.Quantity)},
			[]string{"item", key + " revenue", item.Revenue.StringFixed(2)},
		)
	}
	if err := cw.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
