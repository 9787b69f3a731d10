// Package metrics derives financial summaries from the sale ledger and the
// catalog. Nothing here is stored; every figure is recomputed from its input.
//
// Revenue is cash basis: a sale contributes what has been paid so far.
// Profit is recognised only once a sale is fully paid, and then as its
// total minus the buying price of everything on it.
package metrics

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"shopdesk/backend/internal/domain"
)

const DateLayout = "2006-01-02"

// DefaultLowStockThreshold is the quantity under which stock is reported low.
const DefaultLowStockThreshold = 20

// ComputeMonthlyMetrics buckets sales by the calendar month of their date,
// January first. All twelve months are present even when empty. Sales from
// different years share a bucket; callers that want one year filter first.
func ComputeMonthlyMetrics(sales []domain.SaleRecord) []domain.SalesMetric {
	out := make([]domain.SalesMetric, 12)
	for i := range out {
		out[i] = domain.SalesMetric{
			Month:       time.Month(i + 1).String(),
			TotalProfit: decimal.Zero,
			Revenue:     decimal.Zero,
		}
	}

	for _, sale := range sales {
		day, err := time.Parse(DateLayout, sale.Date)
		if err != nil {
			continue
		}
		m := &out[day.Month()-1]
		m.TotalSales += sale.UnitsSold()
		m.TotalOrders++
		m.Revenue = m.Revenue.Add(sale.PaidAmount)
		if sale.FullyPaid() {
			m.TotalProfit = m.TotalProfit.Add(sale.TotalAmount.Sub(sale.Cost()))
		}
	}
	return out
}

// MetricForMonth looks a month up by its English name, case-insensitively.
func MetricForMonth(monthly []domain.SalesMetric, month string) (domain.SalesMetric, bool) {
	for _, m := range monthly {
		if strings.EqualFold(m.Month, month) {
			return m, true
		}
	}
	return domain.SalesMetric{}, false
}

func ComputeFilteredTotals(sales []domain.SaleRecord) domain.FilteredTotals {
	totals := domain.FilteredTotals{Revenue: decimal.Zero, Profit: decimal.Zero}
	for _, sale := range sales {
		totals.Revenue = totals.Revenue.Add(sale.PaidAmount)
		if !sale.FullyPaid() {
			continue
		}
		for _, item := range sale.Items {
			margin := item.UnitPrice.Sub(item.BuyingPrice)
			totals.Profit = totals.Profit.Add(margin.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
	}
	return totals
}

// FilterSales applies the history filters and returns matches newest first.
// Category and brand match when any line of the sale carries them.
func FilterSales(sales []domain.SaleRecord, filter domain.SalesFilter) []domain.SaleRecord {
	out := make([]domain.SaleRecord, 0, len(sales))
	for _, sale := range sales {
		if filter.Date != "" && sale.Date != filter.Date {
			continue
		}
		if filter.Category != "" && !anyItem(sale, func(i domain.SaleItem) bool { return i.Category == filter.Category }) {
			continue
		}
		if filter.Brand != "" && !anyItem(sale, func(i domain.SaleItem) bool { return i.Brand == filter.Brand }) {
			continue
		}
		switch filter.Status {
		case domain.PaymentStatusPaid:
			if !sale.FullyPaid() {
				continue
			}
		case domain.PaymentStatusDue:
			if sale.FullyPaid() {
				continue
			}
		}
		out = append(out, sale)
	}
	slices.SortStableFunc(out, func(a, b domain.SaleRecord) int {
		switch {
		case a.Timestamp > b.Timestamp:
			return -1
		case a.Timestamp < b.Timestamp:
			return 1
		}
		return 0
	})
	return out
}

// SalesInMonth keeps the sales dated in the same month and year as at.
func SalesInMonth(sales []domain.SaleRecord, at time.Time) []domain.SaleRecord {
	out := make([]domain.SaleRecord, 0)
	for _, sale := range sales {
		day, err := time.Parse(DateLayout, sale.Date)
		if err != nil {
			continue
		}
		if day.Year() == at.Year() && day.Month() == at.Month() {
			out = append(out, sale)
		}
	}
	return out
}

func SalesInYear(sales []domain.SaleRecord, year int) []domain.SaleRecord {
	out := make([]domain.SaleRecord, 0)
	for _, sale := range sales {
		day, err := time.Parse(DateLayout, sale.Date)
		if err != nil {
			continue
		}
		if day.Year() == year {
			out = append(out, sale)
		}
	}
	return out
}

func ComputeDailyStats(sales []domain.SaleRecord, date string) domain.DailyStats {
	day := FilterSales(sales, domain.SalesFilter{Date: date})
	totals := ComputeFilteredTotals(day)

	stats := domain.DailyStats{
		Date:        date,
		TotalOrders: len(day),
		Revenue:     totals.Revenue,
		TotalProfit: totals.Profit,
		SoldItems:   SoldItemsBreakdown(day),
	}
	for _, sale := range day {
		stats.TotalSales += sale.UnitsSold()
	}
	return stats
}

// SoldItemsBreakdown groups lines by product name and brand, largest
// quantity first.
func SoldItemsBreakdown(sales []domain.SaleRecord) []domain.SoldItem {
	type key struct{ name, brand string }
	index := make(map[key]int)
	out := make([]domain.SoldItem, 0)

	for _, sale := range sales {
		for _, item := range sale.Items {
			k := key{item.ProductName, item.Brand}
			i, ok := index[k]
			if !ok {
				i = len(out)
				index[k] = i
				out = append(out, domain.SoldItem{ProductName: item.ProductName, Brand: item.Brand, Revenue: decimal.Zero})
			}
			out[i].Quantity += item.Quantity
			out[i].Revenue = out[i].Revenue.Add(item.Total)
		}
	}

	slices.SortStableFunc(out, func(a, b domain.SoldItem) int {
		if a.Quantity != b.Quantity {
			return b.Quantity - a.Quantity
		}
		return strings.Compare(a.ProductName+a.Brand, b.ProductName+b.Brand)
	})
	return out
}

// OverdueDues lists sales with an outstanding due whose commitment date is
// before today, most overdue first.
func OverdueDues(sales []domain.SaleRecord, today time.Time) []domain.OverdueDue {
	todayDate := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	out := make([]domain.OverdueDue, 0)
	for _, sale := range sales {
		if sale.FullyPaid() || sale.CommitmentDate == "" {
			continue
		}
		promised, err := time.Parse(DateLayout, sale.CommitmentDate)
		if err != nil || !promised.Before(todayDate) {
			continue
		}
		out = append(out, domain.OverdueDue{
			SaleID:         sale.ID,
			CustomerName:   sale.CustomerName,
			CustomerPhone:  sale.CustomerPhone,
			DueAmount:      sale.DueAmount,
			CommitmentDate: sale.CommitmentDate,
			DaysOverdue:    int(todayDate.Sub(promised).Hours() / 24),
		})
	}
	slices.SortStableFunc(out, func(a, b domain.OverdueDue) int {
		return b.DaysOverdue - a.DaysOverdue
	})
	return out
}

func anyItem(sale domain.SaleRecord, match func(domain.SaleItem) bool) bool {
	for _, item := range sale.Items {
		if match(item) {
			return true
		}
	}
	return false
}
