package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"shopdesk/backend/internal/domain"
	"shopdesk/backend/internal/metrics"
	"shopdesk/backend/internal/store"
)

func (s *Service) SalesHistory(ctx context.Context, filter domain.SalesFilter) (domain.SalesHistory, error) {
	filter.Date = strings.TrimSpace(filter.Date)
	if filter.Date != "" {
		if err := parseDate(filter.Date, "date"); err != nil {
			return domain.SalesHistory{}, err
		}
	}
	st, err := s.State(ctx)
	if err != nil {
		return domain.SalesHistory{}, err
	}
	sales := metrics.FilterSales(st.Sales, filter)
	return domain.SalesHistory{
		Sales:  sales,
		Totals: metrics.ComputeFilteredTotals(sales),
	}, nil
}

// RecentSales lists the sales dated in the current calendar month.
func (s *Service) RecentSales(ctx context.Context) ([]domain.SaleRecord, error) {
	st, err := s.State(ctx)
	if err != nil {
		return nil, err
	}
	return metrics.SalesInMonth(st.Sales, s.now().In(s.location)), nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.SaleRecord, error) {
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SaleRecord{}, domain.ErrSaleNotFound
		}
		return domain.SaleRecord{}, err
	}
	return *sale, nil
}

// MonthlyMetrics returns the twelve monthly buckets. A non-zero year limits
// the sales considered; a month name narrows the result to one bucket.
func (s *Service) MonthlyMetrics(ctx context.Context, year int, month string) ([]domain.SalesMetric, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	st, err := s.State(ctx)
	if err != nil {
		return nil, err
	}

	monthly := st.Monthly
	if year != 0 {
		monthly = metrics.ComputeMonthlyMetrics(metrics.SalesInYear(st.Sales, year))
	}

	month = strings.TrimSpace(month)
	if month == "" {
		return monthly, nil
	}
	metric, ok := metrics.MetricForMonth(monthly, month)
	if !ok {
		return nil, domain.Invalid(domain.CodeInvalidDate, "month", fmt.Sprintf("unknown month %q", month))
	}
	return []domain.SalesMetric{metric}, nil
}

func (s *Service) DailyStats(ctx context.Context, date string) (domain.DailyStats, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.DailyStats{}, err
	}
	date = strings.TrimSpace(date)
	if date == "" {
		date = s.Today()
	} else if err := parseDate(date, "date"); err != nil {
		return domain.DailyStats{}, err
	}
	st, err := s.State(ctx)
	if err != nil {
		return domain.DailyStats{}, err
	}
	return metrics.ComputeDailyStats(st.Sales, date), nil
}

func (s *Service) InventorySummary(ctx context.Context) (domain.InventorySummary, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.InventorySummary{}, err
	}
	st, err := s.State(ctx)
	if err != nil {
		return domain.InventorySummary{}, err
	}
	return metrics.ComputeInventorySummary(st.Products, s.lowStock), nil
}

func (s *Service) StockValuation(ctx context.Context) (domain.StockValuation, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.StockValuation{}, err
	}
	st, err := s.State(ctx)
	if err != nil {
		return domain.StockValuation{}, err
	}
	return metrics.ComputeStockValuation(st.Products), nil
}

func (s *Service) OverdueDues(ctx context.Context) ([]domain.OverdueDue, error) {
	st, err := s.State(ctx)
	if err != nil {
		return nil, err
	}
	return metrics.OverdueDues(st.Sales, s.now().In(s.location)), nil
}

// SweepOverdueDues reloads the ledger and reports the overdue dues, keeping
// the overdue gauge current. It is the scheduled reminder job's entry point.
func (s *Service) SweepOverdueDues(ctx context.Context) ([]domain.OverdueDue, error) {
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	dues, err := s.OverdueDues(ctx)
	if err != nil {
		return nil, err
	}
	s.recorder.SetOverdueDues(len(dues))
	return dues, nil
}
