// Package report renders metrics and the sales ledger as .xlsx workbooks.
package report

import (
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"shopdesk/backend/internal/domain"
)

const (
	SheetName   = "Sheet1"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// MonthlyMetrics writes one row per month bucket.
func MonthlyMetrics(monthly []domain.SalesMetric) (*excelize.File, error) {
	rows := make([][]any, 0, len(monthly))
	for _, m := range monthly {
		rows = append(rows, []any{m.Month, m.TotalOrders, m.TotalSales, money(m.Revenue), money(m.TotalProfit)})
	}
	return workbook([]any{"Month", "Orders", "Units Sold", "Revenue", "Profit"}, rows)
}

// SalesHistory writes one row per sale followed by the filtered totals.
func SalesHistory(history domain.SalesHistory) (*excelize.File, error) {
	rows := make([][]any, 0, len(history.Sales)+2)
	for _, sale := range history.Sales {
		status := string(domain.PaymentStatusPaid)
		if !sale.FullyPaid() {
			status = string(domain.PaymentStatusDue)
		}
		rows = append(rows, []any{
			sale.ID,
			sale.Date,
			sale.CustomerName,
			sale.CustomerPhone,
			sale.UnitsSold(),
			money(sale.TotalAmount),
			money(sale.PaidAmount),
			money(sale.DueAmount),
			sale.CommitmentDate,
			status,
		})
	}
	rows = append(rows, []any{}, []any{"Revenue", money(history.Totals.Revenue)}, []any{"Profit", money(history.Totals.Profit)})

	return workbook([]any{"Sale", "Date", "Customer", "Phone", "Units", "Total", "Paid", "Due", "Commitment Date", "Status"}, rows)
}

func workbook(header []any, rows [][]any) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, err
	}
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
