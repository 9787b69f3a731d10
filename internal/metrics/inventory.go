package metrics

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"shopdesk/backend/internal/domain"
)

func StockStatusOf(quantity int, lowThreshold int) domain.StockStatus {
	if lowThreshold <= 0 {
		lowThreshold = DefaultLowStockThreshold
	}
	switch {
	case quantity <= 0:
		return domain.StockStatusOutOfStock
	case quantity < lowThreshold:
		return domain.StockStatusLowStock
	default:
		return domain.StockStatusInStock
	}
}

func StockValue(p domain.Product) decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// InventoryItems annotates products with stock status and value, keeping
// only those that pass the filter.
func InventoryItems(products []domain.Product, filter domain.ProductFilter, lowThreshold int) []domain.InventoryItem {
	out := make([]domain.InventoryItem, 0, len(products))
	for _, p := range products {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.Brand != "" && p.Brand != filter.Brand {
			continue
		}
		status := StockStatusOf(p.Quantity, lowThreshold)
		if filter.Status != domain.StockStatusAll && status != filter.Status {
			continue
		}
		out = append(out, domain.InventoryItem{Product: p, Status: status, StockValue: StockValue(p)})
	}
	return out
}

func ComputeInventorySummary(products []domain.Product, lowThreshold int) domain.InventorySummary {
	summary := domain.InventorySummary{TotalItems: len(products), TotalStockValue: decimal.Zero}
	for _, p := range products {
		summary.TotalUnits += p.Quantity
		summary.TotalStockValue = summary.TotalStockValue.Add(StockValue(p))
		switch StockStatusOf(p.Quantity, lowThreshold) {
		case domain.StockStatusOutOfStock:
			summary.OutOfStockCount++
		case domain.StockStatusLowStock:
			summary.LowStockCount++
		}
	}
	return summary
}

// ComputeStockValuation groups stock value by category with a per-brand
// breakdown, both sorted by name.
func ComputeStockValuation(products []domain.Product) domain.StockValuation {
	valuation := domain.StockValuation{Categories: []domain.CategoryStock{}, GrandTotal: decimal.Zero}
	categoryIndex := make(map[string]int)
	brandIndex := make(map[string]map[string]int)

	for _, p := range products {
		ci, ok := categoryIndex[p.Category]
		if !ok {
			ci = len(valuation.Categories)
			categoryIndex[p.Category] = ci
			brandIndex[p.Category] = make(map[string]int)
			valuation.Categories = append(valuation.Categories, domain.CategoryStock{Category: p.Category, StockValue: decimal.Zero})
		}
		category := &valuation.Categories[ci]
		value := StockValue(p)

		category.Items++
		category.Units += p.Quantity
		category.StockValue = category.StockValue.Add(value)

		bi, ok := brandIndex[p.Category][p.Brand]
		if !ok {
			bi = len(category.Brands)
			brandIndex[p.Category][p.Brand] = bi
			category.Brands = append(category.Brands, domain.BrandStock{Brand: p.Brand, StockValue: decimal.Zero})
		}
		category.Brands[bi].Units += p.Quantity
		category.Brands[bi].StockValue = category.Brands[bi].StockValue.Add(value)

		valuation.TotalUnits += p.Quantity
		valuation.GrandTotal = valuation.GrandTotal.Add(value)
	}

	for i := range valuation.Categories {
		slices.SortFunc(valuation.Categories[i].Brands, func(a, b domain.BrandStock) int {
			return strings.Compare(a.Brand, b.Brand)
		})
	}
	slices.SortFunc(valuation.Categories, func(a, b domain.CategoryStock) int {
		return strings.Compare(a.Category, b.Category)
	})
	return valuation
}
