// Package cart accumulates sale lines before a sale is committed. It
// reserves stock only in its own arithmetic; nothing is written anywhere
// until the commit protocol persists the lines.
package cart

import (
	"github.com/shopspring/decimal"

	"shopdesk/backend/internal/domain"
)

// Catalog resolves products by id.
type Catalog interface {
	Product(id string) (domain.Product, bool)
}

// CatalogMap is a Catalog backed by a map keyed on product id.
type CatalogMap map[string]domain.Product

func (m CatalogMap) Product(id string) (domain.Product, bool) {
	p, ok := m[id]
	return p, ok
}

type Policy struct {
	// AllowBelowCost lets a line be sold under the product's buying price.
	AllowBelowCost bool
}

type Cart struct {
	policy Policy
	lines  []domain.SaleItem
}

func New(policy Policy) *Cart {
	return &Cart{policy: policy}
}

// AddLine validates one line against the catalog and the lines already in
// the cart, then merges it into an existing line with the same product and
// price or appends it.
func (c *Cart) AddLine(catalog Catalog, productID string, quantity int, unitPrice *decimal.Decimal) error {
	product, ok := catalog.Product(productID)
	if !ok {
		return domain.ErrProductNotFound
	}
	if quantity < 1 {
		return domain.ErrInvalidQuantity
	}
	if quantity > product.Quantity-c.Reserved(productID) {
		return domain.ErrInsufficientStock
	}
	if unitPrice == nil {
		return domain.ErrPriceRequired
	}
	if unitPrice.IsNegative() {
		return domain.ErrInvalidPrice
	}
	if !domain.IsMoney(*unitPrice) {
		return domain.Invalid(domain.CodeInvalidPrice, "unit_price", "unit price must have at most 2 decimal places")
	}
	if !c.policy.AllowBelowCost && unitPrice.LessThan(product.Price) {
		return domain.ErrPriceBelowCost
	}

	for i := range c.lines {
		line := &c.lines[i]
		if line.ProductID == productID && line.UnitPrice.Equal(*unitPrice) {
			line.Quantity += quantity
			line.Total = lineTotal(line.UnitPrice, line.Quantity)
			return nil
		}
	}

	c.lines = append(c.lines, domain.SaleItem{
		ProductID:   product.ID,
		ProductName: product.ModelName,
		Category:    product.Category,
		Brand:       product.Brand,
		Quantity:    quantity,
		UnitPrice:   *unitPrice,
		BuyingPrice: product.Price,
		Total:       lineTotal(*unitPrice, quantity),
	})
	return nil
}

// RemoveLine drops the line at index. Out-of-range indexes are ignored.
func (c *Cart) RemoveLine(index int) {
	if index < 0 || index >= len(c.lines) {
		return
	}
	c.lines = append(c.lines[:index], c.lines[index+1:]...)
}

// Reserved is the quantity of productID already held by cart lines.
func (c *Cart) Reserved(productID string) int {
	reserved := 0
	for _, line := range c.lines {
		if line.ProductID == productID {
			reserved += line.Quantity
		}
	}
	return reserved
}

func (c *Cart) Lines() []domain.SaleItem {
	out := make([]domain.SaleItem, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Len() int {
	return len(c.lines)
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.lines {
		total = total.Add(line.Total)
	}
	return total
}

func lineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}
