package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
)

// DefaultCategories are offered as product categories even before the
// catalog holds any product in them.
var DefaultCategories = []string{
	"Smartphone",
	"Button Phone",
	"Airbuds",
	"Neckband",
	"Smart Watch",
	"Power Bank",
}

// MoneyScale is the number of decimal places every stored amount keeps.
const MoneyScale = 2

// IsMoney reports whether d fits MoneyScale without rounding.
func IsMoney(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyScale))
}

type Product struct {
	ID          string          `json:"id"`
	Category    string          `json:"category"`
	Brand       string          `json:"brand"`
	ModelName   string          `json:"model_name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Description string          `json:"description,omitempty"`
}

type ProductInput struct {
	Category    string          `json:"category" validate:"required,max=80"`
	Brand       string          `json:"brand" validate:"required,max=80"`
	ModelName   string          `json:"model_name" validate:"required,max=120"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity" validate:"gte=0"`
	Description string          `json:"description" validate:"max=500"`
}

type ProductFilter struct {
	Category string
	Brand    string
	Status   StockStatus
}

type StockStatus string

const (
	StockStatusAll        StockStatus = ""
	StockStatusInStock    StockStatus = "In Stock"
	StockStatusLowStock   StockStatus = "Low Stock"
	StockStatusOutOfStock StockStatus = "Out of Stock"
)

type InventoryItem struct {
	Product
	Status     StockStatus     `json:"status"`
	StockValue decimal.Decimal `json:"stock_value"`
}

// SaleItem is a line of a committed sale. Name, category, brand and buying
// price are copied from the product at sale time.
type SaleItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Category    string          `json:"category"`
	Brand       string          `json:"brand"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	BuyingPrice decimal.Decimal `json:"buying_price"`
	Total       decimal.Decimal `json:"total"`
}

func (i SaleItem) Cost() decimal.Decimal {
	return i.BuyingPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type SaleRecord struct {
	ID             string          `json:"id"`
	CustomerName   string          `json:"customer_name"`
	CustomerPhone  string          `json:"customer_phone,omitempty"`
	Date           string          `json:"date"`
	Timestamp      int64           `json:"timestamp"`
	Items          []SaleItem      `json:"items"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	DueAmount      decimal.Decimal `json:"due_amount"`
	CommitmentDate string          `json:"commitment_date,omitempty"`
}

func (s SaleRecord) FullyPaid() bool {
	return !s.DueAmount.IsPositive()
}

func (s SaleRecord) UnitsSold() int {
	units := 0
	for _, item := range s.Items {
		units += item.Quantity
	}
	return units
}

func (s SaleRecord) Cost() decimal.Decimal {
	cost := decimal.Zero
	for _, item := range s.Items {
		cost = cost.Add(item.Cost())
	}
	return cost
}

// SaleTransaction is the unit handed to the storage layer by the commit
// protocol. The store computes the total from Items and stamps the ID.
type SaleTransaction struct {
	CustomerName   string
	CustomerPhone  string
	Date           string
	Timestamp      int64
	PaidAmount     decimal.Decimal
	DueAmount      decimal.Decimal
	CommitmentDate string
	Items          []SaleItem
}

type PaymentUpdate struct {
	SaleID         string
	ExpectedPaid   decimal.Decimal
	PaidAmount     decimal.Decimal
	DueAmount      decimal.Decimal
	CommitmentDate string
}

type CartLineInput struct {
	ProductID string           `json:"product_id"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

type CartResponse struct {
	Lines []SaleItem      `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

type CommitSaleRequest struct {
	CustomerName   string           `json:"customer_name"`
	CustomerPhone  string           `json:"customer_phone"`
	Date           string           `json:"date"`
	Lines          []CartLineInput  `json:"lines"`
	PaidAmount     *decimal.Decimal `json:"paid_amount,omitempty"`
	DueAmount      *decimal.Decimal `json:"due_amount,omitempty"`
	CommitmentDate string           `json:"commitment_date,omitempty"`
}

type PaymentRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	CommitmentDate string          `json:"commitment_date,omitempty"`
}

type PaymentStatus string

const (
	PaymentStatusAll  PaymentStatus = ""
	PaymentStatusPaid PaymentStatus = "Paid"
	PaymentStatusDue  PaymentStatus = "Due"
)

type SalesFilter struct {
	Date     string
	Category string
	Brand    string
	Status   PaymentStatus
}

type FilteredTotals struct {
	Revenue decimal.Decimal `json:"revenue"`
	Profit  decimal.Decimal `json:"profit"`
}

type SalesHistory struct {
	Sales  []SaleRecord   `json:"sales"`
	Totals FilteredTotals `json:"totals"`
}

type SalesMetric struct {
	Month       string          `json:"month"`
	TotalSales  int             `json:"total_sales"`
	TotalProfit decimal.Decimal `json:"total_profit"`
	TotalOrders int             `json:"total_orders"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type SoldItem struct {
	ProductName string          `json:"product_name"`
	Brand       string          `json:"brand"`
	Quantity    int             `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type DailyStats struct {
	Date        string          `json:"date"`
	TotalSales  int             `json:"total_sales"`
	TotalOrders int             `json:"total_orders"`
	Revenue     decimal.Decimal `json:"revenue"`
	TotalProfit decimal.Decimal `json:"total_profit"`
	SoldItems   []SoldItem      `json:"sold_items"`
}

type InventorySummary struct {
	TotalItems      int             `json:"total_items"`
	TotalUnits      int             `json:"total_units"`
	TotalStockValue decimal.Decimal `json:"total_stock_value"`
	OutOfStockCount int             `json:"out_of_stock_count"`
	LowStockCount   int             `json:"low_stock_count"`
}

type BrandStock struct {
	Brand      string          `json:"brand"`
	Units      int             `json:"units"`
	StockValue decimal.Decimal `json:"stock_value"`
}

type CategoryStock struct {
	Category   string          `json:"category"`
	Items      int             `json:"items"`
	Units      int             `json:"units"`
	StockValue decimal.Decimal `json:"stock_value"`
	Brands     []BrandStock    `json:"brands"`
}

type StockValuation struct {
	Categories []CategoryStock `json:"categories"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	TotalUnits int             `json:"total_units"`
}

type Taxonomy struct {
	Categories []string `json:"categories"`
	Brands     []string `json:"brands"`
	Models     []string `json:"models"`
}

type OverdueDue struct {
	SaleID         string          `json:"sale_id"`
	CustomerName   string          `json:"customer_name"`
	CustomerPhone  string          `json:"customer_phone"`
	DueAmount      decimal.Decimal `json:"due_amount"`
	CommitmentDate string          `json:"commitment_date"`
	DaysOverdue    int             `json:"days_overdue"`
}

// Snapshot is the catalog and ledger as loaded from storage at one instant.
type Snapshot struct {
	Products []Product    `json:"products"`
	Sales    []SaleRecord `json:"sales"`
	LoadedAt time.Time    `json:"loaded_at"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	Name        string `json:"name"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type EmployeeCreateRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type Employee struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Email     string
	Name      string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
