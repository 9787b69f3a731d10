package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"shopdesk/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrStaleRecord        = errors.New("record changed concurrently")
	ErrDuplicate          = errors.New("already exists")
)

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	ListSales(ctx context.Context) ([]domain.SaleRecord, error)
	GetSale(ctx context.Context, id string) (*domain.SaleRecord, error)
	// RecordSaleTransaction inserts the sale, its items and the stock
	// decrements as one unit. It returns ErrInsufficientStock without
	// writing anything if any product would go negative.
	RecordSaleTransaction(ctx context.Context, tx domain.SaleTransaction) (*domain.SaleRecord, error)
	// UpdateSalePayment replaces the payment fields only if the stored paid
	// amount still equals update.ExpectedPaid, otherwise ErrStaleRecord.
	UpdateSalePayment(ctx context.Context, update domain.PaymentUpdate) (*domain.SaleRecord, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, email string, password string) error
	DeleteUser(ctx context.Context, email string) error
}

// ValidateSaleTransaction checks the shape of a transaction before any
// stock is touched. Both stores run it inside their write boundary.
func ValidateSaleTransaction(tx domain.SaleTransaction) error {
	if len(tx.Items) == 0 || tx.CustomerName == "" || tx.Date == "" {
		return ErrInvalidTransaction
	}
	for _, item := range tx.Items {
		if item.ProductID == "" || item.Quantity < 1 || item.UnitPrice.IsNegative() || !domain.IsMoney(item.UnitPrice) {
			return ErrInvalidTransaction
		}
		if !item.Total.Equal(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))) {
			return ErrInvalidTransaction
		}
	}
	if tx.PaidAmount.IsNegative() || tx.DueAmount.IsNegative() {
		return ErrInvalidTransaction
	}
	if !domain.IsMoney(tx.PaidAmount) || !domain.IsMoney(tx.DueAmount) {
		return ErrInvalidTransaction
	}
	if !tx.PaidAmount.Add(tx.DueAmount).Equal(SaleTotal(tx.Items)) {
		return ErrInvalidTransaction
	}
	if tx.DueAmount.IsPositive() && tx.CommitmentDate == "" {
		return ErrInvalidTransaction
	}
	return nil
}

func SaleTotal(items []domain.SaleItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Total)
	}
	return total
}

func ValidatePaymentUpdate(update domain.PaymentUpdate) error {
	if update.SaleID == "" || update.PaidAmount.IsNegative() || update.DueAmount.IsNegative() {
		return ErrInvalidTransaction
	}
	if !domain.IsMoney(update.PaidAmount) || !domain.IsMoney(update.DueAmount) {
		return ErrInvalidTransaction
	}
	if update.DueAmount.IsPositive() && update.CommitmentDate == "" {
		return ErrInvalidTransaction
	}
	if !update.DueAmount.IsPositive() && update.CommitmentDate != "" {
		return ErrInvalidTransaction
	}
	return nil
}
