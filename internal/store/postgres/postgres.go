package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"shopdesk/backend/internal/domain"
	"shopdesk/backend/internal/store"
	"shopdesk/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

const (
	codeInsufficientStock = "SD001"
	codeUnknownProduct    = "SD002"
	codeUniqueViolation   = "23505"
	codeCheckViolation    = "23514"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies schema.sql. Every statement in it is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const productColumns = `id, category, brand, model_name, price, quantity, description`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Category, &p.Brand, &p.ModelName, &p.Price, &p.Quantity, &p.Description)
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY category, brand, model_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, category, brand, model_name, price, quantity, description, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5::numeric,$6,$7,now(),now())
	`, product.ID, product.Category, product.Brand, product.ModelName, product.Price.String(), product.Quantity, product.Description)
	if err != nil {
		return nil, mapError(err)
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		return nil, store.ErrInvalidTransaction
	}
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET category = $2, brand = $3, model_name = $4, price = $5::numeric, quantity = $6, description = $7, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Category, product.Brand, product.ModelName, product.Price.String(), product.Quantity, product.Description)
	if err != nil {
		return nil, mapError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

const saleColumns = `id, customer_name, customer_phone, to_char(date, 'YYYY-MM-DD'), timestamp,
	total_amount, paid_amount, due_amount, to_char(commitment_date, 'YYYY-MM-DD')`

func scanSale(row interface{ Scan(...any) error }) (domain.SaleRecord, error) {
	var sale domain.SaleRecord
	var commitment sql.NullString
	err := row.Scan(&sale.ID, &sale.CustomerName, &sale.CustomerPhone, &sale.Date, &sale.Timestamp,
		&sale.TotalAmount, &sale.PaidAmount, &sale.DueAmount, &commitment)
	if err != nil {
		return domain.SaleRecord{}, err
	}
	sale.CommitmentDate = commitment.String
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.SaleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		ORDER BY timestamp DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.SaleRecord, 0, 256)
	index := make(map[string]int)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sale.Items = []domain.SaleItem{}
		index[sale.ID] = len(sales)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return sales, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, product_name, category, brand, quantity, unit_price, buying_price, total
		FROM sale_items
		ORDER BY sale_id, line_no
	`)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var saleID string
		item, err := scanItem(itemRows, &saleID)
		if err != nil {
			return nil, err
		}
		if i, ok := index[saleID]; ok {
			sales[i].Items = append(sales[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.SaleRecord, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, product_name, category, brand, quantity, unit_price, buying_price, total
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY line_no
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sale.Items = []domain.SaleItem{}
	for rows.Next() {
		var saleID string
		item, err := scanItem(rows, &saleID)
		if err != nil {
			return nil, err
		}
		sale.Items = append(sale.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func scanItem(rows *sql.Rows, saleID *string) (domain.SaleItem, error) {
	var item domain.SaleItem
	err := rows.Scan(saleID, &item.ProductID, &item.ProductName, &item.Category, &item.Brand,
		&item.Quantity, &item.UnitPrice, &item.BuyingPrice, &item.Total)
	return item, err
}

type saleItemPayload struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Category    string `json:"category"`
	Brand       string `json:"brand"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	BuyingPrice string `json:"buying_price"`
	Total       string `json:"total"`
}

// RecordSaleTransaction calls the record_sale_transaction function, which
// runs as one statement and therefore one transaction.
func (s *Store) RecordSaleTransaction(ctx context.Context, tx domain.SaleTransaction) (*domain.SaleRecord, error) {
	if err := store.ValidateSaleTransaction(tx); err != nil {
		return nil, err
	}
	if tx.Timestamp == 0 {
		tx.Timestamp = time.Now().UnixMilli()
	}

	payload := make([]saleItemPayload, 0, len(tx.Items))
	for _, item := range tx.Items {
		payload = append(payload, saleItemPayload{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Category:    item.Category,
			Brand:       item.Brand,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.String(),
			BuyingPrice: item.BuyingPrice.String(),
			Total:       item.Total.String(),
		})
	}
	items, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var saleID string
	err = s.db.QueryRowContext(ctx, `
		SELECT record_sale_transaction($1, $2, $3::date, $4::numeric, $5::numeric, $6::date, $7, $8::jsonb)
	`, tx.CustomerName, tx.CustomerPhone, tx.Date, tx.PaidAmount.String(), tx.DueAmount.String(),
		nullableDate(tx.CommitmentDate), tx.Timestamp, string(items)).Scan(&saleID)
	if err != nil {
		return nil, mapError(err)
	}

	return s.GetSale(ctx, saleID)
}

func (s *Store) UpdateSalePayment(ctx context.Context, update domain.PaymentUpdate) (*domain.SaleRecord, error) {
	if err := store.ValidatePaymentUpdate(update); err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sales
		SET paid_amount = $2::numeric, due_amount = $3::numeric, commitment_date = $4::date
		WHERE id = $1 AND paid_amount = $5::numeric
	`, update.SaleID, update.PaidAmount.String(), update.DueAmount.String(),
		nullableDate(update.CommitmentDate), update.ExpectedPaid.String())
	if err != nil {
		return nil, mapError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sales WHERE id = $1)`, update.SaleID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, store.ErrNotFound
		}
		return nil, store.ErrStaleRecord
	}

	return s.GetSale(ctx, update.SaleID)
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" || user.Password == "" {
		return store.ErrInvalidTransaction
	}
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (email, name, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, email, user.Name, user.Password, user.Role, user.Active, createdAt)
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT email, name, password, role, active, created_at
		FROM employees
		ORDER BY email
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Email, &u.Name, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, email string, password string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE employees SET password = $2 WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)), password)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, email string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM employees WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func validateProduct(product domain.Product) error {
	if strings.TrimSpace(product.Category) == "" || strings.TrimSpace(product.Brand) == "" || strings.TrimSpace(product.ModelName) == "" {
		return store.ErrInvalidTransaction
	}
	if product.Quantity < 0 || product.Price.IsNegative() {
		return store.ErrInvalidTransaction
	}
	return nil
}

func nullableDate(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeInsufficientStock:
		return store.ErrInsufficientStock
	case codeUnknownProduct:
		return fmt.Errorf("%s: %w", pgErr.Message, store.ErrNotFound)
	case codeUniqueViolation:
		return store.ErrDuplicate
	case codeCheckViolation:
		return store.ErrInvalidTransaction
	}
	return err
}
