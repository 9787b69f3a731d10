package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"shopdesk/backend/internal/domain"
	"shopdesk/backend/internal/store"
	"shopdesk/backend/internal/xid"
)

type Store struct {
	mu           sync.RWMutex
	products     map[string]domain.Product
	sales        map[string]domain.SaleRecord
	usersByEmail map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:     make(map[string]domain.Product),
		sales:        make(map[string]domain.SaleRecord),
		usersByEmail: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Passwords come from SEED_ADMIN_PASSWORD and SEED_EMPLOYEE_PASSWORD and
// fall back to dev defaults with a warning.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	employeePwd := envOr("SEED_EMPLOYEE_PASSWORD", "employee123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_EMPLOYEE_PASSWORD") == "" {
		logrus.WithField("module", "memory-store").Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_EMPLOYEE_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		email    string
		name     string
		password string
		role     string
	}{
		{"admin@shop.local", "Shop Admin", adminPwd, domain.RoleAdmin},
		{"employee@shop.local", "Counter Staff", employeePwd, domain.RoleEmployee},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logrus.WithField("module", "memory-store").Fatalf("failed to hash seed password for %s: %v", u.email, err)
		}
		users[u.email] = domain.UserAccount{
			Email:     u.email,
			Name:      u.name,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	for _, p := range []domain.Product{
		{ID: "prd-galaxy-a15", Category: "Smartphone", Brand: "Samsung", ModelName: "Galaxy A15", Price: decimal.NewFromInt(15000), Quantity: 12},
		{ID: "prd-redmi-13c", Category: "Smartphone", Brand: "Xiaomi", ModelName: "Redmi 13C", Price: decimal.NewFromInt(12500), Quantity: 25},
		{ID: "prd-nokia-105", Category: "Button Phone", Brand: "Nokia", ModelName: "105", Price: decimal.NewFromInt(1400), Quantity: 40},
		{ID: "prd-symphony-b69", Category: "Button Phone", Brand: "Symphony", ModelName: "B69", Price: decimal.NewFromInt(1100), Quantity: 0},
		{ID: "prd-buds-fe", Category: "Airbuds", Brand: "Samsung", ModelName: "Galaxy Buds FE", Price: decimal.NewFromInt(6500), Quantity: 8},
		{ID: "prd-qcy-t13", Category: "Airbuds", Brand: "QCY", ModelName: "T13", Price: decimal.NewFromInt(1800), Quantity: 30},
		{ID: "prd-oraimo-necklace", Category: "Neckband", Brand: "Oraimo", ModelName: "Necklace 3", Price: decimal.NewFromInt(1200), Quantity: 22},
		{ID: "prd-mi-band-8", Category: "Smart Watch", Brand: "Xiaomi", ModelName: "Smart Band 8", Price: decimal.NewFromInt(3800), Quantity: 15},
		{ID: "prd-anker-10k", Category: "Power Bank", Brand: "Anker", ModelName: "PowerCore 10K", Price: decimal.NewFromInt(2900), Quantity: 18},
	} {
		s.products[p.ID] = p
	}
	s.usersByEmail = seedUsers()
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := cmpString(a.Category, b.Category); c != 0 {
			return c
		}
		if c := cmpString(a.Brand, b.Brand); c != 0 {
			return c
		}
		return cmpString(a.ModelName, b.ModelName)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrDuplicate
	}
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		return nil, store.ErrInvalidTransaction
	}
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[product.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.SaleRecord, 0, len(s.sales))
	for _, sale := range s.sales {
		sales = append(sales, cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.SaleRecord) int {
		if a.Timestamp != b.Timestamp {
			if a.Timestamp > b.Timestamp {
				return -1
			}
			return 1
		}
		return cmpString(a.ID, b.ID)
	})
	return sales, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneSale(sale)
	return &dup, nil
}

// RecordSaleTransaction checks every line against current stock before it
// touches anything, so a rejected sale leaves the store unchanged.
func (s *Store) RecordSaleTransaction(_ context.Context, tx domain.SaleTransaction) (*domain.SaleRecord, error) {
	if err := store.ValidateSaleTransaction(tx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	requested := make(map[string]int, len(tx.Items))
	for _, item := range tx.Items {
		requested[item.ProductID] += item.Quantity
	}
	for productID, qty := range requested {
		product, ok := s.products[productID]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
		}
		if product.Quantity < qty {
			return nil, store.ErrInsufficientStock
		}
	}

	for productID, qty := range requested {
		product := s.products[productID]
		product.Quantity -= qty
		s.products[productID] = product
	}

	record := domain.SaleRecord{
		ID:             xid.New("sale"),
		CustomerName:   tx.CustomerName,
		CustomerPhone:  tx.CustomerPhone,
		Date:           tx.Date,
		Timestamp:      tx.Timestamp,
		Items:          slices.Clone(tx.Items),
		TotalAmount:    store.SaleTotal(tx.Items),
		PaidAmount:     tx.PaidAmount,
		DueAmount:      tx.DueAmount,
		CommitmentDate: tx.CommitmentDate,
	}
	if record.Timestamp == 0 {
		record.Timestamp = time.Now().UnixMilli()
	}
	s.sales[record.ID] = record

	dup := cloneSale(record)
	return &dup, nil
}

func (s *Store) UpdateSalePayment(_ context.Context, update domain.PaymentUpdate) (*domain.SaleRecord, error) {
	if err := store.ValidatePaymentUpdate(update); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[update.SaleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !sale.PaidAmount.Equal(update.ExpectedPaid) {
		return nil, store.ErrStaleRecord
	}
	if !update.PaidAmount.Add(update.DueAmount).Equal(sale.TotalAmount) {
		return nil, store.ErrInvalidTransaction
	}

	sale.PaidAmount = update.PaidAmount
	sale.DueAmount = update.DueAmount
	sale.CommitmentDate = update.CommitmentDate
	s.sales[sale.ID] = sale

	dup := cloneSale(sale)
	return &dup, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	email := normalizeEmail(user.Email)
	if email == "" || user.Password == "" {
		return store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByEmail[email]; exists {
		return store.ErrDuplicate
	}
	user.Email = email
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByEmail[email] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByEmail))
	for _, user := range s.usersByEmail {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Email, b.Email)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, email string, password string) error {
	email = normalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByEmail[email]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByEmail[email] = user
	return nil
}

func (s *Store) DeleteUser(_ context.Context, email string) error {
	email = normalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByEmail[email]; !ok {
		return store.ErrNotFound
	}
	delete(s.usersByEmail, email)
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

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src domain.SaleRecord) domain.SaleRecord {
	dup := src
	dup.Items = slices.Clone(src.Items)
	return dup
}
