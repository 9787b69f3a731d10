package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"shopdesk/backend/internal/domain"
	"shopdesk/backend/internal/metrics"
	"shopdesk/backend/internal/store"
	"shopdesk/backend/internal/taxonomy"
)

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.InventoryItem, error) {
	st, err := s.State(ctx)
	if err != nil {
		return nil, err
	}
	return metrics.InventoryItems(st.Products, filter, s.lowStock), nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	st, err := s.State(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	product, ok := st.catalog.Product(strings.TrimSpace(id))
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

func (s *Service) CreateProduct(ctx context.Context, input domain.ProductInput) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	product, err := s.productFromInput("", input)
	if err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, mapCatalogError(err)
	}

	s.logAudit(ctx, "product_create", created.ID, logrus.Fields{"model_name": created.ModelName, "quantity": created.Quantity, "price": created.Price.String()})
	s.afterMutation(ctx, "product_create")
	return *created, nil
}

// UpdateProduct replaces every editable field of the product.
func (s *Service) UpdateProduct(ctx context.Context, id string, input domain.ProductInput) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, domain.ErrProductNotFound
	}
	product, err := s.productFromInput(id, input)
	if err != nil {
		return domain.Product{}, err
	}

	updated, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, mapCatalogError(err)
	}

	s.logAudit(ctx, "product_update", updated.ID, logrus.Fields{"quantity": updated.Quantity, "price": updated.Price.String()})
	s.afterMutation(ctx, "product_update")
	return *updated, nil
}

// DeleteProduct removes the product. Sales that sold it keep their copy of
// its name, brand and buying price.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return mapCatalogError(err)
	}

	s.logAudit(ctx, "product_delete", id, nil)
	s.afterMutation(ctx, "product_delete")
	return nil
}

func (s *Service) Taxonomy(ctx context.Context) (domain.Taxonomy, error) {
	st, err := s.State(ctx)
	if err != nil {
		return domain.Taxonomy{}, err
	}
	return st.Taxonomy.Snapshot(), nil
}

func (s *Service) BrandsForCategory(ctx context.Context, category string) ([]string, error) {
	st, err := s.State(ctx)
	if err != nil {
		return nil, err
	}
	return taxonomy.BrandsForCategory(st.Products, strings.TrimSpace(category)), nil
}

// RemoveTaxonomyValue hides a value from the suggestion lists until the
// next reload. Products carrying the value keep it.
func (s *Service) RemoveTaxonomyValue(ctx context.Context, kind taxonomy.Kind, value string) (bool, error) {
	if err := requireAdmin(ctx); err != nil {
		return false, err
	}
	st, err := s.State(ctx)
	if err != nil {
		return false, err
	}
	removed := st.Taxonomy.Remove(kind, strings.TrimSpace(value))
	if removed {
		s.logAudit(ctx, "taxonomy_remove", value, logrus.Fields{"kind": string(kind)})
	}
	return removed, nil
}

func (s *Service) productFromInput(id string, input domain.ProductInput) (domain.Product, error) {
	input.Category = strings.TrimSpace(input.Category)
	input.Brand = strings.TrimSpace(input.Brand)
	input.ModelName = strings.TrimSpace(input.ModelName)
	input.Description = strings.TrimSpace(input.Description)

	if err := s.ValidateStruct(domain.CodeInvalidProduct, input); err != nil {
		return domain.Product{}, err
	}
	if input.Price.IsNegative() {
		return domain.Product{}, domain.Invalid(domain.CodeInvalidProduct, "price", "price must not be negative")
	}
	if !domain.IsMoney(input.Price) {
		return domain.Product{}, domain.Invalid(domain.CodeInvalidProduct, "price", "price must have at most 2 decimal places")
	}

	return domain.Product{
		ID:          id,
		Category:    input.Category,
		Brand:       input.Brand,
		ModelName:   input.ModelName,
		Price:       input.Price,
		Quantity:    input.Quantity,
		Description: input.Description,
	}, nil
}

func mapCatalogError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.ErrProductNotFound
	case errors.Is(err, store.ErrDuplicate):
		return domain.Invalid(domain.CodeInvalidProduct, "id", "product already exists")
	case errors.Is(err, store.ErrInvalidTransaction):
		return domain.ErrInvalidProduct
	}
	return err
}
