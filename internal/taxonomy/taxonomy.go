// Package taxonomy derives the distinct category, brand and model names of
// the catalog. A Registry is never persisted: removing a value only hides it
// until the next Rebuild, which happens on every catalog reload.
package taxonomy

import (
	"slices"
	"strings"
	"sync"

	"shopdesk/backend/internal/domain"
)

type Kind string

const (
	KindCategory Kind = "category"
	KindBrand    Kind = "brand"
	KindModel    Kind = "model"
)

func ParseKind(raw string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindCategory, "categories":
		return KindCategory, true
	case KindBrand, "brands":
		return KindBrand, true
	case KindModel, "models":
		return KindModel, true
	}
	return "", false
}

type Registry struct {
	mu     sync.RWMutex
	values map[Kind][]string
}

// Rebuild derives a fresh registry from products. The default categories
// are always offered, so a new shop starts with a usable category list.
func Rebuild(products []domain.Product) *Registry {
	categories := append([]string{}, domain.DefaultCategories...)
	brands := make([]string, 0)
	models := make([]string, 0)
	for _, p := range products {
		categories = append(categories, p.Category)
		brands = append(brands, p.Brand)
		models = append(models, p.ModelName)
	}

	return &Registry{values: map[Kind][]string{
		KindCategory: distinct(categories),
		KindBrand:    distinct(brands),
		KindModel:    distinct(models),
	}}
}

// Remove strikes value from the registry and reports whether it was present.
// Products using the value are untouched.
func (r *Registry) Remove(kind Kind, value string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	values := r.values[kind]
	i := slices.Index(values, value)
	if i < 0 {
		return false
	}
	r.values[kind] = slices.Delete(slices.Clone(values), i, i+1)
	return true
}

func (r *Registry) Values(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.values[kind])
}

func (r *Registry) Snapshot() domain.Taxonomy {
	return domain.Taxonomy{
		Categories: r.Values(KindCategory),
		Brands:     r.Values(KindBrand),
		Models:     r.Values(KindModel),
	}
}

// BrandsForCategory lists the brands stocked under category.
func BrandsForCategory(products []domain.Product, category string) []string {
	brands := make([]string, 0)
	for _, p := range products {
		if p.Category == category {
			brands = append(brands, p.Brand)
		}
	}
	return distinct(brands)
}

func distinct(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}
