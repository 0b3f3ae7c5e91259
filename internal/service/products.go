package service

import (
	"context"
	"slices"
	"strings"

	"graphi/backend/internal/apperr"
	"graphi/backend/internal/domain"
	"graphi/backend/internal/store"
	"graphi/backend/internal/xid"
)

func (s *Service) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	_, shop, err := s.authorizedStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, shop.ID)
}

// CreateProduct adds a product to the store. The price is in the store's
// default currency unless the request names another.
func (s *Service) CreateProduct(ctx context.Context, storeID string, req domain.ProductCreateRequest) (domain.Product, error) {
	_, shop, err := s.authorizedStore(ctx, storeID)
	if err != nil {
		return domain.Product{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Product{}, apperr.Validation("product name is required")
	}
	if req.Price.IsNegative() {
		return domain.Product{}, apperr.Validation("price must not be negative")
	}
	if req.Quantity < 0 {
		return domain.Product{}, apperr.Validation("quantity must not be negative")
	}
	currency := domain.NormalizeCurrency(req.Currency)
	if currency == "" {
		currency = shop.DefaultCurrency
	}
	if !domain.ValidCurrency(currency) {
		return domain.Product{}, apperr.Validation("unknown currency %q", req.Currency)
	}
	category, err := normalizeCategory(req.Category)
	if err != nil {
		return domain.Product{}, err
	}
	if err := s.checkTags(ctx, shop.ID, req.GroupID, req.BrandID); err != nil {
		return domain.Product{}, err
	}

	now := s.now().UTC()
	product := domain.Product{
		ID:          xid.New("prd"),
		StoreID:     shop.ID,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Price:       domain.NewMoney(req.Price, currency),
		Quantity:    req.Quantity,
		Category:    category,
		GroupID:     req.GroupID,
		BrandID:     req.BrandID,
		Color:       strings.TrimSpace(req.Color),
		Size:        strings.TrimSpace(req.Size),
		Weight:      req.Weight,
		AddedAt:     now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

// UpdateProduct edits a product under its row lock so restocking cannot
// race a sale.
func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if _, _, err := s.authorizedStore(ctx, existing.StoreID); err != nil {
		return domain.Product{}, err
	}

	var updated domain.Product
	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetProductForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if err := applyProductUpdate(p, req); err != nil {
			return err
		}
		p.UpdatedAt = s.now().UTC()
		if err := tx.SaveProduct(ctx, *p); err != nil {
			return err
		}
		updated = *p
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return updated, nil
}

func applyProductUpdate(p *domain.Product, req domain.ProductUpdateRequest) error {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return apperr.Validation("product name is required")
		}
		p.Name = name
	}
	if req.Description != nil {
		p.Description = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return apperr.Validation("price must not be negative")
		}
		p.Price.Amount = *req.Price
	}
	if req.Quantity != nil {
		if *req.Quantity < 0 {
			return apperr.Validation("quantity must not be negative")
		}
		p.Quantity = *req.Quantity
	}
	if req.Category != nil {
		category, err := normalizeCategory(*req.Category)
		if err != nil {
			return err
		}
		p.Category = category
	}
	if req.Color != nil {
		p.Color = strings.TrimSpace(*req.Color)
	}
	if req.Size != nil {
		p.Size = strings.TrimSpace(*req.Size)
	}
	return nil
}

func normalizeCategory(raw string) (string, error) {
	category := strings.ToLower(strings.TrimSpace(raw))
	if category == "" {
		return "others", nil
	}
	if !domain.ValidCategory(category) {
		return "", apperr.Validation("unknown category %q", raw)
	}
	return category, nil
}

func (s *Service) checkTags(ctx context.Context, storeID, groupID, brandID string) error {
	if groupID != "" {
		groups, err := s.repo.ListGroups(ctx, storeID)
		if err != nil {
			return err
		}
		if !slices.ContainsFunc(groups, func(g domain.ProductGroup) bool { return g.ID == groupID }) {
			return apperr.ErrNotFound.WithDetail("group %s not found in store %s", groupID, storeID)
		}
	}
	if brandID != "" {
		brands, err := s.repo.ListBrands(ctx, storeID)
		if err != nil {
			return err
		}
		if !slices.ContainsFunc(brands, func(b domain.ProductBrand) bool { return b.ID == brandID }) {
			return apperr.ErrNotFound.WithDetail("brand %s not found in store %s", brandID, storeID)
		}
	}
	return nil
}

func (s *Service) CreateProductGroup(ctx context.Context, storeID, name string) (domain.ProductGroup, error) {
	_, shop, err := s.authorizedStore(ctx, storeID)
	if err != nil {
		return domain.ProductGroup{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ProductGroup{}, apperr.Validation("group name is required")
	}
	group := domain.ProductGroup{ID: xid.New("grp"), StoreID: shop.ID, Name: name, CreatedAt: s.now().UTC()}
	if err := s.repo.CreateGroup(ctx, group); err != nil {
		return domain.ProductGroup{}, err
	}
	return group, nil
}

func (s *Service) CreateProductBrand(ctx context.Context, storeID, name string) (domain.ProductBrand, error) {
	_, shop, err := s.authorizedStore(ctx, storeID)
	if err != nil {
		return domain.ProductBrand{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ProductBrand{}, apperr.Validation("brand name is required")
	}
	brand := domain.ProductBrand{ID: xid.New("brd"), StoreID: shop.ID, Name: name, CreatedAt: s.now().UTC()}
	if err := s.repo.CreateBrand(ctx, brand); err != nil {
		return domain.ProductBrand{}, err
	}
	return brand, nil
}
