package service

import (
	"context"

	"graphi/backend/internal/domain"
)

func (s *Service) RecordSale(ctx context.Context, storeID string, req domain.SaleCreateRequest) (domain.Sale, error) {
	_, shop, err := s.authorizedStore(ctx, storeID)
	if err != nil {
		return domain.Sale{}, err
	}
	return s.ledger.RecordSale(ctx, shop.ID, req.ProductID, req.Quantity, req.PaymentMethod)
}

func (s *Service) UpdateSale(ctx context.Context, saleID string, req domain.SaleUpdateRequest) (domain.Sale, error) {
	sale, err := s.ledger.GetSale(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	if _, _, err := s.authorizedStore(ctx, sale.StoreID); err != nil {
		return domain.Sale{}, err
	}
	return s.ledger.UpdateSale(ctx, saleID, req.Quantity, req.PaymentMethod)
}

func (s *Service) DeleteSale(ctx context.Context, saleID string) error {
	sale, err := s.ledger.GetSale(ctx, saleID)
	if err != nil {
		return err
	}
	if _, _, err := s.authorizedStore(ctx, sale.StoreID); err != nil {
		return err
	}
	return s.ledger.DeleteSale(ctx, saleID)
}

// ListSales returns the store's sales, oldest first.
func (s *Service) ListSales(ctx context.Context, storeID string) ([]domain.Sale, error) {
	_, shop, err := s.authorizedStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	items, err := s.ledger.Sales(ctx, domain.SaleFilter{StoreIDs: []string{shop.ID}})
	if err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, 0, len(items))
	for _, item := range items {
		sales = append(sales, item.Sale)
	}
	return sales, nil
}
