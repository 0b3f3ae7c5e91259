package memory

import (
	"context"

	"graphi/backend/internal/domain"
	"graphi/backend/internal/store"
)

type memTx struct {
	s        *Store
	stores   map[string]domain.Store
	products map[string]domain.Product
	sales    map[string]domain.Sale
	deleted  map[string]struct{}
}

func (t *memTx) GetStoreForUpdate(_ context.Context, id string) (*domain.Store, error) {
	if shop, ok := t.stores[id]; ok {
		return &shop, nil
	}
	shop, ok := t.s.storesByID[id]
	if !ok {
		return nil, store.ErrNotFound.WithDetail("store %s not found", id)
	}
	return &shop, nil
}

func (t *memTx) GetProductForUpdate(_ context.Context, id string) (*domain.Product, error) {
	if product, ok := t.products[id]; ok {
		return &product, nil
	}
	product, ok := t.s.productsByID[id]
	if !ok {
		return nil, store.ErrNotFound.WithDetail("product %s not found", id)
	}
	return &product, nil
}

func (t *memTx) ListProductsForUpdate(_ context.Context, storeID string) ([]domain.Product, error) {
	return t.s.productsOf(storeID, t.products), nil
}

func (t *memTx) GetSaleForUpdate(_ context.Context, id string) (*domain.Sale, error) {
	if _, gone := t.deleted[id]; gone {
		return nil, store.ErrNotFound.WithDetail("sale %s not found", id)
	}
	if sale, ok := t.sales[id]; ok {
		return &sale, nil
	}
	sale, ok := t.s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound.WithDetail("sale %s not found", id)
	}
	return &sale, nil
}

func (t *memTx) InsertSale(_ context.Context, sale domain.Sale) error {
	if _, exists := t.s.salesByID[sale.ID]; exists {
		return store.ErrConflict.WithDetail("sale %s already exists", sale.ID)
	}
	if _, exists := t.sales[sale.ID]; exists {
		return store.ErrConflict.WithDetail("sale %s already exists", sale.ID)
	}
	t.sales[sale.ID] = sale
	return nil
}

func (t *memTx) UpdateSale(ctx context.Context, sale domain.Sale) error {
	if _, err := t.GetSaleForUpdate(ctx, sale.ID); err != nil {
		return err
	}
	t.sales[sale.ID] = sale
	return nil
}

func (t *memTx) DeleteSale(ctx context.Context, id string) error {
	if _, err := t.GetSaleForUpdate(ctx, id); err != nil {
		return err
	}
	delete(t.sales, id)
	t.deleted[id] = struct{}{}
	return nil
}

func (t *memTx) SaveProduct(ctx context.Context, product domain.Product) error {
	if _, err := t.GetProductForUpdate(ctx, product.ID); err != nil {
		return err
	}
	t.products[product.ID] = product
	return nil
}

func (t *memTx) SaveStore(ctx context.Context, shop domain.Store) error {
	if _, err := t.GetStoreForUpdate(ctx, shop.ID); err != nil {
		return err
	}
	t.stores[shop.ID] = shop
	return nil
}

func (t *memTx) commit() {
	for id, shop := range t.stores {
		t.s.storesByID[id] = shop
	}
	for id, product := range t.products {
		t.s.productsByID[id] = product
	}
	for id := range t.deleted {
		delete(t.s.salesByID, id)
	}
	for id, sale := range t.sales {
		t.s.salesByID[id] = sale
	}
}
