package postgres

import (
	"context"
	"database/sql"

	"graphi/backend/internal/domain"
	"graphi/backend/internal/store"
)

const forUpdate = "FOR UPDATE"

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetStoreForUpdate(ctx context.Context, id string) (*domain.Store, error) {
	return getStore(ctx, t.tx, id, forUpdate)
}

func (t *pgTx) GetProductForUpdate(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, t.tx, id, forUpdate)
}

func (t *pgTx) ListProductsForUpdate(ctx context.Context, storeID string) ([]domain.Product, error) {
	return listProducts(ctx, t.tx, storeID, forUpdate)
}

func (t *pgTx) GetSaleForUpdate(ctx context.Context, id string) (*domain.Sale, error) {
	return getSale(ctx, t.tx, id, forUpdate)
}

func (t *pgTx) InsertSale(ctx context.Context, sale domain.Sale) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sales (id, store_id, product_id, quantity, payment_method, unit_price_amount,
			unit_price_currency, made_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, sale.ID, sale.StoreID, sale.ProductID, sale.Quantity, sale.PaymentMethod, unitPriceArg(sale),
		sale.UnitPrice.Currency, nowIfZero(sale.MadeAt), nowIfZero(sale.UpdatedAt))
	if isUniqueViolation(err) {
		return store.ErrConflict.WithDetail("sale %s already exists", sale.ID)
	}
	return err
}

func (t *pgTx) UpdateSale(ctx context.Context, sale domain.Sale) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE sales
		SET quantity = $2, payment_method = $3, unit_price_amount = $4, unit_price_currency = $5, updated_at = $6
		WHERE id = $1
	`, sale.ID, sale.Quantity, sale.PaymentMethod, unitPriceArg(sale), sale.UnitPrice.Currency, nowIfZero(sale.UpdatedAt))
	return expectRow(res, err, "sale", sale.ID)
}

func (t *pgTx) DeleteSale(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	return expectRow(res, err, "sale", id)
}

func (t *pgTx) SaveProduct(ctx context.Context, product domain.Product) error {
	return saveProduct(ctx, t.tx, product)
}

func (t *pgTx) SaveStore(ctx context.Context, shop domain.Store) error {
	return saveStore(ctx, t.tx, shop)
}

func unitPriceArg(sale domain.Sale) any {
	if sale.UnitPrice.Currency == "" {
		return nil
	}
	return sale.UnitPrice.Amount
}
