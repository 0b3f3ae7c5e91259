// Package ledger records sales and keeps every product's on-hand quantity
// consistent with the sales recorded against it.
package ledger

import (
	"context"
	"time"

	"graphi/backend/internal/apperr"
	"graphi/backend/internal/domain"
	"graphi/backend/internal/store"
)

// Guard applies sale mutations and the matching stock movement in a single
// transaction. Either both the sale and the product change, or neither does.
type Guard struct {
	repo store.Repository
	now  func() time.Time
}

func NewGuard(repo store.Repository, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	return &Guard{repo: repo, now: now}
}

func checkQuantity(quantity int) error {
	if quantity == 0 {
		return apperr.ErrInvalidQuantity
	}
	if quantity < 0 {
		return apperr.ErrInvalidQuantity.WithDetail("sale quantity must be positive, got %d", quantity)
	}
	return nil
}

// debit takes quantity units out of product, which must already include any
// stock being returned by the same mutation.
func debit(product *domain.Product, quantity int) error {
	if err := checkQuantity(quantity); err != nil {
		return err
	}
	if quantity > product.Quantity {
		return apperr.InsufficientStock(product.Quantity, quantity)
	}
	product.Quantity -= quantity
	return nil
}

// Create stores sale and takes its quantity out of stock. The sale's unit
// price is captured from the product.
func (g *Guard) Create(ctx context.Context, sale domain.Sale) (domain.Sale, error) {
	if err := checkQuantity(sale.Quantity); err != nil {
		return domain.Sale{}, err
	}

	err := g.repo.InTx(ctx, func(tx store.Tx) error {
		product, err := tx.GetProductForUpdate(ctx, sale.ProductID)
		if err != nil {
			return err
		}
		if product.StoreID != sale.StoreID {
			return apperr.ErrNotFound.WithDetail("product %s not found in store %s", sale.ProductID, sale.StoreID)
		}
		if err := debit(product, sale.Quantity); err != nil {
			return err
		}

		now := g.now().UTC()
		product.UpdatedAt = now
		sale.UnitPrice = product.Price
		if sale.MadeAt.IsZero() {
			sale.MadeAt = now
		}
		sale.UpdatedAt = now

		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}
		return tx.SaveProduct(ctx, *product)
	})
	if err != nil {
		return domain.Sale{}, err
	}
	return sale, nil
}

// Update returns the sale's previous quantity to stock, then takes the new
// quantity out exactly as Create would. The captured unit price is refreshed
// only when the quantity changes.
func (g *Guard) Update(ctx context.Context, saleID string, quantity int, paymentMethod string) (domain.Sale, error) {
	if err := checkQuantity(quantity); err != nil {
		return domain.Sale{}, err
	}

	var updated domain.Sale
	err := g.repo.InTx(ctx, func(tx store.Tx) error {
		sale, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		product, err := tx.GetProductForUpdate(ctx, sale.ProductID)
		if err != nil {
			return err
		}

		product.Quantity += sale.Quantity
		if err := debit(product, quantity); err != nil {
			return err
		}

		now := g.now().UTC()
		product.UpdatedAt = now
		if quantity != sale.Quantity || sale.UnitPrice.Currency == "" {
			sale.UnitPrice = product.Price
		}
		sale.Quantity = quantity
		sale.PaymentMethod = paymentMethod
		sale.UpdatedAt = now

		if err := tx.UpdateSale(ctx, *sale); err != nil {
			return err
		}
		if err := tx.SaveProduct(ctx, *product); err != nil {
			return err
		}
		updated = *sale
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}
	return updated, nil
}

// Delete removes the sale and returns its quantity to stock.
func (g *Guard) Delete(ctx context.Context, saleID string) (domain.Sale, error) {
	var deleted domain.Sale
	err := g.repo.InTx(ctx, func(tx store.Tx) error {
		sale, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		product, err := tx.GetProductForUpdate(ctx, sale.ProductID)
		if err != nil {
			return err
		}

		product.Quantity += sale.Quantity
		product.UpdatedAt = g.now().UTC()

		if err := tx.DeleteSale(ctx, sale.ID); err != nil {
			return err
		}
		if err := tx.SaveProduct(ctx, *product); err != nil {
			return err
		}
		deleted = *sale
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}
	return deleted, nil
}
