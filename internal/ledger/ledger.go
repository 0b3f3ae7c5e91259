package ledger

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"graphi/backend/internal/apperr"
	"graphi/backend/internal/currency"
	"graphi/backend/internal/domain"
	"graphi/backend/internal/store"
	"graphi/backend/internal/xid"
)

type Ledger struct {
	repo      store.Repository
	guard     *Guard
	converter currency.Converter
	logger    *slog.Logger
}

// New builds a Ledger. Cross-currency totals go through converter, which
// callers usually wrap with currency.Bounded.
func New(repo store.Repository, converter currency.Converter, logger *slog.Logger, now func() time.Time) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		repo:      repo,
		guard:     NewGuard(repo, now),
		converter: converter,
		logger:    logger.With(slog.String("component", "ledger")),
	}
}

func (l *Ledger) RecordSale(ctx context.Context, storeID, productID string, quantity int, paymentMethod string) (domain.Sale, error) {
	method, ok := domain.ParsePaymentMethod(paymentMethod)
	if !ok {
		return domain.Sale{}, apperr.Validation("unknown payment method %q", paymentMethod)
	}
	if strings.TrimSpace(productID) == "" {
		return domain.Sale{}, apperr.Validation("product is required")
	}

	sale, err := l.guard.Create(ctx, domain.Sale{
		ID:            xid.New("sale"),
		StoreID:       storeID,
		ProductID:     productID,
		Quantity:      quantity,
		PaymentMethod: method,
	})
	if err != nil {
		return domain.Sale{}, err
	}
	l.logger.InfoContext(ctx, "sale recorded",
		slog.String("sale_id", sale.ID), slog.String("store_id", storeID),
		slog.String("product_id", productID), slog.Int("quantity", quantity))
	return sale, nil
}

func (l *Ledger) UpdateSale(ctx context.Context, saleID string, quantity int, paymentMethod string) (domain.Sale, error) {
	method, ok := domain.ParsePaymentMethod(paymentMethod)
	if !ok {
		return domain.Sale{}, apperr.Validation("unknown payment method %q", paymentMethod)
	}
	sale, err := l.guard.Update(ctx, saleID, quantity, method)
	if err != nil {
		return domain.Sale{}, err
	}
	l.logger.InfoContext(ctx, "sale updated", slog.String("sale_id", saleID), slog.Int("quantity", quantity))
	return sale, nil
}

func (l *Ledger) DeleteSale(ctx context.Context, saleID string) error {
	sale, err := l.guard.Delete(ctx, saleID)
	if err != nil {
		return err
	}
	l.logger.InfoContext(ctx, "sale deleted", slog.String("sale_id", saleID), slog.Int("restocked", sale.Quantity))
	return nil
}

// GetSale returns a sale by id.
func (l *Ledger) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	sale, err := l.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// RevenueOf is quantity times the unit price captured on the sale. Sales
// without a captured price fall back to the product's current price.
func (l *Ledger) RevenueOf(ctx context.Context, sale domain.Sale) (domain.Money, error) {
	if sale.UnitPrice.Currency != "" {
		return sale.UnitPrice.Mul(sale.Quantity), nil
	}
	product, err := l.repo.GetProduct(ctx, sale.ProductID)
	if err != nil {
		return domain.Money{}, err
	}
	return revenueOf(domain.SoldItem{Sale: sale, Product: *product}), nil
}

func revenueOf(item domain.SoldItem) domain.Money {
	price := item.Sale.UnitPrice
	if price.Currency == "" {
		price = item.Product.Price
	}
	return price.Mul(item.Sale.Quantity)
}

// Sales lists matching sales with their products.
func (l *Ledger) Sales(ctx context.Context, filter domain.SaleFilter) ([]domain.SoldItem, error) {
	return l.repo.ListSoldItems(ctx, filter)
}

func (l *Ledger) Count(ctx context.Context, filter domain.SaleFilter) (int, error) {
	items, err := l.repo.ListSoldItems(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// TotalRevenue sums the revenue of every matching sale in target currency.
// A sale that cannot be converted fails the whole call.
func (l *Ledger) TotalRevenue(ctx context.Context, filter domain.SaleFilter, target string) (domain.Money, error) {
	items, err := l.repo.ListSoldItems(ctx, filter)
	if err != nil {
		return domain.Money{}, err
	}
	return l.SumRevenue(ctx, items, target)
}

// SumRevenue converts and adds the revenue of items.
func (l *Ledger) SumRevenue(ctx context.Context, items []domain.SoldItem, target string) (domain.Money, error) {
	total := domain.ZeroMoney(target)
	for _, item := range items {
		revenue := revenueOf(item)
		if revenue.Currency != total.Currency {
			converted, err := l.converter.Convert(ctx, revenue, total.Currency)
			if err != nil {
				l.logger.WarnContext(ctx, "revenue conversion failed",
					slog.String("sale_id", item.Sale.ID), slog.String("from", revenue.Currency),
					slog.String("to", total.Currency), slog.Any("error", err))
				if apperr.KindOf(err) != apperr.KindMissingRate {
					err = apperr.MissingRate(revenue.Currency, total.Currency).Wrap(err)
				}
				return domain.Money{}, err
			}
			revenue = converted
		}
		sum, err := total.Add(revenue)
		if err != nil {
			return domain.Money{}, err
		}
		total = sum
	}
	return total, nil
}
