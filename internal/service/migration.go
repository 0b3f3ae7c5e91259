package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"graphi/backend/internal/apperr"
	"graphi/backend/internal/domain"
	"graphi/backend/internal/store"
)

const migrationLockTTL = 30 * time.Second

// ChangeStoreCurrency moves the store and every product price to currency.
// Prices are converted concurrently; if any conversion fails nothing is
// written and every failure is reported.
func (s *Service) ChangeStoreCurrency(ctx context.Context, storeID, currency string) (domain.Store, error) {
	target := domain.NormalizeCurrency(currency)
	if !domain.ValidCurrency(target) {
		return domain.Store{}, apperr.Validation("unknown currency %q", currency)
	}
	_, shop, err := s.authorizedStore(ctx, storeID)
	if err != nil {
		return domain.Store{}, err
	}
	if shop.DefaultCurrency == target {
		return shop, nil
	}

	release, err := s.locker.Obtain(ctx, "store_currency:"+shop.ID, migrationLockTTL)
	if err != nil {
		return domain.Store{}, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.WarnContext(ctx, "release migration lock", slog.String("store_id", shop.ID), slog.Any("error", err))
		}
	}()

	products, err := s.repo.ListProducts(ctx, shop.ID)
	if err != nil {
		return domain.Store{}, err
	}
	converted, err := s.convertPrices(ctx, products, target)
	if err != nil {
		s.logger.WarnContext(ctx, "currency migration abandoned",
			slog.String("store_id", shop.ID), slog.String("to", target), slog.Any("error", err))
		return domain.Store{}, err
	}

	var updated domain.Store
	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		locked, err := tx.ListProductsForUpdate(ctx, shop.ID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		for _, p := range locked {
			price, ok := converted[p.ID]
			if !ok || !p.Price.Equal(price.from) {
				return apperr.ErrConflict.WithDetail("product %s changed during the currency change, retry", p.ID)
			}
			p.Price = price.to
			p.UpdatedAt = now
			if err := tx.SaveProduct(ctx, p); err != nil {
				return err
			}
		}

		current, err := tx.GetStoreForUpdate(ctx, shop.ID)
		if err != nil {
			return err
		}
		current.DefaultCurrency = target
		current.UpdatedAt = now
		if err := tx.SaveStore(ctx, *current); err != nil {
			return err
		}
		updated = *current
		return nil
	})
	if err != nil {
		return domain.Store{}, err
	}

	s.logger.InfoContext(ctx, "store currency changed",
		slog.String("store_id", shop.ID), slog.String("to", target), slog.Int("products", len(products)))
	return updated, nil
}

type priceChange struct {
	from domain.Money
	to   domain.Money
}

// convertPrices converts every price on a bounded pool. The first failure
// cancels work that has not started yet.
func (s *Service) convertPrices(ctx context.Context, products []domain.Product, target string) (map[string]priceChange, error) {
	var (
		mu       sync.Mutex
		out      = make(map[string]priceChange, len(products))
		failures []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, p := range products {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			to := p.Price
			if p.Price.Currency != target {
				var err error
				to, err = s.converter.Convert(gctx, p.Price, target)
				if err != nil {
					err = fmt.Errorf("product %s: %w", p.ID, err)
					mu.Lock()
					failures = append(failures, err)
					mu.Unlock()
					return err
				}
			}
			mu.Lock()
			out[p.ID] = priceChange{from: p.Price, to: to}
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	if len(failures) > 0 {
		return nil, errors.Join(failures...)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
