package aggregate

import (
	"cmp"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"log/slog"
	"slices"
	"strings"

	"graphi/backend/internal/cache"
	"graphi/backend/internal/domain"
)

// MostSoldProduct ranks products by the number of matching sales. Ties go to
// the alphabetically first name. ok is false when nothing matched.
func (e *Engine) MostSoldProduct(ctx context.Context, user domain.User, cfg Config) (ranking domain.ProductRanking, ok bool, err error) {
	key := buildCacheKey("top-product", user.ID, cfg)
	if cached, hit, err := cache.GetJSON[domain.ProductRanking](ctx, e.cache, key); err == nil && hit {
		return cached, true, nil
	}

	items, err := e.matching(ctx, user, cfg)
	if err != nil || len(items) == 0 {
		return domain.ProductRanking{}, false, err
	}

	counts := make(map[string]*domain.ProductRanking)
	for _, item := range items {
		r, found := counts[item.Product.ID]
		if !found {
			r = &domain.ProductRanking{Product: item.Product}
			counts[item.Product.ID] = r
		}
		r.Sales++
	}
	rankings := make([]domain.ProductRanking, 0, len(counts))
	for _, r := range counts {
		rankings = append(rankings, *r)
	}
	slices.SortFunc(rankings, func(a, b domain.ProductRanking) int {
		return cmp.Or(
			cmp.Compare(b.Sales, a.Sales),
			strings.Compare(a.Product.Name, b.Product.Name),
			strings.Compare(a.Product.ID, b.Product.ID),
		)
	})

	e.remember(ctx, key, rankings[0])
	return rankings[0], true, nil
}

// MostActiveStore ranks the user's stores by the number of matching sales.
func (e *Engine) MostActiveStore(ctx context.Context, user domain.User, cfg Config) (ranking domain.StoreRanking, ok bool, err error) {
	key := buildCacheKey("top-store", user.ID, cfg)
	if cached, hit, err := cache.GetJSON[domain.StoreRanking](ctx, e.cache, key); err == nil && hit {
		return cached, true, nil
	}

	items, err := e.matching(ctx, user, cfg)
	if err != nil || len(items) == 0 {
		return domain.StoreRanking{}, false, err
	}

	counts := make(map[string]int)
	for _, item := range items {
		counts[item.Sale.StoreID]++
	}
	stores, err := e.repo.ListStoresByOwner(ctx, user.ID)
	if err != nil {
		return domain.StoreRanking{}, false, err
	}
	rankings := make([]domain.StoreRanking, 0, len(counts))
	for _, s := range stores {
		if n := counts[s.ID]; n > 0 {
			rankings = append(rankings, domain.StoreRanking{Store: s, Sales: n})
		}
	}
	if len(rankings) == 0 {
		return domain.StoreRanking{}, false, nil
	}
	slices.SortFunc(rankings, func(a, b domain.StoreRanking) int {
		return cmp.Or(
			cmp.Compare(b.Sales, a.Sales),
			strings.Compare(a.Store.Name, b.Store.Name),
			strings.Compare(a.Store.ID, b.Store.ID),
		)
	})

	e.remember(ctx, key, rankings[0])
	return rankings[0], true, nil
}

func (e *Engine) matching(ctx context.Context, user domain.User, cfg Config) ([]domain.SoldItem, error) {
	storeIDs, err := e.scope(ctx, user, cfg.StoreIDs)
	if err != nil || len(storeIDs) == 0 {
		return nil, err
	}
	filter, err := e.filter(cfg, storeIDs)
	if err != nil {
		return nil, err
	}
	return e.ledger.Sales(ctx, filter)
}

func (e *Engine) remember(ctx context.Context, key string, value any) {
	if err := cache.SetJSON(ctx, e.cache, key, value, e.cacheTTL); err != nil {
		e.logger.WarnContext(ctx, "ranking cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

func buildCacheKey(kind, userID string, cfg Config) string {
	hash := sha1.Sum([]byte(userID + "|" + cfg.cacheKey()))
	return "graphi:stats:" + kind + ":" + hex.EncodeToString(hash[:])
}
