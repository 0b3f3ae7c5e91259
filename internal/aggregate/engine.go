// Package aggregate answers statistics queries over the sales of the stores
// a user owns.
package aggregate

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"graphi/backend/internal/cache"
	"graphi/backend/internal/domain"
	"graphi/backend/internal/ledger"
	"graphi/backend/internal/store"
	"graphi/backend/internal/timeframe"
)

type Engine struct {
	repo     store.Reader
	ledger   *ledger.Ledger
	cache    cache.Store
	cacheTTL time.Duration
	location *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Engine)

// WithCache stores rankings in c for ttl.
func WithCache(c cache.Store, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cache = c
		if ttl > 0 {
			e.cacheTTL = ttl
		}
	}
}

// WithLocation sets the zone used to read calendar dates and times of day.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewEngine(repo store.Reader, l *ledger.Ledger, opts ...Option) *Engine {
	e := &Engine{
		repo:     repo,
		ledger:   l,
		cache:    cache.Noop{},
		cacheTTL: 20 * time.Second,
		location: time.UTC,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("component", "aggregate"))
	return e
}

// Aggregate counts the matching sales and sums their revenue in the user's
// preferred currency, rounded to cfg.Places().
func (e *Engine) Aggregate(ctx context.Context, user domain.User, cfg Config) (domain.Aggregate, error) {
	target := user.Currency()
	storeIDs, err := e.scope(ctx, user, cfg.StoreIDs)
	if err != nil {
		return domain.Aggregate{}, err
	}
	if len(storeIDs) == 0 {
		return domain.Aggregate{Revenue: domain.ZeroMoney(target).Round(cfg.Places())}, nil
	}

	filter, err := e.filter(cfg, storeIDs)
	if err != nil {
		return domain.Aggregate{}, err
	}
	items, err := e.ledger.Sales(ctx, filter)
	if err != nil {
		return domain.Aggregate{}, err
	}
	revenue, err := e.ledger.SumRevenue(ctx, items, target)
	if err != nil {
		return domain.Aggregate{}, err
	}

	e.logger.DebugContext(ctx, "aggregate computed",
		slog.String("user_id", user.ID), slog.Int("stores", len(storeIDs)), slog.Int("sales", len(items)))
	quantity := 0
	for _, item := range items {
		quantity += item.Sale.Quantity
	}
	return domain.Aggregate{
		Count:    len(items),
		Quantity: quantity,
		Revenue:  revenue.Round(cfg.Places()),
	}, nil
}

// StoreCount is the number of stores user owns.
func (e *Engine) StoreCount(ctx context.Context, user domain.User) (int, error) {
	stores, err := e.repo.ListStoresByOwner(ctx, user.ID)
	if err != nil {
		return 0, err
	}
	return len(stores), nil
}

// ProductCount is the number of products across every store user owns.
func (e *Engine) ProductCount(ctx context.Context, user domain.User) (int, error) {
	stores, err := e.repo.ListStoresByOwner(ctx, user.ID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, s := range stores {
		products, err := e.repo.ListProducts(ctx, s.ID)
		if err != nil {
			return 0, err
		}
		total += len(products)
	}
	return total, nil
}

// scope intersects the requested stores with the ones user owns. Requested
// ids the user does not own are dropped without error.
func (e *Engine) scope(ctx context.Context, user domain.User, requested []string) ([]string, error) {
	stores, err := e.repo.ListStoresByOwner(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	owned := make([]string, 0, len(stores))
	for _, s := range stores {
		if len(requested) == 0 || slices.Contains(requested, s.ID) {
			owned = append(owned, s.ID)
		}
	}
	return owned, nil
}

func (e *Engine) filter(cfg Config, storeIDs []string) (domain.SaleFilter, error) {
	filter := domain.SaleFilter{
		StoreIDs:       storeIDs,
		ProductIDs:     cfg.ProductIDs,
		Categories:     lowerAll(cfg.Categories),
		PaymentMethods: cfg.PaymentMethods,
		BrandIDs:       cfg.BrandIDs,
		GroupIDs:       cfg.GroupIDs,
		Color:          strings.ToLower(strings.TrimSpace(cfg.Color)),
		Size:           cfg.Size,
		Weight:         cfg.Weight,
		MinPrice:       cfg.MinPrice,
		MaxPrice:       cfg.MaxPrice,
		Date:           cfg.Date,
		FromDate:       cfg.FromDate,
		ToDate:         cfg.ToDate,
		FromTime:       cfg.FromTime,
		ToTime:         cfg.ToTime,
		MinQuantity:    cfg.MinQuantity,
		MaxQuantity:    cfg.MaxQuantity,
		Location:       e.location,
	}
	if cfg.Timeframe != "" {
		window, err := timeframe.Parse(cfg.Timeframe, e.now())
		if err != nil {
			return domain.SaleFilter{}, err
		}
		filter.Window = &window
	}
	return filter, nil
}
