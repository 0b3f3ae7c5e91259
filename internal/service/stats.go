package service

import (
	"context"

	"graphi/backend/internal/aggregate"
	"graphi/backend/internal/domain"
)

// Stats computes the count and revenue of the caller's matching sales.
func (s *Service) Stats(ctx context.Context, cfg aggregate.Config) (domain.Aggregate, error) {
	user, err := s.CurrentUser(ctx)
	if err != nil {
		return domain.Aggregate{}, err
	}
	return s.stats.Aggregate(ctx, user, cfg)
}

// Dashboard is the caller's headline numbers for a filter configuration.
type Dashboard struct {
	Stores      int                    `json:"stores"`
	Products    int                    `json:"products"`
	Sales       domain.Aggregate       `json:"sales"`
	TopProduct  *domain.ProductRanking `json:"top_product,omitempty"`
	ActiveStore *domain.StoreRanking   `json:"active_store,omitempty"`
}

func (s *Service) Dashboard(ctx context.Context, cfg aggregate.Config) (Dashboard, error) {
	user, err := s.CurrentUser(ctx)
	if err != nil {
		return Dashboard{}, err
	}

	var d Dashboard
	if d.Stores, err = s.stats.StoreCount(ctx, user); err != nil {
		return Dashboard{}, err
	}
	if d.Products, err = s.stats.ProductCount(ctx, user); err != nil {
		return Dashboard{}, err
	}
	if d.Sales, err = s.stats.Aggregate(ctx, user, cfg); err != nil {
		return Dashboard{}, err
	}
	if top, ok, err := s.stats.MostSoldProduct(ctx, user, cfg); err != nil {
		return Dashboard{}, err
	} else if ok {
		d.TopProduct = &top
	}
	if top, ok, err := s.stats.MostActiveStore(ctx, user, cfg); err != nil {
		return Dashboard{}, err
	} else if ok {
		d.ActiveStore = &top
	}
	return d, nil
}

func (s *Service) TopProduct(ctx context.Context, cfg aggregate.Config) (*domain.ProductRanking, error) {
	user, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	top, ok, err := s.stats.MostSoldProduct(ctx, user, cfg)
	if err != nil || !ok {
		return nil, err
	}
	return &top, nil
}

func (s *Service) TopStore(ctx context.Context, cfg aggregate.Config) (*domain.StoreRanking, error) {
	user, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	top, ok, err := s.stats.MostActiveStore(ctx, user, cfg)
	if err != nil || !ok {
		return nil, err
	}
	return &top, nil
}
