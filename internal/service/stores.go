package service

import (
	"context"
	"log/slog"
	"strings"

	"graphi/backend/internal/apperr"
	"graphi/backend/internal/domain"
	"graphi/backend/internal/xid"
)

func (s *Service) CreateStore(ctx context.Context, req domain.StoreCreateRequest) (domain.Store, error) {
	user, err := s.CurrentUser(ctx)
	if err != nil {
		return domain.Store{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Store{}, apperr.Validation("store name is required")
	}
	storeType := strings.ToLower(strings.TrimSpace(req.Type))
	if storeType == "" {
		storeType = "other"
	}
	if !domain.ValidStoreType(storeType) {
		return domain.Store{}, apperr.Validation("unknown store type %q", req.Type)
	}
	currency := domain.NormalizeCurrency(req.DefaultCurrency)
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	if !domain.ValidCurrency(currency) {
		return domain.Store{}, apperr.Validation("unknown currency %q", req.DefaultCurrency)
	}

	now := s.now().UTC()
	shop := domain.Store{
		ID:              xid.New("str"),
		OwnerID:         user.ID,
		Name:            name,
		Type:            storeType,
		Email:           strings.TrimSpace(req.Email),
		DefaultCurrency: currency,
		CreatedAt:       now,
	}
	if req.Passkey != "" {
		if err := s.authorizer.SetPasskey(&shop, req.Passkey); err != nil {
			return domain.Store{}, err
		}
	} else {
		s.authorizer.RotateSignature(&shop)
	}
	shop.UpdatedAt = now

	if err := s.repo.CreateStore(ctx, shop); err != nil {
		return domain.Store{}, err
	}
	s.logger.InfoContext(ctx, "store created",
		slog.String("store_id", shop.ID), slog.Bool("passkey", shop.HasPasskey()))
	return shop, nil
}

// ListStores returns the caller's stores. Listing needs no passkey.
func (s *Service) ListStores(ctx context.Context) ([]domain.Store, error) {
	user, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListStoresByOwner(ctx, user.ID)
}

func (s *Service) GetStore(ctx context.Context, storeID string) (domain.Store, error) {
	_, shop, err := s.authorizedStore(ctx, storeID)
	return shop, err
}

func (s *Service) UpdateStore(ctx context.Context, storeID string, req domain.StoreUpdateRequest) (domain.Store, error) {
	_, shop, err := s.authorizedStore(ctx, storeID)
	if err != nil {
		return domain.Store{}, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Store{}, apperr.Validation("store name is required")
		}
		shop.Name = name
	}
	if req.Type != nil {
		storeType := strings.ToLower(strings.TrimSpace(*req.Type))
		if !domain.ValidStoreType(storeType) {
			return domain.Store{}, apperr.Validation("unknown store type %q", *req.Type)
		}
		shop.Type = storeType
	}
	if req.Email != nil {
		shop.Email = strings.TrimSpace(*req.Email)
	}
	shop.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdateStore(ctx, shop); err != nil {
		return domain.Store{}, err
	}
	return shop, nil
}

// SetStorePasskey replaces the store's passkey, or removes it when passkey
// is empty. Either way every outstanding grant is revoked.
func (s *Service) SetStorePasskey(ctx context.Context, storeID, passkey string) (domain.Store, error) {
	_, shop, err := s.authorizedStore(ctx, storeID)
	if err != nil {
		return domain.Store{}, err
	}

	if passkey == "" {
		s.authorizer.ClearPasskey(&shop)
	} else if err := s.authorizer.SetPasskey(&shop, passkey); err != nil {
		return domain.Store{}, err
	}
	if err := s.repo.UpdateStore(ctx, shop); err != nil {
		return domain.Store{}, err
	}
	s.logger.InfoContext(ctx, "store passkey changed",
		slog.String("store_id", shop.ID), slog.Bool("passkey", shop.HasPasskey()))
	return shop, nil
}

// RotateStoreSignature revokes every grant issued for the store.
func (s *Service) RotateStoreSignature(ctx context.Context, storeID string) error {
	_, shop, err := s.authorizedStore(ctx, storeID)
	if err != nil {
		return err
	}
	s.authorizer.RotateSignature(&shop)
	if err := s.repo.UpdateStore(ctx, shop); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "store signature rotated", slog.String("store_id", shop.ID))
	return nil
}

// AuthorizeStore checks passkey and grants this session access to the store.
// A wrong passkey returns false without an error.
func (s *Service) AuthorizeStore(ctx context.Context, storeID, passkey string) (bool, error) {
	user, shop, err := s.ownedStore(ctx, storeID)
	if err != nil {
		return false, err
	}
	return s.authorizer.Authorize(ctx, s.session(ctx), shop, user, passkey)
}

func (s *Service) RevokeStore(ctx context.Context, storeID string) error {
	user, shop, err := s.ownedStore(ctx, storeID)
	if err != nil {
		return err
	}
	return s.authorizer.Revoke(ctx, s.session(ctx), shop, user)
}

// StoreAccess reports whether this session may currently use the store.
func (s *Service) StoreAccess(ctx context.Context, storeID string) (bool, error) {
	user, shop, err := s.ownedStore(ctx, storeID)
	if err != nil {
		return false, err
	}
	return s.authorizer.IsAuthorized(ctx, s.session(ctx), shop, user), nil
}
