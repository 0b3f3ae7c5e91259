package memory

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"graphi/backend/internal/domain"
	"graphi/backend/internal/store"
	"graphi/backend/internal/xid"
)

var _ store.Repository = (*Store)(nil)

type Store struct {
	mu           sync.RWMutex
	usersByID    map[string]domain.User
	storesByID   map[string]domain.Store
	productsByID map[string]domain.Product
	groupsByID   map[string]domain.ProductGroup
	brandsByID   map[string]domain.ProductBrand
	salesByID    map[string]domain.Sale
}

func New() *Store {
	return &Store{
		usersByID:    make(map[string]domain.User),
		storesByID:   make(map[string]domain.Store),
		productsByID: make(map[string]domain.Product),
		groupsByID:   make(map[string]domain.ProductGroup),
		brandsByID:   make(map[string]domain.ProductBrand),
		salesByID:    make(map[string]domain.Sale),
	}
}

// NewSeeded returns a store holding one demo owner with a single unprotected
// store and a few products. The owner's credentials come from SEED_OWNER_EMAIL
// and SEED_OWNER_PASSWORD, falling back to dev defaults with a warning.
func NewSeeded(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	email := strings.ToLower(envOr("SEED_OWNER_EMAIL", "owner@graphi.local"))
	password := envOr("SEED_OWNER_PASSWORD", "owner12345")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" {
		logger.Warn("using default dev credentials; set SEED_OWNER_EMAIL and SEED_OWNER_PASSWORD to override",
			slog.String("component", "memory-store"))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		panic("memory-store: hash seed password: " + err.Error())
	}

	s := New()
	now := time.Now().UTC()
	owner := domain.User{
		ID:                xid.New("usr"),
		Email:             email,
		Name:              "Demo Owner",
		PreferredCurrency: domain.DefaultCurrency,
		PasswordHash:      string(hash),
		CreatedAt:         now,
	}
	shop := domain.Store{
		ID:              xid.New("str"),
		OwnerID:         owner.ID,
		Name:            "Main Store",
		Type:            "grocery",
		DefaultCurrency: domain.DefaultCurrency,
		Signature:       xid.Signature(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.usersByID[owner.ID] = owner
	s.storesByID[shop.ID] = shop

	for _, p := range []struct {
		name     string
		category string
		price    string
		qty      int
	}{
		{"Indomie Noodles", "food", "350", 120},
		{"Peak Milk 400g", "food", "2800", 60},
		{"Bic Pen", "others", "150", 300},
		{"Phone Charger", "electronics", "4500", 25},
	} {
		product := domain.Product{
			ID:        xid.New("prd"),
			StoreID:   shop.ID,
			Name:      p.name,
			Category:  p.category,
			Price:     domain.NewMoney(decimal.RequireFromString(p.price), shop.DefaultCurrency),
			Quantity:  p.qty,
			AddedAt:   now,
			UpdatedAt: now,
		}
		s.productsByID[product.ID] = product
	}
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) CreateUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(user.Email))
	for _, existing := range s.usersByID {
		if existing.Email == email {
			return store.ErrConflict.WithDetail("email %s is taken", email)
		}
	}
	user.Email = email
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByID[user.ID] = user
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByID[id]
	if !ok {
		return nil, store.ErrNotFound.WithDetail("user %s not found", id)
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, user := range s.usersByID {
		if user.Email == email {
			found := user
			return &found, nil
		}
	}
	return nil, store.ErrNotFound.WithDetail("user %s not found", email)
}

func (s *Store) CreateStore(_ context.Context, shop domain.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkStoreName(shop); err != nil {
		return err
	}
	s.storesByID[shop.ID] = shop
	return nil
}

func (s *Store) UpdateStore(_ context.Context, shop domain.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.storesByID[shop.ID]; !ok {
		return store.ErrNotFound.WithDetail("store %s not found", shop.ID)
	}
	if err := s.checkStoreName(shop); err != nil {
		return err
	}
	s.storesByID[shop.ID] = shop
	return nil
}

func (s *Store) checkStoreName(shop domain.Store) error {
	for _, existing := range s.storesByID {
		if existing.ID != shop.ID && existing.OwnerID == shop.OwnerID && strings.EqualFold(existing.Name, shop.Name) {
			return store.ErrConflict.WithDetail("store named %q already exists", shop.Name)
		}
	}
	return nil
}

func (s *Store) GetStore(_ context.Context, id string) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shop, ok := s.storesByID[id]
	if !ok {
		return nil, store.ErrNotFound.WithDetail("store %s not found", id)
	}
	return &shop, nil
}

func (s *Store) ListStoresByOwner(_ context.Context, ownerID string) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Store, 0, 8)
	for _, shop := range s.storesByID {
		if shop.OwnerID == ownerID {
			result = append(result, shop)
		}
	}
	slices.SortFunc(result, func(a, b domain.Store) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.storesByID[product.StoreID]; !ok {
		return store.ErrNotFound.WithDetail("store %s not found", product.StoreID)
	}
	if _, exists := s.productsByID[product.ID]; exists {
		return store.ErrConflict.WithDetail("product %s already exists", product.ID)
	}
	s.productsByID[product.ID] = product
	return nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.productsByID[product.ID]; !ok {
		return store.ErrNotFound.WithDetail("product %s not found", product.ID)
	}
	s.productsByID[product.ID] = product
	return nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.productsByID[id]
	if !ok {
		return nil, store.ErrNotFound.WithDetail("product %s not found", id)
	}
	return &product, nil
}

func (s *Store) ListProducts(_ context.Context, storeID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.productsOf(storeID, nil), nil
}

func (s *Store) productsOf(storeID string, staged map[string]domain.Product) []domain.Product {
	result := make([]domain.Product, 0, 32)
	for id, product := range s.productsByID {
		if product.StoreID != storeID {
			continue
		}
		if override, ok := staged[id]; ok {
			product = override
		}
		result = append(result, product)
	}
	slices.SortFunc(result, func(a, b domain.Product) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result
}

func (s *Store) CreateGroup(_ context.Context, group domain.ProductGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.groupsByID {
		if existing.StoreID == group.StoreID && strings.EqualFold(existing.Name, group.Name) {
			return store.ErrConflict.WithDetail("group %q already exists", group.Name)
		}
	}
	s.groupsByID[group.ID] = group
	return nil
}

func (s *Store) CreateBrand(_ context.Context, brand domain.ProductBrand) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.brandsByID {
		if existing.StoreID == brand.StoreID && strings.EqualFold(existing.Name, brand.Name) {
			return store.ErrConflict.WithDetail("brand %q already exists", brand.Name)
		}
	}
	s.brandsByID[brand.ID] = brand
	return nil
}

func (s *Store) ListGroups(_ context.Context, storeID string) ([]domain.ProductGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ProductGroup, 0, 8)
	for _, group := range s.groupsByID {
		if group.StoreID == storeID {
			result = append(result, group)
		}
	}
	slices.SortFunc(result, func(a, b domain.ProductGroup) int { return strings.Compare(a.Name, b.Name) })
	return result, nil
}

func (s *Store) ListBrands(_ context.Context, storeID string) ([]domain.ProductBrand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ProductBrand, 0, 8)
	for _, brand := range s.brandsByID {
		if brand.StoreID == storeID {
			result = append(result, brand)
		}
	}
	slices.SortFunc(result, func(a, b domain.ProductBrand) int { return strings.Compare(a.Name, b.Name) })
	return result, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound.WithDetail("sale %s not found", id)
	}
	return &sale, nil
}

func (s *Store) ListSoldItems(_ context.Context, filter domain.SaleFilter) ([]domain.SoldItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SoldItem, 0, 64)
	for _, sale := range s.salesByID {
		product, ok := s.productsByID[sale.ProductID]
		if !ok {
			continue
		}
		if !filter.Match(sale, product) {
			continue
		}
		result = append(result, domain.SoldItem{Sale: sale, Product: product})
	}
	slices.SortFunc(result, func(a, b domain.SoldItem) int {
		if c := a.Sale.MadeAt.Compare(b.Sale.MadeAt); c != 0 {
			return c
		}
		return strings.Compare(a.Sale.ID, b.Sale.ID)
	})
	return result, nil
}

// InTx holds the write lock for the whole callback, so transactions are
// serialized. Writes are staged and applied only when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{
		s:        s,
		stores:   make(map[string]domain.Store),
		products: make(map[string]domain.Product),
		sales:    make(map[string]domain.Sale),
		deleted:  make(map[string]struct{}),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}
