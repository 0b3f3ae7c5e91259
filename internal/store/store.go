package store

import (
	"context"

	"graphi/backend/internal/apperr"
	"graphi/backend/internal/domain"
)

var (
	ErrNotFound = apperr.ErrNotFound
	ErrConflict = apperr.ErrConflict
)

type Reader interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetStore(ctx context.Context, id string) (*domain.Store, error)
	ListStoresByOwner(ctx context.Context, ownerID string) ([]domain.Store, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context, storeID string) ([]domain.Product, error)
	ListGroups(ctx context.Context, storeID string) ([]domain.ProductGroup, error)
	ListBrands(ctx context.Context, storeID string) ([]domain.ProductBrand, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	// ListSoldItems returns matching sales joined with their products, oldest first.
	ListSoldItems(ctx context.Context, filter domain.SaleFilter) ([]domain.SoldItem, error)
}

// Tx is a unit of work. Rows read through the ForUpdate methods stay locked
// until the transaction ends, and nothing written through Tx is visible to
// other callers unless the InTx callback returns nil.
type Tx interface {
	GetStoreForUpdate(ctx context.Context, id string) (*domain.Store, error)
	GetProductForUpdate(ctx context.Context, id string) (*domain.Product, error)
	ListProductsForUpdate(ctx context.Context, storeID string) ([]domain.Product, error)
	GetSaleForUpdate(ctx context.Context, id string) (*domain.Sale, error)
	InsertSale(ctx context.Context, sale domain.Sale) error
	UpdateSale(ctx context.Context, sale domain.Sale) error
	DeleteSale(ctx context.Context, id string) error
	SaveProduct(ctx context.Context, product domain.Product) error
	SaveStore(ctx context.Context, store domain.Store) error
}

type Repository interface {
	Reader
	CreateUser(ctx context.Context, user domain.User) error
	CreateStore(ctx context.Context, store domain.Store) error
	UpdateStore(ctx context.Context, store domain.Store) error
	CreateProduct(ctx context.Context, product domain.Product) error
	UpdateProduct(ctx context.Context, product domain.Product) error
	CreateGroup(ctx context.Context, group domain.ProductGroup) error
	CreateBrand(ctx context.Context, brand domain.ProductBrand) error
	// InTx runs fn in a transaction, committing only when fn returns nil.
	// fn must use only the Tx it is given.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
