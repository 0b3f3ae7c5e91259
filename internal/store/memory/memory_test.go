package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphi/backend/internal/domain"
	"graphi/backend/internal/store"
)

func seedStore(t *testing.T) (*Store, domain.Store, domain.Product) {
	t.Helper()
	ctx := context.Background()
	s := New()
	shop := domain.Store{ID: "str-1", OwnerID: "usr-1", Name: "Corner Shop", DefaultCurrency: "NGN"}
	require.NoError(t, s.CreateStore(ctx, shop))
	product := domain.Product{
		ID:       "prd-1",
		StoreID:  shop.ID,
		Name:     "Rice 5kg",
		Category: "food",
		Price:    domain.NewMoney(decimal.NewFromInt(5000), "NGN"),
		Quantity: 10,
	}
	require.NoError(t, s.CreateProduct(ctx, product))
	return s, shop, product
}

func TestCreateStoreRejectsDuplicateNamePerOwner(t *testing.T) {
	s, shop, _ := seedStore(t)
	ctx := context.Background()

	err := s.CreateStore(ctx, domain.Store{ID: "str-2", OwnerID: shop.OwnerID, Name: "corner shop"})
	assert.ErrorIs(t, err, store.ErrConflict)

	err = s.CreateStore(ctx, domain.Store{ID: "str-3", OwnerID: "usr-2", Name: "Corner Shop"})
	assert.NoError(t, err)
}

func TestInTxCommitsStagedWrites(t *testing.T) {
	s, shop, product := seedStore(t)
	ctx := context.Background()

	err := s.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetProductForUpdate(ctx, product.ID)
		if err != nil {
			return err
		}
		p.Quantity -= 4
		if err := tx.InsertSale(ctx, domain.Sale{ID: "sale-1", StoreID: shop.ID, ProductID: p.ID, Quantity: 4, MadeAt: time.Now()}); err != nil {
			return err
		}
		return tx.SaveProduct(ctx, *p)
	})
	require.NoError(t, err)

	got, err := s.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Quantity)
	_, err = s.GetSale(ctx, "sale-1")
	assert.NoError(t, err)
}

func TestInTxDiscardsWritesOnError(t *testing.T) {
	s, shop, product := seedStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertSale(ctx, domain.Sale{ID: "sale-1", StoreID: shop.ID, ProductID: product.ID, Quantity: 1}); err != nil {
			return err
		}
		p, _ := tx.GetProductForUpdate(ctx, product.ID)
		p.Quantity = 0
		if err := tx.SaveProduct(ctx, *p); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Quantity)
	_, err = s.GetSale(ctx, "sale-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTxSeesItsOwnDeletes(t *testing.T) {
	s, shop, product := seedStore(t)
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertSale(ctx, domain.Sale{ID: "sale-1", StoreID: shop.ID, ProductID: product.ID, Quantity: 1})
	}))

	err := s.InTx(ctx, func(tx store.Tx) error {
		if err := tx.DeleteSale(ctx, "sale-1"); err != nil {
			return err
		}
		_, err := tx.GetSaleForUpdate(ctx, "sale-1")
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetSale(ctx, "sale-1")
	assert.NoError(t, err, "failed transaction must not delete the sale")
}

func TestListSoldItemsAppliesFilter(t *testing.T) {
	s, shop, product := seedStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		for i, qty := range []int{1, 2, 3} {
			sale := domain.Sale{
				ID:            "sale-" + string(rune('a'+i)),
				StoreID:       shop.ID,
				ProductID:     product.ID,
				Quantity:      qty,
				PaymentMethod: domain.PaymentCash,
				MadeAt:        base.Add(time.Duration(i) * 24 * time.Hour),
			}
			if err := tx.InsertSale(ctx, sale); err != nil {
				return err
			}
		}
		return nil
	}))

	may2 := domain.Date{Year: 2024, Month: time.May, Day: 2}
	items, err := s.ListSoldItems(ctx, domain.SaleFilter{StoreIDs: []string{shop.ID}, FromDate: &may2})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "sale-b", items[0].Sale.ID)
	assert.Equal(t, product.Name, items[0].Product.Name)

	items, err = s.ListSoldItems(ctx, domain.SaleFilter{StoreIDs: []string{"other"}})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestNewSeededHasOwnerWithStore(t *testing.T) {
	t.Setenv("SEED_OWNER_EMAIL", "Seed@Example.com")
	t.Setenv("SEED_OWNER_PASSWORD", "s3cret-pass")
	s := NewSeeded(nil)
	ctx := context.Background()

	owner, err := s.GetUserByEmail(ctx, "seed@example.com")
	require.NoError(t, err)
	stores, err := s.ListStoresByOwner(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, stores, 1)
	products, err := s.ListProducts(ctx, stores[0].ID)
	require.NoError(t, err)
	assert.NotEmpty(t, products)
}
