package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphi/backend/internal/apperr"
	"graphi/backend/internal/currency"
	"graphi/backend/internal/domain"
	"graphi/backend/internal/store"
	"graphi/backend/internal/store/memory"
)

const (
	storeID   = "str-1"
	productID = "prd-1"
)

var fixedNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newRepo(t *testing.T, quantity int) *memory.Store {
	t.Helper()
	ctx := context.Background()
	repo := memory.New()
	require.NoError(t, repo.CreateStore(ctx, domain.Store{ID: storeID, OwnerID: "usr-1", Name: "Shop", DefaultCurrency: "NGN"}))
	require.NoError(t, repo.CreateProduct(ctx, domain.Product{
		ID:       productID,
		StoreID:  storeID,
		Name:     "Sugar",
		Category: "food",
		Price:    domain.NewMoney(decimal.NewFromInt(100), "NGN"),
		Quantity: quantity,
	}))
	return repo
}

func newLedger(repo store.Repository) *Ledger {
	rates := currency.NewRateTable("USD", map[string]decimal.Decimal{"NGN": decimal.NewFromInt(1000)})
	return New(repo, rates, nil, func() time.Time { return fixedNow })
}

func stockOf(t *testing.T, repo store.Repository) int {
	t.Helper()
	p, err := repo.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.Quantity
}

func TestRecordSaleDebitsStock(t *testing.T) {
	repo := newRepo(t, 10)
	l := newLedger(repo)

	sale, err := l.RecordSale(context.Background(), storeID, productID, 4, "cash")
	require.NoError(t, err)

	assert.Equal(t, 6, stockOf(t, repo))
	assert.Equal(t, fixedNow, sale.MadeAt)
	assert.True(t, sale.UnitPrice.Equal(domain.NewMoney(decimal.NewFromInt(100), "NGN")))
	stored, err := l.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Quantity)
}

func TestRecordSaleRejectsZeroQuantity(t *testing.T) {
	repo := newRepo(t, 10)
	l := newLedger(repo)

	_, err := l.RecordSale(context.Background(), storeID, productID, 0, "cash")

	assert.ErrorIs(t, err, apperr.ErrInvalidQuantity)
	assert.Equal(t, 10, stockOf(t, repo))
}

func TestRecordSaleRejectsOversell(t *testing.T) {
	repo := newRepo(t, 3)
	l := newLedger(repo)

	_, err := l.RecordSale(context.Background(), storeID, productID, 5, "card")

	require.ErrorIs(t, err, apperr.ErrInsufficientStock)
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	available, ok := appErr.Available()
	require.True(t, ok)
	assert.Equal(t, 3, available)
	assert.Equal(t, 3, stockOf(t, repo))
}

func TestRecordSaleSellsExactlyRemainingStock(t *testing.T) {
	repo := newRepo(t, 3)
	l := newLedger(repo)

	_, err := l.RecordSale(context.Background(), storeID, productID, 3, "bank-transfer")

	require.NoError(t, err)
	assert.Equal(t, 0, stockOf(t, repo))
}

func TestRecordSaleRejectsUnknownPaymentMethod(t *testing.T) {
	l := newLedger(newRepo(t, 3))

	_, err := l.RecordSale(context.Background(), storeID, productID, 1, "cheque")

	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRecordSaleRejectsProductFromAnotherStore(t *testing.T) {
	repo := newRepo(t, 3)
	l := newLedger(repo)

	_, err := l.RecordSale(context.Background(), "str-other", productID, 1, "cash")

	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 3, stockOf(t, repo))
}

func TestUpdateSaleRecreditsBeforeDebiting(t *testing.T) {
	repo := newRepo(t, 10)
	l := newLedger(repo)
	ctx := context.Background()

	sale, err := l.RecordSale(ctx, storeID, productID, 5, "cash")
	require.NoError(t, err)
	require.Equal(t, 5, stockOf(t, repo))

	// 5 on hand + 5 returned covers a new quantity of 10.
	updated, err := l.UpdateSale(ctx, sale.ID, 10, "card")
	require.NoError(t, err)
	assert.Equal(t, 10, updated.Quantity)
	assert.Equal(t, domain.PaymentCard, updated.PaymentMethod)
	assert.Equal(t, 0, stockOf(t, repo))

	updated, err = l.UpdateSale(ctx, sale.ID, 2, "card")
	require.NoError(t, err)
	assert.Equal(t, 8, stockOf(t, repo))
	assert.Equal(t, 2, updated.Quantity)
}

func TestUpdateSaleFromFiveToEight(t *testing.T) {
	repo := newRepo(t, 15)
	l := newLedger(repo)
	ctx := context.Background()

	sale, err := l.RecordSale(ctx, storeID, productID, 5, "cash")
	require.NoError(t, err)
	require.Equal(t, 10, stockOf(t, repo))

	_, err = l.UpdateSale(ctx, sale.ID, 8, "cash")
	require.NoError(t, err)
	assert.Equal(t, 10+5-8, stockOf(t, repo))
}

func TestUpdateSaleKeepsUnitPriceUnlessQuantityChanges(t *testing.T) {
	repo := newRepo(t, 10)
	l := newLedger(repo)
	ctx := context.Background()

	sale, err := l.RecordSale(ctx, storeID, productID, 2, "cash")
	require.NoError(t, err)

	product, err := repo.GetProduct(ctx, productID)
	require.NoError(t, err)
	product.Price = domain.NewMoney(decimal.NewFromInt(250), "NGN")
	require.NoError(t, repo.UpdateProduct(ctx, *product))

	updated, err := l.UpdateSale(ctx, sale.ID, 2, "card")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCard, updated.PaymentMethod)
	assert.True(t, updated.UnitPrice.Equal(domain.NewMoney(decimal.NewFromInt(100), "NGN")), updated.UnitPrice.String())
	assert.Equal(t, 8, stockOf(t, repo))

	updated, err = l.UpdateSale(ctx, sale.ID, 3, "card")
	require.NoError(t, err)
	assert.True(t, updated.UnitPrice.Equal(domain.NewMoney(decimal.NewFromInt(250), "NGN")), updated.UnitPrice.String())
	assert.Equal(t, 7, stockOf(t, repo))
}

func TestUpdateSaleFailuresLeaveStateUnchanged(t *testing.T) {
	repo := newRepo(t, 10)
	l := newLedger(repo)
	ctx := context.Background()

	sale, err := l.RecordSale(ctx, storeID, productID, 5, "cash")
	require.NoError(t, err)

	_, err = l.UpdateSale(ctx, sale.ID, 11, "cash")
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	available, _ := appErr.Available()
	assert.Equal(t, 10, available)

	_, err = l.UpdateSale(ctx, sale.ID, 0, "cash")
	require.ErrorIs(t, err, apperr.ErrInvalidQuantity)

	assert.Equal(t, 5, stockOf(t, repo))
	stored, err := l.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Quantity)
}

func TestDeleteSaleRestoresStock(t *testing.T) {
	repo := newRepo(t, 10)
	l := newLedger(repo)
	ctx := context.Background()

	sale, err := l.RecordSale(ctx, storeID, productID, 7, "cash")
	require.NoError(t, err)
	require.NoError(t, l.DeleteSale(ctx, sale.ID))

	assert.Equal(t, 10, stockOf(t, repo))
	_, err = l.GetSale(ctx, sale.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = l.DeleteSale(ctx, sale.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLifecycleIsNetZero(t *testing.T) {
	repo := newRepo(t, 20)
	l := newLedger(repo)
	ctx := context.Background()

	a, err := l.RecordSale(ctx, storeID, productID, 3, "cash")
	require.NoError(t, err)
	b, err := l.RecordSale(ctx, storeID, productID, 4, "card")
	require.NoError(t, err)
	_, err = l.UpdateSale(ctx, a.ID, 9, "cash")
	require.NoError(t, err)
	require.NoError(t, l.DeleteSale(ctx, b.ID))
	require.NoError(t, l.DeleteSale(ctx, a.ID))

	assert.Equal(t, 20, stockOf(t, repo))
}

type failingTx struct {
	store.Tx
	err error
}

func (t failingTx) SaveProduct(context.Context, domain.Product) error {
	return t.err
}

// failingRepo lets the sale write succeed and fails the product write.
type failingRepo struct {
	*memory.Store
	err error
}

func (r failingRepo) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return r.Store.InTx(ctx, func(tx store.Tx) error {
		return fn(failingTx{Tx: tx, err: r.err})
	})
}

func TestProductWriteFailureRollsBackSale(t *testing.T) {
	repo := newRepo(t, 10)
	boom := errors.New("disk full")
	l := newLedger(failingRepo{Store: repo, err: boom})
	ctx := context.Background()

	_, err := l.RecordSale(ctx, storeID, productID, 2, "cash")
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 10, stockOf(t, repo))
	count, err := l.Count(ctx, domain.SaleFilter{StoreIDs: []string{storeID}})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	repo := newRepo(t, 50)
	l := newLedger(repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for range 80 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.RecordSale(ctx, storeID, productID, 1, "cash"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, succeeded)
	assert.Equal(t, 0, stockOf(t, repo))
}

func TestRevenueUsesCapturedPrice(t *testing.T) {
	repo := newRepo(t, 10)
	l := newLedger(repo)
	ctx := context.Background()

	sale, err := l.RecordSale(ctx, storeID, productID, 3, "cash")
	require.NoError(t, err)

	product, err := repo.GetProduct(ctx, productID)
	require.NoError(t, err)
	product.Price = domain.NewMoney(decimal.NewFromInt(999), "NGN")
	require.NoError(t, repo.UpdateProduct(ctx, *product))

	revenue, err := l.RevenueOf(ctx, sale)
	require.NoError(t, err)
	assert.True(t, revenue.Equal(domain.NewMoney(decimal.NewFromInt(300), "NGN")), revenue.String())

	legacy := sale
	legacy.UnitPrice = domain.Money{}
	revenue, err = l.RevenueOf(ctx, legacy)
	require.NoError(t, err)
	assert.True(t, revenue.Equal(domain.NewMoney(decimal.NewFromInt(2997), "NGN")), revenue.String())
}

func TestTotalRevenueConvertsCurrency(t *testing.T) {
	repo := newRepo(t, 10)
	l := newLedger(repo)
	ctx := context.Background()
	_, err := l.RecordSale(ctx, storeID, productID, 5, "cash")
	require.NoError(t, err)

	filter := domain.SaleFilter{StoreIDs: []string{storeID}}
	total, err := l.TotalRevenue(ctx, filter, "USD")
	require.NoError(t, err)
	assert.True(t, total.Equal(domain.NewMoney(decimal.RequireFromString("0.5"), "USD")), total.String())

	_, err = l.TotalRevenue(ctx, filter, "GBP")
	assert.ErrorIs(t, err, apperr.ErrMissingRate)

	empty, err := l.TotalRevenue(ctx, domain.SaleFilter{}, "EUR")
	require.NoError(t, err)
	assert.True(t, empty.Equal(domain.ZeroMoney("EUR")))
}
