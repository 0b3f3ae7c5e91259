package currency

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphi/backend/internal/apperr"
	"graphi/backend/internal/domain"
)

func money(amount string, currency string) domain.Money {
	return domain.NewMoney(decimal.RequireFromString(amount), currency)
}

func testTable() *RateTable {
	return NewRateTable("USD", map[string]decimal.Decimal{
		"NGN": decimal.NewFromInt(1500),
		"EUR": decimal.RequireFromString("0.5"),
	})
}

func TestRateTableConvert(t *testing.T) {
	table := testTable()
	ctx := context.Background()

	got, err := table.Convert(ctx, money("3000", "NGN"), "usd")
	require.NoError(t, err)
	assert.True(t, got.Equal(money("2", "USD")), got.String())

	got, err = table.Convert(ctx, money("1", "EUR"), "NGN")
	require.NoError(t, err)
	assert.True(t, got.Equal(money("3000", "NGN")), got.String())

	same := money("10", "EUR")
	got, err = table.Convert(ctx, same, "EUR")
	require.NoError(t, err)
	assert.Equal(t, same, got)
}

func TestRateTableMissingRate(t *testing.T) {
	_, err := testTable().Convert(context.Background(), money("1", "GBP"), "NGN")

	assert.ErrorIs(t, err, apperr.ErrMissingRate)
	assert.Equal(t, apperr.KindMissingRate, apperr.KindOf(err))
}

func TestRateTableUpdateReplacesRates(t *testing.T) {
	table := testTable()
	require.NoError(t, table.Update(context.Background(), Snapshot{
		Base:  "ngn",
		Rates: map[string]decimal.Decimal{"gbp": decimal.RequireFromString("0.0005")},
	}))

	got, err := table.Convert(context.Background(), money("2000", "NGN"), "GBP")
	require.NoError(t, err)
	assert.True(t, got.Equal(money("1", "GBP")))

	_, err = table.Convert(context.Background(), money("1", "USD"), "NGN")
	assert.ErrorIs(t, err, apperr.ErrMissingRate)

	assert.Error(t, table.Update(context.Background(), Snapshot{}))
}

type slowConverter struct{ delay time.Duration }

func (s slowConverter) Convert(ctx context.Context, amount domain.Money, to string) (domain.Money, error) {
	select {
	case <-time.After(s.delay):
		return domain.NewMoney(amount.Amount, to), nil
	case <-ctx.Done():
		return domain.Money{}, ctx.Err()
	}
}

func TestBoundedTimesOutAsMissingRate(t *testing.T) {
	conv := Bounded(slowConverter{delay: time.Second}, 20*time.Millisecond)

	_, err := conv.Convert(context.Background(), money("1", "USD"), "NGN")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrMissingRate)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBoundedPassesThroughFastConversions(t *testing.T) {
	conv := Bounded(testTable(), time.Second)

	got, err := conv.Convert(context.Background(), money("1", "USD"), "NGN")
	require.NoError(t, err)
	assert.True(t, got.Equal(money("1500", "NGN")))
}

func TestHTTPSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"base":"USD","rates":{"NGN":1530.25,"EUR":"0.92"}}`))
	}))
	defer srv.Close()

	snap, err := NewHTTPSource(srv.URL, srv.Client()).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "USD", snap.Base)
	assert.True(t, snap.Rates["NGN"].Equal(decimal.RequireFromString("1530.25")))
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestHTTPSourceRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL, nil).Fetch(context.Background())
	assert.Error(t, err)
}

type flakySource struct {
	failures int
	calls    int
}

func (f *flakySource) Fetch(context.Context) (Snapshot, error) {
	f.calls++
	if f.calls <= f.failures {
		return Snapshot{}, errors.New("upstream unavailable")
	}
	return Snapshot{Base: "USD", Rates: map[string]decimal.Decimal{"NGN": decimal.NewFromInt(1600)}}, nil
}

func TestRefresherRetriesUpToThreeTimes(t *testing.T) {
	table := testTable()
	source := &flakySource{failures: 2}
	r := NewRefresher(source, time.Hour, nil, table)
	r.retryDelay = 0

	require.NoError(t, r.RefreshOnce(context.Background()))
	assert.Equal(t, 3, source.calls)

	got, err := table.Convert(context.Background(), money("1", "USD"), "NGN")
	require.NoError(t, err)
	assert.True(t, got.Equal(money("1600", "NGN")))
}

func TestRefresherGivesUpAfterMaxAttempts(t *testing.T) {
	source := &flakySource{failures: 5}
	r := NewRefresher(source, time.Hour, nil, testTable())
	r.retryDelay = 0

	err := r.RefreshOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, source.calls)
}

func TestRedisRatesRoundTrip(t *testing.T) {
	addr := os.Getenv("GRAPHI_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set GRAPHI_TEST_REDIS_ADDR to run redis integration test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()
	key := "graphi:test:rates:" + time.Now().Format("150405.000000")
	t.Cleanup(func() { client.Del(ctx, key) })

	rates := NewRedisRates(client, key)
	_, err := rates.Convert(ctx, money("1", "USD"), "NGN")
	assert.ErrorIs(t, err, apperr.ErrMissingRate)

	require.NoError(t, rates.Update(ctx, Snapshot{Base: "USD", Rates: map[string]decimal.Decimal{"NGN": decimal.NewFromInt(1500)}, FetchedAt: time.Now()}))
	got, err := rates.Convert(ctx, money("3000", "NGN"), "USD")
	require.NoError(t, err)
	assert.True(t, got.Equal(money("2", "USD")))
}
