package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphi/backend/internal/access"
	"graphi/backend/internal/aggregate"
	"graphi/backend/internal/cache"
	"graphi/backend/internal/currency"
	"graphi/backend/internal/domain"
	"graphi/backend/internal/ledger"
	"graphi/backend/internal/service"
	"graphi/backend/internal/store/memory"
)

type testServer struct {
	api     *API
	handler http.Handler
	svc     *service.Service
}

func newTestServer(t *testing.T, attempts int) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.New()
	rates := currency.NewRateTable("USD", map[string]decimal.Decimal{
		"NGN": decimal.NewFromInt(1000),
	})
	l := ledger.New(repo, rates, logger, nil)
	svc := service.New(service.Deps{
		Repo:       repo,
		Ledger:     l,
		Stats:      aggregate.NewEngine(repo, l),
		Authorizer: access.NewAuthorizer(time.Hour, nil, logger),
		Converter:  rates,
		Sessions:   cache.NewMemory(),
		Logger:     logger,
	})
	auth := NewAuthManager("test-secret-test-secret-test-secret", time.Hour, svc)
	api, err := New(svc, auth, Options{AllowedOrigin: "http://localhost:5173", AttemptsPerMinute: attempts, Logger: logger})
	require.NoError(t, err)
	return &testServer{api: api, handler: api.Handler(), svc: svc}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "127.0.0.1:5000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	s.handler.ServeHTTP(res, req)
	return res
}

// signUp registers an owner and logs in, returning a bearer token.
func (s *testServer) signUp(t *testing.T, email string) string {
	t.Helper()
	res := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": email, "password": "password123", "preferred_currency": "NGN",
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	return s.login(t, email)
}

func (s *testServer) login(t *testing.T, email string) string {
	t.Helper()
	res := s.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Email: email, Password: "password123"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var resp domain.LoginResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func decode[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out), res.Body.String())
	return out
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, 100)
	res := s.do(t, http.MethodGet, "/healthz", "", nil)

	require.Equal(t, http.StatusOK, res.Code)
	body := decode[map[string]any](t, res)
	assert.Equal(t, true, body["ok"])
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := newTestServer(t, 100)
	s.signUp(t, "owner@example.com")

	res := s.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Email: "owner@example.com", Password: "nope-nope"})
	require.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decode[errorEnvelope](t, res).Error.Code)
}

func TestRegisterValidatesFields(t *testing.T) {
	s := newTestServer(t, 100)

	res := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "not-an-email", "password": "short", "preferred_currency": "naira",
	})
	require.Equal(t, http.StatusBadRequest, res.Code)
	body := decode[errorEnvelope](t, res)
	assert.Equal(t, "VALIDATION_FAILED", body.Error.Code)
	assert.Contains(t, body.Error.Fields, "email")
	assert.Contains(t, body.Error.Fields, "password")
	assert.Contains(t, body.Error.Fields, "preferred_currency")
}

func TestUnknownFieldsAreRejected(t *testing.T) {
	s := newTestServer(t, 100)
	token := s.signUp(t, "owner@example.com")

	res := s.do(t, http.MethodPost, "/api/v1/stores", token, map[string]string{"name": "Shop", "colour": "red"})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, 100)

	res := s.do(t, http.MethodGet, "/api/v1/stores", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = s.do(t, http.MethodGet, "/api/v1/stores", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestSaleFlowOverHTTP(t *testing.T) {
	s := newTestServer(t, 100)
	token := s.signUp(t, "owner@example.com")

	res := s.do(t, http.MethodPost, "/api/v1/stores", token, domain.StoreCreateRequest{Name: "Corner Shop", Type: "Grocery"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	shop := decode[domain.Store](t, res)
	assert.Equal(t, "grocery", shop.Type)
	assert.Equal(t, "NGN", shop.DefaultCurrency)

	res = s.do(t, http.MethodPost, "/api/v1/stores/"+shop.ID+"/products", token, map[string]any{
		"name": "Rice", "price": "1500", "quantity": 3, "category": "food",
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	product := decode[domain.Product](t, res)

	res = s.do(t, http.MethodPost, "/api/v1/stores/"+shop.ID+"/sales", token, domain.SaleCreateRequest{
		ProductID: product.ID, Quantity: 2, PaymentMethod: "Cash",
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	sale := decode[domain.Sale](t, res)
	assert.Equal(t, "cash", sale.PaymentMethod)

	res = s.do(t, http.MethodPost, "/api/v1/stores/"+shop.ID+"/sales", token, domain.SaleCreateRequest{
		ProductID: product.ID, Quantity: 5, PaymentMethod: "cash",
	})
	require.Equal(t, http.StatusConflict, res.Code)
	oversold := decode[errorEnvelope](t, res)
	assert.Equal(t, "INSUFFICIENT_STOCK", oversold.Error.Code)
	require.NotNil(t, oversold.Error.Available)
	assert.Equal(t, 1, *oversold.Error.Available)

	res = s.do(t, http.MethodPost, "/api/v1/stats/aggregate", token, map[string]any{"storeIds": []string{shop.ID}})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	agg := decode[domain.Aggregate](t, res)
	assert.Equal(t, 1, agg.Count)
	assert.Equal(t, 2, agg.Quantity)
	assert.True(t, decimal.NewFromInt(3000).Equal(agg.Revenue.Amount), agg.Revenue.Amount.String())
	assert.Equal(t, "NGN", agg.Revenue.Currency)

	res = s.do(t, http.MethodPost, "/api/v1/stats/aggregate", token, map[string]any{"maxPrice": 1000})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Zero(t, decode[domain.Aggregate](t, res).Count)

	res = s.do(t, http.MethodDelete, "/api/v1/sales/"+sale.ID, token, nil)
	require.Equal(t, http.StatusNoContent, res.Code)

	res = s.do(t, http.MethodGet, "/api/v1/stores/"+shop.ID+"/products", token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	list := decode[struct {
		Items []domain.Product `json:"items"`
	}](t, res)
	require.Len(t, list.Items, 1)
	assert.Equal(t, 3, list.Items[0].Quantity)
}

func TestStatsRejectMalformedFilters(t *testing.T) {
	s := newTestServer(t, 100)
	token := s.signUp(t, "owner@example.com")

	res := s.do(t, http.MethodPost, "/api/v1/stats/aggregate", token, map[string]any{"timeframe": "fortnight"})
	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "INVALID_TIMEFRAME", decode[errorEnvelope](t, res).Error.Code)

	res = s.do(t, http.MethodPost, "/api/v1/stats/aggregate", token, map[string]any{"minQuantity": "lots"})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = s.do(t, http.MethodPost, "/api/v1/stats/aggregate", token, map[string]any{"maxDecimalPlaces": 29})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestEmptyFilterBodyMeansNoFilters(t *testing.T) {
	s := newTestServer(t, 100)
	token := s.signUp(t, "owner@example.com")

	res := s.do(t, http.MethodPost, "/api/v1/stats/dashboard", token, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	dash := decode[service.Dashboard](t, res)
	assert.Zero(t, dash.Stores)
	assert.Zero(t, dash.Sales.Count)
	assert.Nil(t, dash.TopProduct)
}

func TestPasskeyProtectedStoreOverHTTP(t *testing.T) {
	s := newTestServer(t, 100)
	token := s.signUp(t, "owner@example.com")

	res := s.do(t, http.MethodPost, "/api/v1/stores", token, domain.StoreCreateRequest{Name: "Vault", Passkey: "4321"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	shop := decode[domain.Store](t, res)

	res = s.do(t, http.MethodGet, "/api/v1/stores/"+shop.ID, token, nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "PASSKEY_REQUIRED", decode[errorEnvelope](t, res).Error.Code)

	res = s.do(t, http.MethodPost, "/api/v1/stores/"+shop.ID+"/authorization", token, domain.PasskeyRequest{Passkey: "0000"})
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, false, decode[map[string]any](t, res)["authorized"])

	res = s.do(t, http.MethodPost, "/api/v1/stores/"+shop.ID+"/authorization", token, domain.PasskeyRequest{Passkey: "4321"})
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, true, decode[map[string]any](t, res)["authorized"])

	res = s.do(t, http.MethodGet, "/api/v1/stores/"+shop.ID, token, nil)
	assert.Equal(t, http.StatusOK, res.Code)

	// A fresh login is a new session without the grant.
	other := s.login(t, "owner@example.com")
	res = s.do(t, http.MethodGet, "/api/v1/stores/"+shop.ID, other, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = s.do(t, http.MethodPost, "/api/v1/stores/"+shop.ID+"/signature", token, nil)
	require.Equal(t, http.StatusNoContent, res.Code)
	res = s.do(t, http.MethodGet, "/api/v1/stores/"+shop.ID+"/authorization", token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, false, decode[map[string]any](t, res)["authorized"])
}

func TestForeignStoreIsForbidden(t *testing.T) {
	s := newTestServer(t, 100)
	owner := s.signUp(t, "owner@example.com")
	intruder := s.signUp(t, "intruder@example.com")

	res := s.do(t, http.MethodPost, "/api/v1/stores", owner, domain.StoreCreateRequest{Name: "Mine"})
	require.Equal(t, http.StatusCreated, res.Code)
	shop := decode[domain.Store](t, res)

	res = s.do(t, http.MethodGet, "/api/v1/stores/"+shop.ID+"/sales", intruder, nil)
	require.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "NOT_OWNER", decode[errorEnvelope](t, res).Error.Code)

	res = s.do(t, http.MethodGet, "/api/v1/stores/str_missing", owner, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestChangeCurrencyOverHTTP(t *testing.T) {
	s := newTestServer(t, 100)
	token := s.signUp(t, "owner@example.com")

	res := s.do(t, http.MethodPost, "/api/v1/stores", token, domain.StoreCreateRequest{Name: "Shop"})
	require.Equal(t, http.StatusCreated, res.Code)
	shop := decode[domain.Store](t, res)
	res = s.do(t, http.MethodPost, "/api/v1/stores/"+shop.ID+"/products", token, map[string]any{"name": "Rice", "price": "2000", "quantity": 1})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	res = s.do(t, http.MethodPut, "/api/v1/stores/"+shop.ID+"/currency", token, domain.CurrencyChangeRequest{Currency: "GBP"})
	require.Equal(t, http.StatusFailedDependency, res.Code)
	assert.Equal(t, "MISSING_RATE", decode[errorEnvelope](t, res).Error.Code)

	res = s.do(t, http.MethodPut, "/api/v1/stores/"+shop.ID+"/currency", token, domain.CurrencyChangeRequest{Currency: "USD"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "USD", decode[domain.Store](t, res).DefaultCurrency)

	products, err := s.svc.ListProducts(authed(t, s, token), shop.ID)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "USD", products[0].Price.Currency)
	assert.True(t, decimal.NewFromInt(2).Equal(products[0].Price.Amount))
}

// authed turns a bearer token into a service context.
func authed(t *testing.T, s *testServer, token string) context.Context {
	t.Helper()
	actor, err := s.api.auth.ParseToken(token)
	require.NoError(t, err)
	return service.WithActor(context.Background(), actor)
}
