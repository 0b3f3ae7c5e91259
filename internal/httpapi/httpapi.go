package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"graphi/backend/internal/aggregate"
	"graphi/backend/internal/apperr"
	"graphi/backend/internal/domain"
	"graphi/backend/internal/service"
)

const maxBodyBytes = 1 << 20

type Options struct {
	AllowedOrigin string
	// AttemptsPerMinute caps login, registration and passkey attempts per
	// client address.
	AttemptsPerMinute int
	Logger            *slog.Logger
}

type API struct {
	service          *service.Service
	auth             *AuthManager
	validate         *requestValidator
	allowedOrigin    string
	loginLimiter     *attemptLimiter
	authorizeLimiter *attemptLimiter
	logger           *slog.Logger
}

func New(svc *service.Service, auth *AuthManager, opts Options) (*API, error) {
	v, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	if opts.AttemptsPerMinute < 1 {
		opts.AttemptsPerMinute = 10
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &API{
		service:          svc,
		auth:             auth,
		validate:         v,
		allowedOrigin:    opts.AllowedOrigin,
		loginLimiter:     newAttemptLimiter(opts.AttemptsPerMinute),
		authorizeLimiter: newAttemptLimiter(opts.AttemptsPerMinute),
		logger:           opts.Logger.With(slog.String("component", "http")),
	}, nil
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, a.withMiddleware, middleware.Recoverer)

	r.Get("/healthz", a.handleHealth)
	r.Post("/api/v1/auth/login", a.handleLogin)
	r.Post("/api/v1/auth/register", a.handleRegister)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(a.requireAuth)

		r.Get("/me", a.handleMe)

		r.Get("/stores", a.handleListStores)
		r.Post("/stores", a.handleCreateStore)
		r.Route("/stores/{storeID}", func(r chi.Router) {
			r.Get("/", a.handleGetStore)
			r.Patch("/", a.handleUpdateStore)
			r.Put("/passkey", a.handleSetPasskey)
			r.Get("/authorization", a.handleStoreAccess)
			r.Post("/authorization", a.handleAuthorizeStore)
			r.Delete("/authorization", a.handleRevokeStore)
			r.Post("/signature", a.handleRotateSignature)
			r.Put("/currency", a.handleChangeCurrency)
			r.Get("/products", a.handleListProducts)
			r.Post("/products", a.handleCreateProduct)
			r.Post("/groups", a.handleCreateGroup)
			r.Post("/brands", a.handleCreateBrand)
			r.Get("/sales", a.handleListSales)
			r.Post("/sales", a.handleRecordSale)
		})

		r.Patch("/products/{productID}", a.handleUpdateProduct)
		r.Patch("/sales/{saleID}", a.handleUpdateSale)
		r.Delete("/sales/{saleID}", a.handleDeleteSale)

		r.Post("/stats/aggregate", a.handleAggregate)
		r.Post("/stats/dashboard", a.handleDashboard)
		r.Post("/stats/top-product", a.handleTopProduct)
		r.Post("/stats/top-store", a.handleTopStore)
	})

	return r
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, apperr.CodeUnauthenticated, "missing bearer token")
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, apperr.CodeUnauthenticated, err.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", "too many login attempts")
		return
	}

	var req domain.LoginRequest
	if !a.bind(w, r, &req) {
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", "too many attempts")
		return
	}

	var req domain.RegisterRequest
	if !a.bind(w, r, &req) {
		return
	}

	user, err := a.service.Register(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := a.service.CurrentUser(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := a.service.ListStores(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": stores})
}

func (a *API) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	var req domain.StoreCreateRequest
	if !a.bind(w, r, &req) {
		return
	}
	shop, err := a.service.CreateStore(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, shop)
}

func (a *API) handleGetStore(w http.ResponseWriter, r *http.Request) {
	shop, err := a.service.GetStore(r.Context(), chi.URLParam(r, "storeID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shop)
}

func (a *API) handleUpdateStore(w http.ResponseWriter, r *http.Request) {
	var req domain.StoreUpdateRequest
	if !a.bind(w, r, &req) {
		return
	}
	shop, err := a.service.UpdateStore(r.Context(), chi.URLParam(r, "storeID"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shop)
}

func (a *API) handleSetPasskey(w http.ResponseWriter, r *http.Request) {
	var req domain.PasskeyRequest
	if !a.bind(w, r, &req) {
		return
	}
	shop, err := a.service.SetStorePasskey(r.Context(), chi.URLParam(r, "storeID"), req.Passkey)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shop)
}

func (a *API) handleStoreAccess(w http.ResponseWriter, r *http.Request) {
	ok, err := a.service.StoreAccess(r.Context(), chi.URLParam(r, "storeID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authorized": ok})
}

func (a *API) handleAuthorizeStore(w http.ResponseWriter, r *http.Request) {
	if !a.authorizeLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", "too many passkey attempts")
		return
	}

	var req domain.PasskeyRequest
	if !a.bind(w, r, &req) {
		return
	}
	ok, err := a.service.AuthorizeStore(r.Context(), chi.URLParam(r, "storeID"), req.Passkey)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authorized": ok})
}

func (a *API) handleRevokeStore(w http.ResponseWriter, r *http.Request) {
	if err := a.service.RevokeStore(r.Context(), chi.URLParam(r, "storeID")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRotateSignature(w http.ResponseWriter, r *http.Request) {
	if err := a.service.RotateStoreSignature(r.Context(), chi.URLParam(r, "storeID")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleChangeCurrency(w http.ResponseWriter, r *http.Request) {
	var req domain.CurrencyChangeRequest
	if !a.bind(w, r, &req) {
		return
	}
	shop, err := a.service.ChangeStoreCurrency(r.Context(), chi.URLParam(r, "storeID"), req.Currency)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shop)
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context(), chi.URLParam(r, "storeID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if !a.bind(w, r, &req) {
		return
	}
	product, err := a.service.CreateProduct(r.Context(), chi.URLParam(r, "storeID"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if !a.bind(w, r, &req) {
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), chi.URLParam(r, "productID"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req domain.NamedRequest
	if !a.bind(w, r, &req) {
		return
	}
	group, err := a.service.CreateProductGroup(r.Context(), chi.URLParam(r, "storeID"), req.Name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (a *API) handleCreateBrand(w http.ResponseWriter, r *http.Request) {
	var req domain.NamedRequest
	if !a.bind(w, r, &req) {
		return
	}
	brand, err := a.service.CreateProductBrand(r.Context(), chi.URLParam(r, "storeID"), req.Name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, brand)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	sales, err := a.service.ListSales(r.Context(), chi.URLParam(r, "storeID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": sales})
}

func (a *API) handleRecordSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleCreateRequest
	if !a.bind(w, r, &req) {
		return
	}
	sale, err := a.service.RecordSale(r.Context(), chi.URLParam(r, "storeID"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

func (a *API) handleUpdateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleUpdateRequest
	if !a.bind(w, r, &req) {
		return
	}
	sale, err := a.service.UpdateSale(r.Context(), chi.URLParam(r, "saleID"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (a *API) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteSale(r.Context(), chi.URLParam(r, "saleID")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAggregate(w http.ResponseWriter, r *http.Request) {
	cfg, ok := a.bindFilters(w, r)
	if !ok {
		return
	}
	result, err := a.service.Stats(r.Context(), cfg)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	cfg, ok := a.bindFilters(w, r)
	if !ok {
		return
	}
	result, err := a.service.Dashboard(r.Context(), cfg)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleTopProduct(w http.ResponseWriter, r *http.Request) {
	cfg, ok := a.bindFilters(w, r)
	if !ok {
		return
	}
	top, err := a.service.TopProduct(r.Context(), cfg)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"top": top})
}

func (a *API) handleTopStore(w http.ResponseWriter, r *http.Request) {
	cfg, ok := a.bindFilters(w, r)
	if !ok {
		return
	}
	top, err := a.service.TopStore(r.Context(), cfg)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"top": top})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger.InfoContext(r.Context(), "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("took", time.Since(startedAt)))
	})
}

// bind decodes and validates a JSON body, writing the error response itself
// when it fails.
func (a *API) bind(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		writeError(w, http.StatusBadRequest, apperr.CodeValidation, fmt.Sprintf("malformed request body: %v", err))
		return false
	}
	if err := a.validate.Validate(dest); err != nil {
		if fields, ok := fieldErrors(err); ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": errorBody{Code: apperr.CodeValidation, Message: "validation error", Fields: fields},
			})
			return false
		}
		a.fail(w, r, err)
		return false
	}
	return true
}

// bindFilters reads a filter configuration object. An empty body means no
// filters.
func (a *API) bindFilters(w http.ResponseWriter, r *http.Request) (aggregate.Config, bool) {
	raw := map[string]any{}
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, apperr.CodeValidation, fmt.Sprintf("malformed filters: %v", err))
		return aggregate.Config{}, false
	}
	cfg, err := aggregate.ParseFilters(raw)
	if err != nil {
		a.fail(w, r, err)
		return aggregate.Config{}, false
	}
	return cfg, true
}

// fail writes err with the status its kind maps to. Internal errors are
// logged and replaced with a generic message.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		a.logger.ErrorContext(r.Context(), "request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
		return
	}

	status := statusFor(appErr.Kind())
	if status >= http.StatusInternalServerError {
		a.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path), slog.String("code", appErr.Code()), slog.Any("error", err))
	}
	body := errorBody{Code: appErr.Code(), Message: appErr.Msg()}
	if available, ok := appErr.Available(); ok {
		body.Available = &available
	}
	writeJSON(w, status, map[string]any{"error": body})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindInsufficientStock, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindMissingRate:
		return http.StatusFailedDependency
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindBusy:
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Available *int              `json:"available,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{
		"error": errorBody{Code: code, Message: msg},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
