package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"graphi/backend/internal/access"
	"graphi/backend/internal/aggregate"
	"graphi/backend/internal/cache"
	"graphi/backend/internal/config"
	"graphi/backend/internal/currency"
	"graphi/backend/internal/domain"
	"graphi/backend/internal/httpapi"
	"graphi/backend/internal/ledger"
	"graphi/backend/internal/logging"
	"graphi/backend/internal/service"
	"graphi/backend/internal/store"
	"graphi/backend/internal/store/memory"
	pgstore "graphi/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.NewSlogLogger(cfg.Log)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Error("invalid security configuration", slog.Any("error", err))
		os.Exit(1)
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	rates, err := staticRates(cfg.Rates)
	if err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", slog.Any("error", err))
			os.Exit(1)
		}
		if err := pg.ApplySchema(ctx); err != nil {
			logger.Error("apply schema", slog.Any("error", err))
			os.Exit(1)
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded(logger)
		logger.Info("repository: in-memory")
	}

	var (
		sessions   cache.Store        = cache.NewMemory()
		statsCache cache.Store        = cache.NewMemory()
		converter  currency.Converter = rates
		sinks      []currency.Sink    = []currency.Sink{rates}
		locker     service.Locker
	)
	if cfg.Redis.Addr != "" {
		redisCache := cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using in-process session store and locks", slog.Any("error", err))
		} else {
			sessions = redisCache
			statsCache = redisCache
			redisRates := currency.NewRedisRates(redisCache.Client(), "")
			if err := redisRates.Update(ctx, rates.Snapshot()); err != nil {
				logger.Warn("seed shared exchange rates", slog.Any("error", err))
			}
			converter = redisRates
			sinks = append(sinks, redisRates)
			locker = service.NewRedisLocker(redisCache.Client())
			closers = append(closers, redisCache.Close)
			logger.Info("sessions: redis")
		}
	} else {
		logger.Info("sessions: in-memory")
	}
	converter = currency.Bounded(converter, cfg.Rates.ConversionTimeout)

	runCtx, stopRefresh := context.WithCancel(context.Background())
	defer stopRefresh()
	if cfg.Rates.URL != "" {
		refresher := currency.NewRefresher(
			currency.NewHTTPSource(cfg.Rates.URL, &http.Client{Timeout: 10 * time.Second}),
			cfg.Rates.RefreshInterval, logger, sinks...)
		if err := refresher.RefreshOnce(ctx); err != nil {
			logger.Warn("initial exchange rate refresh failed, using static rates", slog.Any("error", err))
		}
		go refresher.Run(runCtx)
	}

	now := time.Now
	l := ledger.New(repo, converter, logger, now)
	stats := aggregate.NewEngine(repo, l,
		aggregate.WithCache(statsCache, cfg.StatsCacheTTL),
		aggregate.WithLocation(loc),
		aggregate.WithLogger(logger))
	svc := service.New(service.Deps{
		Repo:             repo,
		Ledger:           l,
		Stats:            stats,
		Authorizer:       access.NewAuthorizer(cfg.Auth.GrantValidity, now, logger),
		Converter:        converter,
		Sessions:         sessions,
		Locker:           locker,
		MigrationWorkers: cfg.MigrationWorkers,
		Logger:           logger,
		Now:              now,
	})
	auth := httpapi.NewAuthManager(cfg.Auth.Secret, cfg.Auth.AccessTokenTTL, svc)
	api, err := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin:     cfg.AllowedOrigin,
		AttemptsPerMinute: cfg.Auth.AttemptsPerMinute,
		Logger:            logger,
	})
	if err != nil {
		logger.Error("build http api", slog.Any("error", err))
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("graphi backend listening", slog.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	stopRefresh()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", slog.Any("error", err))
		}
	}

	logger.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.Auth.Secret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.Auth.GrantValidity <= 0 {
		return fmt.Errorf("STORE_GRANT_VALIDITY must be positive")
	}
	if cfg.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be positive")
	}
	if cfg.MigrationWorkers < 1 {
		return fmt.Errorf("CURRENCY_MIGRATION_WORKERS must be at least 1")
	}
	if cfg.Rates.URL != "" && cfg.Rates.RefreshInterval <= 0 {
		return fmt.Errorf("RATES_REFRESH_INTERVAL must be positive when RATES_URL is set")
	}
	return nil
}

// staticRates builds the startup rate table from RATES_STATIC, e.g.
// "NGN:1550.25,EUR:0.92", quoted against RATES_BASE.
func staticRates(cfg config.Rates) (*currency.RateTable, error) {
	base := domain.NormalizeCurrency(cfg.Base)
	if !domain.ValidCurrency(base) {
		return nil, fmt.Errorf("RATES_BASE: unknown currency %q", cfg.Base)
	}
	table := make(map[string]decimal.Decimal, len(cfg.Static))
	for code, raw := range cfg.Static {
		norm := domain.NormalizeCurrency(code)
		if !domain.ValidCurrency(norm) {
			return nil, fmt.Errorf("RATES_STATIC: unknown currency %q", code)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || !rate.IsPositive() {
			return nil, fmt.Errorf("RATES_STATIC: rate for %s must be a positive number", norm)
		}
		table[norm] = rate
	}
	return currency.NewRateTable(base, table), nil
}
