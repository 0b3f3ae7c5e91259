package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port          string `env:"PORT" envDefault:"8080"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN" envDefault:"http://127.0.0.1:3000"`
	DatabaseURL   string `env:"DATABASE_URL"`

	// ReportLocation is the IANA zone used to read sale dates and times of day.
	ReportLocation string        `env:"REPORT_LOCATION" envDefault:"UTC"`
	StatsCacheTTL  time.Duration `env:"STATS_CACHE_TTL" envDefault:"20s"`

	// MigrationWorkers bounds concurrent price conversions when a store
	// changes currency.
	MigrationWorkers int `env:"CURRENCY_MIGRATION_WORKERS" envDefault:"8"`

	Redis Redis
	Auth  Auth
	Rates Rates
	Log   Log
}

type Redis struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type Auth struct {
	Secret         string        `env:"AUTH_SECRET"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"8h"`
	GrantValidity  time.Duration `env:"STORE_GRANT_VALIDITY" envDefault:"24h"`
	// AttemptsPerMinute limits login and passkey attempts per client.
	AttemptsPerMinute int `env:"AUTH_ATTEMPTS_PER_MINUTE" envDefault:"10"`
}

type Rates struct {
	URL               string            `env:"RATES_URL"`
	Base              string            `env:"RATES_BASE" envDefault:"USD"`
	Static            map[string]string `env:"RATES_STATIC" envSeparator:"," envKeyValSeparator:":"`
	RefreshInterval   time.Duration     `env:"RATES_REFRESH_INTERVAL" envDefault:"1h"`
	ConversionTimeout time.Duration     `env:"CONVERSION_TIMEOUT" envDefault:"3s"`
}

// New reads configuration from environment variables into a struct of type T.
func New[T any]() (T, error) {
	var cfg T
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func Load() (Config, error) {
	cfg, err := New[Config]()
	if err != nil {
		return Config{}, err
	}
	cfg.Auth.Secret = strings.TrimSpace(cfg.Auth.Secret)
	cfg.Rates.Base = strings.ToUpper(strings.TrimSpace(cfg.Rates.Base))
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ReportLocation)
	if err != nil {
		return nil, fmt.Errorf("REPORT_LOCATION: %w", err)
	}
	return loc, nil
}
