package currency

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"graphi/backend/internal/apperr"
	"graphi/backend/internal/domain"
)

const (
	DefaultRatesKey = "graphi:exchange_rates"
	baseField       = "_base"
	fetchedAtField  = "_fetched_at"
)

// RedisRates keeps the rate snapshot in a Redis hash so every process
// converts with the same rates.
type RedisRates struct {
	client redis.Cmdable
	key    string
}

func NewRedisRates(client redis.Cmdable, key string) *RedisRates {
	if key == "" {
		key = DefaultRatesKey
	}
	return &RedisRates{client: client, key: key}
}

func (r *RedisRates) Update(ctx context.Context, snap Snapshot) error {
	fields := make(map[string]any, len(snap.Rates)+2)
	fields[baseField] = domain.NormalizeCurrency(snap.Base)
	fields[fetchedAtField] = snap.FetchedAt.UTC().Format(time.RFC3339)
	for code, rate := range snap.Rates {
		fields[domain.NormalizeCurrency(code)] = rate.String()
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		pipe.HSet(ctx, r.key, fields)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store exchange rates: %w", err)
	}
	return nil
}

func (r *RedisRates) Convert(ctx context.Context, amount domain.Money, to string) (domain.Money, error) {
	to = domain.NormalizeCurrency(to)
	if amount.Currency == to {
		return amount, nil
	}

	vals, err := r.client.HMGet(ctx, r.key, baseField, amount.Currency, to).Result()
	if err != nil {
		return domain.Money{}, apperr.MissingRate(amount.Currency, to).Wrap(err)
	}
	base, _ := vals[0].(string)
	if base == "" {
		return domain.Money{}, apperr.MissingRate(amount.Currency, to).WithDetail("exchange rates have not been loaded")
	}

	snap := Snapshot{Base: base, Rates: make(map[string]decimal.Decimal, 2)}
	for i, code := range []string{amount.Currency, to} {
		raw, ok := vals[i+1].(string)
		if !ok {
			continue
		}
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		snap.Rates[code] = rate
	}
	return snap.convert(amount, to)
}
