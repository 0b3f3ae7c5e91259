// Package currency converts money between currencies using periodically
// refreshed exchange rates.
package currency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"graphi/backend/internal/apperr"
	"graphi/backend/internal/domain"
)

// Converter converts an amount into another currency. Unknown pairs fail
// with apperr.ErrMissingRate.
type Converter interface {
	Convert(ctx context.Context, amount domain.Money, to string) (domain.Money, error)
}

// Snapshot is a set of rates relative to Base (Base itself is 1).
type Snapshot struct {
	Base      string                     `json:"base"`
	Rates     map[string]decimal.Decimal `json:"rates"`
	FetchedAt time.Time                  `json:"fetched_at"`
}

// rate returns how many units of code one unit of Base buys.
func (s Snapshot) rate(code string) (decimal.Decimal, bool) {
	if code == s.Base {
		return decimal.NewFromInt(1), true
	}
	r, ok := s.Rates[code]
	if !ok || !r.IsPositive() {
		return decimal.Decimal{}, false
	}
	return r, true
}

// convert applies amount / rate[from] * rate[to].
func (s Snapshot) convert(amount domain.Money, to string) (domain.Money, error) {
	to = domain.NormalizeCurrency(to)
	if amount.Currency == to {
		return amount, nil
	}
	fromRate, ok := s.rate(amount.Currency)
	if !ok {
		return domain.Money{}, apperr.MissingRate(amount.Currency, to)
	}
	toRate, ok := s.rate(to)
	if !ok {
		return domain.Money{}, apperr.MissingRate(amount.Currency, to)
	}
	return domain.NewMoney(amount.Amount.Div(fromRate).Mul(toRate), to), nil
}

// RateTable is an in-process rate store.
type RateTable struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewRateTable(base string, rates map[string]decimal.Decimal) *RateTable {
	t := &RateTable{}
	t.set(Snapshot{Base: base, Rates: rates, FetchedAt: time.Now().UTC()})
	return t
}

func (t *RateTable) set(snap Snapshot) {
	normalized := make(map[string]decimal.Decimal, len(snap.Rates))
	for code, r := range snap.Rates {
		normalized[domain.NormalizeCurrency(code)] = r
	}
	snap.Base = domain.NormalizeCurrency(snap.Base)
	snap.Rates = normalized

	t.mu.Lock()
	t.snap = snap
	t.mu.Unlock()
}

// Update replaces every rate.
func (t *RateTable) Update(_ context.Context, snap Snapshot) error {
	if snap.Base == "" {
		return errors.New("rate snapshot without base currency")
	}
	t.set(snap)
	return nil
}

func (t *RateTable) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

func (t *RateTable) Convert(_ context.Context, amount domain.Money, to string) (domain.Money, error) {
	return t.Snapshot().convert(amount, to)
}

type bounded struct {
	next    Converter
	timeout time.Duration
}

// Bounded limits every conversion to timeout. A conversion that does not
// finish in time fails with apperr.ErrMissingRate rather than hanging.
func Bounded(next Converter, timeout time.Duration) Converter {
	if timeout <= 0 {
		return next
	}
	return bounded{next: next, timeout: timeout}
}

func (b bounded) Convert(ctx context.Context, amount domain.Money, to string) (domain.Money, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	type result struct {
		money domain.Money
		err   error
	}
	done := make(chan result, 1)
	go func() {
		m, err := b.next.Convert(ctx, amount, to)
		done <- result{m, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return domain.Money{}, apperr.MissingRate(amount.Currency, to).Wrap(r.err)
		}
		return r.money, r.err
	case <-ctx.Done():
		return domain.Money{}, apperr.MissingRate(amount.Currency, to).Wrap(ctx.Err())
	}
}
