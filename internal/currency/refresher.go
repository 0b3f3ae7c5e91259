package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Source yields the latest exchange rates.
type Source interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

// Sink receives refreshed rates.
type Sink interface {
	Update(ctx context.Context, snap Snapshot) error
}

// HTTPSource reads a JSON document of the form
// {"base": "USD", "rates": {"NGN": 1530.25, "EUR": 0.92}}.
type HTTPSource struct {
	url    string
	client *http.Client
}

func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPSource{url: url, client: client}
}

func (s *HTTPSource) Fetch(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return Snapshot{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Snapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("rate source responded %s", resp.Status)
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode rates: %w", err)
	}
	if snap.Base == "" || len(snap.Rates) == 0 {
		return Snapshot{}, errors.New("rate source returned an empty snapshot")
	}
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now().UTC()
	}
	return snap, nil
}

// Refresher pulls rates from a Source on an interval and pushes them to
// every Sink. Each tick makes up to maxAttempts tries.
type Refresher struct {
	source      Source
	sinks       []Sink
	interval    time.Duration
	maxAttempts int
	retryDelay  time.Duration
	logger      *slog.Logger
}

func NewRefresher(source Source, interval time.Duration, logger *slog.Logger, sinks ...Sink) *Refresher {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		source:      source,
		sinks:       sinks,
		interval:    interval,
		maxAttempts: 3,
		retryDelay:  5 * time.Second,
		logger:      logger.With(slog.String("component", "rate-refresher")),
	}
}

// RefreshOnce fetches and distributes one snapshot.
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		snap, err := r.source.Fetch(ctx)
		if err == nil {
			var sinkErr error
			for _, sink := range r.sinks {
				sinkErr = errors.Join(sinkErr, sink.Update(ctx, snap))
			}
			if sinkErr == nil {
				r.logger.InfoContext(ctx, "exchange rates refreshed",
					slog.String("base", snap.Base), slog.Int("currencies", len(snap.Rates)))
				return nil
			}
			err = sinkErr
		}
		lastErr = err
		r.logger.WarnContext(ctx, "exchange rate refresh failed",
			slog.Int("attempt", attempt), slog.Int("max_attempts", r.maxAttempts), slog.Any("error", err))

		if attempt == r.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retryDelay):
		}
	}
	return fmt.Errorf("refresh exchange rates: %w", lastErr)
}

// Run refreshes immediately and then on every interval until ctx ends.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.RefreshOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.ErrorContext(ctx, "giving up on exchange rate refresh until next tick", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
