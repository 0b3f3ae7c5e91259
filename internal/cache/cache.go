package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Store is a string key-value store with per-key expiry. A ttl of zero
// means the key does not expire.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Noop struct{}

func (Noop) Get(_ context.Context, _ string) (string, bool, error) {
	return "", false, nil
}

func (Noop) Set(_ context.Context, _ string, _ string, _ time.Duration) error {
	return nil
}

func (Noop) Delete(_ context.Context, _ string) error {
	return nil
}

type entry struct {
	value     string
	expiresAt time.Time
}

// Memory is a process-local Store.
type Memory struct {
	mu    sync.Mutex
	items map[string]entry
	now   func() time.Time
}

func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{items: make(map[string]entry), now: now}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[key]
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.items, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.items[key] = e
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}

type scoped struct {
	next   Store
	prefix string
}

// Scoped namespaces every key of next under prefix.
func Scoped(next Store, prefix string) Store {
	return scoped{next: next, prefix: prefix}
}

func (s scoped) Get(ctx context.Context, key string) (string, bool, error) {
	return s.next.Get(ctx, s.prefix+key)
}

func (s scoped) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return s.next.Set(ctx, s.prefix+key, value, ttl)
}

func (s scoped) Delete(ctx context.Context, key string) error {
	return s.next.Delete(ctx, s.prefix+key)
}

// GetJSON decodes a JSON value stored under key.
func GetJSON[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var out T
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, false, err
	}
	return out, true, nil
}

// SetJSON stores value as JSON under key.
func SetJSON(ctx context.Context, s Store, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, string(payload), ttl)
}
