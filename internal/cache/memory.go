package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a Cache kept in a map. Expired entries are dropped on read.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]entry{}, now: time.Now}
}

// WithClock replaces the time source, for tests
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) lookup(key string) ([]byte, bool) {
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false
	}
	return e.value, true
}

func (m *Memory) Get(_ context.Context, key string, dst interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.lookup(key)
	if !ok {
		return ErrMiss
	}
	return json.Unmarshal(raw, dst)
}

func (m *Memory) Set(_ context.Context, key string, v interface{}, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cached value: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := entry{value: b}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *Memory) Take(_ context.Context, key string, dst interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.lookup(key)
	if !ok {
		return ErrMiss
	}
	delete(m.entries, key)
	return json.Unmarshal(raw, dst)
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error               { return nil }

var _ Cache = (*Memory)(nil)
