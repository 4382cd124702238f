// Package cache provides the Limit-lookup cache: a Redis client when one
// is configured, an in-process map otherwise.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

type entry struct {
	payload   []byte
	expiresAt time.Time
}

// Memory is a process-local cache with TTL eviction on read.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry)}
}

func (m *Memory) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return ErrMiss
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return ErrMiss
	}
	return json.Unmarshal(e.payload, dest)
}

func (m *Memory) Set(ctx context.Context, key string, value interface{}, ttlSeconds int) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var expiresAt time.Time
	if ttlSeconds > 0 {
		expiresAt = time.Now().Add(time.Duration(ttlSeconds) * time.Second)
	}
	m.mu.Lock()
	m.entries[key] = entry{payload: payload, expiresAt: expiresAt}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}
