// Package cache remembers rendered sign-video URLs so identical word
// sequences are only rendered once.
package cache

import (
	"context"
	"sync"
	"time"
)

const keyPrefix = "tamkeen:signvideo:"

type entry struct {
	url     string
	expires time.Time
}

// Memory is an in-process cache. Entries expire lazily on Get.
type Memory struct {
	mu    sync.Mutex
	items map[string]entry
	now   func() time.Time
}

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]entry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[key]
	if !ok {
		return "", false, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.items, key)
		return "", false, nil
	}
	return e.url, true, nil
}

// Set stores url under key. A non-positive ttl never expires.
func (m *Memory) Set(_ context.Context, key, url string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := entry{url: url}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.items[key] = e
	return nil
}

// Len reports the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
