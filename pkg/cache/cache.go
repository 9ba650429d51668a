// Package cache holds recent FetchResults so that checks of the same product within a short
// window reuse one fetch.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/geniass/stockwatch/pkg/scraper"
)

const DefaultTTL = 300 * time.Second

// Cache is keyed by catalog code. A miss is never an error.
type Cache interface {
	Get(ctx context.Context, code string) (scraper.FetchResult, bool)
	Set(ctx context.Context, code string, result scraper.FetchResult)
	Clear(ctx context.Context)
}

type entry struct {
	result     scraper.FetchResult
	capturedAt time.Time
}

// Memory is the process-local cache. Expired entries are evicted when they are next read.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

func (m *Memory) Get(_ context.Context, code string) (scraper.FetchResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[code]
	if !ok {
		return scraper.FetchResult{}, false
	}
	if m.now().Sub(e.capturedAt) >= m.ttl {
		delete(m.entries, code)
		return scraper.FetchResult{}, false
	}
	return e.result, true
}

func (m *Memory) Set(_ context.Context, code string, result scraper.FetchResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[code] = entry{result: result, capturedAt: m.now()}
}

func (m *Memory) Clear(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]entry)
}

// Len counts stored entries, expired ones included until they are read.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
