package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/geniass/stockwatch/pkg/scraper"
)

// Memory is a Store held in process memory.
type Memory struct {
	opts Options
	now  func() time.Time

	mu       sync.Mutex
	products map[uuid.UUID]*Product
	history  map[uuid.UUID][]PriceSample
}

func NewMemory(opts Options) *Memory {
	return &Memory{
		opts:     opts.withDefaults(),
		now:      time.Now,
		products: make(map[uuid.UUID]*Product),
		history:  make(map[uuid.UUID][]PriceSample),
	}
}

func (m *Memory) UpsertProduct(_ context.Context, owner, code, title, url string) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p := m.find(owner, code); p != nil {
		p.Title = title
		p.URL = url
		return *p, nil
	}

	now := m.now()
	p := &Product{
		ID:           uuid.New(),
		Owner:        owner,
		Code:         code,
		Title:        title,
		URL:          url,
		Availability: scraper.Unknown,
		NextCheck:    now,
		CreatedAt:    now,
	}
	m.products[p.ID] = p
	return *p, nil
}

func (m *Memory) RemoveProduct(_ context.Context, owner, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.find(owner, code)
	if p == nil {
		return ErrNotFound
	}
	delete(m.products, p.ID)
	delete(m.history, p.ID)
	return nil
}

func (m *Memory) GetProduct(_ context.Context, id uuid.UUID) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return *p, nil
}

func (m *Memory) FindProduct(_ context.Context, owner, code string) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.find(owner, code)
	if p == nil {
		return Product{}, ErrNotFound
	}
	return *p, nil
}

func (m *Memory) ListProducts(_ context.Context, owner string) ([]Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Product
	for _, p := range m.products {
		if p.Owner == owner {
			out = append(out, *p)
		}
	}
	slices.SortFunc(out, func(a, b Product) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (m *Memory) DueProducts(_ context.Context, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = DefaultDueLimit
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var due []Product
	for _, p := range m.products {
		if p.Active() && !p.NextCheck.After(now) {
			due = append(due, *p)
		}
	}
	slices.SortFunc(due, func(a, b Product) int {
		return a.NextCheck.Compare(b.NextCheck)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *Memory) RecordObservation(_ context.Context, id uuid.UUID, obs Observation) (Recorded, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return Recorded{}, ErrNotFound
	}
	before := *p
	sample, drop := applyObservation(p, obs, m.now(), m.opts)
	if sample != nil {
		m.history[id] = append(m.history[id], *sample)
	}
	return Recorded{Before: before, Product: *p, Drop: drop}, nil
}

func (m *Memory) RecordFailure(_ context.Context, id uuid.UUID) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	applyFailure(p, m.now(), m.opts.Cooldown)
	return *p, nil
}

func (m *Memory) PriceDrop(_ context.Context, id uuid.UUID, newPrice decimal.Decimal) (Drop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return Drop{}, ErrNotFound
	}
	return ComputeDrop(p.CurrentPrice, newPrice, m.opts.DropThreshold), nil
}

// PriceHistory returns the newest samples first.
func (m *Memory) PriceHistory(_ context.Context, id uuid.UUID, limit int) ([]PriceSample, error) {
	if limit <= 0 {
		limit = DefaultHistoryLen
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[id]; !ok {
		return nil, ErrNotFound
	}
	samples := slices.Clone(m.history[id])
	slices.Reverse(samples)
	if len(samples) > limit {
		samples = samples[:limit]
	}
	return samples, nil
}

func (m *Memory) SetInactive(_ context.Context, owner, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.find(owner, code)
	if p == nil {
		return ErrNotFound
	}
	p.Availability = scraper.Inactive
	return nil
}

// Reactivate makes a paused product due immediately with an unknown stock state.
func (m *Memory) Reactivate(_ context.Context, owner, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.find(owner, code)
	if p == nil {
		return ErrNotFound
	}
	if p.Active() {
		return nil
	}
	p.Availability = scraper.Unknown
	p.NextCheck = m.now()
	return nil
}

func (m *Memory) find(owner, code string) *Product {
	for _, p := range m.products {
		if p.Owner == owner && p.Code == code {
			return p
		}
	}
	return nil
}
