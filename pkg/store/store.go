// Package store keeps the durable per-product state and the append-only price history.
package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/geniass/stockwatch/pkg/scraper"
)

const (
	DefaultCooldown   = 5 * time.Minute
	DefaultDueLimit   = 50
	DefaultHistoryLen = 20
)

var (
	DefaultDropThreshold = decimal.NewFromInt(5)

	ErrNotFound = errors.New("product not found")
)

// Product is one tracked (owner, catalog code) pair.
type Product struct {
	ID            uuid.UUID
	Owner         string
	Code          string
	Title         string
	URL           string
	CurrentPrice  decimal.NullDecimal
	PreviousPrice decimal.NullDecimal
	Availability  scraper.Availability
	LastChecked   time.Time
	NextCheck     time.Time
	CheckCount    int
	FailCount     int
	CreatedAt     time.Time
}

func (p Product) Active() bool {
	return p.Availability != scraper.Inactive
}

// PriceSample is a price that was replaced, with the availability observed when it was replaced.
type PriceSample struct {
	ProductID    uuid.UUID
	Price        decimal.Decimal
	Availability scraper.Availability
	CheckedAt    time.Time
}

// Observation is what one successful fetch saw. An empty Title leaves the stored title alone.
type Observation struct {
	Title        string
	Availability scraper.Availability
	Price        decimal.NullDecimal
}

// Drop is the outcome of comparing a new price with the stored current price.
type Drop struct {
	Dropped  bool
	Percent  decimal.Decimal
	OldPrice decimal.NullDecimal
}

// Recorded is the product before and after one observation, with the drop that observation showed.
// Before and Drop are read under the same lock or transaction as the write.
type Recorded struct {
	Before  Product
	Product Product
	Drop    Drop
}

type Store interface {
	// UpsertProduct creates the product or, for an existing (owner, code), updates title and URL only.
	UpsertProduct(ctx context.Context, owner, code, title, url string) (Product, error)
	RemoveProduct(ctx context.Context, owner, code string) error
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
	FindProduct(ctx context.Context, owner, code string) (Product, error)
	ListProducts(ctx context.Context, owner string) ([]Product, error)

	// DueProducts returns active products whose next check is due, oldest due first.
	DueProducts(ctx context.Context, limit int) ([]Product, error)
	RecordObservation(ctx context.Context, id uuid.UUID, obs Observation) (Recorded, error)
	RecordFailure(ctx context.Context, id uuid.UUID) (Product, error)
	PriceDrop(ctx context.Context, id uuid.UUID, newPrice decimal.Decimal) (Drop, error)
	PriceHistory(ctx context.Context, id uuid.UUID, limit int) ([]PriceSample, error)

	SetInactive(ctx context.Context, owner, code string) error
	Reactivate(ctx context.Context, owner, code string) error
}

type Options struct {
	Cooldown      time.Duration
	DropThreshold decimal.Decimal
}

func (o Options) withDefaults() Options {
	if o.Cooldown <= 0 {
		o.Cooldown = DefaultCooldown
	}
	if o.DropThreshold.IsZero() {
		o.DropThreshold = DefaultDropThreshold
	}
	return o
}

var hundred = decimal.NewFromInt(100)

// ComputeDrop reports a drop only when both prices are positive, the new one is lower,
// and the relative drop in percent reaches threshold.
func ComputeDrop(oldPrice decimal.NullDecimal, newPrice, threshold decimal.Decimal) Drop {
	d := Drop{OldPrice: oldPrice}
	if !oldPrice.Valid || !oldPrice.Decimal.IsPositive() || !newPrice.IsPositive() {
		return d
	}
	if !newPrice.LessThan(oldPrice.Decimal) {
		return d
	}
	percent := oldPrice.Decimal.Sub(newPrice).Div(oldPrice.Decimal).Mul(hundred)
	d.Percent = percent.Round(2)
	d.Dropped = percent.GreaterThanOrEqual(threshold)
	return d
}

// applyObservation is the state transition shared by every Store implementation.
// It returns the sample to append to the history, if any, and the drop against the replaced price.
func applyObservation(p *Product, obs Observation, now time.Time, opts Options) (*PriceSample, Drop) {
	var (
		sample *PriceSample
		drop   Drop
	)

	if obs.Price.Valid {
		drop = ComputeDrop(p.CurrentPrice, obs.Price.Decimal, opts.DropThreshold)
		changed := !p.CurrentPrice.Valid || !p.CurrentPrice.Decimal.Equal(obs.Price.Decimal)
		if changed {
			if p.CurrentPrice.Valid {
				// the old price, tagged with the availability seen alongside its replacement
				sample = &PriceSample{
					ProductID:    p.ID,
					Price:        p.CurrentPrice.Decimal,
					Availability: obs.Availability,
					CheckedAt:    now,
				}
			}
			p.PreviousPrice = p.CurrentPrice
			p.CurrentPrice = obs.Price
		}
	}

	if p.Active() && obs.Availability != "" {
		p.Availability = obs.Availability
	}
	if obs.Title != "" {
		p.Title = obs.Title
	}

	if obs.Price.Valid || obs.Availability != scraper.Unknown {
		p.FailCount = 0
	} else {
		p.FailCount++
	}
	p.CheckCount++
	p.LastChecked = now
	p.NextCheck = now.Add(opts.Cooldown)
	return sample, drop
}

func applyFailure(p *Product, now time.Time, cooldown time.Duration) {
	p.FailCount++
	p.LastChecked = now
	p.NextCheck = now.Add(cooldown)
}
