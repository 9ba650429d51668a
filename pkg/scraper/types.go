package scraper

import (
	"github.com/shopspring/decimal"
)

// Availability is the stock state read off a product page.
type Availability string

const (
	InStock    Availability = "IN_STOCK"
	OutOfStock Availability = "OUT_OF_STOCK"
	Unknown    Availability = "UNKNOWN"

	// Inactive is never produced by extraction. It marks a paused product in the store.
	Inactive Availability = "INACTIVE"
)

func (a Availability) Valid() bool {
	switch a {
	case InStock, OutOfStock, Unknown, Inactive:
		return true
	}
	return false
}

// FetchResult is one observation of a product page.
type FetchResult struct {
	Title        string              `json:"title"`
	Price        decimal.NullDecimal `json:"price"`
	Availability Availability        `json:"availability"`
	URL          string              `json:"url"`
}

// Degraded reports whether extraction could not determine price or availability.
func (r FetchResult) Degraded() bool {
	return !r.Price.Valid || r.Availability == Unknown
}

// Usable reports whether the observation carries any data worth recording.
func (r FetchResult) Usable() bool {
	return r.Price.Valid || r.Availability != Unknown
}
