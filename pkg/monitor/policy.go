// Package monitor drives product checks and decides which alerts an observation deserves.
package monitor

import (
	"github.com/geniass/stockwatch/pkg/notify"
	"github.com/geniass/stockwatch/pkg/scraper"
	"github.com/geniass/stockwatch/pkg/store"
)

// Decision lists the alerts for one observation. StockAlert is empty when the stock state
// change is not alert-worthy.
type Decision struct {
	StockAlert notify.Kind
	PriceDrop  bool
}

func (d Decision) Any() bool {
	return d.StockAlert != "" || d.PriceDrop
}

// Decide compares the stored availability with the observed one. UNKNOWN on either side never
// produces a stock alert. A price drop is only reported for an in-stock product.
func Decide(stored, observed scraper.Availability, drop store.Drop) Decision {
	var d Decision
	switch {
	case stored == scraper.OutOfStock && observed == scraper.InStock:
		d.StockAlert = notify.KindBackInStock
	case stored == scraper.InStock && observed == scraper.OutOfStock:
		d.StockAlert = notify.KindOutOfStock
	}
	d.PriceDrop = observed == scraper.InStock && drop.Dropped
	return d
}
