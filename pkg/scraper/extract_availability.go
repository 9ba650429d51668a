package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var defaultOutOfStockPhrases = []string{
	"currently unavailable",
	"out of stock",
	"temporarily out of stock",
	"we don't know when or if this item will be back in stock",
	"currently out of stock",
}

// Out-of-stock phrases are checked before purchase controls so a stale buy button never reads as a restock.
func DefaultAvailabilityStrategies() []AvailabilityStrategy {
	return []AvailabilityStrategy{
		OutOfStockPhrases(defaultOutOfStockPhrases...),
		PurchaseControl(
			"#add-to-cart-button",
			"#buy-now-button",
			`input[name="submit.add-to-cart"]`,
			`input[name="submit.buy-now"]`,
		),
		AvailabilityText("#availability span, .availability span", "in stock"),
	}
}

func OutOfStockPhrases(phrases ...string) AvailabilityStrategy {
	return func(p *Page) (Availability, bool) {
		text := p.VisibleText()
		for _, phrase := range phrases {
			if strings.Contains(text, phrase) {
				return OutOfStock, true
			}
		}
		return "", false
	}
}

func PurchaseControl(selectors ...string) AvailabilityStrategy {
	return func(p *Page) (Availability, bool) {
		for _, s := range selectors {
			if p.Doc.Find(s).Length() > 0 {
				return InStock, true
			}
		}
		return "", false
	}
}

func AvailabilityText(selector, marker string) AvailabilityStrategy {
	return func(p *Page) (Availability, bool) {
		found := false
		p.Doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if strings.Contains(strings.ToLower(s.Text()), marker) {
				found = true
			}
			return !found
		})
		if found {
			return InStock, true
		}
		return "", false
	}
}
