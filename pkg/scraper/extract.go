package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
)

const DefaultFallbackLabel = "Product"

var (
	DefaultMinPrice = decimal.NewFromInt(10)
	DefaultMaxPrice = decimal.NewFromInt(1_000_000)
)

// Page is the parsed input every extraction strategy works on.
type Page struct {
	Code string
	URL  string
	Raw  string
	Doc  *goquery.Document

	visibleText *string
}

// VisibleText is the lower-cased, whitespace collapsed text of the body without scripts and styles.
func (p *Page) VisibleText() string {
	if p.visibleText != nil {
		return *p.visibleText
	}
	body := p.Doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	text := strings.ToLower(normalizeSpace(body.Text()))
	p.visibleText = &text
	return text
}

// Strategies report ok=false when they found nothing, so the next one in the list is tried.
type (
	TitleStrategy        func(p *Page) (string, bool)
	PriceStrategy        func(p *Page) (decimal.Decimal, bool)
	AvailabilityStrategy func(p *Page) (Availability, bool)
)

type ExtractorOptions struct {
	Titles       []TitleStrategy
	Prices       []PriceStrategy
	Availability []AvailabilityStrategy

	MinPrice      decimal.Decimal
	MaxPrice      decimal.Decimal
	FallbackLabel string
}

// Extractor turns a product page into a FetchResult by running ordered strategy lists.
// The first strategy that succeeds wins; Extract itself never fails.
type Extractor struct {
	titles       []TitleStrategy
	prices       []PriceStrategy
	availability []AvailabilityStrategy

	minPrice      decimal.Decimal
	maxPrice      decimal.Decimal
	fallbackLabel string
}

func NewExtractor(opts ExtractorOptions) *Extractor {
	e := &Extractor{
		titles:        opts.Titles,
		prices:        opts.Prices,
		availability:  opts.Availability,
		minPrice:      opts.MinPrice,
		maxPrice:      opts.MaxPrice,
		fallbackLabel: opts.FallbackLabel,
	}
	if e.titles == nil {
		e.titles = DefaultTitleStrategies()
	}
	if e.prices == nil {
		e.prices = DefaultPriceStrategies()
	}
	if e.availability == nil {
		e.availability = DefaultAvailabilityStrategies()
	}
	if e.minPrice.IsZero() && e.maxPrice.IsZero() {
		e.minPrice, e.maxPrice = DefaultMinPrice, DefaultMaxPrice
	}
	if e.fallbackLabel == "" {
		e.fallbackLabel = DefaultFallbackLabel
	}
	return e
}

func (e *Extractor) Extract(code, url, content string) FetchResult {
	result := e.Fallback(code, url)

	root, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return result
	}
	p := &Page{Code: code, URL: url, Raw: content, Doc: goquery.NewDocumentFromNode(root)}

	for _, s := range e.titles {
		if title, ok := s(p); ok {
			result.Title = title
			break
		}
	}

	for _, s := range e.prices {
		if price, ok := s(p); ok {
			if e.Plausible(price) {
				result.Price = decimal.NewNullDecimal(price)
			}
			break
		}
	}

	for _, s := range e.availability {
		if a, ok := s(p); ok {
			result.Availability = a
			break
		}
	}

	return result
}

// Fallback is the result for a page that yielded nothing.
func (e *Extractor) Fallback(code, url string) FetchResult {
	return FetchResult{
		Title:        e.fallbackLabel + " " + code,
		Availability: Unknown,
		URL:          url,
	}
}

// Plausible guards against banners and unrelated numbers captured as the price.
func (e *Extractor) Plausible(price decimal.Decimal) bool {
	return price.GreaterThanOrEqual(e.minPrice) && price.LessThanOrEqual(e.maxPrice)
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
