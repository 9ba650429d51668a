package scraper

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	priceNumberRegex = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	digitsRegex      = regexp.MustCompile(`^\d+$`)

	defaultPricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<span[^>]*id="priceblock_dealprice"[^>]*>[^<\d]*([\d,]+(?:\.\d{1,2})?)`),
		regexp.MustCompile(`(?is)<span[^>]*id="priceblock_ourprice"[^>]*>[^<\d]*([\d,]+(?:\.\d{1,2})?)`),
		regexp.MustCompile(`(?is)<span[^>]*class="[^"]*a-offscreen[^"]*"[^>]*>[^<\d]*([\d,]+(?:\.\d{2})?)</span>`),
		regexp.MustCompile(`(?is)currencyINR.+?>([\d,]+(?:\.\d{2})?)</span>`),
		regexp.MustCompile(`(?is)<span[^>]*class="[^"]*a-price-whole[^"]*"[^>]*>([\d,]+)`),
	}
)

func DefaultPriceStrategies() []PriceStrategy {
	return []PriceStrategy{
		OffscreenPrice(".a-price .a-offscreen"),
		SplitPrice(".a-price-whole", ".a-price-fraction"),
		PatternPrice(defaultPricePatterns...),
	}
}

// OffscreenPrice reads the accessible price text, e.g. "₹1,29,999.00".
func OffscreenPrice(selector string) PriceStrategy {
	return func(p *Page) (decimal.Decimal, bool) {
		text := p.Doc.Find(selector).First().Text()
		return ParsePrice(priceNumberRegex.FindString(text))
	}
}

// SplitPrice joins the whole and fraction elements with a decimal point, fraction defaulting to "00".
func SplitPrice(wholeSelector, fractionSelector string) PriceStrategy {
	return func(p *Page) (decimal.Decimal, bool) {
		whole := p.Doc.Find(wholeSelector).First()
		if whole.Length() == 0 {
			return decimal.Decimal{}, false
		}
		wholeText := strings.ReplaceAll(strings.TrimSpace(whole.Text()), ",", "")
		wholeText = strings.TrimSuffix(wholeText, ".")
		if !digitsRegex.MatchString(wholeText) {
			return decimal.Decimal{}, false
		}
		fraction := strings.TrimSpace(p.Doc.Find(fractionSelector).First().Text())
		if !digitsRegex.MatchString(fraction) {
			fraction = "00"
		}
		return ParsePrice(wholeText + "." + fraction)
	}
}

// PatternPrice scans the raw page with each pattern in turn; group 1 is the number.
func PatternPrice(patterns ...*regexp.Regexp) PriceStrategy {
	return func(p *Page) (decimal.Decimal, bool) {
		for _, re := range patterns {
			m := re.FindStringSubmatch(p.Raw)
			if len(m) < 2 {
				continue
			}
			if price, ok := ParsePrice(m[1]); ok {
				return price, true
			}
		}
		return decimal.Decimal{}, false
	}
}

// ParsePrice parses a non-negative amount with thousands separators removed, rounded to paise.
func ParsePrice(s string) (decimal.Decimal, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return decimal.Decimal{}, false
	}
	price, err := decimal.NewFromString(s)
	if err != nil || price.IsNegative() {
		return decimal.Decimal{}, false
	}
	return price.Round(2), true
}
