package scraper

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

const testURL = "https://www.amazon.in/dp/B0TEST1234"

func page(head, body string) string {
	return "<!DOCTYPE html><html><head>" + head + "</head><body>" + body + "</body></html>"
}

func assertPrice(t *testing.T, want string, got decimal.NullDecimal) {
	t.Helper()
	if assert.True(t, got.Valid, "expected a price") {
		assert.True(t, decimal.RequireFromString(want).Equal(got.Decimal), "want %s got %s", want, got.Decimal)
	}
}

func TestExtractFullPage(t *testing.T) {
	content := page(
		`<title>Steel Kettle 1.5L : Amazon.in: Home &amp; Kitchen</title>`,
		`<span id="productTitle">
			Steel Kettle 1.5L
		</span>
		<span class="a-price"><span class="a-offscreen">₹1,29,999.00</span></span>
		<div id="availability"><span>In stock</span></div>
		<input id="add-to-cart-button" type="submit">`,
	)

	r := NewExtractor(ExtractorOptions{MaxPrice: decimal.NewFromInt(1_000_000), MinPrice: decimal.NewFromInt(10)}).
		Extract("B0TEST1234", testURL, content)

	assert.Equal(t, "Steel Kettle 1.5L", r.Title)
	assertPrice(t, "129999", r.Price)
	assert.Equal(t, InStock, r.Availability)
	assert.Equal(t, testURL, r.URL)
	assert.False(t, r.Degraded())
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "product title wins over everything",
			content: page(`<title>Other : Amazon.in: Toys</title><meta name="title" content="Meta">`, `<h1 id="title">Heading</h1><span id="productTitle">Primary</span>`),
			want:    "Primary",
		},
		{
			name:    "heading",
			content: page(`<title>Other : Amazon.in: Toys</title>`, `<h1 id="title"> Heading  Name </h1>`),
			want:    "Heading Name",
		},
		{
			name:    "meta title",
			content: page(`<meta name="title" content="Meta Name"><title>Other</title>`, ``),
			want:    "Meta Name",
		},
		{
			name:    "page title with category suffix",
			content: page(`<title>Wooden Puzzle : Amazon.in: Toys &amp; Games</title>`, ``),
			want:    "Wooden Puzzle",
		},
		{
			name:    "page title with dash suffix",
			content: page(`<title>Wooden Puzzle - Amazon.in</title>`, ``),
			want:    "Wooden Puzzle",
		},
		{
			name:    "entities are unescaped",
			content: page(``, `<span id="productTitle">Tom &amp; Jerry   Mug</span>`),
			want:    "Tom & Jerry Mug",
		},
		{
			name:    "decoded angle brackets in element text are kept",
			content: page(``, `<span id="productTitle">Monitor 24&quot; &lt;IPS&gt; Panel</span>`),
			want:    `Monitor 24" <IPS> Panel`,
		},
		{
			name:    "decoded greater-than in page title is kept",
			content: page(`<title>Cable 3m &gt; 2m length - Amazon.in</title>`, ``),
			want:    "Cable 3m > 2m length",
		},
		{
			name:    "markup inside meta content is stripped",
			content: page(`<meta name="title" content="&lt;b&gt;Steel&lt;/b&gt; Kettle">`, ``),
			want:    "Steel Kettle",
		},
		{
			name:    "product title without span",
			content: page(`<title>Other</title>`, `<div id="productTitle">Div Title</div>`),
			want:    "Div Title",
		},
		{
			name:    "small heading",
			content: page(`<title>Other</title>`, `<h1 class="a-spacing-small">Small Heading</h1>`),
			want:    "Small Heading",
		},
		{
			name:    "empty elements fall through to fallback",
			content: page(`<title>  </title>`, `<span id="productTitle">   </span>`),
			want:    "Product B0TEST1234",
		},
	}

	e := NewExtractor(ExtractorOptions{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Extract("B0TEST1234", testURL, tt.content).Title)
		})
	}
}

func TestExtractPrice(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "offscreen", body: `<span class="a-price"><span class="a-offscreen">₹2,499.00</span></span>`, want: "2499"},
		{name: "whole and fraction", body: `<span class="a-price-whole">2,499.</span><span class="a-price-fraction">50</span>`, want: "2499.50"},
		{name: "whole without fraction", body: `<span class="a-price-whole">2,499</span>`, want: "2499"},
		{name: "legacy price block", body: `<span id="priceblock_ourprice" class="a-size-medium">₹ 799.00</span>`, want: "799"},
		{name: "deal price block", body: `<span id="priceblock_dealprice">₹&nbsp;1,049.50</span>`, want: "1049.50"},
	}

	e := NewExtractor(ExtractorOptions{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertPrice(t, tt.want, e.Extract("B0TEST1234", testURL, page("", tt.body)).Price)
		})
	}
}

func TestExtractPriceOutsideRangeIsAbsent(t *testing.T) {
	e := NewExtractor(ExtractorOptions{})

	low := e.Extract("B0TEST1234", testURL, page("", `<span class="a-price"><span class="a-offscreen">₹5.00</span></span>`))
	assert.False(t, low.Price.Valid)

	high := e.Extract("B0TEST1234", testURL, page("", `<span class="a-price"><span class="a-offscreen">₹25,00,000.00</span></span>`))
	assert.False(t, high.Price.Valid)
}

func TestExtractAvailability(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Availability
	}{
		{
			name: "unavailable text beats a purchase button",
			body: `<div id="availability"><span>Currently unavailable.</span></div><input id="add-to-cart-button">`,
			want: OutOfStock,
		},
		{
			name: "phrases inside scripts are ignored",
			body: `<script>var msg = "out of stock";</script><input id="buy-now-button">`,
			want: InStock,
		},
		{
			name: "named purchase input",
			body: `<form><input type="submit" name="submit.add-to-cart"></form>`,
			want: InStock,
		},
		{
			name: "availability block",
			body: `<div id="availability"><span>Only 2 left in stock.</span></div>`,
			want: InStock,
		},
		{
			name: "no markers",
			body: `<p>A very nice kettle.</p>`,
			want: Unknown,
		},
	}

	e := NewExtractor(ExtractorOptions{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Extract("B0TEST1234", testURL, page("", tt.body)).Availability)
		})
	}
}

func TestExtractNeverFails(t *testing.T) {
	e := NewExtractor(ExtractorOptions{})
	for _, content := range []string{"", "<<<>>>", "not html at all", "<html><body><span class=\"a-price-whole\">abc</span>"} {
		r := e.Extract("B0TEST1234", testURL, content)
		assert.Equal(t, "Product B0TEST1234", r.Title)
		assert.False(t, r.Price.Valid)
		assert.Equal(t, Unknown, r.Availability)
		assert.True(t, r.Degraded())
		assert.False(t, r.Usable())
	}
}

func TestExtractCustomStrategies(t *testing.T) {
	e := NewExtractor(ExtractorOptions{
		Titles:        []TitleStrategy{SelectorTitle("h2.name")},
		Prices:        []PriceStrategy{OffscreenPrice("#cost")},
		Availability:  []AvailabilityStrategy{OutOfStockPhrases("sold out")},
		MinPrice:      decimal.NewFromInt(1),
		MaxPrice:      decimal.NewFromInt(100),
		FallbackLabel: "Item",
	})

	r := e.Extract("X1", testURL, page("", `<h2 class="name">Widget</h2><b id="cost">$ 12.75</b><p>Sold out</p>`))
	assert.Equal(t, "Widget", r.Title)
	assertPrice(t, "12.75", r.Price)
	assert.Equal(t, OutOfStock, r.Availability)

	assert.Equal(t, "Item X1", e.Extract("X1", testURL, "").Title)
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "1,29,999.00", want: "129999", ok: true},
		{in: "499.", want: "499", ok: true},
		{in: " 10 ", want: "10", ok: true},
		{in: "1,299.994", want: "1299.99", ok: true},
		{in: "1,299.995", want: "1300.00", ok: true},
		{in: "", ok: false},
		{in: "-5", ok: false},
		{in: "abc", ok: false},
	}
	for _, tt := range tests {
		got, ok := ParsePrice(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), tt.in)
		}
	}
}
