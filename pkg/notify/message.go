// Package notify defines the alerts the monitor emits and the ways they are delivered.
package notify

import (
	"bytes"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindBackInStock Kind = "BACK_IN_STOCK"
	KindOutOfStock  Kind = "OUT_OF_STOCK"
	KindPriceDrop   Kind = "PRICE_DROP"
)

// Message is one notification call. Back-in-stock bursts share Code and differ in Sequence.
type Message struct {
	ID        uuid.UUID           `json:"id"`
	Kind      Kind                `json:"kind"`
	Code      string              `json:"code"`
	Title     string              `json:"title"`
	URL       string              `json:"url"`
	Price     decimal.NullDecimal `json:"price"`
	OldPrice  decimal.NullDecimal `json:"old_price"`
	Percent   decimal.Decimal     `json:"percent"`
	Sequence  int                 `json:"sequence,omitempty"`
	Repeat    int                 `json:"repeat,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

var funcs = template.FuncMap{
	"money": func(d decimal.NullDecimal) string {
		if !d.Valid {
			return "unknown"
		}
		return "₹" + d.Decimal.StringFixed(2)
	},
	"percent": func(d decimal.Decimal) string {
		return d.StringFixed(1) + "%"
	},
}

var templates = map[Kind]*template.Template{
	KindBackInStock: template.Must(template.New("backInStock").Funcs(funcs).Parse(
		`BACK IN STOCK{{ if gt .Repeat 1 }} ({{ .Sequence }}/{{ .Repeat }}){{ end }}
{{ .Title }}
{{ if .Price.Valid -}}
Price: {{ money .Price }}
{{ end -}}
{{ .URL }}`)),
	KindOutOfStock: template.Must(template.New("outOfStock").Funcs(funcs).Parse(
		`OUT OF STOCK
{{ .Title }}
{{ if .Price.Valid -}}
Last price: {{ money .Price }}
{{ end -}}
{{ .URL }}`)),
	KindPriceDrop: template.Must(template.New("priceDrop").Funcs(funcs).Parse(
		`PRICE DROP {{ percent .Percent }}
{{ .Title }}
Was: {{ money .OldPrice }}
Now: {{ money .Price }}
{{ .URL }}`)),
}

// Text renders the message for a human reader.
func (m Message) Text() string {
	tpl, ok := templates[m.Kind]
	if !ok {
		return string(m.Kind) + " " + m.Title + " " + m.URL
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, m); err != nil {
		return string(m.Kind) + " " + m.Title + " " + m.URL
	}
	return buf.String()
}
