package web

import (
	"embed"
	"html/template"
	"io"
	"time"

	"github.com/shopspring/decimal"

	dataio "github.com/geniass/stockwatch/pkg/io"
	"github.com/geniass/stockwatch/pkg/scraper"
	"github.com/geniass/stockwatch/pkg/store"
)

//go:embed templates
var templatesFs embed.FS

type BaseContext struct {
	PathPrefix string
}

type ReportContext struct {
	BaseContext
	Owner       string
	LastUpdated time.Time
	Products    []store.Product
	Alerts      []dataio.MessageWithPath
}

func (c ReportContext) FormattedLastUpdated() string {
	return formatTime(c.LastUpdated)
}

func (c ReportContext) InStockCount() int {
	n := 0
	for _, p := range c.Products {
		if p.Availability == scraper.InStock {
			n++
		}
	}
	return n
}

var funcs = template.FuncMap{
	"price": func(d decimal.NullDecimal) string {
		if !d.Valid {
			return "-"
		}
		return "₹" + d.Decimal.StringFixed(2)
	},
	"time": formatTime,
	"statusClass": func(a scraper.Availability) string {
		switch a {
		case scraper.InStock:
			return "in-stock"
		case scraper.OutOfStock:
			return "out-of-stock"
		case scraper.Inactive:
			return "paused"
		default:
			return "unknown"
		}
	},
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02T15:04:05 MST")
}

func RenderReport(w io.Writer, c ReportContext) error {
	t, err := template.New("report.html.tpl").Funcs(funcs).ParseFS(templatesFs, "templates/report.html.tpl")
	if err != nil {
		return err
	}
	t, err = t.ParseFS(templatesFs, "templates/common/*")
	if err != nil {
		return err
	}

	return t.Execute(w, c)
}
