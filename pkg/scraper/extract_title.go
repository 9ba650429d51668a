package scraper

import (
	"html"
	"regexp"

	"github.com/antchfx/htmlquery"
	"github.com/kennygrant/sanitize"
)

var siteSuffixRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s*:\s*Amazon\.in\s*:.*$`),
	regexp.MustCompile(`(?i)\s*[-|:]\s*Amazon\.in\s*$`),
}

func DefaultTitleStrategies() []TitleStrategy {
	return []TitleStrategy{
		SelectorTitle("span#productTitle"),
		SelectorTitle("#productTitle"),
		SelectorTitle("h1#title"),
		SelectorTitle("h1.a-spacing-small"),
		MetaTitle,
		PageTitle(siteSuffixRegexes...),
	}
}

// SelectorTitle takes the text of the first element matching selector.
func SelectorTitle(selector string) TitleStrategy {
	return func(p *Page) (string, bool) {
		return textTitle(p.Doc.Find(selector).First().Text())
	}
}

// MetaTitle reads <meta name="title" content="..."> off the parsed tree.
func MetaTitle(p *Page) (string, bool) {
	if len(p.Doc.Nodes) == 0 {
		return "", false
	}
	node := htmlquery.FindOne(p.Doc.Nodes[0], `//meta[@name="title"]`)
	if node == nil {
		return "", false
	}
	return markupTitle(htmlquery.SelectAttr(node, "content"))
}

// PageTitle uses <title> with the site name suffix stripped.
func PageTitle(suffixes ...*regexp.Regexp) TitleStrategy {
	return func(p *Page) (string, bool) {
		title := p.Doc.Find("title").First().Text()
		for _, re := range suffixes {
			title = re.ReplaceAllString(title, "")
		}
		return textTitle(title)
	}
}

// textTitle takes element text, which the parser has already decoded.
func textTitle(s string) (string, bool) {
	title := normalizeSpace(s)
	return title, title != ""
}

// markupTitle strips markup some sellers put into the meta content before decoding entities.
func markupTitle(s string) (string, bool) {
	return textTitle(html.UnescapeString(sanitize.HTML(s)))
}
