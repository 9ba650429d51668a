package scraper

import (
	"regexp"
	"strings"
)

var (
	codePatterns = []*regexp.Regexp{
		regexp.MustCompile(`/DP/([A-Z0-9]{10})`),
		regexp.MustCompile(`/GP/PRODUCT/([A-Z0-9]{10})`),
		regexp.MustCompile(`/PRODUCT/([A-Z0-9]{10})`),
		regexp.MustCompile(`/([A-Z0-9]{10})(?:[/?]|$)`),
	}
	codeRegex = regexp.MustCompile(`^[A-Z0-9]{10}$`)
)

// ParseCode extracts the 10 character catalog code from a product link or a bare code.
func ParseCode(text string) (string, bool) {
	text = strings.ToUpper(strings.TrimSpace(text))
	if codeRegex.MatchString(text) {
		return text, true
	}
	for _, p := range codePatterns {
		if m := p.FindStringSubmatch(text); len(m) == 2 {
			return m[1], true
		}
	}
	return "", false
}

// ValidCode reports whether code is a well formed catalog code.
func ValidCode(code string) bool {
	return codeRegex.MatchString(code)
}

// ProductURL builds the canonical product page URL for code.
func ProductURL(baseURL, code string) string {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL + code
}
