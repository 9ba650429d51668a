package scraper

import (
	"math/rand/v2"
	"net/http"
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
}

// IdentityRotator hands out a request header set picked uniformly at random from a fixed pool.
// It only spreads requests over a few browser fingerprints.
type IdentityRotator struct {
	userAgents []string
	language   string
}

// NewIdentityRotator uses the built-in user agent pool when userAgents is empty.
func NewIdentityRotator(userAgents []string, acceptLanguage string) *IdentityRotator {
	if len(userAgents) == 0 {
		userAgents = defaultUserAgents
	}
	if acceptLanguage == "" {
		acceptLanguage = "en-IN,en;q=0.9,hi;q=0.8"
	}
	return &IdentityRotator{userAgents: userAgents, language: acceptLanguage}
}

func (r *IdentityRotator) Next() http.Header {
	h := http.Header{}
	h.Set("User-Agent", r.userAgents[rand.IntN(len(r.userAgents))])
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", r.language)
	h.Set("DNT", "1")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Cache-Control", "max-age=0")
	return h
}

// UserAgents returns the pool the rotator picks from.
func (r *IdentityRotator) UserAgents() []string {
	return r.userAgents
}
