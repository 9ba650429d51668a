package scraper

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gocolly/colly/v2"
)

const (
	ctxKeyStatus = "status"
	ctxKeyBody   = "body"

	maxRedirects = 5
)

var (
	captchaMarkers = [][]byte{
		[]byte("captcha"),
		[]byte("enter the characters"),
	}

	// the catalog redirects blocked clients to a challenge page instead of answering 403
	captchaRedirectRegex = regexp.MustCompile(`(?i)validatecaptcha|/errors/`)
)

type Options struct {
	Timeout        time.Duration
	AllowedDomains []string
	Limiter        *RateLimiter
	Identities     *IdentityRotator
	Retry          RetryPolicy
	Logger         *slog.Logger
}

// Fetcher retrieves product pages through a synchronous colly collector.
// Every attempt, retries included, first acquires the rate limiter for the page's origin.
type Fetcher struct {
	colly      *colly.Collector
	limiter    *RateLimiter
	identities *IdentityRotator
	retry      RetryPolicy
	sleep      SleepFunc
	log        *slog.Logger
}

func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Limiter == nil {
		opts.Limiter = NewRateLimiter(5*time.Second, time.Second, 3*time.Second)
	}
	if opts.Identities == nil {
		opts.Identities = NewIdentityRotator(nil, "")
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy(3, time.Second)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	options := []colly.CollectorOption{
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.IgnoreRobotsTxt(),
	}
	if len(opts.AllowedDomains) > 0 {
		options = append(options, colly.AllowedDomains(opts.AllowedDomains...))
	}

	f := &Fetcher{
		colly:      colly.NewCollector(options...),
		limiter:    opts.Limiter,
		identities: opts.Identities,
		retry:      opts.Retry,
		sleep:      Sleep,
		log:        opts.Logger,
	}

	// session cookies make the catalog serve personalised (and sometimes wrong) pages
	f.colly.DisableCookies()
	f.colly.SetRequestTimeout(opts.Timeout)

	f.colly.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		if captchaRedirectRegex.MatchString(req.URL.Path) {
			return errors.Wrapf(ErrCaptcha, "redirected to %s", req.URL.String())
		}
		if len(via) >= maxRedirects {
			return errors.Newf("stopped after %d redirects", maxRedirects)
		}
		return nil
	})

	f.colly.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxKeyStatus, r.StatusCode)
		r.Ctx.Put(ctxKeyBody, r.Body)
	})

	f.colly.OnRequest(func(r *colly.Request) {
		f.log.Debug("visiting", "url", r.URL.String())
	})

	return f
}

// Fetch returns the page body or a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	origin := OriginOf(url)

	var content string
	err := f.retry.Do(ctx, f.sleep, func(attempt int) error {
		if err := f.limiter.Acquire(ctx, origin); err != nil {
			return &FetchError{Kind: KindNetwork, URL: url, Err: err}
		}
		body, err := f.fetchOnce(url)
		if err != nil {
			f.log.Warn("fetch attempt failed",
				"url", url,
				"attempt", attempt,
				"max_attempts", f.retry.MaxAttempts,
				"error", err)
			return err
		}
		content = body
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func (f *Fetcher) fetchOnce(url string) (string, error) {
	cctx := colly.NewContext()
	if err := f.colly.Request(http.MethodGet, url, nil, cctx, f.identities.Next()); err != nil {
		return "", classifyTransportError(url, err)
	}

	status, _ := cctx.GetAny(ctxKeyStatus).(int)
	body, _ := cctx.GetAny(ctxKeyBody).([]byte)
	if err := classifyResponse(url, status, body); err != nil {
		return "", err
	}
	return string(body), nil
}

func classifyTransportError(url string, err error) error {
	if errors.Is(err, ErrCaptcha) {
		return &FetchError{Kind: KindBlocked, URL: url, Err: err}
	}
	// timeouts, refused connections and resets all surface as net.Error
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &FetchError{Kind: KindNetwork, URL: url, Err: err, retryable: true}
	}
	return &FetchError{Kind: KindNetwork, URL: url, Err: err}
}

func classifyResponse(url string, status int, body []byte) error {
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return &FetchError{Kind: KindNotFound, Status: status, URL: url}
	case http.StatusForbidden:
		return &FetchError{Kind: KindBlocked, Status: status, URL: url}
	case http.StatusServiceUnavailable:
		// retried like any transient 5xx, reported as blocked once the budget is spent
		return &FetchError{Kind: KindBlocked, Status: status, URL: url, retryable: true}
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &FetchError{Kind: KindHTTP, Status: status, URL: url, retryable: true}
	default:
		return &FetchError{Kind: KindHTTP, Status: status, URL: url}
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return &FetchError{Kind: KindHTTP, Status: status, URL: url, Err: ErrEmptyBody}
	}
	lower := bytes.ToLower(body)
	for _, marker := range captchaMarkers {
		if bytes.Contains(lower, marker) {
			return &FetchError{Kind: KindBlocked, Status: status, URL: url, Err: ErrCaptcha}
		}
	}
	return nil
}
