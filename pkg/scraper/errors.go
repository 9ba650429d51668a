package scraper

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

type ErrorKind string

const (
	KindNotFound ErrorKind = "NOT_FOUND"
	KindBlocked  ErrorKind = "BLOCKED"
	KindHTTP     ErrorKind = "HTTP_ERROR"
	KindNetwork  ErrorKind = "NETWORK_ERROR"
)

var (
	// ErrCaptcha marks a page or redirect that asks the client to solve a challenge.
	ErrCaptcha = errors.New("captcha challenge")
	// ErrEmptyBody marks a 200 response with nothing to parse.
	ErrEmptyBody = errors.New("empty response body")
)

// FetchError is the only error type Fetch returns.
type FetchError struct {
	Kind   ErrorKind
	Status int
	URL    string
	Err    error

	retryable bool
}

func (e *FetchError) Error() string {
	msg := string(e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	msg += " fetching " + e.URL
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt within the retry budget may succeed.
func (e *FetchError) Retryable() bool {
	return e.retryable
}

// KindOf returns the kind of the FetchError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsRetryable is the default retry predicate of the Fetcher.
func IsRetryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable()
	}
	return false
}

// StatusOf returns the HTTP status carried by err, 0 when there was no response.
func StatusOf(err error) int {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Status
	}
	return 0
}
