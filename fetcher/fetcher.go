package fetcher

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrMalformedPage = errors.New("page has neither listings nor the no-results marker")
	ErrPageLimit     = errors.New("page limit reached before the no-results page")
	ErrBadStatus     = errors.New("non-2xx response")
)

// Fetcher interface defines the contract for fetching implementations
type Fetcher interface {
	// Fetch retrieves the body of url. Non-2xx responses and timeouts are errors.
	Fetch(ctx context.Context, url string) (string, error)
}

// TransportError is a failed fetch or an unusable result page. It aborts the
// crawl of the affected broker.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
