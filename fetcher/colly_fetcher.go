package fetcher

import (
	"context"
	"time"

	"github.com/gocolly/colly/v2"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// CollyFetcher implements the Fetcher interface using colly
type CollyFetcher struct {
	collector *colly.Collector
}

// NewCollyFetcher creates a new CollyFetcher instance
func NewCollyFetcher(timeout time.Duration, userAgent string) *CollyFetcher {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	// Search pages are fetched again on every run. A result page is never
	// truncated, and the status check happens in Fetch.
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(0),
		colly.ParseHTTPErrorResponse(),
	)
	if timeout > 0 {
		c.SetRequestTimeout(timeout)
	}

	return &CollyFetcher{
		collector: c,
	}
}

// Fetch implements the Fetcher interface
func (cf *CollyFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &TransportError{URL: url, Err: err}
	}

	// Callbacks are per request; the clone shares the HTTP backend and timeout.
	c := cf.collector.Clone()
	c.Context = ctx

	var body string
	var status int
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = string(r.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := c.Visit(url); err != nil {
		return "", &TransportError{URL: url, StatusCode: status, Err: err}
	}
	c.Wait()

	if status/100 != 2 {
		return "", &TransportError{URL: url, StatusCode: status, Err: ErrBadStatus}
	}
	return body, nil
}
