package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"rental-tracker/parser"

	"github.com/PuerkitoBio/goquery"
)

// Crawler walks the result pages of a search until the no-results page.
type Crawler struct {
	fetcher  Fetcher
	parser   *parser.Parser
	maxPages int
}

// NewCrawler creates a Crawler. maxPages <= 0 means no page limit.
func NewCrawler(f Fetcher, p *parser.Parser, maxPages int) *Crawler {
	return &Crawler{
		fetcher:  f,
		parser:   p,
		maxPages: maxPages,
	}
}

// Crawl starts a new pass over the result pages of baseURL. Nothing is
// fetched until the first call to Next.
func (c *Crawler) Crawl(baseURL string) *Pager {
	return &Pager{crawler: c, baseURL: baseURL}
}

// PageURL returns the URL of a 1-based result page.
func PageURL(baseURL string, page int) string {
	sep := "&"
	if !strings.Contains(baseURL, "?") {
		sep = "?"
	}
	return fmt.Sprintf("%s%spage=%d", baseURL, sep, page)
}

// Pager yields listing fragments across result pages in document order.
// A Pager is not safe for concurrent use.
type Pager struct {
	crawler *Crawler
	baseURL string
	page    int // last page requested
	fetched int
	pending []*goquery.Selection
	done    bool
}

// Next returns the next listing fragment. It returns io.EOF once the
// no-results page has been reached, and a *TransportError if a page could
// not be fetched or did not have the expected shape.
func (p *Pager) Next(ctx context.Context) (*goquery.Selection, error) {
	for len(p.pending) == 0 {
		if p.done {
			return nil, io.EOF
		}
		if err := p.fetchNextPage(ctx); err != nil {
			p.done = true
			return nil, err
		}
	}

	s := p.pending[0]
	p.pending = p.pending[1:]
	return s, nil
}

// Pages returns the number of result pages fetched and parsed so far,
// including the no-results page. A failed page is not counted.
func (p *Pager) Pages() int {
	return p.fetched
}

func (p *Pager) fetchNextPage(ctx context.Context) error {
	if p.crawler.maxPages > 0 && p.page >= p.crawler.maxPages {
		return &TransportError{URL: p.baseURL, Err: ErrPageLimit}
	}

	p.page++
	url := PageURL(p.baseURL, p.page)
	body, err := p.crawler.fetcher.Fetch(ctx, url)
	if err != nil {
		var te *TransportError
		if !errors.As(err, &te) {
			err = &TransportError{URL: url, Err: err}
		}
		return err
	}

	page, err := p.crawler.parser.ParsePage(body)
	if err != nil {
		return &TransportError{URL: url, Err: err}
	}
	if page.NothingFound {
		p.fetched++
		p.done = true
		return nil
	}
	if len(page.Fragments) == 0 {
		return &TransportError{URL: url, Err: ErrMalformedPage}
	}
	p.fetched++

	log.Printf("Fetched page %d: %s (%d listings)\n", p.page, url, len(page.Fragments))
	p.pending = page.Fragments
	return nil
}
