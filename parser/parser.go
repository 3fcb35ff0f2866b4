package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page is one parsed search result page.
type Page struct {
	// NothingFound is set when the page carries the "no results" marker.
	NothingFound bool
	// Fragments holds the listing elements in document order.
	Fragments []*goquery.Selection
}

// Parser splits search result pages into listing fragments and extracts their fields.
type Parser struct{}

// NewParser creates a new Parser instance
func NewParser() *Parser {
	return &Parser{}
}

// ParsePage parses a search result page body
func (p *Parser) ParsePage(body string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	if doc.Find(NothingFoundSelector).Length() > 0 {
		return &Page{NothingFound: true}, nil
	}

	page := &Page{}
	doc.Find(ListingSelector).Each(func(i int, s *goquery.Selection) {
		page.Fragments = append(page.Fragments, s)
	})
	return page, nil
}
