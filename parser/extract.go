package parser

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"rental-tracker/models"

	"github.com/PuerkitoBio/goquery"
)

var (
	ErrMissingTitle   = errors.New("missing title element")
	ErrMissingLink    = errors.New("missing reference link")
	ErrMissingColumns = errors.New("missing property columns")
	ErrPrice          = errors.New("no digits in price")
	ErrBaths          = errors.New("unparseable baths")
)

// ExtractError reports a listing fragment that could not be turned into fields.
type ExtractError struct {
	Field string
	Text  string
	Err   error
}

func (e *ExtractError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("extract %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("extract %s from %q: %v", e.Field, e.Text, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// Extract reads the listing fields out of a single listing fragment.
// The property columns are positional: price, beds, baths, date.
func (p *Parser) Extract(s *goquery.Selection) (models.ListingFields, error) {
	var fields models.ListingFields

	title := s.Find(TitleSelector).First()
	if title.Length() == 0 {
		return fields, &ExtractError{Field: "address", Err: ErrMissingTitle}
	}
	fields.Address = strings.TrimSpace(title.Text())
	if fields.Address == "" {
		return fields, &ExtractError{Field: "address", Err: ErrMissingTitle}
	}
	href, ok := title.Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return fields, &ExtractError{Field: "reference", Text: fields.Address, Err: ErrMissingLink}
	}
	fields.ReferenceURL = href

	var columns []string
	s.Find(ColumnSelector).Each(func(i int, c *goquery.Selection) {
		columns = append(columns, strings.TrimSpace(c.Text()))
	})
	if len(columns) < columnCount {
		return fields, &ExtractError{
			Field: "columns",
			Text:  fmt.Sprintf("%d of %d", len(columns), columnCount),
			Err:   ErrMissingColumns,
		}
	}

	price, err := parsePrice(columns[priceColumn])
	if err != nil {
		return fields, &ExtractError{Field: "price", Text: columns[priceColumn], Err: err}
	}
	fields.Price = price

	// Irregular phrasing ("room available in a 4 bed house") is common in the
	// beds column, so it degrades to 0 instead of failing the listing.
	if beds, err := parseLeadingFloat(columns[bedsColumn]); err == nil {
		fields.Beds = beds
	}

	baths, err := parseLeadingFloat(columns[bathsColumn])
	if err != nil {
		return fields, &ExtractError{Field: "baths", Text: columns[bathsColumn], Err: ErrBaths}
	}
	fields.Baths = baths

	if tokens := strings.Fields(columns[dateColumn]); len(tokens) >= 2 {
		fields.AvailableDate = tokens[1]
	}

	return fields, nil
}

// parsePrice keeps only the digits of the price text
func parsePrice(text string) (int, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, text)
	if digits == "" {
		return 0, ErrPrice
	}
	price, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPrice, err)
	}
	return price, nil
}

// parseLeadingFloat parses the first whitespace separated token as a non-negative number.
func parseLeadingFloat(text string) (float64, error) {
	tokens := strings.FieldsFunc(text, unicode.IsSpace)
	if len(tokens) == 0 {
		return 0, fmt.Errorf("empty text")
	}
	v, err := strconv.ParseFloat(tokens[0], 64)
	if err != nil {
		return 0, err
	}
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("out of range: %v", v)
	}
	return v, nil
}
