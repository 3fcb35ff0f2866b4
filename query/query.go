package query

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildSearchURL renders search parameters (beds_from, rent_to, date_from, ...)
// into a broker's base URL. Parameters already present in the base URL are
// replaced. Keys are emitted in sorted order so the URL is stable across runs.
func BuildSearchURL(base string, params map[string]string) (string, error) {
	base = strings.TrimSpace(base)
	parsedURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return "", fmt.Errorf("not an absolute URL: %q", base)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", parsedURL.Scheme)
	}

	if len(params) == 0 {
		return parsedURL.String(), nil
	}

	q := parsedURL.Query()
	for key, value := range params {
		key = strings.TrimSpace(key)
		if key == "" {
			return "", fmt.Errorf("empty query parameter name")
		}
		if key == "page" {
			return "", fmt.Errorf("query parameter %q is reserved for pagination", key)
		}
		q.Set(key, value)
	}
	parsedURL.RawQuery = q.Encode()

	return parsedURL.String(), nil
}
