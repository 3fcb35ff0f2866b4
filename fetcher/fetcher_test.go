package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rental-tracker/parser"
)

type fakeFetcher struct {
	pages   map[string]string
	errs    map[string]error
	fetched []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.fetched = append(f.fetched, url)
	if err, ok := f.errs[url]; ok {
		return "", err
	}
	body, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("unexpected url %s", url)
	}
	return body, nil
}

const sentinelPage = `<html><body><div class="nothing_found">No results</div></body></html>`

func listingPage(addrs ...string) string {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i, addr := range addrs {
		sb.WriteString(fmt.Sprintf(`<div class="property_item"><a class="item_title" href="r%d">%s</a></div>`, i, addr))
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

func drain(t *testing.T, p *Pager) ([]string, error) {
	t.Helper()
	var titles []string
	for {
		s, err := p.Next(context.Background())
		if err == io.EOF {
			return titles, nil
		}
		if err != nil {
			return titles, err
		}
		titles = append(titles, s.Find(parser.TitleSelector).Text())
	}
}

func TestPageURL(t *testing.T) {
	tests := []struct {
		base string
		page int
		want string
	}{
		{"https://ygl.is/99333?beds_from=2", 1, "https://ygl.is/99333?beds_from=2&page=1"},
		{"https://ygl.is/99333", 3, "https://ygl.is/99333?page=3"},
	}
	for _, tt := range tests {
		if got := PageURL(tt.base, tt.page); got != tt.want {
			t.Errorf("PageURL(%q, %d) = %q, want %q", tt.base, tt.page, got, tt.want)
		}
	}
}

func TestCrawlStopsAtSentinel(t *testing.T) {
	base := "https://ygl.is/1?rent_to=3300"
	f := &fakeFetcher{pages: map[string]string{
		base + "&page=1": listingPage("A", "B"),
		base + "&page=2": listingPage("C"),
		base + "&page=3": sentinelPage,
	}}

	pager := NewCrawler(f, parser.NewParser(), 0).Crawl(base)
	titles, err := drain(t, pager)
	if err != nil {
		t.Fatalf("crawl error: %v", err)
	}
	if got, want := strings.Join(titles, ","), "A,B,C"; got != want {
		t.Errorf("titles = %s, want %s", got, want)
	}
	if pager.Pages() != 3 {
		t.Errorf("Pages() = %d, want 3", pager.Pages())
	}

	// Exhausted pager keeps returning EOF without fetching again.
	if _, err := pager.Next(context.Background()); err != io.EOF {
		t.Errorf("Next() after end = %v, want io.EOF", err)
	}
	if len(f.fetched) != 3 {
		t.Errorf("fetched %d pages, want 3", len(f.fetched))
	}
}

func TestCrawlFirstPageSentinel(t *testing.T) {
	base := "https://ygl.is/1?x=1"
	f := &fakeFetcher{pages: map[string]string{base + "&page=1": sentinelPage}}

	titles, err := drain(t, NewCrawler(f, parser.NewParser(), 0).Crawl(base))
	if err != nil {
		t.Fatalf("crawl error: %v", err)
	}
	if len(titles) != 0 {
		t.Errorf("got %d fragments, want 0", len(titles))
	}
}

func TestCrawlIsLazy(t *testing.T) {
	f := &fakeFetcher{}
	NewCrawler(f, parser.NewParser(), 0).Crawl("https://ygl.is/1?x=1")
	if len(f.fetched) != 0 {
		t.Errorf("Crawl() fetched %d pages before Next, want 0", len(f.fetched))
	}
}

func TestCrawlErrors(t *testing.T) {
	base := "https://ygl.is/1?x=1"
	tests := []struct {
		name      string
		fetcher   *fakeFetcher
		maxPages  int
		wantErr   error
		wantSeen  int
		wantPages int
	}{
		{
			name: "fetch failure on second page",
			fetcher: &fakeFetcher{
				pages: map[string]string{base + "&page=1": listingPage("A")},
				errs:  map[string]error{base + "&page=2": context.DeadlineExceeded},
			},
			wantErr:   context.DeadlineExceeded,
			wantSeen:  1,
			wantPages: 1,
		},
		{
			name: "page without listings or marker",
			fetcher: &fakeFetcher{pages: map[string]string{
				base + "&page=1": "<html><body><p>maintenance</p></body></html>",
			}},
			wantErr: ErrMalformedPage,
		},
		{
			name: "page limit",
			fetcher: &fakeFetcher{pages: map[string]string{
				base + "&page=1": listingPage("A"),
				base + "&page=2": listingPage("B"),
			}},
			maxPages:  2,
			wantErr:   ErrPageLimit,
			wantSeen:  2,
			wantPages: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pager := NewCrawler(tt.fetcher, parser.NewParser(), tt.maxPages).Crawl(base)
			titles, err := drain(t, pager)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("crawl error = %v, want %v", err, tt.wantErr)
			}
			var te *TransportError
			if !errors.As(err, &te) {
				t.Errorf("crawl error type = %T, want *TransportError", err)
			}
			if len(titles) != tt.wantSeen {
				t.Errorf("got %d fragments before the error, want %d", len(titles), tt.wantSeen)
			}
			if pager.Pages() != tt.wantPages {
				t.Errorf("Pages() = %d, want %d", pager.Pages(), tt.wantPages)
			}
		})
	}
}

func TestCollyFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, sentinelPage)
		case "partial":
			w.WriteHeader(http.StatusNonAuthoritativeInfo)
			fmt.Fprint(w, sentinelPage)
		case "large":
			fmt.Fprint(w, "<html><body>")
			fmt.Fprint(w, strings.Repeat("<p>padding</p>", 1<<20))
			fmt.Fprint(w, `<div class="nothing_found">No results</div></body></html>`)
		case "moved":
			w.WriteHeader(http.StatusMultipleChoices)
			fmt.Fprint(w, sentinelPage)
		case "slow":
			time.Sleep(500 * time.Millisecond)
			fmt.Fprint(w, sentinelPage)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	f := NewCollyFetcher(200*time.Millisecond, "")

	t.Run("ok", func(t *testing.T) {
		// Fetched twice to make sure revisits are allowed.
		for i := 0; i < 2; i++ {
			body, err := f.Fetch(context.Background(), server.URL+"/?page=1")
			if err != nil {
				t.Fatalf("Fetch() error: %v", err)
			}
			if !strings.Contains(body, "nothing_found") {
				t.Errorf("Fetch() body = %q, want the sentinel page", body)
			}
		}
	})

	t.Run("server error", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), server.URL+"/?page=2")
		var te *TransportError
		if !errors.As(err, &te) {
			t.Fatalf("Fetch() error = %v, want *TransportError", err)
		}
		if te.StatusCode != http.StatusInternalServerError {
			t.Errorf("StatusCode = %d, want %d", te.StatusCode, http.StatusInternalServerError)
		}
		if !errors.Is(err, ErrBadStatus) {
			t.Errorf("Fetch() error = %v, want ErrBadStatus", err)
		}
	})

	t.Run("any 2xx is accepted", func(t *testing.T) {
		body, err := f.Fetch(context.Background(), server.URL+"/?page=partial")
		if err != nil {
			t.Fatalf("Fetch() error on 203: %v", err)
		}
		if !strings.Contains(body, "nothing_found") {
			t.Errorf("Fetch() body = %q, want the sentinel page", body)
		}
	})

	t.Run("non-2xx is rejected", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), server.URL+"/?page=moved")
		var te *TransportError
		if !errors.As(err, &te) || te.StatusCode != http.StatusMultipleChoices {
			t.Fatalf("Fetch() error = %v, want *TransportError with status 300", err)
		}
	})

	t.Run("large page is not truncated", func(t *testing.T) {
		big := NewCollyFetcher(5*time.Second, "")
		body, err := big.Fetch(context.Background(), server.URL+"/?page=large")
		if err != nil {
			t.Fatalf("Fetch() error: %v", err)
		}
		if !strings.Contains(body, "nothing_found") {
			t.Errorf("Fetch() returned %d bytes without the trailing marker", len(body))
		}
	})

	t.Run("timeout", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), server.URL+"/?page=slow")
		var te *TransportError
		if !errors.As(err, &te) {
			t.Fatalf("Fetch() error = %v, want *TransportError", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := f.Fetch(ctx, server.URL+"/?page=1"); !errors.Is(err, context.Canceled) {
			t.Errorf("Fetch() error = %v, want context.Canceled", err)
		}
	})
}
