package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"rental-tracker/db"
	"rental-tracker/fetcher"
	"rental-tracker/filter"
	"rental-tracker/models"
	"rental-tracker/parser"
	"rental-tracker/reconcile"

	"github.com/google/uuid"
)

// Query is one broker search to crawl, with the rules its listings must pass.
type Query struct {
	Broker models.Broker
	Rules  []filter.Rule
}

// Notifier is offered each listing seen for the first time.
type Notifier interface {
	Notify(l models.Listing)
}

// StoreError is a failed persistence write. It ends the run.
type StoreError struct {
	Op      string
	Address string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Address == "" {
		return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s for %q failed: %v", e.Op, e.Address, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// BrokerSummary counts what happened to one broker's listings.
type BrokerSummary struct {
	Broker    string
	Pages     int
	Fragments int
	Skipped   int // extraction failures
	Rejected  int // filtered out
	Inserted  int
	Appended  int
	Unchanged int
	Err       error

	// RejectedBy counts rejections by the name of the first failing rule.
	RejectedBy map[string]int
}

// Summary describes one run.
type Summary struct {
	RunID   string
	Brokers []BrokerSummary
}

// Inserted returns the number of new listings across all brokers.
func (s *Summary) Inserted() int {
	n := 0
	for _, b := range s.Brokers {
		n += b.Inserted
	}
	return n
}

// Appended returns the number of refs added to known listings.
func (s *Summary) Appended() int {
	n := 0
	for _, b := range s.Brokers {
		n += b.Appended
	}
	return n
}

// Runner crawls brokers and reconciles what it finds with the store.
type Runner struct {
	store    db.Store
	crawler  *fetcher.Crawler
	parser   *parser.Parser
	notifier Notifier
	now      func() time.Time
}

// NewRunner creates a Runner. A nil notifier disables notifications.
func NewRunner(store db.Store, crawler *fetcher.Crawler, p *parser.Parser, notifier Notifier) *Runner {
	return &Runner{
		store:    store,
		crawler:  crawler,
		parser:   p,
		notifier: notifier,
		now:      time.Now,
	}
}

// Run processes the queries in order, one full crawl at a time. A transport
// failure ends only the affected query; the errors of all failed queries are
// joined and returned after the remaining queries ran. A StoreError ends the
// run immediately. Work committed before any failure stays committed.
func (r *Runner) Run(ctx context.Context, queries []Query) (*Summary, error) {
	summary := &Summary{RunID: uuid.NewString()}

	existing, err := r.store.ListListings(ctx)
	if err != nil {
		return summary, &StoreError{Op: "list", Err: err}
	}
	state := reconcile.NewState(existing)
	log.Printf("[%s] Starting run: %d brokers, %d known listings\n", summary.RunID, len(queries), state.Len())

	var errs []error
	for _, q := range queries {
		bs, err := r.runQuery(ctx, state, q)
		summary.Brokers = append(summary.Brokers, bs)

		var se *StoreError
		if errors.As(err, &se) {
			log.Printf("[%s] Error: %v\n", summary.RunID, err)
			return summary, err
		}
		if err != nil {
			log.Printf("[%s] Error: broker %s: %v\n", summary.RunID, q.Broker.Name, err)
			errs = append(errs, fmt.Errorf("broker %s: %w", q.Broker.Name, err))
		}

		log.Printf("[%s] Broker %s: %d pages, %d listings, %d new, %d updated, %d rejected %v, %d skipped\n",
			summary.RunID, q.Broker.Name, bs.Pages, bs.Fragments, bs.Inserted, bs.Appended, bs.Rejected, bs.RejectedBy, bs.Skipped)
	}

	log.Printf("[%s] Run finished: %d new listings, %d new refs\n", summary.RunID, summary.Inserted(), summary.Appended())
	return summary, errors.Join(errs...)
}

func (r *Runner) runQuery(ctx context.Context, state *reconcile.State, q Query) (BrokerSummary, error) {
	bs := BrokerSummary{Broker: q.Broker.Name, RejectedBy: make(map[string]int)}
	f := filter.NewFilter(q.Rules)
	pager := r.crawler.Crawl(q.Broker.URL)
	log.Printf("Processing broker %s: %s\n", q.Broker.Name, q.Broker.URL)

	for {
		fragment, err := pager.Next(ctx)
		bs.Pages = pager.Pages()
		if err == io.EOF {
			return bs, nil
		}
		if err != nil {
			bs.Err = err
			return bs, err
		}
		bs.Fragments++

		fields, err := r.parser.Extract(fragment)
		if err != nil {
			bs.Skipped++
			log.Printf("Warning: skipping listing from %s: %v\n", q.Broker.Name, err)
			continue
		}

		if rule, ok := f.Check(fields); !ok {
			bs.Rejected++
			bs.RejectedBy[rule.Kind.String()]++
			continue
		}

		if err := r.apply(ctx, state, fields, &bs); err != nil {
			bs.Err = err
			return bs, err
		}
	}
}

// apply persists the change a sighting makes. A novel listing is offered for
// notification before it is written, so a crash in between re-notifies
// rather than losing the notification.
func (r *Runner) apply(ctx context.Context, state *reconcile.State, fields models.ListingFields, bs *BrokerSummary) error {
	action := state.Decide(fields, r.now())

	switch action.Kind {
	case reconcile.InsertNew:
		if r.notifier != nil && state.MarkNotified(action.Address) {
			r.notifier.Notify(action.Listing)
		}
		if err := r.store.UpsertListing(ctx, action.Listing); err != nil {
			return &StoreError{Op: "insert", Address: action.Address, Err: err}
		}
		bs.Inserted++
		log.Printf("New listing: %s (%s)\n", action.Address, action.Ref)
	case reconcile.AppendRef:
		if err := r.store.AppendRef(ctx, action.Address, action.Ref); err != nil {
			return &StoreError{Op: "append_ref", Address: action.Address, Err: err}
		}
		bs.Appended++
	default:
		bs.Unchanged++
	}

	state.Commit(action)
	return nil
}
