package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rental-tracker/filter"
	"rental-tracker/models"
)

// ErrNotFound is returned when an operation names an unknown address.
var ErrNotFound = errors.New("listing not found")

// Store is the persisted listing state. Listings are never deleted and refs
// are only ever appended.
type Store interface {
	// ListListings returns every known listing.
	ListListings(ctx context.Context) ([]models.Listing, error)
	// GetListing returns one listing or ErrNotFound.
	GetListing(ctx context.Context, address string) (models.Listing, error)
	// UpsertListing inserts a listing if its address is unknown. For a known
	// address only missing refs are added; snapshot and curated fields are kept.
	UpsertListing(ctx context.Context, l models.Listing) error
	// AppendRef adds ref to a known listing unless it is already present.
	AppendRef(ctx context.Context, address, ref string) error

	SetFavorite(ctx context.Context, address string, favorite bool) error
	SetDismissed(ctx context.Context, address string, dismissed bool) error
	SetNotes(ctx context.Context, address, notes string) error

	Close() error
}

// BrokerSource is implemented by stores that keep search queries.
type BrokerSource interface {
	ListBrokers(ctx context.Context) ([]models.Broker, error)
	AddBroker(ctx context.Context, b models.Broker) error
}

// FilterSource is implemented by stores that keep the name/value filter table.
type FilterSource interface {
	ListFilterRules(ctx context.Context) ([]filter.RawRule, error)
	SetFilterRule(ctx context.Context, r filter.RawRule) error
}

// Open connects to the store at location:
//
//	postgres://... or postgresql://...   PostgreSQL
//	mongodb://... or mongodb+srv://...   MongoDB
//	*.json                               JSON file
//	anything else                        SQLite database file
func Open(ctx context.Context, location string) (Store, error) {
	location = strings.TrimSpace(location)
	lower := strings.ToLower(location)

	switch {
	case location == "":
		return nil, fmt.Errorf("store location is empty")
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		s, err := NewDB(ctx, DriverPostgres, location)
		if err != nil {
			return nil, err
		}
		return s, nil
	case strings.HasPrefix(lower, "mongodb://"), strings.HasPrefix(lower, "mongodb+srv://"):
		s, err := NewMongoStore(ctx, location, "")
		if err != nil {
			return nil, err
		}
		return s, nil
	case strings.HasSuffix(lower, ".json"):
		s, err := NewJSONStore(location)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := NewDB(ctx, DriverSQLite, strings.TrimPrefix(location, "sqlite://"))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func containsRef(refs []string, ref string) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}

func mergeRefs(refs []string, more ...string) ([]string, bool) {
	changed := false
	for _, r := range more {
		if r != "" && !containsRef(refs, r) {
			refs = append(refs, r)
			changed = true
		}
	}
	return refs, changed
}
