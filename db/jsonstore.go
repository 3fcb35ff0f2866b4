package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"rental-tracker/models"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 20 * time.Millisecond

// JSONStore keeps all listings in one JSON document keyed by address.
// The file is the only copy of the state: every read loads it, and every
// write loads it under an exclusive lock on path+".lock", applies the
// change and replaces the file atomically. A crawl and the dashboard may
// therefore share one file from separate processes.
type JSONStore struct {
	path string
	lock *flock.Flock

	mu sync.Mutex // serializes writers within this process
}

// NewJSONStore opens path, which need not exist yet. A malformed file is
// an error.
func NewJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *JSONStore) Close() error {
	return s.lock.Close()
}

// load reads the current document. Writes replace the file by rename, so a
// reader always sees a complete document without taking the lock.
func (s *JSONStore) load() (map[string]models.Listing, error) {
	listings := make(map[string]models.Listing)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return listings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return listings, nil
	}
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.path, err)
	}
	for addr, l := range listings {
		l.Address = addr
		if l.Refs == nil {
			l.Refs = []string{}
		}
		listings[addr] = l
	}
	return listings, nil
}

func (s *JSONStore) ListListings(ctx context.Context) ([]models.Listing, error) {
	current, err := s.load()
	if err != nil {
		return nil, err
	}

	listings := make([]models.Listing, 0, len(current))
	for _, l := range current {
		listings = append(listings, l)
	}
	sort.Slice(listings, func(i, j int) bool {
		if listings[i].Timestamp != listings[j].Timestamp {
			return listings[i].Timestamp < listings[j].Timestamp
		}
		return listings[i].Address < listings[j].Address
	})
	return listings, nil
}

func (s *JSONStore) GetListing(ctx context.Context, address string) (models.Listing, error) {
	current, err := s.load()
	if err != nil {
		return models.Listing{}, err
	}
	l, ok := current[address]
	if !ok {
		return models.Listing{}, ErrNotFound
	}
	return l, nil
}

func (s *JSONStore) UpsertListing(ctx context.Context, l models.Listing) error {
	return s.update(ctx, func(listings map[string]models.Listing) (bool, error) {
		existing, ok := listings[l.Address]
		if !ok {
			l.Refs, _ = mergeRefs([]string{}, l.Refs...)
			listings[l.Address] = l
			return true, nil
		}
		var changed bool
		existing.Refs, changed = mergeRefs(existing.Refs, l.Refs...)
		listings[l.Address] = existing
		return changed, nil
	})
}

func (s *JSONStore) AppendRef(ctx context.Context, address, ref string) error {
	return s.update(ctx, func(listings map[string]models.Listing) (bool, error) {
		l, ok := listings[address]
		if !ok {
			return false, ErrNotFound
		}
		var changed bool
		l.Refs, changed = mergeRefs(l.Refs, ref)
		listings[address] = l
		return changed, nil
	})
}

func (s *JSONStore) SetFavorite(ctx context.Context, address string, favorite bool) error {
	return s.modify(ctx, address, func(l *models.Listing) { l.IsFavorite = favorite })
}

func (s *JSONStore) SetDismissed(ctx context.Context, address string, dismissed bool) error {
	return s.modify(ctx, address, func(l *models.Listing) { l.IsDismissed = dismissed })
}

func (s *JSONStore) SetNotes(ctx context.Context, address, notes string) error {
	return s.modify(ctx, address, func(l *models.Listing) { l.Notes = notes })
}

func (s *JSONStore) modify(ctx context.Context, address string, fn func(l *models.Listing)) error {
	return s.update(ctx, func(listings map[string]models.Listing) (bool, error) {
		l, ok := listings[address]
		if !ok {
			return false, ErrNotFound
		}
		fn(&l)
		listings[address] = l
		return true, nil
	})
}

// update applies fn to the on-disk state while holding the file lock and
// saves when fn reports a change.
func (s *JSONStore) update(ctx context.Context, fn func(listings map[string]models.Listing) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", s.path, err)
	}
	if !locked {
		return fmt.Errorf("failed to lock %s", s.path)
	}
	defer s.lock.Unlock()

	listings, err := s.load()
	if err != nil {
		return err
	}
	changed, err := fn(listings)
	if err != nil || !changed {
		return err
	}
	return s.save(listings)
}

func (s *JSONStore) save(listings map[string]models.Listing) error {
	data, err := json.MarshalIndent(listings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode listings: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write listings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write listings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}
