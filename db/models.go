package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"rental-tracker/filter"
	"rental-tracker/models"
)

const listingColumns = `addr, refs, price, beds, baths, date, notes, favorite, dismissed, timestamp`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (models.Listing, error) {
	var (
		l                          models.Listing
		refs, date, notes          sql.NullString
		price, favorite, dismissed sql.NullInt64
		timestamp                  sql.NullInt64
		beds, baths                sql.NullFloat64
	)
	err := row.Scan(
		&l.Address, &refs, &price, &beds, &baths, &date,
		&notes, &favorite, &dismissed, &timestamp,
	)
	if err != nil {
		return models.Listing{}, err
	}
	l.Refs = splitRefs(refs.String)
	l.Price = int(price.Int64)
	l.Beds = beds.Float64
	l.Baths = baths.Float64
	l.AvailableDate = date.String
	l.Notes = notes.String
	l.IsFavorite = favorite.Int64 != 0
	l.IsDismissed = dismissed.Int64 != 0
	l.Timestamp = timestamp.Int64
	return l, nil
}

// flags are INTEGER columns
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// refs are stored comma-joined in a single column. A comma or percent sign
// inside a ref is percent-encoded so every ref reads back unchanged.
var (
	refEscaper   = strings.NewReplacer("%", "%25", ",", "%2C")
	refUnescaper = strings.NewReplacer("%2C", ",", "%25", "%")
)

func splitRefs(s string) []string {
	refs := []string{}
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			refs = append(refs, refUnescaper.Replace(r))
		}
	}
	return refs
}

func joinRefs(refs []string) string {
	escaped := make([]string, len(refs))
	for i, r := range refs {
		escaped[i] = refEscaper.Replace(r)
	}
	return strings.Join(escaped, ",")
}

// ListListings returns every listing, oldest first
func (db *DB) ListListings(ctx context.Context) ([]models.Listing, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+listingColumns+` FROM Listings ORDER BY timestamp, addr`)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// GetListing retrieves a listing by address
func (db *DB) GetListing(ctx context.Context, address string) (models.Listing, error) {
	row := db.conn.QueryRowContext(ctx, db.rebind(`SELECT `+listingColumns+` FROM Listings WHERE addr = ?`), address)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Listing{}, ErrNotFound
	}
	if err != nil {
		return models.Listing{}, fmt.Errorf("failed to get listing %q: %w", address, err)
	}
	return l, nil
}

// UpsertListing inserts a new listing or adds missing refs to an existing one
func (db *DB) UpsertListing(ctx context.Context, l models.Listing) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var refs sql.NullString
	err = tx.QueryRowContext(ctx, db.rebind(`SELECT refs FROM Listings WHERE addr = ?`+db.forUpdate()), l.Address).Scan(&refs)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		merged, _ := mergeRefs(nil, l.Refs...)
		_, err = tx.ExecContext(ctx, db.rebind(`
			INSERT INTO Listings (`+listingColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (addr) DO NOTHING
		`), l.Address, joinRefs(merged), l.Price, l.Beds, l.Baths, l.AvailableDate,
			l.Notes, boolInt(l.IsFavorite), boolInt(l.IsDismissed), l.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to insert listing %q: %w", l.Address, err)
		}
	case err != nil:
		return fmt.Errorf("failed to read listing %q: %w", l.Address, err)
	default:
		merged, changed := mergeRefs(splitRefs(refs.String), l.Refs...)
		if !changed {
			return nil
		}
		if _, err := tx.ExecContext(ctx, db.rebind(`UPDATE Listings SET refs = ? WHERE addr = ?`), joinRefs(merged), l.Address); err != nil {
			return fmt.Errorf("failed to update refs of %q: %w", l.Address, err)
		}
	}

	return tx.Commit()
}

// AppendRef adds a reference URL to an existing listing
func (db *DB) AppendRef(ctx context.Context, address, ref string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var refs sql.NullString
	err = tx.QueryRowContext(ctx, db.rebind(`SELECT refs FROM Listings WHERE addr = ?`+db.forUpdate()), address).Scan(&refs)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read listing %q: %w", address, err)
	}

	merged, changed := mergeRefs(splitRefs(refs.String), ref)
	if !changed {
		return nil
	}
	if _, err := tx.ExecContext(ctx, db.rebind(`UPDATE Listings SET refs = ? WHERE addr = ?`), joinRefs(merged), address); err != nil {
		return fmt.Errorf("failed to append ref to %q: %w", address, err)
	}

	return tx.Commit()
}

// SetFavorite updates the favorite flag of a listing
func (db *DB) SetFavorite(ctx context.Context, address string, favorite bool) error {
	return db.updateListing(ctx, "favorite", boolInt(favorite), address)
}

// SetDismissed updates the dismissed flag of a listing
func (db *DB) SetDismissed(ctx context.Context, address string, dismissed bool) error {
	return db.updateListing(ctx, "dismissed", boolInt(dismissed), address)
}

// SetNotes replaces the notes of a listing
func (db *DB) SetNotes(ctx context.Context, address, notes string) error {
	return db.updateListing(ctx, "notes", notes, address)
}

// column is always one of the curated column names above
func (db *DB) updateListing(ctx context.Context, column string, value any, address string) error {
	res, err := db.conn.ExecContext(ctx, db.rebind(`UPDATE Listings SET `+column+` = ? WHERE addr = ?`), value, address)
	if err != nil {
		return fmt.Errorf("failed to update %s of %q: %w", column, address, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s of %q: %w", column, address, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBrokers returns the stored search queries
func (db *DB) ListBrokers(ctx context.Context) ([]models.Broker, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT name, url FROM Brokers ORDER BY name, url`)
	if err != nil {
		return nil, fmt.Errorf("failed to query brokers: %w", err)
	}
	defer rows.Close()

	var brokers []models.Broker
	for rows.Next() {
		var name sql.NullString
		var b models.Broker
		if err := rows.Scan(&name, &b.URL); err != nil {
			return nil, fmt.Errorf("failed to scan broker: %w", err)
		}
		b.Name = name.String
		brokers = append(brokers, b)
	}
	return brokers, rows.Err()
}

// AddBroker stores a search query, renaming it if the URL is already known
func (db *DB) AddBroker(ctx context.Context, b models.Broker) error {
	_, err := db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO Brokers (url, name) VALUES (?, ?)
		ON CONFLICT (url) DO UPDATE SET name = excluded.name
	`), b.URL, b.Name)
	if err != nil {
		return fmt.Errorf("failed to save broker %q: %w", b.URL, err)
	}
	return nil
}

// ListFilterRules returns the stored name/value filter table
func (db *DB) ListFilterRules(ctx context.Context) ([]filter.RawRule, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT name, value FROM Config ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query filters: %w", err)
	}
	defer rows.Close()

	var rules []filter.RawRule
	for rows.Next() {
		var value sql.NullString
		var r filter.RawRule
		if err := rows.Scan(&r.Name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan filter: %w", err)
		}
		r.Value = value.String
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// SetFilterRule stores or replaces one filter setting
func (db *DB) SetFilterRule(ctx context.Context, r filter.RawRule) error {
	_, err := db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO Config (name, value, type) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value, type = excluded.type
	`), r.Name, r.Value, filterType(r.Name))
	if err != nil {
		return fmt.Errorf("failed to save filter %q: %w", r.Name, err)
	}
	return nil
}

// Config.type codes, as the original dashboard reads them
const (
	configInteger = 0
	configString  = 2
)

// filterType is the informational type column of the Config table
func filterType(name string) int {
	if kind, ok := filter.LookupKind(name); ok && kind.ValueType() == "number" {
		return configInteger
	}
	return configString
}
