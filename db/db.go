package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// DB is the relational store, backed by PostgreSQL or SQLite.
type DB struct {
	conn   *sql.DB
	driver string
}

// NewDB creates a new database connection and makes sure the schema exists
func NewDB(ctx context.Context, driver, dsn string) (*DB, error) {
	if driver == DriverSQLite && !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, driver: driver}

	if err := db.initSchema(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// DSNFromEnv returns DATABASE_URL, or a PostgreSQL URL assembled from the
// DB_* variables when DB_HOST is set. It returns "" when neither is present.
func DSNFromEnv() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	host := os.Getenv("DB_HOST")
	if host == "" {
		return ""
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(getEnvOrDefault("DB_USER", "rental_tracker"), os.Getenv("DB_PASSWORD")),
		Host:   host + ":" + getEnvOrDefault("DB_PORT", "5432"),
		Path:   "/" + getEnvOrDefault("DB_NAME", "rental_tracker"),
	}
	q := url.Values{}
	q.Set("sslmode", getEnvOrDefault("DB_SSLMODE", "disable"))
	u.RawQuery = q.Encode()
	return u.String()
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// GetConn returns the underlying connection
func (db *DB) GetConn() *sql.DB {
	return db.conn
}

// initSchema creates the necessary tables if they don't exist. The tables
// keep the layout of the original ygl.db so an existing database opens as is;
// columns are nullable there and are scanned as such.
func (db *DB) initSchema(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS Listings (
			addr TEXT PRIMARY KEY,
			refs TEXT,
			price INTEGER,
			beds REAL,
			baths REAL,
			date TEXT,
			notes TEXT,
			favorite INTEGER,
			dismissed INTEGER,
			timestamp BIGINT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create Listings table: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS Brokers (
			url TEXT PRIMARY KEY,
			name TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create Brokers table: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS Config (
			name TEXT PRIMARY KEY,
			value TEXT,
			type INTEGER
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create Config table: %w", err)
	}

	// AddBroker upserts on url, which an older Brokers table may not key on
	_, err = db.conn.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS idx_brokers_url ON Brokers(url)`)
	if err != nil {
		log.Printf("Warning: Failed to create unique index on Brokers.url: %v\n", err)
	}

	_, err = db.conn.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_listings_timestamp ON Listings(timestamp)`)
	if err != nil {
		log.Printf("Warning: Failed to create index on Listings.timestamp: %v\n", err)
	}

	return nil
}

// rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}

	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// forUpdate is the row lock suffix for read-modify-write transactions.
// SQLite serializes writers and has no row locks.
func (db *DB) forUpdate() string {
	if db.driver == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}
