// Package fmv supplies the engine's exchange rates and fair market
// values from a local cache backed by public sources: Norges Bank for
// NOK rates, EODHD for stock quotes. The engine only ever sees the
// synchronous RateProvider view; fetching and caching stay in here.
package fmv

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/nordtax/espp"
)

// Store is the sqlite rate cache, keyed by (currency-or-symbol, date).
// Values are stored as text to keep them exact.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

const schema = `CREATE TABLE IF NOT EXISTS rates (
	key   TEXT NOT NULL,
	date  TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (key, date)
)`

// OpenStore opens (and if needed creates) the cache database at path.
// Use ":memory:" for an ephemeral cache.
func OpenStore(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening rate cache %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing rate cache: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Get returns the cached value for a key and date, if present.
func (s *Store) Get(key string, on espp.Date) (decimal.Decimal, bool, error) {
	var text string
	err := s.db.QueryRow(`SELECT value FROM rates WHERE key = ? AND date = ?`, key, on.String()).Scan(&text)
	if err == sql.ErrNoRows {
		return decimal.Decimal{}, false, nil
	}
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	value, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("corrupt cache entry %s %s: %w", key, on, err)
	}
	return value, true, nil
}

// Put stores one value. Existing entries are overwritten: sources
// occasionally restate a day.
func (s *Store) Put(key string, on espp.Date, value decimal.Decimal) error {
	_, err := s.db.Exec(`INSERT INTO rates (key, date, value) VALUES (?, ?, ?)
		ON CONFLICT (key, date) DO UPDATE SET value = excluded.value`,
		key, on.String(), value.String())
	return err
}

// PutAll stores a fetched series in one transaction.
func (s *Store) PutAll(key string, series map[string]decimal.Decimal) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO rates (key, date, value) VALUES (?, ?, ?)
		ON CONFLICT (key, date) DO UPDATE SET value = excluded.value`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for date, value := range series {
		if _, err := stmt.Exec(key, date, value.String()); err != nil {
			tx.Rollback()
			return err
		}
	}
	s.log.Debug().Str("key", key).Int("entries", len(series)).Msg("cached rate series")
	return tx.Commit()
}

// Count returns the number of cached entries for a key.
func (s *Store) Count(key string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM rates WHERE key = ?`, key).Scan(&n)
	return n, err
}
