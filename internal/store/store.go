// Package store persists listings and their notification state in SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/lotwatch/lotwatch/internal/listing"
)

//go:embed schema.sql
var schema string

// Store wraps the listings database. Safe for use by one run at a time.
type Store struct {
	db *sqlx.DB
}

// Open connects to the SQLite database at path, creating the schema if
// needed. Use ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert records a listing keyed by URL. A listing seen before only has
// its last_seen marker refreshed; the returned bool reports whether the
// listing was new.
func (s *Store) Upsert(ctx context.Context, l listing.Listing) (bool, error) {
	now := time.Now().UTC()

	var id int64
	err := s.db.GetContext(ctx, &id, `SELECT id FROM listings WHERE url = ?`, l.URL)
	switch {
	case err == nil:
		_, err = s.db.ExecContext(ctx,
			`UPDATE listings SET last_seen = ?, status = ? WHERE id = ?`,
			now, l.Status, id)
		if err != nil {
			return false, fmt.Errorf("failed to refresh listing: %w", err)
		}
		return false, nil
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO listings (source, title, price, mileage, location, url, year, transmission, status, first_seen, last_seen)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.Source, l.Title, l.Price, l.Mileage, l.Location, l.URL, l.Year, l.Transmission, l.Status, now, now)
		if err != nil {
			return false, fmt.Errorf("failed to insert listing: %w", err)
		}
		return true, nil
	default:
		return false, fmt.Errorf("failed to look up listing: %w", err)
	}
}

// Unnotified returns listings that have not been emailed yet, newest
// first.
func (s *Store) Unnotified(ctx context.Context) ([]listing.Listing, error) {
	var out []listing.Listing
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM listings WHERE notified = FALSE ORDER BY first_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unnotified listings: %w", err)
	}
	return out, nil
}

// MarkNotified flags the given listing IDs as notified.
func (s *Store) MarkNotified(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE listings SET notified = TRUE WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to mark listings notified: %w", err)
	}
	return nil
}

// PurgeOlderThan deletes listings not seen within the given number of
// days and returns how many were removed.
func (s *Store) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM listings WHERE last_seen < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge old listings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged listings: %w", err)
	}
	return n, nil
}

// All returns every stored listing, newest first, optionally filtered by
// source.
func (s *Store) All(ctx context.Context, source string) ([]listing.Listing, error) {
	var (
		out []listing.Listing
		err error
	)
	if source != "" {
		err = s.db.SelectContext(ctx, &out,
			`SELECT * FROM listings WHERE source = ? ORDER BY first_seen DESC`, source)
	} else {
		err = s.db.SelectContext(ctx, &out,
			`SELECT * FROM listings ORDER BY first_seen DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	return out, nil
}

// Stats summarizes the stored listings.
type Stats struct {
	Total      int
	Unnotified int
	BySource   map[string]int
}

// Stats returns database statistics for run reporting.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{BySource: make(map[string]int)}

	if err := s.db.GetContext(ctx, &st.Total, `SELECT COUNT(*) FROM listings`); err != nil {
		return st, fmt.Errorf("failed to count listings: %w", err)
	}
	if err := s.db.GetContext(ctx, &st.Unnotified,
		`SELECT COUNT(*) FROM listings WHERE notified = FALSE`); err != nil {
		return st, fmt.Errorf("failed to count unnotified listings: %w", err)
	}

	rows, err := s.db.QueryxContext(ctx, `SELECT source, COUNT(*) FROM listings GROUP BY source`)
	if err != nil {
		return st, fmt.Errorf("failed to count listings by source: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			source string
			n      int
		)
		if err := rows.Scan(&source, &n); err != nil {
			return st, fmt.Errorf("failed to scan source count: %w", err)
		}
		st.BySource[source] = n
	}
	return st, rows.Err()
}
