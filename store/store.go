// Package store persists page analyses and usage statistics in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/cookiewall/dbopen"
)

// Retention is how long an analysis is kept before Cleanup drops it.
const Retention = 7 * 24 * time.Hour

// Store is the cookiewall database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the database at path and applies Schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
