// Package db persists runs and their trajectories in SQLite.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// DB is a trajectory store.
type DB struct {
	*sql.DB
	path string

	mu       sync.Mutex
	readOnly []*sql.DB // admin console handles, closed with the store
}

// Open opens (or creates) the SQLite database at path and applies any
// pending migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases coherent and
	// serialises writers.
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	db := &DB{DB: sqlDB, path: path}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the store and any read-only handles opened for the admin
// console.
func (db *DB) Close() error {
	db.mu.Lock()
	handles := db.readOnly
	db.readOnly = nil
	db.mu.Unlock()

	var errs []error
	for _, h := range handles {
		errs = append(errs, h.Close())
	}
	errs = append(errs, db.DB.Close())
	return errors.Join(errs...)
}
