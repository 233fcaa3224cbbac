// Package snapshotdb persists simulation runs, their periodic snapshots and
// statistics in a SQLite database.
package snapshotdb

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/banshee-data/febid/internal/monitoring"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run or snapshot does not exist.
var ErrNotFound = errors.New("snapshotdb: not found")

var logf = monitoring.Tagged("snapshotdb")

// DB wraps a SQLite connection whose schema is managed by the embedded
// migrations.
type DB struct {
	*sql.DB
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// Open opens or creates the database at path and migrates it to the latest
// schema version.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// Pragmas below apply per connection.
	sqlDB.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	version, _, err := db.MigrateVersion()
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	logf("opened %s at schema version %d", path, version)
	return db, nil
}
