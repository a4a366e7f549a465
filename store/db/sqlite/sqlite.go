package sqlite

import (
	"context"
	"database/sql"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"
	"github.com/pkg/errors"

	"github.com/usecounsel/counsel/internal/profile"
	"github.com/usecounsel/counsel/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a SQLite database for the given profile.
// SQLite is the development and testing backend; use PostgreSQL in production.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("sqlite", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}

	return &DB{
		db:      db,
		profile: profile,
	}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'chat_session')").Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check if database is initialized")
	}
	return exists, nil
}
