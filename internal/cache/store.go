package cache

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// settings are applied to every connection before the schema.
var settings = []struct{ name, value string }{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
}

// migrations upgrade a cache created by an older build. Entry i moves
// user_version from i to i+1; schema.sql always describes the newest layout.
var migrations = []string{
	`CREATE INDEX IF NOT EXISTS idx_orphan_uploads_recorded_at ON orphan_uploads(recorded_at)`,
}

// Store is the client cache. It implements engine.RecentCache and
// upload.OrphanLedger.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens the cache at path, creating it when missing, and brings its
// layout up to date.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	// One connection: the settings are per connection and SQLite has a
	// single writer anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := prepare(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	return NewWithDB(db), nil
}

func prepare(db *sql.DB) error {
	for _, p := range settings {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("set %s: %w", p.name, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return migrate(db)
}

func migrate(db *sql.DB) error {
	raw, err := readPragma(db, "user_version")
	if err != nil {
		return err
	}
	var version int
	if _, err := fmt.Sscan(raw, &version); err != nil {
		return fmt.Errorf("user_version %q: %w", raw, err)
	}
	for ; version < len(migrations); version++ {
		if _, err := db.Exec(migrations[version]); err != nil {
			return fmt.Errorf("migrate to v%d: %w", version+1, err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", len(migrations))); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func readPragma(db *sql.DB, name string) (string, error) {
	var value string
	if err := db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return value, nil
}

// NewWithDB wraps an already-initialized database.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, logger: slog.Default()}
}

// WithLogger sets the logger and returns s.
func (s *Store) WithLogger(l *slog.Logger) *Store {
	s.logger = l
	return s
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
