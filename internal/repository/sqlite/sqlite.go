// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo (calls C code from Go), which means you need a C
// compiler installed and cross-compilation becomes painful. modernc.org/sqlite
// is a pure Go translation of the SQLite C code — works everywhere Go works.
//
// The pattern throughout this package:
//  1. sql.Open("sqlite", dsn)              → creates a connection pool
//  2. db.QueryRowContext / db.ExecContext  → runs parameterized queries
//  3. rows.Scan(&field1, &field2)          → reads results into Go variables
//
// Multi-row writes (a profile plus its child collections) go through sql.Tx
// so the aggregate is committed atomically or not at all.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// BLANK IMPORT:
	// Side-effect only — the package's init() registers itself with
	// database/sql as a driver named "sqlite". After this import,
	// sql.Open("sqlite", ...) knows how to talk to SQLite.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides the repository methods.
// One DB value implements all three repository interfaces; the server hands
// it to each service as the narrow interface that service needs.
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/cardlink.db" → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests, lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// SQLite allows one writer at a time, and the PRAGMAs below are
	// per-connection. A single pooled connection makes both uniform — and
	// keeps ":memory:" databases coherent, since each new connection would
	// otherwise get its own empty in-memory database.
	conn.SetMaxOpenConns(1)

	// Ping forces an immediate connection so a bad path or permissions
	// problem surfaces here, not on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL mode allows concurrent reads while a write is happening —
	// important for a web server where many requests hit the DB.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. We depend on them: deleting
	// a profile must cascade to experiences, social links, and views.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool. Wherever you call New(),
// defer Close() — it flushes the WAL and releases the file lock.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by /health.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS is idempotent, so
// running it on every startup is safe.
func (db *DB) migrate() error {
	// users: email is UNIQUE and COLLATE NOCASE, so the database itself
	// enforces case-insensitive uniqueness — "Jane@X.com" and "jane@x.com"
	// are the same account no matter what the application layer does.
	// password_hash and google_id are nullable: a password account has no
	// google_id, an OAuth-only account has no password_hash.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
			password_hash TEXT,
			google_id     TEXT UNIQUE,
			full_name     TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_login_at DATETIME
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// profiles: slug is the public identity, UNIQUE is the backstop for the
	// slug-probe race (see repository.ErrSlugTaken).
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			slug         TEXT NOT NULL UNIQUE,
			full_name    TEXT NOT NULL,
			title        TEXT NOT NULL DEFAULT '',
			phone        TEXT NOT NULL DEFAULT '',
			address      TEXT NOT NULL DEFAULT '',
			email        TEXT NOT NULL DEFAULT '',
			avatar_url   TEXT NOT NULL DEFAULT '',
			qr_code_url  TEXT NOT NULL DEFAULT '',
			profile_url  TEXT NOT NULL DEFAULT '',
			is_published INTEGER NOT NULL DEFAULT 1,
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_profiles_user_id ON profiles(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating profiles table: %w", err)
	}

	// Child collections cascade with their profile. display_order is the
	// render sequence — rows are reinserted wholesale on update, so it is
	// simply the array index the client sent.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS work_experiences (
			id            TEXT PRIMARY KEY,
			profile_id    TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			company       TEXT NOT NULL DEFAULT '',
			position      TEXT NOT NULL DEFAULT '',
			start_date    DATETIME NOT NULL,
			end_date      DATETIME,
			description   TEXT NOT NULL DEFAULT '',
			display_order INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_work_experiences_profile_id ON work_experiences(profile_id);
	`)
	if err != nil {
		return fmt.Errorf("creating work_experiences table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS social_links (
			id            TEXT PRIMARY KEY,
			profile_id    TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			platform      TEXT NOT NULL,
			url           TEXT NOT NULL,
			display_order INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_social_links_profile_id ON social_links(profile_id);
	`)
	if err != nil {
		return fmt.Errorf("creating social_links table: %w", err)
	}

	// profile_views is append-only; rows disappear only via the cascade.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS profile_views (
			id         TEXT PRIMARY KEY,
			profile_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			source     TEXT NOT NULL DEFAULT 'DIRECT',
			ip_address TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			referrer   TEXT NOT NULL DEFAULT '',
			timestamp  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_profile_views_profile_id ON profile_views(profile_id);
		CREATE INDEX IF NOT EXISTS idx_profile_views_timestamp ON profile_views(timestamp);
	`)
	if err != nil {
		return fmt.Errorf("creating profile_views table: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure on
// the given column (e.g. "profiles.slug"). modernc.org/sqlite exposes
// constraint failures only through the error text, so we match on the
// message SQLite itself produces.
func isUniqueViolation(err error, column string) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: "+column)
}
