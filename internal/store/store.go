// Package store persists sessions, certificates, enrollments, and the
// ledger anchor log over sqlite (default) or postgres.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

// Driver selects the SQL backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Store wraps the database handle.
type Store struct {
	db     *sql.DB
	driver Driver
}

// Open opens a database and ensures the schema exists. An empty sqlite DSN
// opens an in-memory database, which the tests rely on.
func Open(ctx context.Context, driver Driver, dsn string) (*Store, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite"
		if dsn == "" {
			dsn = ":memory:"
		}
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	case DriverPostgres:
		drvName = "pgx"
		if dsn == "" {
			return nil, fmt.Errorf("postgres driver requires a DSN")
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		course_id TEXT NOT NULL,
		course_topic TEXT NOT NULL,
		module_summary TEXT NOT NULL DEFAULT '',
		mode TEXT NOT NULL,
		room_handle TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		persona_id TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT 'idle',
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS certificates (
		certificate_id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		course_id TEXT NOT NULL,
		score INTEGER NOT NULL,
		max_score INTEGER NOT NULL,
		transcript_fingerprint TEXT NOT NULL,
		tier TEXT NOT NULL,
		issued_at TIMESTAMP NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		ledger_ref TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS enrollments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		course_id TEXT NOT NULL,
		current_module_index INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		enrolled_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ledger_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		certificate_id TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		ledger_ref TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	`
	if s.driver == DriverPostgres {
		schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		course_id TEXT NOT NULL,
		course_topic TEXT NOT NULL,
		module_summary TEXT NOT NULL DEFAULT '',
		mode TEXT NOT NULL,
		room_handle TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		persona_id TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT 'idle',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS certificates (
		certificate_id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		course_id TEXT NOT NULL,
		score INTEGER NOT NULL,
		max_score INTEGER NOT NULL,
		transcript_fingerprint TEXT NOT NULL,
		tier TEXT NOT NULL,
		issued_at TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		ledger_ref TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS enrollments (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		course_id TEXT NOT NULL,
		current_module_index INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		enrolled_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ledger_events (
		id BIGSERIAL PRIMARY KEY,
		certificate_id TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		ledger_ref TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL
	);
	`
	}
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// rebind converts ?-style placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, fmt.Sprintf("$%d", n)...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}
