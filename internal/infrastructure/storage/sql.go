package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects placeholder syntax for the SQL stores.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// timeLayout keeps stored timestamps lexically ordered.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS history_entries (
		history_key      TEXT PRIMARY KEY,
		source_id        TEXT NOT NULL,
		ref              TEXT NOT NULL,
		content_hash     TEXT NOT NULL,
		fingerprint      TEXT NOT NULL,
		predecessor_hash TEXT NOT NULL DEFAULT '',
		revision         INTEGER NOT NULL,
		status           TEXT NOT NULL,
		document         TEXT NOT NULL,
		last_seen_at     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS history_entries_fingerprint ON history_entries (fingerprint)`,
	`CREATE TABLE IF NOT EXISTS history_revisions (
		history_key      TEXT NOT NULL,
		revision         INTEGER NOT NULL,
		content_hash     TEXT NOT NULL,
		fingerprint      TEXT NOT NULL,
		predecessor_hash TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL,
		document         TEXT NOT NULL,
		last_seen_at     TEXT NOT NULL,
		PRIMARY KEY (history_key, revision)
	)`,
	`CREATE TABLE IF NOT EXISTS assessments (
		id           TEXT PRIMARY KEY,
		history_key  TEXT NOT NULL,
		revision     INTEGER NOT NULL,
		content_hash TEXT NOT NULL,
		source_id    TEXT NOT NULL,
		risk_tier    TEXT NOT NULL,
		risk_rank    INTEGER NOT NULL,
		impact_areas TEXT NOT NULL,
		created_at   TEXT NOT NULL,
		payload      TEXT NOT NULL,
		UNIQUE (history_key, revision)
	)`,
	`CREATE INDEX IF NOT EXISTS assessments_created_at ON assessments (created_at)`,
}

// Open connects to driver ("postgres" or "sqlite") and returns the matching dialect.
func Open(driver, dsn string) (*sql.DB, Dialect, error) {
	var dialect Dialect
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql":
		dialect = DialectPostgres
	case "sqlite", "sqlite3":
		dialect = DialectSQLite
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// database/sql pools connections; sqlite needs a single writer.
		db.SetMaxOpenConns(1)
	}
	return db, dialect, nil
}

// Migrate creates the tables used by the SQL stores.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func builderFor(d Dialect) sq.StatementBuilderType {
	if d == DialectPostgres {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func closeRows(rows *sql.Rows, err error) error {
	if rowsErr := rows.Err(); rowsErr != nil && err == nil {
		err = fmt.Errorf("rows iteration: %w", rowsErr)
	}
	if closeErr := rows.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("close rows: %w", closeErr)
	}
	return err
}
