package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteDSN turns a file path (or ":memory:") into a modernc.org/sqlite DSN
// with WAL journaling and a busy timeout. Values that already look like a
// DSN are returned unchanged.
func SQLiteDSN(path string) string {
	switch {
	case path == ":memory:", strings.HasPrefix(path, "file:"):
		return path
	default:
		return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
}

// OpenSQLite opens the database at path with a single connection, which
// serializes every transaction and keeps an in-memory database alive for
// the lifetime of the handle.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	sqlDB, err := sql.Open("sqlite", SQLiteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return sqlDB, nil
}
