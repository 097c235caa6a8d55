// Package dbtest opens throwaway SQLite databases for store tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"LIBRA-backend/internal/platform/config"
	"LIBRA-backend/internal/platform/db"
)

func Open(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Connect(config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.Migrate(context.Background(), conn, config.DriverSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}
