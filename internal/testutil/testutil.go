// Package testutil provides testing utilities for integration tests.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/riptide/riptide/internal/database"
)

// TestDB wraps a migrated temp-dir database connection.
type TestDB struct {
	DB     *database.DB
	Conn   *sql.DB
	Logger zerolog.Logger
}

// NewTestDB creates a migrated sqlite database in a temp directory. The
// database is closed and the directory removed when the test ends.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := database.New(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return &TestDB{
		DB:     db,
		Conn:   db.Conn(),
		Logger: NewTestLogger(t),
	}
}

// NewTestLogger creates a test logger that outputs to t.Log.
func NewTestLogger(t *testing.T) zerolog.Logger {
	t.Helper()
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
}

// NopLogger returns a no-op logger for tests that don't need output.
func NopLogger() zerolog.Logger {
	return zerolog.Nop()
}

// IntPtr returns a pointer to an int.
func IntPtr(i int) *int {
	return &i
}
