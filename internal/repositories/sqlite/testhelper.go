package sqlite

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/asakaida/kankei/internal/infrastructure/config"
	"github.com/asakaida/kankei/internal/infrastructure/database"
	"github.com/asakaida/kankei/internal/repositories/repotest"
)

// SetupTestDB opens a migrated SQLite database file with the sample tables
// in a temporary directory. The database is closed when the test ends.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.NewSQLite(&config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "kankei_test.db"),
	})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close database: %v", err)
		}
	})

	if err := db.RunMigrations(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	if _, err := db.DB.Exec(repotest.SQLiteTables); err != nil {
		t.Fatalf("Failed to create sample tables: %v", err)
	}

	return db.DB
}
