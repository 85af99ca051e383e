package postgres

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/asakaida/kankei/internal/infrastructure/config"
	"github.com/asakaida/kankei/internal/infrastructure/database"
	"github.com/asakaida/kankei/internal/repositories/repotest"
)

// SetupTestDB connects to the test database, runs migrations and creates the
// sample tables. The test is skipped when no database is reachable.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Initialize test config
	if err := config.InitConfig("test"); err != nil {
		t.Fatalf("Failed to init config: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Skipf("Skipping PostgreSQL tests: %v", err)
	}
	if cfg.Database.Driver != config.DriverPostgres {
		t.Skipf("Skipping PostgreSQL tests: DB_DRIVER is %s", cfg.Database.Driver)
	}

	// Connect to database
	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		t.Skipf("Skipping PostgreSQL tests: %v", err)
	}

	// Run migrations
	if err := pg.RunMigrations(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	if _, err := pg.DB.Exec(repotest.PostgresTables); err != nil {
		t.Fatalf("Failed to create sample tables: %v", err)
	}

	return pg.DB
}

// TruncateTestDB removes every row written by the tests
func TruncateTestDB(t *testing.T, db *sql.DB) {
	t.Helper()

	for _, table := range repotest.TableNames {
		_, err := db.Exec(fmt.Sprintf("DELETE FROM %s", Dialect{}.QuoteIdentifier(table)))
		if err != nil {
			t.Logf("Warning: Failed to clean up table %s: %v", table, err)
		}
	}
}

// CleanupTestDB cleans up test data and closes the database connection
func CleanupTestDB(t *testing.T, db *sql.DB) {
	t.Helper()

	TruncateTestDB(t, db)

	if err := db.Close(); err != nil {
		t.Logf("Warning: Failed to close database: %v", err)
	}
}
