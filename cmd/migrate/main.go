package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/asakaida/kankei/internal/infrastructure/config"
	"github.com/asakaida/kankei/internal/infrastructure/database"
	"github.com/asakaida/kankei/internal/infrastructure/logging"
)

var (
	envFlag string
	db      *database.Database
	logger  = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tool for Kankei",
	Long: `Database migration tool for Kankei.
Manages the engine tables (revisions, handles) on PostgreSQL or SQLite
using golang-migrate with the migrations embedded in the binary.`,
	PersistentPreRunE: setupDatabase,
	PersistentPostRun: closeDatabase,
	SilenceUsage:      true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Long:  `Apply all pending migrations to the database.`,
	RunE:  runUp,
}

var downCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Rollback migrations",
	Long:  `Rollback the specified number of migrations (default: 1).`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDown,
}

var gotoCmd = &cobra.Command{
	Use:   "goto <version>",
	Short: "Migrate to a specific version",
	Long:  `Migrate to a specific version number.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runGoto,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show current migration version",
	Long:  `Display the current migration version of the database.`,
	RunE:  runVersion,
}

var forceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Force set migration version (use with caution)",
	Long:  `Force set the migration version without running migrations. Use with caution.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runForce,
}

func init() {
	// Add global --env flag to all commands
	rootCmd.PersistentFlags().StringVarP(&envFlag, "env", "e", "dev", "Environment to use (dev, test, prod)")

	// Add subcommands
	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(gotoCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(forceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("migration command failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func setupDatabase(cmd *cobra.Command, args []string) error {
	// Initialize configuration from .env.{env} file
	if err := config.InitConfig(envFlag); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger = logging.Must(cfg.Log)
	logger.Info("using environment", zap.String("env", envFlag), zap.String("driver", cfg.Database.Driver))

	// Connect to database
	db, err = database.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Database.Driver == config.DriverSQLite {
		logger.Info("connected to database", zap.String("path", cfg.Database.Path))
	} else {
		logger.Info("connected to database",
			zap.String("user", cfg.Database.User),
			zap.String("host", cfg.Database.Host),
			zap.Int("port", cfg.Database.Port),
			zap.String("database", cfg.Database.Database))
	}
	return nil
}

// closeDatabase releases the connection when a command did not hand it to a migrator
func closeDatabase(cmd *cobra.Command, args []string) {
	if db != nil {
		_ = db.Close()
	}
}

// withMigrate runs fn with a migrator. Closing the migrator closes the connection too.
func withMigrate(fn func(m *migrate.Migrate) error) error {
	m, err := db.NewMigrate()
	if err != nil {
		return err
	}
	defer func() {
		m.Close()
		db = nil
	}()
	return fn(m)
}

func runUp(cmd *cobra.Command, args []string) error {
	return withMigrate(func(m *migrate.Migrate) error {
		err := m.Up()
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			logger.Info("no migrations to apply")
		case err != nil:
			return fmt.Errorf("migration up failed: %w", err)
		default:
			logger.Info("migration up completed successfully")
		}
		return nil
	})
}

func runDown(cmd *cobra.Command, args []string) error {
	steps := 1 // Default: rollback 1 migration
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid number of steps: %q", args[0])
		}
		steps = n
	}

	return withMigrate(func(m *migrate.Migrate) error {
		err := m.Steps(-steps)
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			logger.Info("no migrations to rollback")
		case err != nil:
			return fmt.Errorf("migration down failed: %w", err)
		default:
			logger.Info("migration down completed successfully", zap.Int("steps", steps))
		}
		return nil
	})
}

func runGoto(cmd *cobra.Command, args []string) error {
	version, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid version: %q", args[0])
	}

	return withMigrate(func(m *migrate.Migrate) error {
		err := m.Migrate(uint(version))
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			logger.Info("already at version", zap.Uint64("version", version))
		case err != nil:
			return fmt.Errorf("migration goto failed: %w", err)
		default:
			logger.Info("migration goto completed successfully", zap.Uint64("version", version))
		}
		return nil
	})
}

func runVersion(cmd *cobra.Command, args []string) error {
	return withMigrate(func(m *migrate.Migrate) error {
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("no migrations applied yet")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}

		if dirty {
			logger.Warn("current version is dirty, a migration may have failed", zap.Uint("version", version))
		} else {
			logger.Info("current version", zap.Uint("version", version))
		}
		return nil
	})
}

func runForce(cmd *cobra.Command, args []string) error {
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version: %q", args[0])
	}

	return withMigrate(func(m *migrate.Migrate) error {
		if err := m.Force(version); err != nil {
			return fmt.Errorf("migration force failed: %w", err)
		}
		logger.Info("migration forced", zap.Int("version", version))
		return nil
	})
}
