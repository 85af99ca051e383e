package main

import (
	"fmt"
	"os"

	"github.com/google/cel-go/cel"
	"github.com/spf13/cobra"

	"github.com/asakaida/kankei/internal/schemafile"
	"github.com/asakaida/kankei/internal/services"
	"github.com/asakaida/kankei/internal/services/relations"
	"github.com/asakaida/kankei/pkg/cache/memorycache"
)

var (
	envFlag    string
	schemaFlag string
)

var rootCmd = &cobra.Command{
	Use:   "kankei",
	Short: "Relationship engine tooling",
	Long: `kankei loads record classes and their relationship declarations from a
YAML schema document, validates them, and resolves relationships of stored
records against PostgreSQL or SQLite.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFlag, "env", "e", "dev", "Environment to use (dev, test, prod)")
	rootCmd.PersistentFlags().StringVarP(&schemaFlag, "schema", "s", "", "Schema document (defaults to SCHEMA_FILE)")

	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newResolveCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadSchema parses the schema document and registers its classes.
// Expression conditions are compiled at registration, sharing one program cache.
func loadSchema(path string, programCacheSize int) (*services.SchemaService, *relations.ConditionEngine, error) {
	if path == "" {
		return nil, nil, fmt.Errorf("no schema document given (use --schema or SCHEMA_FILE)")
	}

	doc, err := schemafile.Load(path)
	if err != nil {
		return nil, nil, err
	}

	programs := memorycache.New[string, cel.Program](&memorycache.Config{
		MaxEntries:    programCacheSize,
		EnableMetrics: true,
	})
	conditions, err := relations.NewConditionEngine(programs)
	if err != nil {
		return nil, nil, err
	}

	schema := services.NewSchemaService(conditions)
	if err := schema.LoadDocument(doc.Classes); err != nil {
		return nil, nil, fmt.Errorf("failed to load schema %s: %w", path, err)
	}
	return schema, conditions, nil
}
