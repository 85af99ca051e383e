package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/asakaida/kankei/internal/entities"
	"github.com/asakaida/kankei/internal/infrastructure/config"
	"github.com/asakaida/kankei/internal/infrastructure/database"
	"github.com/asakaida/kankei/internal/infrastructure/logging"
	"github.com/asakaida/kankei/internal/infrastructure/metrics"
	"github.com/asakaida/kankei/internal/infrastructure/tracing"
	"github.com/asakaida/kankei/internal/repositories/postgres"
	"github.com/asakaida/kankei/internal/repositories/sqlite"
	"github.com/asakaida/kankei/internal/repositories/sqlstore"
	"github.com/asakaida/kankei/internal/services/relations"
)

type resolveOptions struct {
	migrate       bool
	repeat        int
	traceEndpoint string
}

func newResolveCmd() *cobra.Command {
	opts := &resolveOptions{}
	cmd := &cobra.Command{
		Use:   "resolve <class> <id> <relationship>",
		Short: "Resolve a relationship of a stored record",
		Long: `Load a record by class and ID from the configured database and print
the value of one of its relationships.

With --repeat the record is reloaded and resolved several times, which together
with METRICS_ENABLED exposes the engine metrics for scraping while it runs.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd.Context(), cmd.OutOrStdout(), opts, args[0], args[1], args[2])
		},
	}
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "Apply pending migrations before resolving")
	cmd.Flags().IntVar(&opts.repeat, "repeat", 1, "Number of times to resolve the relationship")
	cmd.Flags().StringVar(&opts.traceEndpoint, "trace-endpoint", "", "OTLP/HTTP endpoint receiving engine spans (host:port)")
	return cmd
}

func runResolve(ctx context.Context, w io.Writer, opts *resolveOptions, className, rawID, relationship string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := config.InitConfig(envFlag); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() {
		// Syncing a console logger fails with EINVAL on some platforms
		if err := logger.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTTY) {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	schemaPath := schemaFlag
	if schemaPath == "" {
		schemaPath = cfg.Engine.SchemaFile
	}
	schema, conditions, err := loadSchema(schemaPath, cfg.Engine.ProgramCacheSize)
	if err != nil {
		return err
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if opts.migrate {
		if err := db.RunMigrations(); err != nil {
			return err
		}
	}

	var store *sqlstore.Store
	switch db.Driver {
	case config.DriverSQLite:
		store = sqlite.NewStore(db.DB, schema)
	default:
		store = postgres.NewStore(db.DB, schema)
	}

	collector := metrics.NewCollector()
	collector.SetConditionCache(conditions)
	if cfg.Metrics.Enabled {
		stop := serveMetrics(logger, collector, cfg.Metrics.Port)
		defer stop()
	}

	engineOpts := []relations.Option{
		relations.WithLogger(logger),
		relations.WithMetrics(collector),
		relations.WithConditionEngine(conditions),
	}
	if opts.traceEndpoint != "" {
		provider, err := tracing.Init(ctx, "kankei", opts.traceEndpoint)
		if err != nil {
			return err
		}
		defer shutdown(logger, "tracer provider", provider)
		engineOpts = append(engineOpts, relations.WithTracer(provider.Tracer(relations.TracerName)))
	}

	engine, err := relations.NewEngine(schema, store, store, engineOpts...)
	if err != nil {
		return err
	}

	var related entities.Related
	for i := 0; i < max(opts.repeat, 1); i++ {
		owner, err := store.GetByID(ctx, className, parseID(rawID))
		if err != nil {
			return err
		}
		if owner == nil {
			return fmt.Errorf("%s %s not found", className, rawID)
		}
		if related, err = engine.Get(ctx, owner, relationship); err != nil {
			return err
		}
	}

	stats := collector.GetEngineMetrics()
	logger.Info("resolved relationship",
		zap.String("class", className),
		zap.String("id", rawID),
		zap.String("relationship", relationship),
		zap.Any("resolutions", stats.Resolutions),
		zap.Any("cache_hits", stats.CacheHits),
		zap.Any("cache_misses", stats.CacheMisses),
	)
	return printRelated(w, related)
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdown stops s, logging a failure instead of returning it
func shutdown(logger *zap.Logger, what string, s shutdowner) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		logger.Error("failed to shut down "+what, zap.Error(err))
	}
}

// parseID keeps numeric IDs numeric
func parseID(raw string) interface{} {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	return raw
}

// serveMetrics exposes the collector on /metrics until the returned function is called
func serveMetrics(logger *zap.Logger, collector *metrics.Collector, port int) func() {
	reg := prometheus.NewRegistry()
	exporter := metrics.NewPrometheusExporter(collector, reg)
	collector.SetExporter(exporter)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		// Gauges are sampled on scrape
		exporter.Update()
		handler.ServeHTTP(w, r)
	})
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		exporter.Update()
		shutdown(logger, "metrics server", srv)
	}
}

type relatedView struct {
	Record  map[string]interface{}   `yaml:"record,omitempty"`
	Records []map[string]interface{} `yaml:"records,omitempty"`
	Keys    []string                 `yaml:"keys,omitempty"`
}

func printRelated(w io.Writer, related entities.Related) error {
	view := relatedView{}
	switch {
	case related.Record != nil:
		view.Record = related.Record.Fields()
	case related.Index != nil:
		view.Keys = related.Keys
		for _, key := range related.Keys {
			view.Records = append(view.Records, related.Index[key].Fields())
		}
	default:
		for _, rec := range related.Records {
			view.Records = append(view.Records, rec.Fields())
		}
	}

	out, err := yaml.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to render result: %w", err)
	}
	_, err = w.Write(out)
	return err
}
