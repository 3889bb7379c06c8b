// Package application assembles the import stack from configuration.
//
// Both the HTTP server and the command line tool build the same graph:
// schema registry, metrics, inference engine, pipeline, storage backend,
// transaction manager and import limiter.
package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/JonMunkholm/importer/internal/config"
	"github.com/JonMunkholm/importer/internal/importer"
	"github.com/JonMunkholm/importer/internal/infer"
	"github.com/JonMunkholm/importer/internal/metrics"
	"github.com/JonMunkholm/importer/internal/pipeline"
	"github.com/JonMunkholm/importer/internal/schema"
	"github.com/JonMunkholm/importer/internal/storage"
	_ "github.com/JonMunkholm/importer/internal/storage/all" // Register all backends
)

// App is the assembled import stack.
type App struct {
	Config   *config.Config
	Registry *schema.Registry
	Prom     *prometheus.Registry
	Metrics  *metrics.Collectors
	Pipeline *pipeline.Pipeline
	Manager  *importer.Manager
	Limiter  *importer.Limiter
	Rules    *pipeline.RuleFile // nil without IMPORT_RULES_FILE

	closeStorage func()
}

// New builds the stack and opens the configured storage backend.
// Close releases the storage connections.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		Config:   cfg,
		Registry: schema.DefaultRegistry(),
		Prom:     prometheus.NewRegistry(),
	}
	a.Prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Prom)

	if cfg.Import.RulesFile != "" {
		rules, err := pipeline.LoadRulesFile(cfg.Import.RulesFile)
		if err != nil {
			return nil, err
		}
		a.Rules = rules
		slog.Info("validation rules loaded",
			"file", cfg.Import.RulesFile,
			"rules", len(rules.Rules),
			"mappings", len(rules.Mappings),
		)
	}

	if cfg.Import.MaxFileSize > 0 {
		pipeline.MaxFileSize = cfg.Import.MaxFileSize
	}
	engine := infer.New(infer.Options{
		SampleSize:    cfg.Import.SampleSize,
		EnumThreshold: cfg.Import.EnumThreshold,
		MinConfidence: cfg.Import.MinConfidence,
	})
	a.Pipeline = pipeline.New(a.Registry, pipeline.WithEngine(engine), pipeline.WithMetrics(a.Metrics))

	repos, closeStorage, err := storage.Open(ctx, storage.Config{
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.DSN,
		MaxConns: cfg.Database.MaxConns,
	}, a.Registry)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.closeStorage = closeStorage
	slog.Info("storage opened", "driver", cfg.Database.Driver, "entities", a.Registry.Count())

	a.Manager = importer.NewManager(a.Registry, repos, importer.WithMetrics(a.Metrics))
	a.Limiter = importer.NewLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime, a.Metrics)
	return a, nil
}

// Options returns the pipeline options the configuration implies, with the
// rule file applied.
func (a *App) Options() pipeline.Options {
	opts := pipeline.Options{
		MaxErrors:  a.Config.Import.MaxErrors,
		BatchSize:  a.Config.Import.PipelineBatchSize,
		SampleSize: a.Config.Import.SampleSize,
	}
	if a.Rules != nil {
		a.Rules.Apply(&opts)
	}
	return opts
}

// Cleanup returns the transaction eviction settings.
func (a *App) Cleanup() importer.CleanupConfig {
	return importer.CleanupConfig{
		Retention:     a.Config.Import.Retention,
		CheckInterval: a.Config.Import.CleanupInterval,
	}
}

// Close releases the storage backend.
func (a *App) Close() {
	if a.closeStorage != nil {
		a.closeStorage()
	}
}
