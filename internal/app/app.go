package app

import (
	"context"
	"fmt"
	"log/slog"

	"quarry/ingest/internal/adapter/gemini"
	"quarry/ingest/internal/config"
	"quarry/ingest/internal/dedup"
	"quarry/ingest/internal/pipeline"
	"quarry/ingest/internal/record"
	"quarry/ingest/internal/report"
	"quarry/ingest/internal/retry"
)

// App wires the ingestion pipeline to its collaborators. Construction is
// separated from Bootstrap so tests can inject fakes.
type App struct {
	cfg      *config.Config
	embedder pipeline.Embedder
	store    pipeline.Store
	index    dedup.Index
	reporter *report.Reporter
	logger   *slog.Logger
}

// Options selects what one run ingests.
type Options struct {
	// Types restricts ingestion to the given source types; empty means all.
	Types []record.SourceType
	// File overrides directory discovery with a single source file.
	File string
	// DryRun runs everything except the final upsert and index write.
	DryRun bool
}

func New(cfg *config.Config, embedder pipeline.Embedder, store pipeline.Store, index dedup.Index, reporter *report.Reporter, logger *slog.Logger) *App {
	return &App{
		cfg:      cfg,
		embedder: embedder,
		store:    store,
		index:    index,
		reporter: reporter,
		logger:   logger,
	}
}

// NewFromBootstrap assembles the App from bootstrapped dependencies.
func NewFromBootstrap(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*App, error) {
	embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return nil, fmt.Errorf("gemini client error: %w", err)
	}

	var pub report.Publisher
	if deps.NSQProducer != nil {
		pub = deps.NSQProducer
	}

	return New(cfg, embedder, deps.VectorStore, deps.DedupIndex, report.New(pub, logger), logger), nil
}

// Ingest runs one ingestion batch and returns its summary. Record-level
// failures are counted inside the summary; the returned error covers only
// conditions that prevent the run from starting.
func (a *App) Ingest(ctx context.Context, opts Options) (*pipeline.Summary, error) {
	paths, err := a.sourcePaths(opts)
	if err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "ingestion run starting",
		"files", len(paths), "dry_run", opts.DryRun, "concurrency", a.cfg.IngestionConcurrency)

	p := pipeline.New(a.embedder, a.store, a.index,
		retry.NewPolicy(a.cfg.RetryMaxAttempts, a.cfg.RetryBaseDelay),
		a.logger,
		pipeline.Options{
			MaxChunkChars: a.cfg.MaxChunkChars,
			OverlapChars:  a.cfg.OverlapChars,
			Concurrency:   a.cfg.IngestionConcurrency,
			EmbedTimeout:  a.cfg.EmbedTimeout,
			StoreTimeout:  a.cfg.StoreTimeout,
			DryRun:        opts.DryRun,
		})

	summary := p.Run(ctx, paths)

	a.logger.InfoContext(ctx, "ingestion run finished",
		"files", summary.Files,
		"records", summary.Records,
		"processed", summary.Processed,
		"stored", summary.Stored,
		"duplicates", summary.Duplicates,
		"errors", summary.Errors,
		"elapsed", summary.Elapsed.String())

	a.reporter.Publish(ctx, summary)
	return summary, nil
}

func (a *App) sourcePaths(opts Options) ([]string, error) {
	if opts.File != "" {
		return []string{opts.File}, nil
	}

	paths, err := record.Discover(a.cfg.SourceDir, opts.Types)
	if err != nil {
		return nil, fmt.Errorf("source discovery error: %w", err)
	}
	return paths, nil
}
