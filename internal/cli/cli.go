package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"quarry/ingest/internal/app"
	"quarry/ingest/internal/config"
	"quarry/ingest/internal/logger"
	"quarry/ingest/internal/record"
)

const summaryPrecision = time.Millisecond

// RootCmd builds the quarry command tree.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "quarry",
		Short: "Quarry knowledge ingestion",
		Long:  "Quarry ingests scraped knowledge records into a deduplicated, searchable vector store",
	}

	root.AddCommand(IngestCmd())
	return root
}

// IngestCmd returns the ingest command.
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion batch",
		Long:  "Discover source files, chunk and embed their records, and store the surviving chunks",
		RunE:  runIngest,
	}

	cmd.Flags().StringP("dir", "d", "", "Source directory override")
	cmd.Flags().StringArrayP("type", "t", nil, "Restrict to source types (repeatable)")
	cmd.Flags().StringP("file", "f", "", "Ingest a single source file")
	cmd.Flags().Bool("dry-run", false, "Run everything except storing chunks")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	ctx := logger.WithCorrelationID(cmd.Context(), logger.NewCorrelationID())

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.SourceDir = dir
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	types, err := sourceTypes(cmd)
	if err != nil {
		return err
	}
	file, _ := cmd.Flags().GetString("file")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	deps, err := bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDeps(deps)

	a, err := app.NewFromBootstrap(ctx, cfg, deps, log)
	if err != nil {
		return err
	}

	summary, err := a.Ingest(ctx, app.Options{Types: types, File: file, DryRun: dryRun})
	if err != nil {
		return err
	}

	// A completed run exits zero even when some records failed; the
	// summary carries the error count.
	fmt.Fprintf(cmd.OutOrStdout(),
		"ingested %d files: %d records, %d chunks stored, %d duplicates, %d errors (%s)\n",
		summary.Files, summary.Records, summary.Stored, summary.Duplicates,
		summary.Errors, summary.Elapsed.Round(summaryPrecision))
	return nil
}

// bootstrap is swapped in tests.
var bootstrap = func(ctx context.Context, cfg *config.Config) (*app.Dependencies, error) {
	return app.Bootstrap(ctx, cfg)
}

func closeDeps(deps *app.Dependencies) {
	if deps.DB != nil {
		if err := deps.DB.Close(); err != nil {
			slog.Warn("failed to close db", "error", err)
		}
	}
	if deps.NSQProducer != nil {
		deps.NSQProducer.Stop()
	}
}

func sourceTypes(cmd *cobra.Command) ([]record.SourceType, error) {
	raw, _ := cmd.Flags().GetStringArray("type")
	types := make([]record.SourceType, 0, len(raw))
	for _, s := range raw {
		st := record.SourceType(s)
		if !st.Valid() {
			return nil, fmt.Errorf("%w: --type %q", record.ErrUnknownSourceType, s)
		}
		types = append(types, st)
	}
	return types, nil
}
