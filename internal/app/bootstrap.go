package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	wstore "quarry/ingest/internal/adapter/weaviate"
	"quarry/ingest/internal/config"
	"quarry/ingest/internal/dedup"
	"quarry/ingest/internal/retry"
	"quarry/ingest/internal/vector"
)

// Dependencies holds everything the ingestion run needs that touches the
// outside world. Bootstrap failures are fatal; a run never starts half-wired.
type Dependencies struct {
	DB          *sql.DB
	VectorStore *wstore.Store
	DedupIndex  dedup.Index
	NSQProducer *nsq.Producer
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{}
	policy := retry.NewPolicy(cfg.BootstrapRetryAttempts,
		time.Duration(cfg.BootstrapRetryDelaySeconds)*time.Second)

	// Postgres is only needed for the persistent dedup log.
	if cfg.DedupBackend == config.DedupBackendPostgres {
		db, err := openDB(ctx, cfg, policy)
		if err != nil {
			return nil, err
		}
		deps.DB = db

		if err := runMigrations(db, cfg.MigrationPath); err != nil {
			return nil, err
		}
	}

	wCfg := weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme}
	wClient, err := weaviate.NewClient(wCfg)
	if err != nil {
		return nil, fmt.Errorf("weaviate client error: %w", err)
	}

	adapter := vector.NewClientAdapter(wClient)
	if err := ensureSchemaWithRetry(ctx, adapter, policy); err != nil {
		return nil, fmt.Errorf("weaviate schema error: %w", err)
	}
	deps.VectorStore = wstore.NewStore(wClient)

	index, err := buildDedupIndex(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}
	deps.DedupIndex = index

	// Reporting is optional; no NSQD_HOST means no producer.
	if cfg.NSQDHost != "" {
		producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
		if err != nil {
			return nil, fmt.Errorf("nsq producer error: %w", err)
		}
		deps.NSQProducer = producer
	}

	return deps, nil
}

func openDB(ctx context.Context, cfg *config.Config, policy retry.Policy) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	err = policy.Do(ctx, func() error {
		if err := db.Ping(); err != nil {
			slog.Warn("failed to ping db, retrying...", "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return db, nil
}

func runMigrations(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up error: %w", err)
	}
	return nil
}

// buildDedupIndex picks the dedup backend: the Postgres append-only log, or a
// one-shot scan of content hashes already in Weaviate.
func buildDedupIndex(ctx context.Context, cfg *config.Config, deps *Dependencies) (dedup.Index, error) {
	switch cfg.DedupBackend {
	case config.DedupBackendPostgres:
		index, err := dedup.NewPersistentIndex(ctx, dedup.NewPostgresLog(deps.DB))
		if err != nil {
			return nil, fmt.Errorf("dedup index error: %w", err)
		}
		slog.Info("dedup index loaded from postgres", "hashes", index.Len())
		return index, nil

	case config.DedupBackendScan:
		hashes, err := deps.VectorStore.ScanContentHashes(ctx, 1000)
		if err != nil {
			return nil, fmt.Errorf("dedup scan error: %w", err)
		}
		index := dedup.NewMemoryIndex()
		index.Preload(hashes)
		slog.Info("dedup index derived from weaviate scan", "hashes", index.Len())
		return index, nil
	}

	return nil, fmt.Errorf("%w: DEDUP_BACKEND %q", config.ErrInvalidValue, cfg.DedupBackend)
}

// schemaClient is what pre-flight needs from the vector store: a readiness
// probe plus schema management.
type schemaClient interface {
	vector.SchemaClient
	Ready(ctx context.Context) error
}

func ensureSchemaWithRetry(ctx context.Context, client schemaClient, policy retry.Policy) error {
	return policy.Do(ctx, func() error {
		if err := client.Ready(ctx); err != nil {
			slog.Warn("weaviate not ready, retrying...", "error", err)
			return err
		}
		return vector.EnsureSchema(ctx, client)
	})
}
