package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

// Dedup index backends. "postgres" replays the dedicated hash log,
// "scan" re-derives the index from content hashes already stored in Weaviate.
const (
	DedupBackendPostgres = "postgres"
	DedupBackendScan     = "scan"
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"quarry"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"quarry"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`

	// NSQD_HOST enables publishing run reports; empty disables it.
	NSQDHost string `envconfig:"NSQD_HOST"`

	SourceDir     string `envconfig:"SOURCE_DIR" default:"data/sources"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`
	DedupBackend  string `envconfig:"DEDUP_BACKEND" default:"postgres"`

	MaxChunkChars        int `envconfig:"MAX_CHUNK_CHARS" default:"4000"`
	OverlapChars         int `envconfig:"OVERLAP_CHARS" default:"200"`
	IngestionConcurrency int `envconfig:"INGESTION_CONCURRENCY" default:"4"`

	RetryMaxAttempts int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay   time.Duration `envconfig:"RETRY_BASE_DELAY" default:"500ms"`
	EmbedTimeout     time.Duration `envconfig:"EMBED_TIMEOUT" default:"60s"`
	StoreTimeout     time.Duration `envconfig:"STORE_TIMEOUT" default:"30s"`

	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Try loading .env from current dir and repo root.
	// Ignore errors, as env vars might be set in the shell.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.WeaviateHost == "" {
		return fmt.Errorf("%w: WEAVIATE_HOST", ErrMissingRequired)
	}
	if c.MaxChunkChars <= 0 {
		return fmt.Errorf("%w: MAX_CHUNK_CHARS must be positive", ErrInvalidValue)
	}
	if c.OverlapChars < 0 || c.OverlapChars >= c.MaxChunkChars {
		return fmt.Errorf("%w: OVERLAP_CHARS must be in [0, MAX_CHUNK_CHARS)", ErrInvalidValue)
	}
	if c.IngestionConcurrency < 1 {
		return fmt.Errorf("%w: INGESTION_CONCURRENCY must be at least 1", ErrInvalidValue)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("%w: RETRY_MAX_ATTEMPTS must be at least 1", ErrInvalidValue)
	}
	switch c.DedupBackend {
	case DedupBackendPostgres, DedupBackendScan:
	default:
		return fmt.Errorf("%w: DEDUP_BACKEND %q", ErrInvalidValue, c.DedupBackend)
	}
	if c.DedupBackend == DedupBackendPostgres {
		if c.DBHost == "" {
			return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
		}
		if c.DBUser == "" {
			return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
		}
		if c.DBName == "" {
			return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
		}
	}
	return nil
}
