package dedup

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresLog is the dedicated append-only hash log. Re-ingesting the same
// sources across runs never grows the vector store because the log survives
// process restarts.
type PostgresLog struct {
	db *sql.DB
}

func NewPostgresLog(db *sql.DB) *PostgresLog {
	return &PostgresLog{db: db}
}

func (l *PostgresLog) LoadAll(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT content_hash FROM chunk_hashes`)
	if err != nil {
		return nil, fmt.Errorf("load hash log: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

func (l *PostgresLog) Append(ctx context.Context, hash string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO chunk_hashes (content_hash) VALUES ($1) ON CONFLICT (content_hash) DO NOTHING`, hash)
	return err
}

// PersistentIndex answers lookups from an in-memory set loaded once at
// startup and writes every accepted hash through to the log.
type PersistentIndex struct {
	mem *MemoryIndex
	log *PostgresLog
}

// NewPersistentIndex replays the hash log into memory. Called once per run.
func NewPersistentIndex(ctx context.Context, log *PostgresLog) (*PersistentIndex, error) {
	hashes, err := log.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	mem := NewMemoryIndex()
	mem.Preload(hashes)
	return &PersistentIndex{mem: mem, log: log}, nil
}

func (p *PersistentIndex) Contains(ctx context.Context, hash string) (bool, error) {
	return p.mem.Contains(ctx, hash)
}

func (p *PersistentIndex) Record(ctx context.Context, hash string) error {
	if err := p.log.Append(ctx, hash); err != nil {
		return err
	}
	return p.mem.Record(ctx, hash)
}

func (p *PersistentIndex) Len() int {
	return p.mem.Len()
}
