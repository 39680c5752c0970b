package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	weaviateadapter "quarry/ingest/internal/adapter/weaviate"
	"quarry/ingest/internal/dedup"
	"quarry/ingest/internal/enrich"
	"quarry/ingest/internal/record"
	"quarry/ingest/internal/retry"
	"quarry/ingest/internal/text"
)

var (
	// ErrEmbed marks a chunk-level embedding failure after retries.
	ErrEmbed = errors.New("embedding failed")
	// ErrStore marks a chunk-level vector store failure after retries.
	ErrStore = errors.New("vector store write failed")
)

// Embedder turns chunk text into a vector.
type Embedder interface {
	Embed(ctx context.Context, content string) ([]float32, error)
}

// Store persists embedded chunks.
type Store interface {
	UpsertChunk(ctx context.Context, chunk weaviateadapter.StoredChunk) error
}

// Summary is the outcome of one ingestion run. It is always produced, even
// when every record fails.
type Summary struct {
	Files       int            `json:"files"`
	Records     int            `json:"records"`
	Processed   int            `json:"processed"`
	Stored      int            `json:"stored"`
	Duplicates  int            `json:"duplicates"`
	Errors      int            `json:"errors"`
	PerCategory map[string]int `json:"per_category"`
	Elapsed     time.Duration  `json:"elapsed"`
	DryRun      bool           `json:"dry_run"`
}

// Options bounds a pipeline run.
type Options struct {
	MaxChunkChars int
	OverlapChars  int
	Concurrency   int
	EmbedTimeout  time.Duration
	StoreTimeout  time.Duration
	DryRun        bool
}

// Pipeline drives records from source files through normalization, chunking,
// deduplication, enrichment, embedding and storage. Source files are
// processed concurrently; records within a file sequentially.
type Pipeline struct {
	embedder Embedder
	store    Store
	index    dedup.Index
	policy   retry.Policy
	logger   *slog.Logger
	opts     Options

	// dedupMu serializes the check-and-claim against the index so two
	// workers never process the same content hash at once.
	dedupMu sync.Mutex
	// inFlight holds hashes claimed this run but not yet recorded.
	inFlight map[string]bool
}

func New(embedder Embedder, store Store, index dedup.Index, policy retry.Policy, logger *slog.Logger, opts Options) *Pipeline {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Pipeline{
		embedder: embedder,
		store:    store,
		index:    index,
		policy:   policy,
		logger:   logger,
		opts:     opts,
		inFlight: make(map[string]bool),
	}
}

// Run ingests the given source files and returns a summary. Record-level
// failures are logged and counted; they never abort the batch. Cancelling ctx
// stops scheduling new files, but documents already in flight finish.
func (p *Pipeline) Run(ctx context.Context, paths []string) *Summary {
	start := time.Now()
	summary := &Summary{PerCategory: make(map[string]int), DryRun: p.opts.DryRun}

	pool, err := ants.NewPool(p.opts.Concurrency)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to create worker pool", "error", err)
		summary.Errors = len(paths)
		summary.Elapsed = time.Since(start)
		return summary
	}
	defer pool.Release()

	var mu sync.Mutex
	var wg sync.WaitGroup

	scheduled := 0
	for _, path := range paths {
		if ctx.Err() != nil {
			p.logger.WarnContext(ctx, "run cancelled, skipping remaining files", "skipped", len(paths)-scheduled)
			break
		}
		scheduled++

		path := path
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			fs := p.processFile(ctx, path)

			mu.Lock()
			summary.Files++
			summary.Records += fs.Records
			summary.Processed += fs.Processed
			summary.Stored += fs.Stored
			summary.Duplicates += fs.Duplicates
			summary.Errors += fs.Errors
			for cat, n := range fs.PerCategory {
				summary.PerCategory[cat] += n
			}
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			summary.Errors++
			mu.Unlock()
			p.logger.ErrorContext(ctx, "failed to submit file to pool", "path", path, "error", submitErr)
		}
	}

	wg.Wait()
	summary.Elapsed = time.Since(start)
	return summary
}

// processFile handles one source file end to end and returns its partial
// summary. A file that cannot be loaded counts as one error.
func (p *Pipeline) processFile(ctx context.Context, path string) *Summary {
	fs := &Summary{PerCategory: make(map[string]int)}

	sf, err := record.LoadFile(path)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to load source file", "path", path, "error", err)
		fs.Errors++
		return fs
	}

	for _, raw := range sf.Records {
		fs.Records++
		if err := p.processRecord(ctx, raw, sf.Type, fs); err != nil {
			fs.Errors++
			p.logger.WarnContext(ctx, "record failed", "path", path, "source_type", sf.Type, "error", err)
			continue
		}
		fs.Processed++
	}

	return fs
}

// processRecord runs one record through the full state machine. The first
// chunk-level failure fails the whole record; chunks already stored stay
// stored, and the idempotent object IDs make a rerun converge.
func (p *Pipeline) processRecord(ctx context.Context, raw record.RawRecord, st record.SourceType, fs *Summary) error {
	doc, err := record.Normalize(raw, st)
	if err != nil {
		return err
	}

	drafts := text.Chunk(doc.RawText, p.opts.MaxChunkChars, p.opts.OverlapChars)
	if len(drafts) == 0 {
		return fmt.Errorf("%w: no text after normalization", record.ErrMalformed)
	}

	for _, draft := range drafts {
		if draft.Oversize {
			p.logger.WarnContext(ctx, "oversize chunk emitted unsplit",
				"source_id", doc.SourceID, "chunk_index", draft.Index, "chars", draft.CharCount)
		}

		hash := text.ContentHash(draft.Text)

		claimed, err := p.claim(ctx, hash)
		if err != nil {
			return fmt.Errorf("dedup check: %w", err)
		}
		if !claimed {
			fs.Duplicates++
			continue
		}

		if err := p.storeChunk(ctx, doc, draft, hash, len(drafts)); err != nil {
			p.release(hash)
			return err
		}

		if !p.opts.DryRun {
			if err := p.index.Record(ctx, hash); err != nil {
				// The chunk is stored; losing the index entry only costs a
				// redundant (idempotent) upsert next run.
				p.logger.WarnContext(ctx, "failed to record content hash", "hash", hash, "error", err)
			}
		}
		p.settle(hash)

		fs.Stored++
		fs.PerCategory[enrich.Category(doc.SourceType)]++
	}

	return nil
}

// storeChunk embeds and upserts one chunk, each call under its own timeout
// and the shared retry policy. In-flight chunks finish even when the run is
// cancelled.
func (p *Pipeline) storeChunk(ctx context.Context, doc *record.Document, draft text.Draft, hash string, total int) error {
	base := context.WithoutCancel(ctx)

	// Timeouts are scoped per attempt, not around the whole retry loop, so a
	// hanging call burns one attempt instead of the entire budget.
	var vec []float32
	err := p.policy.Do(base, func() error {
		attemptCtx, cancel := context.WithTimeout(base, p.opts.EmbedTimeout)
		defer cancel()
		var embedErr error
		vec, embedErr = p.embedder.Embed(attemptCtx, draft.Text)
		return embedErr
	})
	if err != nil {
		return fmt.Errorf("%w: chunk %d of %s: %v", ErrEmbed, draft.Index, doc.SourceID, err)
	}

	chunk := weaviateadapter.StoredChunk{
		Content: draft.Text,
		Vector:  vec,
		Payload: enrich.Enrich(doc, draft.Text, hash, draft.Index, total),
	}

	if p.opts.DryRun {
		p.logger.InfoContext(ctx, "dry run, would store chunk",
			"source_id", doc.SourceID, "chunk_index", draft.Index, "hash", hash)
		return nil
	}

	err = p.policy.Do(base, func() error {
		attemptCtx, cancel := context.WithTimeout(base, p.opts.StoreTimeout)
		defer cancel()
		return p.store.UpsertChunk(attemptCtx, chunk)
	})
	if err != nil {
		return fmt.Errorf("%w: chunk %d of %s: %v", ErrStore, draft.Index, doc.SourceID, err)
	}

	return nil
}

// claim atomically checks the index and reserves the hash for this worker.
// It returns false when the hash is already stored or already claimed by a
// concurrent worker.
func (p *Pipeline) claim(ctx context.Context, hash string) (bool, error) {
	p.dedupMu.Lock()
	defer p.dedupMu.Unlock()

	if p.inFlight[hash] {
		return false, nil
	}
	seen, err := p.index.Contains(ctx, hash)
	if err != nil {
		return false, err
	}
	if seen {
		return false, nil
	}
	p.inFlight[hash] = true
	return true, nil
}

// release returns a claimed hash after a failure so a later occurrence can
// try again.
func (p *Pipeline) release(hash string) {
	p.dedupMu.Lock()
	delete(p.inFlight, hash)
	p.dedupMu.Unlock()
}

// settle drops the claim once the chunk is stored. In a dry run the claim
// stays in the run-local set only, so a later real run stores the chunk.
func (p *Pipeline) settle(hash string) {
	if p.opts.DryRun {
		return
	}
	p.release(hash)
}
