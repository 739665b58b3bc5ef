package biz

import (
	"context"
	"sync"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	pkgerrors "github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/infra/pool"
	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/llm/resilience"
)

// IndexerConfig configures the ingest pipeline.
type IndexerConfig struct {
	// ChunkSize is the target chunk size in estimated tokens.
	ChunkSize int
	// ChunkOverlap is the overlap between consecutive chunks.
	ChunkOverlap int
	// EmbeddingDim is the expected embedding dimension.
	EmbeddingDim int
	// EmbedBatchSize is the number of chunks embedded per provider call.
	EmbedBatchSize int
	// Retry configures embedding retries; nil uses defaults.
	Retry *resilience.RetryConfig
}

// IngestResult reports a completed ingest.
type IngestResult struct {
	// ChunkCount is the number of chunks indexed.
	ChunkCount int
}

// Indexer runs documents through chunk, embed and index stages. Writes for
// the same document are serialized; different documents ingest in parallel.
type Indexer struct {
	vectors store.VectorStore
	docs    *store.DocumentStore
	embed   llm.EmbeddingProvider
	chunker *Chunker
	config  *IndexerConfig

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewIndexer creates an indexer. The chunker configuration is validated here
// so a misconfigured service fails at startup, not on the first ingest.
func NewIndexer(
	vectors store.VectorStore,
	docs *store.DocumentStore,
	embed llm.EmbeddingProvider,
	config *IndexerConfig,
) (*Indexer, error) {
	chunker, err := NewChunker(config.ChunkSize, config.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if config.EmbeddingDim <= 0 {
		return nil, pkgerrors.ErrInvalidConfiguration.WithMessagef(
			"embedding dimension %d must be positive", config.EmbeddingDim)
	}
	if config.EmbedBatchSize <= 0 {
		config.EmbedBatchSize = 16
	}
	if config.Retry == nil {
		config.Retry = resilience.DefaultRetryConfig()
		config.Retry.RetryableErrors = resilience.IsRetryableError
	}

	return &Indexer{
		vectors: vectors,
		docs:    docs,
		embed:   embed,
		chunker: chunker,
		config:  config,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// docLock returns the write lock for a document id.
func (i *Indexer) docLock(documentID string) *sync.Mutex {
	i.locksMu.Lock()
	defer i.locksMu.Unlock()

	mu, ok := i.locks[documentID]
	if !ok {
		mu = &sync.Mutex{}
		i.locks[documentID] = mu
	}
	return mu
}

// ReleaseDocument drops the lock entry for a deleted document so the lock
// map does not grow with the lifetime total of document ids. An ingest
// racing the deletion keeps its own mutex and finishes undisturbed.
func (i *Indexer) ReleaseDocument(documentID string) {
	i.locksMu.Lock()
	defer i.locksMu.Unlock()
	delete(i.locks, documentID)
}

// Ingest chunks, embeds and indexes a document's text. Re-ingesting an id
// replaces its entries atomically (delete then insert). On failure the
// document is marked failed with the stage in the reason and no partial
// entries remain visible.
func (i *Indexer) Ingest(ctx context.Context, documentID, text string) (*IngestResult, error) {
	mu := i.docLock(documentID)
	mu.Lock()
	defer mu.Unlock()

	result, err := i.ingest(ctx, documentID, text)
	if err != nil {
		reason := err.Error()
		if uerr := i.docs.UpdateStatus(ctx, documentID, model.StatusFailed, reason); uerr != nil {
			logger.Errorw("Failed to mark document failed",
				"document_id", documentID,
				"error", uerr.Error(),
			)
		}
		return nil, err
	}
	return result, nil
}

func (i *Indexer) ingest(ctx context.Context, documentID, text string) (*IngestResult, error) {
	// Chunk stage.
	chunks := i.chunker.Chunk(text)
	if len(chunks) == 0 {
		return nil, pkgerrors.ErrInvalidInput.WithMessagef("document %s has no indexable text", documentID)
	}
	if err := i.docs.UpdateStatus(ctx, documentID, model.StatusChunked, ""); err != nil {
		return nil, err
	}
	if err := i.docs.UpdateChunkCount(ctx, documentID, len(chunks)); err != nil {
		return nil, err
	}
	logger.Infow("Document chunked",
		"document_id", documentID,
		"chunks", len(chunks),
	)

	// Embed stage.
	if err := i.docs.UpdateStatus(ctx, documentID, model.StatusEmbedding, ""); err != nil {
		return nil, err
	}
	vectors, err := i.embedChunks(ctx, documentID, chunks)
	if err != nil {
		return nil, err
	}

	// Index stage. Delete-then-insert makes re-ingest an atomic replace.
	if _, err := i.vectors.DeleteByDocument(ctx, documentID); err != nil {
		return nil, err
	}

	entries := make([]*store.IndexEntry, len(chunks))
	for n, chunk := range chunks {
		entries[n] = &store.IndexEntry{
			ChunkID:    store.ChunkIDFor(documentID, chunk.Index),
			DocumentID: documentID,
			Text:       chunk.Text,
			Vector:     vectors[n],
		}
	}
	if err := i.vectors.Insert(ctx, entries); err != nil {
		return nil, err
	}

	if err := i.docs.UpdateStatus(ctx, documentID, model.StatusIndexed, ""); err != nil {
		return nil, err
	}
	logger.Infow("Document indexed",
		"document_id", documentID,
		"chunks", len(chunks),
	)
	return &IngestResult{ChunkCount: len(chunks)}, nil
}

// embedChunks embeds all chunks in sub-batches fanned out on the embedding
// pool. Each sub-batch retries transient provider failures with backoff.
func (i *Indexer) embedChunks(ctx context.Context, documentID string, chunks []Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	batchSize := i.config.EmbedBatchSize

	type batchResult struct {
		from int
		err  error
	}

	var wg sync.WaitGroup
	results := make(chan batchResult, (len(chunks)+batchSize-1)/batchSize)

	for from := 0; from < len(chunks); from += batchSize {
		to := from + batchSize
		if to > len(chunks) {
			to = len(chunks)
		}
		from := from
		batch := chunks[from:to]

		task := func() {
			defer wg.Done()
			texts := make([]string, len(batch))
			for n, c := range batch {
				texts[n] = c.Text
			}

			var embedded [][]float32
			err := resilience.RetryWithBackoff(ctx, i.config.Retry, func() error {
				var embErr error
				embedded, embErr = i.embed.Embed(ctx, texts)
				return embErr
			})
			if err == nil && len(embedded) != len(batch) {
				err = pkgerrors.ErrProviderResponse.WithMessagef(
					"provider returned %d vectors for %d texts", len(embedded), len(batch))
			}
			if err == nil {
				copy(vectors[from:to], embedded)
			}
			results <- batchResult{from: from, err: err}
		}

		wg.Add(1)
		if err := pool.SubmitToType(pool.EmbeddingPool, task); err != nil {
			// Pool unavailable: run inline rather than failing the ingest.
			task()
		}
	}

	wg.Wait()
	close(results)

	for r := range results {
		if r.err != nil {
			return nil, pkgerrors.ErrIngestFailed.
				WithMessagef("embedding failed for document %s", documentID).
				WithCause(r.err)
		}
	}

	for n, v := range vectors {
		if len(v) != i.config.EmbeddingDim {
			return nil, pkgerrors.ErrDimensionMismatch.WithMessagef(
				"provider returned dimension %d for chunk %d, expected %d",
				len(v), n, i.config.EmbeddingDim)
		}
	}
	return vectors, nil
}
