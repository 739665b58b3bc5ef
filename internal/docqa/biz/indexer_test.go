package biz

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	pkgerrors "github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/llm/resilience"
)

// fakeEmbedder returns deterministic unit vectors and can be programmed to
// fail a number of calls before succeeding.
type fakeEmbedder struct {
	mu        sync.Mutex
	dim       int
	calls     int
	failCount int
	failWith  error
	shortBy   int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failCount > 0 {
		f.failCount--
		return nil, f.failWith
	}
	n := len(texts) - f.shortBy
	if n < 0 {
		n = 0
	}
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, f.dim)
		v[0] = 1.0
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vs, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestIndexer(t *testing.T, embed *fakeEmbedder) (*Indexer, *store.DocumentStore, store.VectorStore) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	docs, err := store.NewDocumentStore(db)
	require.NoError(t, err)

	vectors, err := store.NewLocalStore(t.TempDir()+"/index.jsonl", embed.dim)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close(context.Background()) })

	idx, err := NewIndexer(vectors, docs, embed, &IndexerConfig{
		ChunkSize:      10,
		ChunkOverlap:   2,
		EmbeddingDim:   embed.dim,
		EmbedBatchSize: 4,
		Retry: &resilience.RetryConfig{
			MaxAttempts:     3,
			InitialDelay:    time.Millisecond,
			MaxDelay:        5 * time.Millisecond,
			Multiplier:      2.0,
			RetryableErrors: resilience.IsRetryableError,
		},
	})
	require.NoError(t, err)
	return idx, docs, vectors
}

func createDoc(t *testing.T, docs *store.DocumentStore, id string) {
	t.Helper()
	err := docs.Create(context.Background(), &model.Document{
		ID:       id,
		Filename: id + ".txt",
		Status:   model.StatusReceived,
	})
	require.NoError(t, err)
}

func TestIndexerIngest(t *testing.T) {
	embed := &fakeEmbedder{dim: 4}
	idx, docs, vectors := newTestIndexer(t, embed)
	ctx := context.Background()

	createDoc(t, docs, "doc1")
	result, err := idx.Ingest(ctx, "doc1", wordsText(25))
	require.NoError(t, err)

	// 25 words at size 10 overlap 2 step 8: chunks at 0, 8, 16.
	assert.Equal(t, 3, result.ChunkCount)

	count, err := vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	doc, err := docs.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusIndexed, doc.Status)
	assert.Equal(t, 3, doc.ChunkCount)
	assert.Empty(t, doc.FailReason)

	query := make([]float32, 4)
	query[0] = 1.0
	hits, err := vectors.Search(ctx, query, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, store.ChunkIDFor("doc1", 0), hits[0].ChunkID)
	assert.Equal(t, "doc1", hits[0].DocumentID)
}

func TestIndexerReingestReplaces(t *testing.T) {
	embed := &fakeEmbedder{dim: 4}
	idx, docs, vectors := newTestIndexer(t, embed)
	ctx := context.Background()

	createDoc(t, docs, "doc1")
	_, err := idx.Ingest(ctx, "doc1", wordsText(25))
	require.NoError(t, err)

	// Shorter text on re-ingest: old chunks must be gone.
	result, err := idx.Ingest(ctx, "doc1", wordsText(8))
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunkCount)

	count, err := vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	doc, err := docs.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, 1, doc.ChunkCount)
}

func TestIndexerEmbedFailure(t *testing.T) {
	embed := &fakeEmbedder{
		dim:       4,
		failCount: 100,
		failWith:  pkgerrors.ErrProviderResponse.WithMessage("boom"),
	}
	idx, docs, vectors := newTestIndexer(t, embed)
	ctx := context.Background()

	createDoc(t, docs, "doc1")
	_, err := idx.Ingest(ctx, "doc1", wordsText(25))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrIngestFailed.Code))

	count, err := vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	doc, err := docs.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, doc.Status)
	assert.NotEmpty(t, doc.FailReason)
}

func TestIndexerRetriesTransientFailure(t *testing.T) {
	embed := &fakeEmbedder{
		dim:       4,
		failCount: 1,
		failWith:  pkgerrors.ErrRateLimited.WithMessage("slow down"),
	}
	idx, docs, _ := newTestIndexer(t, embed)
	ctx := context.Background()

	createDoc(t, docs, "doc1")
	_, err := idx.Ingest(ctx, "doc1", wordsText(8))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, embed.callCount(), 2)

	doc, err := docs.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusIndexed, doc.Status)
}

func TestIndexerEmptyText(t *testing.T) {
	embed := &fakeEmbedder{dim: 4}
	idx, docs, _ := newTestIndexer(t, embed)
	ctx := context.Background()

	createDoc(t, docs, "doc1")
	_, err := idx.Ingest(ctx, "doc1", "   \n\t  ")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrInvalidInput.Code))

	doc, err := docs.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, doc.Status)
}

func TestIndexerDimensionMismatch(t *testing.T) {
	embed := &fakeEmbedder{dim: 3}
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	docs, err := store.NewDocumentStore(db)
	require.NoError(t, err)
	vectors, err := store.NewLocalStore(t.TempDir()+"/index.jsonl", 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close(context.Background()) })

	// Indexer expects dimension 4, provider returns 3.
	idx, err := NewIndexer(vectors, docs, embed, &IndexerConfig{
		ChunkSize:    10,
		ChunkOverlap: 2,
		EmbeddingDim: 4,
	})
	require.NoError(t, err)

	ctx := context.Background()
	createDoc(t, docs, "doc1")
	_, err = idx.Ingest(ctx, "doc1", wordsText(8))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrDimensionMismatch.Code))
}

func TestIndexerProviderVectorCountMismatch(t *testing.T) {
	embed := &fakeEmbedder{dim: 4, shortBy: 1}
	idx, docs, vectors := newTestIndexer(t, embed)
	ctx := context.Background()

	createDoc(t, docs, "doc1")
	_, err := idx.Ingest(ctx, "doc1", wordsText(25))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrIngestFailed.Code), "got %v", err)

	// The short batch must not leave partial entries behind.
	count, err := vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	doc, err := docs.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, doc.Status)
}

func TestIndexerConcurrentSameDocument(t *testing.T) {
	embed := &fakeEmbedder{dim: 4}
	idx, docs, vectors := newTestIndexer(t, embed)
	ctx := context.Background()

	createDoc(t, docs, "doc1")

	var wg sync.WaitGroup
	for n := 0; n < 4; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := idx.Ingest(ctx, "doc1", wordsText(25))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Serialized writes: exactly one generation of chunks survives.
	count, err := vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	doc, err := docs.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusIndexed, doc.Status)
}

func TestIndexerReleaseDocument(t *testing.T) {
	embed := &fakeEmbedder{dim: 4}
	idx, docs, _ := newTestIndexer(t, embed)
	ctx := context.Background()

	createDoc(t, docs, "doc1")
	_, err := idx.Ingest(ctx, "doc1", wordsText(25))
	require.NoError(t, err)

	idx.locksMu.Lock()
	_, held := idx.locks["doc1"]
	idx.locksMu.Unlock()
	assert.True(t, held)

	idx.ReleaseDocument("doc1")

	idx.locksMu.Lock()
	_, held = idx.locks["doc1"]
	idx.locksMu.Unlock()
	assert.False(t, held)

	// A fresh ingest after release builds a new lock entry and succeeds.
	_, err = idx.Ingest(ctx, "doc1", wordsText(25))
	require.NoError(t, err)
}

func TestNewIndexerValidation(t *testing.T) {
	embed := &fakeEmbedder{dim: 4}
	_, err := NewIndexer(nil, nil, embed, &IndexerConfig{
		ChunkSize:    10,
		ChunkOverlap: 2,
		EmbeddingDim: 0,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrInvalidConfiguration.Code))

	_, err = NewIndexer(nil, nil, embed, &IndexerConfig{
		ChunkSize:    5,
		ChunkOverlap: 5,
		EmbeddingDim: 4,
	})
	require.Error(t, err)
}

func BenchmarkIndexerIngest(b *testing.B) {
	embed := &fakeEmbedder{dim: 4}
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		b.Fatal(err)
	}
	docs, err := store.NewDocumentStore(db)
	if err != nil {
		b.Fatal(err)
	}
	vectors, err := store.NewLocalStore(b.TempDir()+"/index.jsonl", 4)
	if err != nil {
		b.Fatal(err)
	}
	defer vectors.Close(context.Background())

	idx, err := NewIndexer(vectors, docs, embed, &IndexerConfig{
		ChunkSize:    50,
		ChunkOverlap: 5,
		EmbeddingDim: 4,
	})
	if err != nil {
		b.Fatal(err)
	}

	ctx := context.Background()
	text := wordsText(500)
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		id := fmt.Sprintf("bench-%d", n)
		if err := docs.Create(ctx, &model.Document{ID: id, Filename: id, Status: model.StatusReceived}); err != nil {
			b.Fatal(err)
		}
		if _, err := idx.Ingest(ctx, id, text); err != nil {
			b.Fatal(err)
		}
	}
}
