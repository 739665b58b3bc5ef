package biz

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	pkgerrors "github.com/kart-io/docqa/pkg/errors"
)

type serviceFixture struct {
	svc     Service
	chat    *fakeChat
	embed   *fakeEmbedder
	vectors store.VectorStore
	cache   *QueryCache
}

func newTestService(t *testing.T, withCache bool) *serviceFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	docs, err := store.NewDocumentStore(db)
	require.NoError(t, err)

	embed := &fakeEmbedder{dim: 4}
	vectors, err := store.NewLocalStore(t.TempDir()+"/index.jsonl", embed.dim)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close(context.Background()) })

	indexer, err := NewIndexer(vectors, docs, embed, &IndexerConfig{
		ChunkSize:    10,
		ChunkOverlap: 2,
		EmbeddingDim: embed.dim,
	})
	require.NoError(t, err)

	retriever, err := NewRetriever(vectors, embed, &RetrieverConfig{TopK: 5, MaxTopK: 10})
	require.NoError(t, err)

	chat := &fakeChat{answer: "Grounded answer."}
	generator, err := NewGenerator(chat, &GeneratorConfig{
		SystemPrompt:     testPrompt,
		MaxContextTokens: 3000,
	})
	require.NoError(t, err)

	var cache *QueryCache
	if withCache {
		mr := miniredis.RunT(t)
		client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		cache = NewQueryCache(client, &QueryCacheConfig{
			Enabled:   true,
			TTL:       time.Hour,
			KeyPrefix: "docqa:query:",
		})
	}

	svc, err := NewService(indexer, retriever, generator, cache, docs, vectors, &ServiceConfig{
		MaxTextSize: 1 << 20,
	})
	require.NoError(t, err)
	return &serviceFixture{svc: svc, chat: chat, embed: embed, vectors: vectors, cache: cache}
}

func TestServiceSubmitDocument(t *testing.T) {
	f := newTestService(t, false)
	ctx := context.Background()

	doc, err := f.svc.SubmitDocument(ctx, &SubmitRequest{
		Filename:    "notes.txt",
		ContentType: "text/plain",
		Text:        wordsText(25),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, model.StatusIndexed, doc.Status)
	assert.Equal(t, 3, doc.ChunkCount)

	count, err := f.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestServiceSubmitDefaultsFilename(t *testing.T) {
	f := newTestService(t, false)
	ctx := context.Background()

	doc, err := f.svc.SubmitDocument(ctx, &SubmitRequest{Text: wordsText(8)})
	require.NoError(t, err)
	assert.Equal(t, "untitled", doc.Filename)
}

func TestServiceSubmitValidation(t *testing.T) {
	f := newTestService(t, false)
	ctx := context.Background()

	_, err := f.svc.SubmitDocument(ctx, &SubmitRequest{Filename: "empty.txt", Text: "   "})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrInvalidInput.Code))

	big := strings.Repeat("x ", 1<<20)
	_, err = f.svc.SubmitDocument(ctx, &SubmitRequest{Filename: "big.txt", Text: big})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrRequestTooLarge.Code))
}

func TestServiceAsk(t *testing.T) {
	f := newTestService(t, false)
	ctx := context.Background()

	doc, err := f.svc.SubmitDocument(ctx, &SubmitRequest{Filename: "a.txt", Text: wordsText(25)})
	require.NoError(t, err)

	result, err := f.svc.Ask(ctx, "what do the notes say?", 2)
	require.NoError(t, err)
	assert.Equal(t, "Grounded answer.", result.Answer)
	require.Len(t, result.ChunksUsed, 2)
	assert.Equal(t, []string{doc.ID}, result.DocumentIDs)
	for _, cs := range result.ChunksUsed {
		assert.Equal(t, doc.ID, cs.DocumentID)
		assert.NotEmpty(t, cs.Text)
	}
}

func TestServiceAskEmptyIndex(t *testing.T) {
	f := newTestService(t, false)

	result, err := f.svc.Ask(context.Background(), "anything at all?", 5)
	require.NoError(t, err)
	assert.Equal(t, NoAnswerMessage, result.Answer)
	assert.Empty(t, result.ChunksUsed)
	assert.Empty(t, result.DocumentIDs)

	// The chat provider must not be consulted without context.
	assert.Empty(t, f.chat.lastPrompt)
}

func TestServiceAskValidation(t *testing.T) {
	f := newTestService(t, false)

	_, err := f.svc.Ask(context.Background(), "  ", 5)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrInvalidInput.Code))
}

func TestServiceAskCached(t *testing.T) {
	f := newTestService(t, true)
	ctx := context.Background()

	_, err := f.svc.SubmitDocument(ctx, &SubmitRequest{Filename: "a.txt", Text: wordsText(25)})
	require.NoError(t, err)

	first, err := f.svc.Ask(ctx, "question", 3)
	require.NoError(t, err)

	// Change the canned answer: a second ask must come from the cache.
	f.chat.answer = "Different answer."
	second, err := f.svc.Ask(ctx, "question", 3)
	require.NoError(t, err)
	assert.Equal(t, first.Answer, second.Answer)

	// A different top_k misses the cache and reaches the provider.
	third, err := f.svc.Ask(ctx, "question", 4)
	require.NoError(t, err)
	assert.Equal(t, "Different answer.", third.Answer)
}

func TestServiceDeleteDocument(t *testing.T) {
	f := newTestService(t, false)
	ctx := context.Background()

	doc, err := f.svc.SubmitDocument(ctx, &SubmitRequest{Filename: "a.txt", Text: wordsText(25)})
	require.NoError(t, err)

	deleted, err := f.svc.DeleteDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	count, err := f.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	_, err = f.svc.GetDocument(ctx, doc.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrDocumentNotFound.Code))

	// Idempotent.
	deleted, err = f.svc.DeleteDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestServiceListDocuments(t *testing.T) {
	f := newTestService(t, false)
	ctx := context.Background()

	for n := 0; n < 3; n++ {
		_, err := f.svc.SubmitDocument(ctx, &SubmitRequest{Filename: "doc.txt", Text: wordsText(8)})
		require.NoError(t, err)
	}

	docs, total, err := f.svc.ListDocuments(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, docs, 2)

	docs, total, err = f.svc.ListDocuments(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, docs, 1)
}

func TestServiceStats(t *testing.T) {
	f := newTestService(t, false)
	ctx := context.Background()

	_, err := f.svc.SubmitDocument(ctx, &SubmitRequest{Filename: "a.txt", Text: wordsText(25)})
	require.NoError(t, err)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["documents"])
	assert.Equal(t, int64(3), stats["chunks"])

	byStatus, ok := stats["documents_by_status"].(map[string]int64)
	require.True(t, ok)
	assert.Equal(t, int64(1), byStatus[model.StatusIndexed])

	cacheStats, ok := stats["cache"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, cacheStats["enabled"])
}
