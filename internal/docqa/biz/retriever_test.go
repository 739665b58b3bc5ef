package biz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/internal/docqa/store"
	pkgerrors "github.com/kart-io/docqa/pkg/errors"
)

// queryEmbedder answers every EmbedSingle with a fixed vector.
type queryEmbedder struct {
	vector []float32
}

func (q *queryEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = q.vector
	}
	return out, nil
}

func (q *queryEmbedder) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	return q.vector, nil
}

func (q *queryEmbedder) Name() string { return "query-fake" }

func newTestRetriever(t *testing.T, config *RetrieverConfig) (*Retriever, store.VectorStore) {
	t.Helper()

	vectors, err := store.NewLocalStore(t.TempDir()+"/index.jsonl", 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close(context.Background()) })

	embed := &queryEmbedder{vector: []float32{1, 0, 0}}
	r, err := NewRetriever(vectors, embed, config)
	require.NoError(t, err)
	return r, vectors
}

func seedEntries(t *testing.T, vectors store.VectorStore, entries []*store.IndexEntry) {
	t.Helper()
	require.NoError(t, vectors.Insert(context.Background(), entries))
}

func TestRetrieverRanking(t *testing.T) {
	r, vectors := newTestRetriever(t, &RetrieverConfig{TopK: 2, MaxTopK: 10})
	seedEntries(t, vectors, []*store.IndexEntry{
		{ChunkID: "a_chunk_0", DocumentID: "a", Text: "exact", Vector: []float32{1, 0, 0}},
		{ChunkID: "a_chunk_1", DocumentID: "a", Text: "close", Vector: []float32{0.9, 0.1, 0}},
		{ChunkID: "b_chunk_0", DocumentID: "b", Text: "far", Vector: []float32{0, 1, 0}},
	})

	hits, err := r.Retrieve(context.Background(), "question", 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a_chunk_0", hits[0].ChunkID)
	assert.Equal(t, "a_chunk_1", hits[1].ChunkID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestRetrieverTopKClamp(t *testing.T) {
	r, _ := newTestRetriever(t, &RetrieverConfig{TopK: 5, MaxTopK: 8})

	assert.Equal(t, 5, r.ClampTopK(0))
	assert.Equal(t, 5, r.ClampTopK(-3))
	assert.Equal(t, 1, r.ClampTopK(1))
	assert.Equal(t, 8, r.ClampTopK(100))
}

func TestRetrieverTopKOne(t *testing.T) {
	r, vectors := newTestRetriever(t, &RetrieverConfig{TopK: 5, MaxTopK: 10})
	seedEntries(t, vectors, []*store.IndexEntry{
		{ChunkID: "a_chunk_0", DocumentID: "a", Text: "best", Vector: []float32{1, 0, 0}},
		{ChunkID: "b_chunk_0", DocumentID: "b", Text: "second", Vector: []float32{0.5, 0.5, 0}},
	})

	hits, err := r.Retrieve(context.Background(), "question", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a_chunk_0", hits[0].ChunkID)
}

func TestRetrieverSimilarityThreshold(t *testing.T) {
	r, vectors := newTestRetriever(t, &RetrieverConfig{
		TopK:                5,
		MaxTopK:             10,
		SimilarityThreshold: 0.5,
	})
	seedEntries(t, vectors, []*store.IndexEntry{
		{ChunkID: "a_chunk_0", DocumentID: "a", Text: "relevant", Vector: []float32{1, 0, 0}},
		{ChunkID: "b_chunk_0", DocumentID: "b", Text: "orthogonal", Vector: []float32{0, 1, 0}},
	})

	hits, err := r.Retrieve(context.Background(), "question", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a_chunk_0", hits[0].ChunkID)
}

func TestRetrieverDedupByDocument(t *testing.T) {
	r, vectors := newTestRetriever(t, &RetrieverConfig{
		TopK:            2,
		MaxTopK:         10,
		DedupByDocument: true,
	})
	seedEntries(t, vectors, []*store.IndexEntry{
		{ChunkID: "a_chunk_0", DocumentID: "a", Text: "a best", Vector: []float32{1, 0, 0}},
		{ChunkID: "a_chunk_1", DocumentID: "a", Text: "a second", Vector: []float32{0.95, 0.05, 0}},
		{ChunkID: "a_chunk_2", DocumentID: "a", Text: "a third", Vector: []float32{0.9, 0.1, 0}},
		{ChunkID: "b_chunk_0", DocumentID: "b", Text: "b best", Vector: []float32{0.5, 0.5, 0}},
	})

	hits, err := r.Retrieve(context.Background(), "question", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a_chunk_0", hits[0].ChunkID)
	assert.Equal(t, "b_chunk_0", hits[1].ChunkID)
}

func TestRetrieverEmptyIndex(t *testing.T) {
	r, _ := newTestRetriever(t, &RetrieverConfig{TopK: 5, MaxTopK: 10})

	hits, err := r.Retrieve(context.Background(), "question", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRetrieverEmptyQuestion(t *testing.T) {
	r, _ := newTestRetriever(t, &RetrieverConfig{TopK: 5, MaxTopK: 10})

	_, err := r.Retrieve(context.Background(), "", 5)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrInvalidInput.Code))
}

func TestNewRetrieverValidation(t *testing.T) {
	embed := &queryEmbedder{vector: []float32{1, 0, 0}}

	_, err := NewRetriever(nil, embed, &RetrieverConfig{TopK: 0, MaxTopK: 10})
	require.Error(t, err)

	_, err = NewRetriever(nil, embed, &RetrieverConfig{TopK: 5, MaxTopK: 3})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrInvalidConfiguration.Code))
}
