package biz

import (
	"context"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/store"
	pkgerrors "github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/llm"
)

// RetrieverConfig configures similarity search over the vector store.
type RetrieverConfig struct {
	// TopK is the default number of chunks to return.
	TopK int
	// MaxTopK caps caller-requested top_k values.
	MaxTopK int
	// SimilarityThreshold drops hits scoring below it. Zero keeps everything.
	SimilarityThreshold float32
	// DedupByDocument keeps only the best-scoring chunk per document.
	DedupByDocument bool
}

// Retriever embeds a question and finds the most similar indexed chunks.
type Retriever struct {
	vectors store.VectorStore
	embed   llm.EmbeddingProvider
	config  *RetrieverConfig
}

// NewRetriever creates a retriever.
func NewRetriever(vectors store.VectorStore, embed llm.EmbeddingProvider, config *RetrieverConfig) (*Retriever, error) {
	if config.TopK <= 0 {
		return nil, pkgerrors.ErrInvalidConfiguration.WithMessagef("top_k %d must be positive", config.TopK)
	}
	if config.MaxTopK < config.TopK {
		return nil, pkgerrors.ErrInvalidConfiguration.WithMessagef(
			"max top_k %d must be at least top_k %d", config.MaxTopK, config.TopK)
	}
	return &Retriever{
		vectors: vectors,
		embed:   embed,
		config:  config,
	}, nil
}

// ClampTopK normalizes a caller-requested top_k: zero or negative falls back
// to the configured default, values above the cap are clamped down.
func (r *Retriever) ClampTopK(topK int) int {
	if topK <= 0 {
		return r.config.TopK
	}
	if topK > r.config.MaxTopK {
		return r.config.MaxTopK
	}
	return topK
}

// Retrieve returns up to topK chunks ranked by similarity to the question.
// An empty result is not an error; the caller decides how to answer without
// context.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int) ([]*store.SearchResult, error) {
	if question == "" {
		return nil, pkgerrors.ErrInvalidInput.WithMessage("question must not be empty")
	}
	topK = r.ClampTopK(topK)

	queryVector, err := r.embed.EmbedSingle(ctx, question)
	if err != nil {
		return nil, err
	}

	// With dedup enabled one document can swallow the whole result set, so
	// over-fetch to leave enough candidates after collapsing.
	fetchK := topK
	if r.config.DedupByDocument {
		fetchK = topK * 4
	}

	hits, err := r.vectors.Search(ctx, queryVector, fetchK)
	if err != nil {
		return nil, err
	}

	if r.config.SimilarityThreshold > 0 {
		filtered := hits[:0]
		for _, hit := range hits {
			if hit.Score >= r.config.SimilarityThreshold {
				filtered = append(filtered, hit)
			}
		}
		hits = filtered
	}

	if r.config.DedupByDocument {
		hits = dedupByDocument(hits)
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}

	logger.Infow("Retrieved chunks",
		"top_k", topK,
		"hits", len(hits),
	)
	return hits, nil
}

// dedupByDocument keeps the first (best scoring) hit per document,
// preserving rank order.
func dedupByDocument(hits []*store.SearchResult) []*store.SearchResult {
	seen := make(map[string]struct{}, len(hits))
	out := hits[:0]
	for _, hit := range hits {
		if _, ok := seen[hit.DocumentID]; ok {
			continue
		}
		seen[hit.DocumentID] = struct{}{}
		out = append(out, hit)
	}
	return out
}
