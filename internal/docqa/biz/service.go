package biz

import (
	"context"
	"strings"

	"github.com/kart-io/logger"
	"github.com/oklog/ulid/v2"

	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	pkgerrors "github.com/kart-io/docqa/pkg/errors"
)

// NoAnswerMessage is returned when retrieval finds nothing relevant. The
// chat provider is never consulted in that case.
const NoAnswerMessage = "No relevant information was found in the indexed documents."

// SubmitRequest carries a document to ingest.
type SubmitRequest struct {
	Filename    string
	ContentType string
	Text        string
}

// Service is the document QA facade used by the HTTP handlers.
type Service interface {
	// SubmitDocument ingests a document end to end and returns its record.
	SubmitDocument(ctx context.Context, req *SubmitRequest) (*model.Document, error)
	// Ask answers a question grounded in the indexed documents.
	Ask(ctx context.Context, question string, topK int) (*model.QueryResult, error)
	// GetDocument returns a document's metadata.
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	// ListDocuments pages through documents newest first.
	ListDocuments(ctx context.Context, offset, limit int) ([]*model.Document, int64, error)
	// DeleteDocument removes a document's chunks and metadata, returning the
	// number of chunks removed. Deleting an unknown id is not an error.
	DeleteDocument(ctx context.Context, id string) (int, error)
	// Stats reports index and cache statistics.
	Stats(ctx context.Context) (map[string]any, error)
}

// ServiceConfig bounds service-level inputs.
type ServiceConfig struct {
	// MaxTextSize is the largest accepted document text in bytes.
	MaxTextSize int
}

type service struct {
	indexer   *Indexer
	retriever *Retriever
	generator *Generator
	cache     *QueryCache
	docs      *store.DocumentStore
	vectors   store.VectorStore
	config    *ServiceConfig
}

var _ Service = (*service)(nil)

// NewService wires the pipeline components into the service facade.
func NewService(
	indexer *Indexer,
	retriever *Retriever,
	generator *Generator,
	cache *QueryCache,
	docs *store.DocumentStore,
	vectors store.VectorStore,
	config *ServiceConfig,
) (Service, error) {
	if config.MaxTextSize <= 0 {
		return nil, pkgerrors.ErrInvalidConfiguration.WithMessagef(
			"max text size %d must be positive", config.MaxTextSize)
	}
	if cache == nil {
		cache = NewQueryCache(nil, nil)
	}
	return &service{
		indexer:   indexer,
		retriever: retriever,
		generator: generator,
		cache:     cache,
		docs:      docs,
		vectors:   vectors,
		config:    config,
	}, nil
}

func (s *service) SubmitDocument(ctx context.Context, req *SubmitRequest) (*model.Document, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, pkgerrors.ErrInvalidInput.WithMessage("document text must not be empty")
	}
	if len(text) > s.config.MaxTextSize {
		return nil, pkgerrors.ErrRequestTooLarge.WithMessagef(
			"document text is %d bytes, limit is %d", len(text), s.config.MaxTextSize)
	}

	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = "untitled"
	}

	doc := &model.Document{
		ID:          ulid.Make().String(),
		Filename:    filename,
		ContentType: req.ContentType,
		Text:        text,
		Status:      model.StatusReceived,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	logger.Infow("Document submitted",
		"document_id", doc.ID,
		"filename", doc.Filename,
		"bytes", len(text),
	)

	if _, err := s.indexer.Ingest(ctx, doc.ID, text); err != nil {
		return nil, err
	}
	return s.docs.Get(ctx, doc.ID)
}

func (s *service) Ask(ctx context.Context, question string, topK int) (*model.QueryResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, pkgerrors.ErrInvalidInput.WithMessage("question must not be empty")
	}
	// Clamp before the cache lookup so equivalent requests share an entry.
	topK = s.retriever.ClampTopK(topK)

	if cached, err := s.cache.Get(ctx, question, topK); err == nil && cached != nil {
		return cached, nil
	}

	hits, err := s.retriever.Retrieve(ctx, question, topK)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		// Nothing to ground an answer in. Answer deterministically instead
		// of letting the model improvise, and skip the cache so newly
		// indexed documents become visible immediately.
		return &model.QueryResult{
			Answer:      NoAnswerMessage,
			ChunksUsed:  []model.ChunkSource{},
			DocumentIDs: []string{},
		}, nil
	}

	answer, used, err := s.generator.Generate(ctx, question, hits)
	if err != nil {
		return nil, err
	}

	result := &model.QueryResult{
		Answer:      answer,
		ChunksUsed:  make([]model.ChunkSource, 0, len(used)),
		DocumentIDs: make([]string, 0, len(used)),
	}
	seen := make(map[string]struct{}, len(used))
	for _, hit := range used {
		result.ChunksUsed = append(result.ChunksUsed, model.ChunkSource{
			ChunkID:    hit.ChunkID,
			DocumentID: hit.DocumentID,
			Text:       hit.Text,
			Score:      hit.Score,
		})
		if _, ok := seen[hit.DocumentID]; !ok {
			seen[hit.DocumentID] = struct{}{}
			result.DocumentIDs = append(result.DocumentIDs, hit.DocumentID)
		}
	}

	if err := s.cache.Set(ctx, question, topK, result); err != nil {
		logger.Warnw("Failed to cache query result", "error", err.Error())
	}
	return result, nil
}

func (s *service) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	return s.docs.Get(ctx, id)
}

func (s *service) ListDocuments(ctx context.Context, offset, limit int) ([]*model.Document, int64, error) {
	return s.docs.List(ctx, offset, limit)
}

func (s *service) DeleteDocument(ctx context.Context, id string) (int, error) {
	deleted, err := s.vectors.DeleteByDocument(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		return deleted, err
	}
	s.indexer.ReleaseDocument(id)

	// Cached answers may cite the deleted document.
	if deleted > 0 {
		if err := s.cache.Clear(ctx); err != nil {
			logger.Warnw("Failed to clear query cache after delete", "error", err.Error())
		}
	}

	logger.Infow("Document deleted",
		"document_id", id,
		"deleted_chunks", deleted,
	)
	return deleted, nil
}

func (s *service) Stats(ctx context.Context) (map[string]any, error) {
	byStatus, err := s.docs.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	chunkCount, err := s.vectors.Count(ctx)
	if err != nil {
		return nil, err
	}
	cacheStats, err := s.cache.GetStats(ctx)
	if err != nil {
		return nil, err
	}

	var docCount int64
	for _, n := range byStatus {
		docCount += n
	}
	return map[string]any{
		"documents":           docCount,
		"documents_by_status": byStatus,
		"chunks":              chunkCount,
		"cache":               cacheStats,
	}, nil
}
