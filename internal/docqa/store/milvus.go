package store

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/kart-io/docqa/internal/pkg/textutil"
	"github.com/kart-io/docqa/pkg/component/milvus"
	pkgerrors "github.com/kart-io/docqa/pkg/errors"
)

// MilvusStore implements VectorStore on the Milvus client wrapper.
type MilvusStore struct {
	client     *milvus.Client
	collection string
	dim        int
}

var _ VectorStore = (*MilvusStore)(nil)

// NewMilvusStore creates the collection if needed and returns the store.
func NewMilvusStore(ctx context.Context, client *milvus.Client, collection string, dim int) (*MilvusStore, error) {
	schema := &milvus.CollectionSchema{
		Name:        collection,
		Description: "document QA chunk index",
		Dimension:   dim,
		MetaFields: []milvus.MetaField{
			{Name: "document_id", DataType: entity.FieldTypeVarChar, MaxLen: 64},
			{Name: "content", DataType: entity.FieldTypeVarChar, MaxLen: 65535},
		},
	}
	if err := client.CreateCollection(ctx, schema); err != nil {
		return nil, pkgerrors.ErrIndexFailure.WithCause(err)
	}

	return &MilvusStore{
		client:     client,
		collection: collection,
		dim:        dim,
	}, nil
}

// Insert adds a batch of entries. Validation mirrors the local backend so
// both reject the same batches; Milvus handles batch atomicity.
func (s *MilvusStore) Insert(ctx context.Context, entries []*IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ids := make([]string, len(entries))
	embeddings := make([][]float32, len(entries))
	metadata := map[string][]any{
		"document_id": make([]any, len(entries)),
		"content":     make([]any, len(entries)),
	}

	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if e.ChunkID == "" || e.DocumentID == "" {
			return pkgerrors.ErrInvalidInput.WithMessage("chunk id and document id are required")
		}
		if len(e.Vector) != s.dim {
			return pkgerrors.ErrDimensionMismatch.WithMessagef(
				"chunk %s has dimension %d, index expects %d", e.ChunkID, len(e.Vector), s.dim)
		}
		if textutil.VectorNorm(e.Vector) == 0 {
			return pkgerrors.ErrInvalidVector.WithMessagef("chunk %s has a zero-norm vector", e.ChunkID)
		}
		if _, dup := seen[e.ChunkID]; dup {
			return pkgerrors.ErrDuplicateChunk.WithMessagef("chunk %s appears twice in the batch", e.ChunkID)
		}
		seen[e.ChunkID] = struct{}{}
		ids[i] = e.ChunkID
		embeddings[i] = e.Vector
		metadata["document_id"][i] = e.DocumentID
		metadata["content"][i] = e.Text
	}

	data := &milvus.InsertData{
		IDs:        ids,
		Embeddings: embeddings,
		Metadata:   metadata,
	}
	if err := s.client.Insert(ctx, s.collection, data); err != nil {
		return pkgerrors.ErrIndexFailure.WithCause(err)
	}
	return nil
}

// DeleteByDocument removes every chunk of a document via a filter expression.
func (s *MilvusStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	if documentID == "" {
		return 0, pkgerrors.ErrInvalidInput.WithMessage("document id is required")
	}

	expr := fmt.Sprintf("document_id == %q", documentID)
	count, err := s.client.DeleteByFilter(ctx, s.collection, expr)
	if err != nil {
		return 0, pkgerrors.ErrIndexFailure.WithCause(err)
	}
	return int(count), nil
}

// Search performs a vector similarity search.
func (s *MilvusStore) Search(ctx context.Context, vector []float32, topK int) ([]*SearchResult, error) {
	if topK <= 0 {
		return nil, pkgerrors.ErrInvalidInput.WithMessagef("topK %d must be positive", topK)
	}
	if len(vector) != s.dim {
		return nil, pkgerrors.ErrDimensionMismatch.WithMessagef(
			"query vector has dimension %d, index expects %d", len(vector), s.dim)
	}

	results, err := s.client.Search(ctx, s.collection, vector, topK, []string{"document_id", "content"})
	if err != nil {
		return nil, pkgerrors.ErrIndexFailure.WithCause(err)
	}

	searchResults := make([]*SearchResult, 0, len(results))
	for _, r := range results {
		sr := &SearchResult{
			ChunkID: r.ID,
			Score:   r.Score,
		}
		if v, ok := r.Metadata["document_id"].(string); ok {
			sr.DocumentID = v
		}
		if v, ok := r.Metadata["content"].(string); ok {
			sr.Text = v
		}
		searchResults = append(searchResults, sr)
	}
	return searchResults, nil
}

// Count returns the number of indexed chunks.
func (s *MilvusStore) Count(ctx context.Context) (int64, error) {
	count, err := s.client.GetCollectionStats(ctx, s.collection)
	if err != nil {
		return 0, pkgerrors.ErrIndexFailure.WithCause(err)
	}
	return count, nil
}

// Close closes the Milvus connection.
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}
