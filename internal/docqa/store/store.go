package store

import (
	"context"
	"fmt"
)

// IndexEntry is one indexed chunk.
type IndexEntry struct {
	// ChunkID uniquely identifies the chunk, "<docID>_chunk_<n>".
	ChunkID string `json:"chunk_id"`
	// DocumentID is the owning document id.
	DocumentID string `json:"document_id"`
	// Text is the chunk text.
	Text string `json:"text"`
	// Vector is the embedding vector.
	Vector []float32 `json:"vector"`
	// Metadata holds optional string metadata.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SearchResult is one similarity search hit. Score is cosine similarity in
// [-1, 1]; results are ordered descending with ties broken by insertion order.
type SearchResult struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
}

// ChunkIDFor builds the chunk id for a document chunk index.
func ChunkIDFor(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}

// VectorStore is the vector index contract shared by the local and Milvus
// backends.
type VectorStore interface {
	// Insert adds a batch of entries. The batch is validated up front and is
	// all-or-nothing: on error no entry of the batch is visible.
	Insert(ctx context.Context, entries []*IndexEntry) error

	// DeleteByDocument removes every entry of a document and returns the
	// number removed. Deleting an absent document is not an error.
	DeleteByDocument(ctx context.Context, documentID string) (int, error)

	// Search returns the topK most similar entries for the query vector.
	Search(ctx context.Context, vector []float32, topK int) ([]*SearchResult, error)

	// Count returns the number of indexed entries.
	Count(ctx context.Context) (int64, error)

	// Close releases backend resources.
	Close(ctx context.Context) error
}
