// Package model provides the document QA data models.
package model

import (
	"time"
)

// Document status values. A document is immutable once indexed; re-ingesting
// the same id replaces its chunks atomically.
const (
	StatusReceived  = "received"
	StatusChunked   = "chunked"
	StatusEmbedding = "embedding"
	StatusIndexed   = "indexed"
	StatusFailed    = "failed"
)

// Document represents an ingested document.
type Document struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Filename    string    `json:"filename" gorm:"type:varchar(255)"`
	ContentType string    `json:"content_type" gorm:"type:varchar(64)"`
	Text        string    `json:"text,omitempty" gorm:"type:longtext"` // Normalized extracted text
	ChunkCount  int       `json:"chunk_count" gorm:"default:0"`
	Status      string    `json:"status" gorm:"type:varchar(32);default:'received'"`
	FailReason  string    `json:"fail_reason,omitempty" gorm:"type:varchar(512)"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for Document.
func (Document) TableName() string {
	return "docqa_documents"
}

// QueryResult represents an answered question.
type QueryResult struct {
	Answer      string        `json:"answer"`
	ChunksUsed  []ChunkSource `json:"chunks_used"`
	DocumentIDs []string      `json:"document_ids"`
}

// ChunkSource identifies a chunk that contributed to an answer.
type ChunkSource struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
}
