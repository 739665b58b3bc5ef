package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/kart-io/docqa/internal/model"
	pkgerrors "github.com/kart-io/docqa/pkg/errors"
)

// DocumentStore persists document metadata.
type DocumentStore struct {
	db *gorm.DB
}

// NewDocumentStore migrates the document table and returns the store.
func NewDocumentStore(db *gorm.DB) (*DocumentStore, error) {
	if err := db.AutoMigrate(&model.Document{}); err != nil {
		return nil, pkgerrors.ErrDatabase.WithCause(err)
	}
	return &DocumentStore{db: db}, nil
}

// Create inserts a new document record.
func (s *DocumentStore) Create(ctx context.Context, doc *model.Document) error {
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return pkgerrors.ErrDatabase.WithCause(err)
	}
	return nil
}

// Get returns a document by id. An absent document is a normal outcome and
// maps to ErrDocumentNotFound.
func (s *DocumentStore) Get(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	err := s.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrDocumentNotFound.WithMessagef("document %s not found", id)
		}
		return nil, pkgerrors.ErrDatabase.WithCause(err)
	}
	return &doc, nil
}

// List returns documents newest first.
func (s *DocumentStore) List(ctx context.Context, offset, limit int) ([]*model.Document, int64, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 20
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&model.Document{}).Count(&total).Error; err != nil {
		return nil, 0, pkgerrors.ErrDatabase.WithCause(err)
	}

	var docs []*model.Document
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&docs).Error
	if err != nil {
		return nil, 0, pkgerrors.ErrDatabase.WithCause(err)
	}
	return docs, total, nil
}

// Delete removes a document record. Deleting an absent document is not an
// error.
func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&model.Document{}, "id = ?", id).Error; err != nil {
		return pkgerrors.ErrDatabase.WithCause(err)
	}
	return nil
}

// UpdateStatus transitions a document's status. failReason is cleared unless
// the status is failed.
func (s *DocumentStore) UpdateStatus(ctx context.Context, id, status, failReason string) error {
	if status != model.StatusFailed {
		failReason = ""
	}
	updates := map[string]any{
		"status":      status,
		"fail_reason": failReason,
	}
	result := s.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return pkgerrors.ErrDatabase.WithCause(result.Error)
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrDocumentNotFound.WithMessagef("document %s not found", id)
	}
	return nil
}

// UpdateChunkCount records the number of chunks produced for a document.
func (s *DocumentStore) UpdateChunkCount(ctx context.Context, id string, chunkCount int) error {
	result := s.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).
		Update("chunk_count", chunkCount)
	if result.Error != nil {
		return pkgerrors.ErrDatabase.WithCause(result.Error)
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrDocumentNotFound.WithMessagef("document %s not found", id)
	}
	return nil
}

// CountByStatus returns the number of documents per status.
func (s *DocumentStore) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&model.Document{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, pkgerrors.ErrDatabase.WithCause(err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
