// Package handler provides HTTP handlers for the document QA service.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/httputils"
	pkgerrors "github.com/kart-io/docqa/pkg/errors"
)

// QueryTimeout bounds a single query end to end, embedding and generation
// included.
const QueryTimeout = 60 * time.Second

// Handler handles document QA HTTP requests.
type Handler struct {
	service biz.Service
}

// NewHandler creates a handler.
func NewHandler(service biz.Service) *Handler {
	return &Handler{service: service}
}

// SubmitRequest is the body of POST /v1/documents.
type SubmitRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Text        string `json:"text" binding:"required"`
}

// SubmitDocument ingests a document and returns its record.
func (h *Handler) SubmitDocument(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputils.WriteError(c, pkgerrors.ErrInvalidInput.WithMessage(err.Error()))
		return
	}

	doc, err := h.service.SubmitDocument(c.Request.Context(), &biz.SubmitRequest{
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Text:        req.Text,
	})
	if err != nil {
		httputils.WriteError(c, err)
		return
	}
	httputils.WriteCreated(c, doc)
}

// DocumentDetail is the body of GET /v1/documents/:id.
type DocumentDetail struct {
	*model.Document
	ChunkIDs []string `json:"chunk_ids"`
}

// GetDocument returns one document by id, including its chunk references.
func (h *Handler) GetDocument(c *gin.Context) {
	doc, err := h.service.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		httputils.WriteError(c, err)
		return
	}

	chunkIDs := make([]string, doc.ChunkCount)
	for n := range chunkIDs {
		chunkIDs[n] = store.ChunkIDFor(doc.ID, n)
	}
	httputils.WriteResponse(c, nil, DocumentDetail{Document: doc, ChunkIDs: chunkIDs})
}

// ListResponse is the body of GET /v1/documents.
type ListResponse struct {
	Documents any   `json:"documents"`
	Total     int64 `json:"total"`
	Offset    int   `json:"offset"`
	Limit     int   `json:"limit"`
}

// ListDocuments pages through documents newest first.
func (h *Handler) ListDocuments(c *gin.Context) {
	var query struct {
		Offset int `form:"offset"`
		Limit  int `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		httputils.WriteError(c, pkgerrors.ErrInvalidInput.WithMessage(err.Error()))
		return
	}

	docs, total, err := h.service.ListDocuments(c.Request.Context(), query.Offset, query.Limit)
	if err != nil {
		httputils.WriteError(c, err)
		return
	}
	httputils.WriteResponse(c, nil, ListResponse{
		Documents: docs,
		Total:     total,
		Offset:    query.Offset,
		Limit:     query.Limit,
	})
}

// DeleteResponse is the body of DELETE /v1/documents/:id.
type DeleteResponse struct {
	DeletedChunks int `json:"deleted_chunks"`
}

// DeleteDocument removes a document and its chunks. Deleting an unknown id
// succeeds with zero deleted chunks.
func (h *Handler) DeleteDocument(c *gin.Context) {
	deleted, err := h.service.DeleteDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		httputils.WriteError(c, err)
		return
	}
	httputils.WriteResponse(c, nil, DeleteResponse{DeletedChunks: deleted})
}

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"top_k"`
}

// Query answers a question grounded in the indexed documents.
func (h *Handler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputils.WriteError(c, pkgerrors.ErrInvalidInput.WithMessage(err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), QueryTimeout)
	defer cancel()

	result, err := h.service.Ask(ctx, req.Question, req.TopK)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			c.JSON(http.StatusRequestTimeout, httputils.Response{
				Code:    http.StatusRequestTimeout,
				Message: "query timed out, retry or simplify the question",
			})
			return
		}
		httputils.WriteError(c, err)
		return
	}
	httputils.WriteResponse(c, nil, result)
}

// Stats reports index and cache statistics.
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	httputils.WriteResponse(c, err, stats)
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
