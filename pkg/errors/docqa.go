package errors

import (
	"net/http"
)

// ============================================================================
// Vector Store Errors (Service: 10)
// ============================================================================

var (
	// ErrInvalidVector indicates an embedding vector that cannot be indexed,
	// such as an all-zero vector with no direction.
	ErrInvalidVector = Register(&Errno{
		Code:      MakeCode(ServiceStore, CategoryRequest, 0),
		HTTP:      http.StatusBadRequest,
		MessageEN: "Invalid embedding vector",
		MessageZH: "向量无效",
	})

	// ErrDimensionMismatch indicates a vector whose dimension does not match
	// the configured index dimension.
	ErrDimensionMismatch = Register(&Errno{
		Code:      MakeCode(ServiceStore, CategoryRequest, 1),
		HTTP:      http.StatusBadRequest,
		MessageEN: "Embedding dimension mismatch",
		MessageZH: "向量维度不匹配",
	})

	// ErrDuplicateChunk indicates a chunk id that already exists in the index.
	ErrDuplicateChunk = Register(&Errno{
		Code:      MakeCode(ServiceStore, CategoryConflict, 0),
		HTTP:      http.StatusConflict,
		MessageEN: "Chunk id already indexed",
		MessageZH: "分块已存在",
	})

	// ErrIndexFailure indicates a vector index read or write failure.
	ErrIndexFailure = Register(&Errno{
		Code:      MakeCode(ServiceStore, CategoryInternal, 0),
		HTTP:      http.StatusInternalServerError,
		MessageEN: "Vector index failure",
		MessageZH: "向量索引错误",
	})
)

// ============================================================================
// Pipeline Errors (Service: 20)
// ============================================================================

var (
	// ErrDocumentNotFound indicates the requested document does not exist.
	ErrDocumentNotFound = Register(&Errno{
		Code:      MakeCode(ServicePipeline, CategoryResource, 0),
		HTTP:      http.StatusNotFound,
		MessageEN: "Document not found",
		MessageZH: "文档不存在",
	})

	// ErrIngestFailed indicates document ingestion failed at some stage.
	ErrIngestFailed = Register(&Errno{
		Code:      MakeCode(ServicePipeline, CategoryInternal, 0),
		HTTP:      http.StatusInternalServerError,
		MessageEN: "Document ingestion failed",
		MessageZH: "文档入库失败",
	})

	// ErrGenerationFailed indicates answer synthesis failed after retrieval
	// succeeded. Distinct from the no-relevant-chunks outcome, which is not
	// an error.
	ErrGenerationFailed = Register(&Errno{
		Code:      MakeCode(ServicePipeline, CategoryInternal, 1),
		HTTP:      http.StatusInternalServerError,
		MessageEN: "Answer generation failed",
		MessageZH: "回答生成失败",
	})
)

// ============================================================================
// LLM Provider Errors (Service: 90)
// ============================================================================

var (
	// ErrProviderUnavailable indicates the embedding or chat provider could
	// not be reached or returned a server-side failure.
	ErrProviderUnavailable = Register(&Errno{
		Code:      MakeCode(ServiceProvider, CategoryNetwork, 0),
		HTTP:      http.StatusServiceUnavailable,
		MessageEN: "LLM provider unavailable",
		MessageZH: "模型服务不可用",
	})

	// ErrRateLimited indicates the provider rejected the call due to
	// rate limiting.
	ErrRateLimited = Register(&Errno{
		Code:      MakeCode(ServiceProvider, CategoryRateLimit, 0),
		HTTP:      http.StatusTooManyRequests,
		MessageEN: "LLM provider rate limited",
		MessageZH: "模型服务限流",
	})

	// ErrProviderResponse indicates the provider returned a malformed or
	// unexpected response body.
	ErrProviderResponse = Register(&Errno{
		Code:      MakeCode(ServiceProvider, CategoryInternal, 0),
		HTTP:      http.StatusBadGateway,
		MessageEN: "Invalid LLM provider response",
		MessageZH: "模型服务响应异常",
	})
)
