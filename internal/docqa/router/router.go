// Package router wires the document QA routes.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/handler"
)

// Register registers all document QA routes on the engine.
func Register(engine *gin.Engine, h *handler.Handler) {
	engine.GET("/healthz", h.Healthz)

	v1 := engine.Group("/v1")
	{
		documents := v1.Group("/documents")
		{
			documents.POST("", h.SubmitDocument)
			documents.GET("", h.ListDocuments)
			documents.GET("/:id", h.GetDocument)
			documents.DELETE("/:id", h.DeleteDocument)
		}

		v1.POST("/query", h.Query)
		v1.GET("/stats", h.Stats)
	}

	logger.Info("HTTP routes registered")
}
