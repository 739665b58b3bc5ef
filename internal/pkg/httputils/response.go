// Package httputils provides HTTP response helpers.
package httputils

import (
	"net/http"

	"github.com/gin-gonic/gin"

	pkgerrors "github.com/kart-io/docqa/pkg/errors"
)

// Response is the envelope for every API response.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// WriteResponse writes a success or error response in the standard envelope.
// Errors are mapped to HTTP status codes through their errno.
func WriteResponse(c *gin.Context, err error, data any) {
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Code: 0, Message: "success", Data: data})
}

// WriteCreated writes a 201 response.
func WriteCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Code: 0, Message: "success", Data: data})
}

// WriteError writes an error response using the errno's HTTP status.
func WriteError(c *gin.Context, err error) {
	e := pkgerrors.FromError(err)
	c.JSON(e.HTTPStatus(), Response{Code: e.Code, Message: e.MessageEN})
}
