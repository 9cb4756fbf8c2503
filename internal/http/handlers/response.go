// Package handlers implements the HTTP endpoints: webhook ingestion per
// provider, the WhatsApp subscription handshake, and health. Responses use a
// small uniform envelope carrying the request correlation ID.
package handlers

import (
	"github.com/gin-gonic/gin"
)

// errorBody is the uniform error envelope.
type errorBody struct {
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// statusBody acknowledges accepted or ignored deliveries.
type statusBody struct {
	Status string `json:"status"`
}

func requestID(c *gin.Context) string {
	return c.Writer.Header().Get("X-Request-ID")
}

func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorBody{
		RequestID: requestID(c),
		Code:      code,
		Message:   message,
	})
}
