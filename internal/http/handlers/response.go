// Package handlers exposes the REST surface of the chat broker.
//
// Handlers are transport-thin: they validate input, call the services layer,
// and translate service results (including the sentinel errors) into HTTP
// responses with stable machine-readable codes. Success bodies are plain
// domain objects; every failure is an ErrorResponse envelope.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/venturing/go-livechat-backend/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by every endpoint.
//
// RequestID echoes the X-Request-ID header so client reports can be matched
// against server logs. Code is one of the constants in errors.go; clients
// branch on it, not on Message.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"not_found"`
	Message   string `json:"message" example:"resource not found"`
}

// fail aborts the request with a structured error. Server-side failures
// (>= 500) are logged with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail, used by router-level fallbacks
// (404/405) so they share the envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
