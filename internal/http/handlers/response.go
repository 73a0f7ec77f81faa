package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-complaint-backend/internal/http/middleware"
)

// Stable, machine-readable error codes. Clients branch on these, never on
// Message.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodePayloadTooLarge  = "payload_too_large"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	// ErrCodeUnavailable marks a retryable storage fault; the response also
	// carries Retry-After.
	ErrCodeUnavailable = "service_unavailable"
)

// ErrorResponse is the error envelope of every endpoint.
type ErrorResponse struct {
	// Echo of X-Request-ID, for matching a client error to server logs.
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"not_found"`
	// Safe to show to users; never carries internal error text.
	Message string `json:"message" example:"Complaint not found"`
}

// fail aborts with the error envelope. 5xx responses are also logged.
func fail(c *gin.Context, status int, code, msg string) {
	failWith(c, status, code, msg, nil)
}

// failWith is fail with an underlying cause. The cause goes to the log and to
// c.Errors, not to the client.
func failWith(c *gin.Context, status int, code, msg string, cause error) {
	if cause != nil {
		_ = c.Error(cause)
	}
	if status >= http.StatusInternalServerError {
		ev := middleware.LoggerFrom(c).Error().Int("status", status).Str("code", code)
		if cause != nil {
			ev = ev.Err(cause)
		}
		ev.Msg(msg)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Message:   msg,
	})
}

// Fail writes the error envelope for code outside this package, such as the
// router's 404 and 405 fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// badBody answers a request whose JSON body could not be bound: 413 when the
// body limit tripped, 400 otherwise.
func badBody(c *gin.Context, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "request body too large")
		return
	}
	fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
}
