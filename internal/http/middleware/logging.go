// Package middleware holds the gin middleware mounted in front of the
// complaint handlers: correlation IDs, access logging with redaction, panic
// recovery, metrics, security headers, rate limiting and Idempotency-Key
// validation.
//
// Order matters. RequestID must run first so later middleware can tag logs
// and error bodies with the ID; RedactingLogger must run before anything that
// logs through LoggerFrom or zerolog.Ctx.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	// maxRequestIDLen bounds client-supplied correlation IDs.
	maxRequestIDLen = 128
	// maxQueryLogLength caps the number of bytes of the raw query string logged.
	maxQueryLogLength = 2048
)

// RequestID reuses a well-formed inbound X-Request-ID or mints a UUIDv4, then
// echoes it on the response and stores it in the gin context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !validRequestID(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Header(requestIDHeader, rid)
		c.Next()
	}
}

// RequestIDFrom returns the correlation ID for c. Without RequestID in the
// chain it falls back to the response header, then to a well-formed request
// header, then to "".
func RequestIDFrom(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	if s := c.Writer.Header().Get(requestIDHeader); s != "" {
		return s
	}
	if s := c.GetHeader(requestIDHeader); validRequestID(s) {
		return s
	}
	return ""
}

// validRequestID accepts 1..maxRequestIDLen printable ASCII bytes, which keeps
// client input out of header splitting and log forging territory.
func validRequestID(s string) bool {
	if s == "" || len(s) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

// Recovery turns a panic into a JSON 500 (unless the handler already wrote)
// and records it on c.Errors so the access log line is emitted at error level.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := RequestIDFrom(c)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", rid).
				Msg("panic recovered")
			_ = c.Error(fmt.Errorf("panic: %v", rec))

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger attached by RedactingLogger,
// or the process logger when none is attached. The result is never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// attachLogger derives the request-scoped logger and publishes it both to the
// gin context and to the request context, where services find it with
// zerolog.Ctx.
func attachLogger(c *gin.Context) *zerolog.Logger {
	lc := log.With().
		Str("request_id", RequestIDFrom(c)).
		Str("method", c.Request.Method).
		Str("path", routePath(c))
	if id := c.Param("id"); id != "" {
		lc = lc.Str("complaint_id", id)
	}
	l := lc.Logger()
	c.Set(loggerKey, &l)
	c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
	return &l
}

// routePath prefers the matched route pattern so log cardinality stays
// bounded; unmatched requests fall back to the raw path.
func routePath(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

// levelFor maps a finished request onto a log level: error for 5xx or any
// recorded gin error, warn for 4xx, info otherwise.
func levelFor(status, errs int) zerolog.Level {
	switch {
	case errs > 0 || status >= 500:
		return zerolog.ErrorLevel
	case status >= 400:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

// truncate caps s at max bytes, appending an ellipsis. max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
